//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	pconfig "github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/config"
	pfirestore "github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/firestore"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestOrderRepositoryIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := pfirestore.Open(ctx, pconfig.FirestoreConfig{ProjectID: "orders-test", EmulatorHost: endpoint})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	repo, err := NewOrderRepository(client)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	order := domain.Order{
		ID:       "ord_it_1",
		Number:   "LC-000001",
		Status:   domain.OrderStatusPendingPayment,
		Currency: "brl",
		Customer: domain.Customer{Name: "Ana", Email: "Ana@Example.com", Document: "12345678909"},
		ShippingAddress: domain.Address{
			PostalCode: "01310100", Street: "Av. Paulista", Number: "1000",
			Neighborhood: "Bela Vista", City: "São Paulo", State: "SP",
		},
		Items:   []domain.OrderLineItem{{ProductID: "1", Name: "Sérum", UnitPrice: 9999, Quantity: 2, Subtotal: 19998, Discount: 2000, Total: 17998}},
		Coupons: []domain.AppliedCoupon{{Code: "BEMVINDA10", Kind: domain.CouponKindPercentage, Value: 1000, Amount: 2000}},
		Freight: &domain.FreightOption{Carrier: "Correios", ServiceName: "PAC", ServiceCode: "1", Price: 1500, DeliveryDays: 7},
		Totals:  domain.OrderTotals{Subtotal: 19998, Discount: 2000, Freight: 1500, Total: 19498},
		Payment: &domain.PaymentSession{
			Method: domain.PaymentMethodPIX, Provider: "stripe", IntentID: "pi_it_1",
			Status: domain.PaymentStatusPending, Amount: 19498, CreatedAt: created, UpdatedAt: created,
		},
		CreatedAt: created,
		UpdatedAt: created,
	}

	if err := repo.Insert(ctx, order); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err = repo.Insert(ctx, order)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on duplicate insert, got %v", err)
	}

	loaded, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if loaded.Customer.Email != "ana@example.com" || loaded.Currency != "BRL" || loaded.Totals.Total != 19498 {
		t.Fatalf("unexpected order %#v", loaded)
	}
	if loaded.Freight == nil || loaded.Freight.Price != 1500 || len(loaded.Coupons) != 1 {
		t.Fatalf("freight and coupons not round-tripped: %#v", loaded)
	}

	paidAt := created.Add(5 * time.Minute)
	loaded.Status = domain.OrderStatusPaid
	loaded.PaidAt = &paidAt
	loaded.Payment.Status = domain.PaymentStatusPaid
	loaded.CreatedAt = time.Time{}
	if err := repo.Update(ctx, loaded); err != nil {
		t.Fatalf("update: %v", err)
	}

	byIntent, err := repo.FindByPaymentIntent(ctx, "pi_it_1")
	if err != nil {
		t.Fatalf("find by intent: %v", err)
	}
	if byIntent.Status != domain.OrderStatusPaid || byIntent.PaidAt == nil || !byIntent.CreatedAt.Equal(created) {
		t.Fatalf("unexpected order after update %#v", byIntent)
	}

	_, err = repo.FindByPaymentIntent(ctx, "pi_unknown")
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found for unknown intent, got %v", err)
	}
	err = repo.Update(ctx, domain.Order{ID: "ord_missing"})
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found when updating missing order, got %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	cmd := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080", "--quiet",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}
