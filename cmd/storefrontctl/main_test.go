package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/client"
)

func newFakeAPI(t *testing.T, finalStatus string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	r := chi.NewRouter()
	r.Post("/api/v1/shipping/quote", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			PostalCode string        `json:"postalCode"`
			Items      []client.Item `json:"items"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		options := make([]client.FreightOption, 0, len(body.Items))
		for _, item := range body.Items {
			options = append(options, client.FreightOption{ServiceName: item.ProductID, DeliveryDays: item.Quantity})
		}
		writeTestJSON(w, http.StatusOK, client.Quote{PostalCode: body.PostalCode, Options: options})
	})
	r.Get("/api/v1/products", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]any{"items": []client.Product{{ID: "p-serum", Name: "Sérum Facial"}}})
	})
	r.Post("/api/v1/checkout", func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusCreated, client.CheckoutResponse{OrderID: "ord_9", PaymentStatus: "PENDING", AccessToken: "tok"})
	})
	r.Get("/api/v1/orders/{id}/status", func(w http.ResponseWriter, req *http.Request) {
		status := "PENDING"
		if polls.Add(1) >= 2 {
			status = finalStatus
		}
		writeTestJSON(w, http.StatusOK, client.OrderStatus{OrderID: chi.URLParam(req, "id"), PaymentStatus: status})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func writeTestJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runContext(t, context.Background(), args...)
}

func runContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).RunContext(ctx, append([]string{"storefrontctl"}, args...))
	return stdout.String(), err
}

func TestParseItems(t *testing.T) {
	items, err := parseItems([]string{"p-serum:2", " p-batom "})
	require.NoError(t, err)
	assert.Equal(t, []client.Item{{ProductID: "p-serum", Quantity: 2}, {ProductID: "p-batom", Quantity: 1}}, items)

	for _, bad := range []string{":2", "p-serum:0", "p-serum:x"} {
		_, err := parseItems([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestProductsListCommand(t *testing.T) {
	srv, _ := newFakeAPI(t, "PAID")
	out, err := run(t, "--api-url", srv.URL, "products", "list")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "p-serum"`)
}

func TestShippingQuoteCommand(t *testing.T) {
	srv, _ := newFakeAPI(t, "PAID")
	out, err := run(t, "--api-url", srv.URL, "shipping", "quote", "--cep", "01310-100", "--item", "p-serum:2")
	require.NoError(t, err)
	assert.Contains(t, out, `"postalCode": "01310-100"`)
	assert.Contains(t, out, `"serviceName": "p-serum"`)
	assert.Contains(t, out, `"deliveryDays": 2`)
}

func TestCheckoutCommandWaitsForPayment(t *testing.T) {
	srv, polls := newFakeAPI(t, "PAID")
	path := filepath.Join(t.TempDir(), "order.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"customer":{"email":"ana@example.com"},"payment":{"method":"pix"}}`), 0o600))

	out, err := run(t, "--api-url", srv.URL, "checkout", "-f", path, "--wait", "--interval", "5ms", "--timeout", "2s")
	require.NoError(t, err)
	assert.Contains(t, out, `"orderId": "ord_9"`)
	assert.Contains(t, out, `"state": "succeeded"`)
	assert.Equal(t, int32(2), polls.Load())
}

func TestOrdersWatchCommandFailure(t *testing.T) {
	srv, _ := newFakeAPI(t, "EXPIRED")
	out, err := run(t, "--api-url", srv.URL, "orders", "watch", "--token", "tok", "--interval", "5ms", "--timeout", "2s", "ord_9")
	require.Error(t, err)
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 3, exit.ExitCode())
	assert.Contains(t, out, `"state": "failed"`)
}

func TestOrdersWatchCommandInterrupted(t *testing.T) {
	srv, polls := newFakeAPI(t, "PENDING")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for polls.Load() < 2 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err := runContext(t, ctx, "--api-url", srv.URL, "orders", "watch", "--interval", "5ms", "--timeout", "1m", "ord_9")
	require.Error(t, err)
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, exitInterrupted, exit.ExitCode())
}

func TestCheckoutCommandRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"customr":{}}`), 0o600))
	_, err := run(t, "--api-url", "http://127.0.0.1:1", "checkout", "-f", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}
