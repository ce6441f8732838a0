package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/payments"
)

type fakeAPI struct {
	statusCalls atomic.Int32
	paidAfter   int32

	mu           sync.Mutex
	lastKey      string
	lastCourtesy string
	lastAuth     string
	lastCheckout CheckoutRequest
}

func (f *fakeAPI) seen() (key, courtesy, auth string, checkout CheckoutRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastKey, f.lastCourtesy, f.lastAuth, f.lastCheckout
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/shipping/cep/{cep}", func(w http.ResponseWriter, req *http.Request) {
			if chi.URLParam(req, "cep") == "00000000" {
				writeJSON(w, http.StatusNotFound, map[string]any{"error": "address_not_found", "message": "CEP não encontrado"})
				return
			}
			writeJSON(w, http.StatusOK, Address{PostalCode: chi.URLParam(req, "cep"), City: "São Paulo", State: "SP"})
		})
		api.Post("/shipping/quote", func(w http.ResponseWriter, req *http.Request) {
			var body quoteRequest
			_ = json.NewDecoder(req.Body).Decode(&body)
			pac := FreightOption{Carrier: "Correios", ServiceName: "PAC", ServiceCode: "1", Price: Money{Cents: 1500}}
			writeJSON(w, http.StatusOK, Quote{PostalCode: body.PostalCode, Options: []FreightOption{pac}, Cheapest: &pac})
		})
		api.Post("/checkout", func(w http.ResponseWriter, req *http.Request) {
			var body CheckoutRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_json"})
				return
			}
			f.mu.Lock()
			f.lastKey = req.Header.Get("Idempotency-Key")
			f.lastCourtesy = req.Header.Get("X-Staff")
			f.lastCheckout = body
			f.mu.Unlock()
			if body.Customer.Email == "" {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
					"error":   "invalid_checkout",
					"message": "dados inválidos",
					"fields":  []string{"customer.email:required"},
				})
				return
			}
			writeJSON(w, http.StatusCreated, CheckoutResponse{
				Message:       "Pedido criado",
				OrderID:       "ord_1",
				PaymentStatus: "PENDING",
				PIX:           &PIX{CopyCode: "000201"},
				AccessToken:   "tok-ord_1",
			})
		})
		api.Get("/orders/{id}/status", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			f.lastAuth = req.Header.Get("Authorization")
			f.mu.Unlock()
			n := f.statusCalls.Add(1)
			status := "PENDING"
			if f.paidAfter > 0 && n >= f.paidAfter {
				status = "PAID"
			}
			writeJSON(w, http.StatusOK, OrderStatus{OrderID: chi.URLParam(req, "id"), Status: "pending_payment", PaymentStatus: status})
		})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func checkoutRequest() CheckoutRequest {
	return CheckoutRequest{
		Customer:        Customer{Name: "Ana", Email: "ana@example.com", Document: "12345678909"},
		ShippingAddress: ShippingAddress{PostalCode: "01310100", Street: "Av. Paulista", Number: "1000", City: "São Paulo", State: "SP"},
		Items:           []Item{{ProductID: "p-serum", Quantity: 2}},
		Freight:         &FreightSelection{Carrier: "Correios", ServiceCode: "1", Price: 1500},
		Payment:         Payment{Method: "pix"},
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New("  ")
	require.Error(t, err)
}

func TestClientLookupAndQuote(t *testing.T) {
	api := &fakeAPI{}
	c, err := New(api.server(t).URL + "/")
	require.NoError(t, err)
	ctx := context.Background()

	address, err := c.LookupCEP(ctx, "01310100")
	require.NoError(t, err)
	assert.Equal(t, "São Paulo", address.City)

	_, err = c.LookupCEP(ctx, "00000000")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "address_not_found", apiErr.Code)

	quote, err := c.QuoteFreight(ctx, "01310100", []Item{{ProductID: "p-serum", Quantity: 1}})
	require.NoError(t, err)
	require.NotNil(t, quote.Cheapest)
	assert.Equal(t, int64(1500), quote.Cheapest.Price.Cents)
}

func TestClientPlaceOrder(t *testing.T) {
	api := &fakeAPI{}
	c, err := New(api.server(t).URL, WithCourtesyToken("X-Staff", "staff-token"))
	require.NoError(t, err)
	ctx := context.Background()

	resp, err := c.PlaceOrder(ctx, checkoutRequest())
	require.NoError(t, err)
	assert.Equal(t, "ord_1", resp.OrderID)
	key, courtesy, _, body := api.seen()
	assert.NotEmpty(t, key, "an idempotency key is generated")
	assert.Empty(t, courtesy, "staff token only travels with courtesy or manual discounts")
	assert.Equal(t, "pix", body.Payment.Method)

	req := checkoutRequest()
	req.IdempotencyKey = "fixed-key"
	req.Courtesy = true
	_, err = c.PlaceOrder(ctx, req)
	require.NoError(t, err)
	key, courtesy, _, _ = api.seen()
	assert.Equal(t, "fixed-key", key)
	assert.Equal(t, "staff-token", courtesy)

	_, err = c.OrderStatus(ctx, "ord_1")
	require.NoError(t, err)
	_, _, auth, _ := api.seen()
	assert.Equal(t, "Bearer tok-ord_1", auth)

	_, err = c.OrderStatus(ctx, " ")
	assert.ErrorIs(t, err, ErrMissingOrderID)
}

func TestClientPlaceOrderValidationError(t *testing.T) {
	api := &fakeAPI{}
	c, err := New(api.server(t).URL)
	require.NoError(t, err)

	req := checkoutRequest()
	req.Customer.Email = ""
	_, err = c.PlaceOrder(context.Background(), req)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, []string{"customer.email:required"}, apiErr.Fields)
	assert.Contains(t, apiErr.Error(), "dados inválidos")
}

func TestClientDrivesPoller(t *testing.T) {
	api := &fakeAPI{paidAfter: 3}
	c, err := New(api.server(t).URL)
	require.NoError(t, err)
	c.SetOrderToken("ord_1", "tok-ord_1")

	var succeeded atomic.Value
	poller, err := payments.NewPoller(payments.PollerConfig{
		Source:    c,
		OrderID:   "ord_1",
		Method:    domain.PaymentMethodPIX,
		Interval:  5 * time.Millisecond,
		Timeout:   2 * time.Second,
		OnSuccess: func(status string) { succeeded.Store(status) },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, poller.Start(ctx))
	state, err := poller.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, payments.PollSucceeded, state)
	assert.Equal(t, "PAID", succeeded.Load())
	assert.Equal(t, int32(3), api.statusCalls.Load())
	_, _, auth, _ := api.seen()
	assert.Equal(t, "Bearer tok-ord_1", auth)
}

func TestClientRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "catalog_unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": []Product{{Slug: "serum-vitamina-c"}}})
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)
	c.retryWait = time.Millisecond
	products, err := c.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, int32(2), calls.Load())

	calls.Store(0)
	c, err = New(srv.URL, WithRetries(0))
	require.NoError(t, err)
	_, err = c.ListProducts(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, int32(1), calls.Load())
}
