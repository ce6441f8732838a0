package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

func serumItems() []domain.CartLineItem {
	return []domain.CartLineItem{{
		ProductID: "serum",
		UnitPrice: 9999,
		Quantity:  2,
		Package:   domain.PackageDimensions{WeightGrams: 250, WidthCM: 12, HeightCM: 4, LengthCM: 17},
	}}
}

func newTestFreightClient(t *testing.T, url string, opts ...ClientOption) *FreightClient {
	t.Helper()
	client, err := NewFreightClient(FreightConfig{
		BaseURL:          url,
		Token:            "me-token",
		OriginPostalCode: "01310-100",
	}, opts...)
	require.NoError(t, err)
	return client
}

const carrierResponse = `[
  {"id": 1, "name": "PAC", "price": "23.45", "delivery_time": 8, "company": {"name": "Correios"}},
  {"id": 2, "name": "SEDEX", "price": 41.9, "delivery_time": 3, "company": {"name": "Correios"}},
  {"id": 3, "name": ".Package", "price": "23.45", "delivery_time": 5, "company": {"name": "Jadlog"}},
  {"id": 17, "name": "Mini Envios", "error": "Peso excede o limite", "company": {"name": "Correios"}},
  {"id": "azul-1", "name": "Amanhã", "price": "0", "company": {"name": "Azul Cargo"}}
]`

func TestQuoteParsesOptionsAndPicksCheapest(t *testing.T) {
	var captured calculateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/me/shipment/calculate", r.URL.Path)
		assert.Equal(t, "Bearer me-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(carrierResponse))
	}))
	defer server.Close()

	client := newTestFreightClient(t, server.URL)
	quote, err := client.Quote(context.Background(), "69.020-030", serumItems())
	require.NoError(t, err)

	assert.Equal(t, "01310100", captured.From.PostalCode)
	assert.Equal(t, "69020030", captured.To.PostalCode)
	require.Len(t, captured.Products, 1)
	assert.Equal(t, 0.25, captured.Products[0].Weight)
	assert.Equal(t, json.Number("99.99"), captured.Products[0].InsuranceValue)
	assert.Equal(t, 2, captured.Products[0].Quantity)

	require.Len(t, quote.Options, 3)
	assert.Equal(t, domain.FreightOption{Carrier: "Correios", ServiceName: "PAC", ServiceCode: "1", Price: 2345, DeliveryDays: 8}, quote.Options[0])
	assert.Equal(t, int64(4190), quote.Options[1].Price)
	require.NotNil(t, quote.Cheapest)
	assert.Equal(t, "PAC", quote.Cheapest.ServiceName, "ties keep the first option offered")
}

func TestQuoteAppliesPackageMinimums(t *testing.T) {
	var captured calculateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestFreightClient(t, server.URL)
	quote, err := client.Quote(context.Background(), "69020030", []domain.CartLineItem{{ProductID: "lip", UnitPrice: 4590, Quantity: 1}})
	require.NoError(t, err)
	assert.Empty(t, quote.Options)
	assert.Nil(t, quote.Cheapest)

	require.Len(t, captured.Products, 1)
	product := captured.Products[0]
	assert.Equal(t, minWidthCM, product.Width)
	assert.Equal(t, minHeightCM, product.Height)
	assert.Equal(t, minLengthCM, product.Length)
	assert.Equal(t, 0.3, product.Weight)
}

func TestQuoteFailsFastWithoutNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()
	client := newTestFreightClient(t, server.URL)

	_, err := client.Quote(context.Background(), "1234-567", serumItems())
	require.ErrorIs(t, err, ErrInvalidPostalCode)
	assert.Equal(t, MessageInvalidPostalCode, UserMessage(err))

	_, err = client.Quote(context.Background(), "69020030", nil)
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, MessageEmptyCart, UserMessage(err))

	assert.Zero(t, calls.Load())
}

func TestQuoteProviderErrorBecomesQuoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Unauthenticated."}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestFreightClient(t, server.URL)
	_, err := client.Quote(context.Background(), "69020030", serumItems())
	require.Error(t, err)

	var qe *QuoteError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, http.StatusUnauthorized, qe.Status)
	assert.Equal(t, MessageFreightFailed, qe.Message)
	assert.ErrorIs(t, err, ErrFreightUnavailable)
}

func TestQuoteDoesNotRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestFreightClient(t, server.URL)
	_, err := client.Quote(context.Background(), "69020030", serumItems())
	require.ErrorIs(t, err, ErrFreightUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQuoteRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(carrierResponse))
	}))
	defer server.Close()

	client := newTestFreightClient(t, server.URL, WithRetry(3))
	quote, err := client.Quote(context.Background(), "69020030", serumItems())
	require.NoError(t, err)
	assert.Len(t, quote.Options, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQuoteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := newTestFreightClient(t, server.URL, WithRetry(3))
	_, err := client.Quote(context.Background(), "69020030", serumItems())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQuoteCircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestFreightClient(t, server.URL, WithCircuitBreaker(2, time.Minute))
	for i := 0; i < 4; i++ {
		_, err := client.Quote(context.Background(), "69020030", serumItems())
		require.ErrorIs(t, err, ErrFreightUnavailable)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestQuoteCachesByDestinationAndItems(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(carrierResponse))
	}))
	defer server.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := newTestFreightClient(t, server.URL,
		WithQuoteCache(time.Minute),
		WithClock(func() time.Time { return now }),
	)

	ctx := context.Background()
	_, err := client.Quote(ctx, "69020030", serumItems())
	require.NoError(t, err)
	_, err = client.Quote(ctx, "69020-030", serumItems())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	more := serumItems()
	more[0].Quantity = 3
	_, err = client.Quote(ctx, "69020030", more)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	now = now.Add(2 * time.Minute)
	_, err = client.Quote(ctx, "69020030", serumItems())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func (c *ttlCache[V]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func TestQuoteCacheDropsExpiredEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(carrierResponse))
	}))
	defer server.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := newTestFreightClient(t, server.URL,
		WithQuoteCache(time.Minute),
		WithClock(func() time.Time { return now }),
	)

	ctx := context.Background()
	for i := range 40 {
		_, err := client.Quote(ctx, fmt.Sprintf("690200%02d", i), serumItems())
		require.NoError(t, err)
	}
	assert.Equal(t, 40, client.cache.len())

	now = now.Add(24 * time.Hour)
	_, err := client.Quote(ctx, "01310100", serumItems())
	require.NoError(t, err)
	assert.Equal(t, 1, client.cache.len())
}

func TestNewFreightClientValidatesConfig(t *testing.T) {
	_, err := NewFreightClient(FreightConfig{OriginPostalCode: "01310100"})
	require.Error(t, err)
	_, err = NewFreightClient(FreightConfig{BaseURL: "https://example.test", OriginPostalCode: "123"})
	require.ErrorIs(t, err, ErrInvalidPostalCode)
}

func TestCheapest(t *testing.T) {
	assert.Nil(t, Cheapest(nil))
	got := Cheapest([]domain.FreightOption{
		{ServiceCode: "a", Price: 3000},
		{ServiceCode: "b", Price: 1500},
		{ServiceCode: "c", Price: 1500},
	})
	require.NotNil(t, got)
	assert.Equal(t, "b", got.ServiceCode)
}

func TestNormalizePostalCode(t *testing.T) {
	got, err := NormalizePostalCode(" 01310-100 ")
	require.NoError(t, err)
	assert.Equal(t, "01310100", got)

	for _, raw := range []string{"", "0131010", "013101000", "abc"} {
		_, err := NormalizePostalCode(raw)
		assert.ErrorIs(t, err, ErrInvalidPostalCode, raw)
	}
}
