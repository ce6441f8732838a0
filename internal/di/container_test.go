package di

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/config"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/services"
)

const fallbackCatalog = `
products:
  - id: "1"
    slug: serum-facial
    name: Sérum Facial
    price: "99.99"
    stock: 5
    package:
      weight_grams: 250
      width_cm: 12
      height_cm: 4
      length_cm: 17
  - id: "2"
    slug: kit-natal
    name: Kit Natal
    price: 150
    hidden: true
coupons:
  - code: BEMVINDA10
    kind: percentage
    value: "10"
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fallbackCatalog), 0o600))
	return config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Port: "0"},
		Redis:       config.RedisConfig{CartTTL: time.Hour},
		PubSub:      config.PubSubConfig{OrderTopic: "orders"},
		CMS:         config.CMSConfig{FallbackFile: path, CacheTTL: time.Minute},
		Freight: config.FreightConfig{
			BaseURL:          "http://127.0.0.1:1",
			Token:            "freight-token",
			OriginPostalCode: "69005040",
			CacheTTL:         time.Minute,
		},
		CEP:      config.CEPConfig{BaseURL: "http://127.0.0.1:1"},
		Payments: config.PaymentsConfig{Provider: "sandbox"},
		Checkout: config.CheckoutConfig{
			CourtesyHeader:   "X-Courtesy-Token",
			OrderTokenSecret: strings.Repeat("s", 32),
			OrderTokenTTL:    time.Hour,
		},
		Security: config.SecurityConfig{HMAC: config.HMACConfig{Secrets: map[string]string{}}},
		Idempotency: config.IdempotencyConfig{
			Header:           "Idempotency-Key",
			TTL:              time.Hour,
			CleanupInterval:  time.Minute,
			CleanupBatchSize: 10,
		},
		RateLimits: config.RateLimitConfig{CheckoutPerMinute: 5},
	}
}

func TestNewContainerInMemory(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, testConfig(t), nil, WithBuildInfo(services.BuildInfo{Version: "1.2.3"}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	require.NotNil(t, c.Router)
	require.NotNil(t, c.Services.Checkout)
	require.NotNil(t, c.Services.OrderStatus)

	rr := httptest.NewRecorder()
	c.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var health struct {
		Status  string                    `json:"status"`
		Version string                    `json:"version"`
		Checks  map[string]map[string]any `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, "1.2.3", health.Version)
	assert.Contains(t, health.Checks, "cms")
	assert.NotContains(t, health.Checks, "redis")

	rr = httptest.NewRecorder()
	c.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
}

func TestNewContainerWithRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c, err := NewContainer(ctx, testConfig(t), nil, WithRedisClient(client))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	rr := httptest.NewRecorder()
	c.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/cart", nil))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Cart struct {
			ID string `json:"id"`
		} `json:"cart"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.NotEmpty(t, created.Cart.ID)
	assert.True(t, mr.Exists("cart:"+created.Cart.ID), "cart session should live in redis")

	rr = httptest.NewRecorder()
	c.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"redis"`)
}

func TestNewContainerCMSWebhookRequiresSecret(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	c, err := NewContainer(ctx, cfg, nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	c.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/cms", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	require.NoError(t, c.Close(ctx))

	cfg.CMS.WebhookSecret = "cms-secret"
	c, err = NewContainer(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })
	rr = httptest.NewRecorder()
	c.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/cms", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestNewContainerRejectsInvalidConfig(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.Checkout.OrderTokenSecret = "short"
	_, err := NewContainer(ctx, cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order tokens")

	cfg = testConfig(t)
	cfg.Payments.Provider = "paypal"
	_, err = NewContainer(ctx, cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}
