package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/textutil"
)

const (
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultEnvironment          = "local"
	defaultCartTTL              = 7 * 24 * time.Hour
	defaultOrderTopic           = "storefront-orders"
	defaultCMSCacheTTL          = 5 * time.Minute
	defaultFreightBaseURL       = "https://www.melhorenvio.com.br"
	defaultFreightUserAgent     = "storefront (suporte@lovecosmetics.com.br)"
	defaultFreightCacheTTL      = 10 * time.Minute
	defaultFreightBreakerOpen   = 30 * time.Second
	defaultCEPBaseURL           = "https://viacep.com.br"
	defaultCEPCacheTTL          = 24 * time.Hour
	defaultPaymentProvider      = "stripe"
	defaultPIXExpiry            = 15 * time.Minute
	defaultOrderTokenTTL        = 24 * time.Hour
	defaultCourtesyHeader       = "X-Courtesy-Token"
	defaultHMACSignatureHeader  = "X-Signature"
	defaultHMACTimestampHeader  = "X-Signature-Timestamp"
	defaultHMACNonceHeader      = "X-Signature-Nonce"
	defaultHMACClockSkew        = 5 * time.Minute
	defaultHMACNonceTTL         = 5 * time.Minute
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultCheckoutPerMinute    = 20
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Firestore   FirestoreConfig
	Redis       RedisConfig
	PubSub      PubSubConfig
	CMS         CMSConfig
	Freight     FreightConfig
	CEP         CEPConfig
	Payments    PaymentsConfig
	Checkout    CheckoutConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
	RateLimits  RateLimitConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores order database parameters. An empty ProjectID keeps orders in memory.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// RedisConfig locates the cart session store. An empty Addr keeps carts in memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CartTTL  time.Duration
}

// PubSubConfig controls order event publishing. An empty ProjectID disables it.
type PubSubConfig struct {
	ProjectID  string
	OrderTopic string
}

// CMSConfig points at the Strapi instance holding products and coupons.
type CMSConfig struct {
	BaseURL       string
	Token         string
	CacheTTL      time.Duration
	FallbackFile  string
	WebhookSecret string
}

// FreightConfig configures the carrier quote API.
type FreightConfig struct {
	BaseURL          string
	Token            string
	OriginPostalCode string
	UserAgent        string
	Retries          int
	BreakerFailures  int
	BreakerOpenFor   time.Duration
	CacheTTL         time.Duration
}

// CEPConfig configures the postal-code lookup API.
type CEPConfig struct {
	BaseURL  string
	CacheTTL time.Duration
}

// PaymentsConfig selects and configures the payment provider.
type PaymentsConfig struct {
	Provider            string
	StripeAPIKey        string
	StripeWebhookSecret string
	ReturnURL           string
	PIXExpiry           time.Duration
}

// CheckoutConfig holds checkout secrets.
type CheckoutConfig struct {
	CourtesyToken    string
	CourtesyHeader   string
	OrderTokenSecret string
	OrderTokenTTL    time.Duration
}

// SecurityConfig groups webhook authentication settings.
type SecurityConfig struct {
	HMAC HMACConfig
}

// HMACConfig captures webhook signing expectations.
type HMACConfig struct {
	Secrets         map[string]string
	SignatureHeader string
	TimestampHeader string
	NonceHeader     string
	ClockSkew       time.Duration
	NonceTTL        time.Duration
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// RateLimitConfig controls request throttling of checkout submissions.
type RateLimitConfig struct {
	CheckoutPerMinute int
}

// ValidationError lists the config fields that are missing or out of range.
type ValidationError struct {
	Invalid []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: missing or invalid [%s]", strings.Join(e.Invalid, ", "))
}

// IsProduction reports whether the environment name denotes production.
func (c Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// Load builds the configuration from defaults, the dotenv file, the process environment and
// WithEnvMap, in increasing precedence. Secret references are resolved before validation.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	src, err := newSource(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: strings.ToLower(src.str("STOREFRONT_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:         src.str("STOREFRONT_SERVER_PORT", defaultPort),
			ReadTimeout:  src.duration("STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: src.duration("STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  src.duration("STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    src.get("STOREFRONT_FIRESTORE_PROJECT_ID"),
			EmulatorHost: src.get("STOREFRONT_FIRESTORE_EMULATOR_HOST"),
		},
		Redis: RedisConfig{
			Addr:     src.get("STOREFRONT_REDIS_ADDR"),
			Password: src.get("STOREFRONT_REDIS_PASSWORD"),
			DB:       src.integer("STOREFRONT_REDIS_DB", 0),
			CartTTL:  src.duration("STOREFRONT_CART_TTL", defaultCartTTL),
		},
		PubSub: PubSubConfig{
			ProjectID:  src.get("STOREFRONT_PUBSUB_PROJECT_ID"),
			OrderTopic: src.str("STOREFRONT_PUBSUB_ORDER_TOPIC", defaultOrderTopic),
		},
		CMS: CMSConfig{
			BaseURL:       src.get("STOREFRONT_CMS_BASE_URL"),
			Token:         src.get("STOREFRONT_CMS_TOKEN"),
			CacheTTL:      src.duration("STOREFRONT_CMS_CACHE_TTL", defaultCMSCacheTTL),
			FallbackFile:  src.get("STOREFRONT_CMS_FALLBACK_FILE"),
			WebhookSecret: src.get("STOREFRONT_CMS_WEBHOOK_SECRET"),
		},
		Freight: FreightConfig{
			BaseURL:          src.str("STOREFRONT_FREIGHT_BASE_URL", defaultFreightBaseURL),
			Token:            src.get("STOREFRONT_FREIGHT_TOKEN"),
			OriginPostalCode: src.get("STOREFRONT_FREIGHT_ORIGIN_CEP"),
			UserAgent:        src.str("STOREFRONT_FREIGHT_USER_AGENT", defaultFreightUserAgent),
			Retries:          src.integer("STOREFRONT_FREIGHT_RETRIES", 0),
			BreakerFailures:  src.integer("STOREFRONT_FREIGHT_BREAKER_FAILURES", 0),
			BreakerOpenFor:   src.duration("STOREFRONT_FREIGHT_BREAKER_OPEN_FOR", defaultFreightBreakerOpen),
			CacheTTL:         src.duration("STOREFRONT_FREIGHT_CACHE_TTL", defaultFreightCacheTTL),
		},
		CEP: CEPConfig{
			BaseURL:  src.str("STOREFRONT_CEP_BASE_URL", defaultCEPBaseURL),
			CacheTTL: src.duration("STOREFRONT_CEP_CACHE_TTL", defaultCEPCacheTTL),
		},
		Payments: PaymentsConfig{
			Provider:            strings.ToLower(src.str("STOREFRONT_PAYMENTS_PROVIDER", defaultPaymentProvider)),
			StripeAPIKey:        src.get("STOREFRONT_STRIPE_API_KEY"),
			StripeWebhookSecret: src.get("STOREFRONT_STRIPE_WEBHOOK_SECRET"),
			ReturnURL:           src.get("STOREFRONT_PAYMENTS_RETURN_URL"),
			PIXExpiry:           src.duration("STOREFRONT_PIX_EXPIRY", defaultPIXExpiry),
		},
		Checkout: CheckoutConfig{
			CourtesyToken:    src.get("STOREFRONT_COURTESY_TOKEN"),
			CourtesyHeader:   src.str("STOREFRONT_COURTESY_HEADER", defaultCourtesyHeader),
			OrderTokenSecret: src.get("STOREFRONT_ORDER_TOKEN_SECRET"),
			OrderTokenTTL:    src.duration("STOREFRONT_ORDER_TOKEN_TTL", defaultOrderTokenTTL),
		},
		Security: SecurityConfig{
			HMAC: HMACConfig{
				Secrets:         src.pairs("STOREFRONT_HMAC_SECRETS"),
				SignatureHeader: src.str("STOREFRONT_HMAC_HEADER_SIGNATURE", defaultHMACSignatureHeader),
				TimestampHeader: src.str("STOREFRONT_HMAC_HEADER_TIMESTAMP", defaultHMACTimestampHeader),
				NonceHeader:     src.str("STOREFRONT_HMAC_HEADER_NONCE", defaultHMACNonceHeader),
				ClockSkew:       src.duration("STOREFRONT_HMAC_CLOCK_SKEW", defaultHMACClockSkew),
				NonceTTL:        src.duration("STOREFRONT_HMAC_NONCE_TTL", defaultHMACNonceTTL),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           src.str("STOREFRONT_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              src.duration("STOREFRONT_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  src.duration("STOREFRONT_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: src.integer("STOREFRONT_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		RateLimits: RateLimitConfig{
			CheckoutPerMinute: src.integer("STOREFRONT_RATELIMIT_CHECKOUT_PER_MIN", defaultCheckoutPerMinute),
		},
	}

	// Pub/Sub shares the Firestore project unless told otherwise.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	// The CMS webhook secret doubles as the "cms" HMAC key.
	if _, ok := cfg.Security.HMAC.Secrets["cms"]; !ok && cfg.CMS.WebhookSecret != "" {
		cfg.Security.HMAC.Secrets["cms"] = cfg.CMS.WebhookSecret
	}

	secrets := &secretSet{ctx: ctx, resolver: options.resolver, values: make(map[string]string)}
	for key, value := range cfg.Security.HMAC.Secrets {
		if err := secrets.resolve(fmt.Sprintf("Security.HMAC.Secrets[%s]", key), &value); err != nil {
			return Config{}, err
		}
		cfg.Security.HMAC.Secrets[key] = value
	}
	for name, field := range map[string]*string{
		"Redis.Password":               &cfg.Redis.Password,
		"CMS.Token":                    &cfg.CMS.Token,
		"CMS.WebhookSecret":            &cfg.CMS.WebhookSecret,
		"Freight.Token":                &cfg.Freight.Token,
		"Payments.StripeAPIKey":        &cfg.Payments.StripeAPIKey,
		"Payments.StripeWebhookSecret": &cfg.Payments.StripeWebhookSecret,
		"Checkout.CourtesyToken":       &cfg.Checkout.CourtesyToken,
		"Checkout.OrderTokenSecret":    &cfg.Checkout.OrderTokenSecret,
	} {
		if err := secrets.resolve(name, field); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if err := secrets.missing(options.requiredSecrets); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var invalid []string
	require := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	require(cfg.Server.Port != "", "Server.Port")
	require(cfg.CMS.BaseURL != "" || cfg.CMS.FallbackFile != "", "CMS.BaseURL")
	require(cfg.Freight.Token != "", "Freight.Token")
	require(len(textutil.Digits(cfg.Freight.OriginPostalCode)) == 8, "Freight.OriginPostalCode")
	require(cfg.Freight.Retries >= 0, "Freight.Retries")
	switch cfg.Payments.Provider {
	case "stripe":
		require(cfg.Payments.StripeAPIKey != "", "Payments.StripeAPIKey")
	case "sandbox":
		require(!cfg.IsProduction(), "Payments.Provider")
	default:
		require(false, "Payments.Provider")
	}
	require(len(cfg.Checkout.OrderTokenSecret) >= 32, "Checkout.OrderTokenSecret")
	require(cfg.Checkout.OrderTokenTTL > 0, "Checkout.OrderTokenTTL")
	require(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	require(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	require(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	require(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")

	if len(invalid) > 0 {
		return &ValidationError{Invalid: invalid}
	}
	return nil
}
