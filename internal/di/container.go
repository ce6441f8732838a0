package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v78"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/cartstore"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/catalog"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/handlers"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/payments"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/auth"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/config"
	pfirestore "github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/firestore"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/idempotency"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/jobs"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/observability"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/repositories"
	firestoreRepo "github.com/spikeboom/love-cosmetics-website-sub000/internal/repositories/firestore"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/services"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/shipping"
)

const (
	cmsSecretName      = "cms"
	meterName          = "github.com/spikeboom/love-cosmetics-website-sub000"
	healthCheckTimeout = 2 * time.Second
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Checkout    services.CheckoutService
	OrderStatus services.OrderStatusService
	System      services.SystemService
	Coupons     services.CouponService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config      config.Config
	Logger      *zap.Logger
	Router      http.Handler
	Services    Services
	Orders      repositories.OrderRepository
	Catalog     *catalog.Client
	Carts       *cartstore.Registry
	Idempotency idempotency.Store

	closers []func(context.Context) error
}

// Option customises container construction.
type Option func(*options)

type options struct {
	build      services.BuildInfo
	clock      func() time.Time
	httpClient *http.Client
	redis      redis.UniversalClient
}

// WithBuildInfo reports version metadata on /readyz.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *options) {
		o.build = info
	}
}

// WithClock overrides the time source shared by services.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithHTTPClient sets the client used for CMS, CEP and freight calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithRedisClient supplies an already connected redis client instead of dialing Redis.Addr.
// The container does not close it.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		o.redis = client
	}
}

// NewContainer constructs the runtime dependencies. Redis, Firestore and Pub/Sub are optional:
// an empty address or project keeps the corresponding state in process.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.build.Environment == "" {
		o.build.Environment = cfg.Environment
	}

	c := &Container{Config: cfg, Logger: logger}
	if err := c.build(ctx, o); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, o options) error {
	cfg := c.Config
	events := observability.NewEventLogger(c.Logger)
	clock := o.clock
	var checks []repositories.DependencyCheck

	redisClient := o.redis
	if redisClient == nil && strings.TrimSpace(cfg.Redis.Addr) != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		redisClient = client
	}
	if redisClient != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Critical: true,
			Timeout:  healthCheckTimeout,
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}

	orders, err := c.buildOrders(ctx, cfg, &checks)
	if err != nil {
		return err
	}
	c.Orders = orders

	publisher, err := c.buildPublisher(ctx, cfg, events, clock)
	if err != nil {
		return err
	}

	catalogClient, err := buildCatalog(cfg.CMS, o.httpClient, clock, events)
	if err != nil {
		return err
	}
	c.Catalog = catalogClient
	checks = append(checks, repositories.DependencyCheck{
		Name:    "cms",
		Timeout: healthCheckTimeout,
		Check:   catalogClient.Ping,
	})

	coupons, err := services.NewCouponService(services.CouponServiceDeps{Coupons: catalogClient, Clock: clock})
	if err != nil {
		return fmt.Errorf("coupon service: %w", err)
	}
	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{Coupons: coupons, Now: clock, Logger: events})
	if err != nil {
		return fmt.Errorf("pricing engine: %w", err)
	}

	cep := shipping.NewCEPClient(shipping.CEPConfig{
		BaseURL:    cfg.CEP.BaseURL,
		HTTPClient: o.httpClient,
		CacheTTL:   cfg.CEP.CacheTTL,
		Clock:      clock,
		Logger:     events,
	})
	freight, err := buildFreight(cfg.Freight, o.httpClient, clock, events)
	if err != nil {
		return err
	}

	var persister cartstore.Persister = cartstore.NewMemoryPersister()
	if redisClient != nil {
		redisPersister, err := cartstore.NewRedisPersister(redisClient, cfg.Redis.CartTTL)
		if err != nil {
			return fmt.Errorf("cart persister: %w", err)
		}
		persister = redisPersister
	}
	carts, err := cartstore.NewRegistry(cartstore.RegistryDeps{
		Persister: persister,
		Catalog:   catalogClient,
		Coupons:   coupons,
		Freight:   freight,
		Clock:     clock,
		Logger:    events,
	})
	if err != nil {
		return fmt.Errorf("cart registry: %w", err)
	}
	c.Carts = carts

	paymentManager, err := buildPayments(cfg.Payments, c.Logger, events, clock)
	if err != nil {
		return err
	}

	tokens, err := auth.NewOrderTokens(cfg.Checkout.OrderTokenSecret, cfg.Checkout.OrderTokenTTL, clock)
	if err != nil {
		return fmt.Errorf("order tokens: %w", err)
	}

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:    orders,
		Products:  catalogClient,
		Pricing:   pricing,
		Payments:  paymentManager,
		Carts:     carts,
		Freight:   freight,
		Events:    publisher,
		Tokens:    tokens,
		Clock:     clock,
		Logger:    events,
		Validator: validator.New(),
	})
	if err != nil {
		return fmt.Errorf("checkout service: %w", err)
	}
	orderStatus, err := services.NewOrderStatusService(services.OrderStatusServiceDeps{
		Orders:   orders,
		Payments: paymentManager,
		Events:   publisher,
		Clock:    clock,
		Logger:   events,
	})
	if err != nil {
		return fmt.Errorf("order status service: %w", err)
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyClock(clock))
	if err != nil {
		return fmt.Errorf("health repository: %w", err)
	}
	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            clock,
		Build:            o.build,
	})
	if err != nil {
		return fmt.Errorf("system service: %w", err)
	}

	c.Services = Services{
		Checkout:    checkout,
		OrderStatus: orderStatus,
		System:      system,
		Coupons:     coupons,
	}

	var nonces auth.NonceStore = auth.NewInMemoryNonceStore()
	c.Idempotency = idempotency.NewMemoryStore()
	if redisClient != nil {
		redisNonces, err := auth.NewRedisNonceStore(redisClient)
		if err != nil {
			return fmt.Errorf("nonce store: %w", err)
		}
		nonces = redisNonces
		store, err := idempotency.NewRedisStore(redisClient)
		if err != nil {
			return fmt.Errorf("idempotency store: %w", err)
		}
		c.Idempotency = store
	}

	hmacValidator, err := buildHMACValidator(cfg, nonces, events, clock)
	if err != nil {
		return err
	}

	idem := idempotency.Middleware(c.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithScopeHeaders(cfg.Checkout.CourtesyHeader),
		idempotency.WithLogger(idempotency.Logger(events)),
		idempotency.WithClock(clock),
	)

	checkoutHandlers := handlers.NewCheckoutHandlers(checkout,
		handlers.WithCourtesyToken(cfg.Checkout.CourtesyHeader, cfg.Checkout.CourtesyToken),
		handlers.WithIdempotencyKeyHeader(cfg.Idempotency.Header),
		handlers.WithCheckoutMiddlewares(idem),
		handlers.WithCheckoutRateLimit(cfg.RateLimits.CheckoutPerMinute, clock),
		handlers.WithCheckoutLogger(events),
	)

	webhookOpts := []handlers.WebhookOption{
		handlers.WithStripeWebhook(cfg.Payments.StripeWebhookSecret, orderStatus),
		handlers.WithWebhookLogger(events),
	}
	if hmacValidator != nil {
		webhookOpts = append(webhookOpts, handlers.WithCMSWebhook(catalogClient, hmacValidator.RequireHMAC(cmsSecretName)))
	}

	health := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(system),
		handlers.WithHealthBuildInfo(o.build),
		handlers.WithHealthClock(clock),
	)

	c.Router = handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(c.Logger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(c.Logger),
		),
		handlers.WithRequestTimeout(cfg.Server.WriteTimeout),
		handlers.WithHealthHandlers(health),
		handlers.WithRoutes(handlers.GroupProducts, handlers.NewProductHandlers(catalogClient).Routes),
		handlers.WithRoutes(handlers.GroupCart, handlers.NewCartHandlers(carts).Routes),
		handlers.WithRoutes(handlers.GroupShipping, handlers.NewShippingHandlers(cep, freight, catalogClient).Routes),
		handlers.WithRoutes(handlers.GroupCheckout, checkoutHandlers.Routes),
		handlers.WithRoutes(handlers.GroupOrders, handlers.NewOrderHandlers(orderStatus, tokens.RequireOrderToken).Routes),
		handlers.WithRoutes(handlers.GroupWebhooks, handlers.NewWebhookHandlers(webhookOpts...).Routes),
	)
	return nil
}

func (c *Container) buildOrders(ctx context.Context, cfg config.Config, checks *[]repositories.DependencyCheck) (repositories.OrderRepository, error) {
	if strings.TrimSpace(cfg.Firestore.ProjectID) == "" {
		c.Logger.Warn("firestore project not configured; orders are kept in memory")
		return repositories.NewMemoryOrderRepository(), nil
	}
	client, err := pfirestore.Open(ctx, cfg.Firestore)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })
	repo, err := firestoreRepo.NewOrderRepository(client)
	if err != nil {
		return nil, fmt.Errorf("order repository: %w", err)
	}
	*checks = append(*checks, repositories.DependencyCheck{
		Name:     "firestore",
		Critical: true,
		Timeout:  healthCheckTimeout,
		Check:    client.Ping,
	})
	return repo, nil
}

func (c *Container) buildPublisher(ctx context.Context, cfg config.Config, events observability.EventLogger, clock func() time.Time) (services.OrderEventPublisher, error) {
	if strings.TrimSpace(cfg.PubSub.ProjectID) == "" {
		return jobs.LogOrderPublisher{Logger: events, Clock: clock}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(cfg.PubSub.OrderTopic)
	c.closers = append(c.closers, func(context.Context) error {
		topic.Stop()
		return client.Close()
	})
	publisher, err := jobs.NewPubSubOrderPublisher(topic)
	if err != nil {
		return nil, fmt.Errorf("order publisher: %w", err)
	}
	return publisher, nil
}

func buildCatalog(cfg config.CMSConfig, httpClient *http.Client, clock func() time.Time, events observability.EventLogger) (*catalog.Client, error) {
	var fallback *catalog.Fallback
	if path := strings.TrimSpace(cfg.FallbackFile); path != "" {
		loaded, err := catalog.LoadFallback(path)
		if err != nil {
			return nil, err
		}
		fallback = loaded
	}
	client, err := catalog.NewClient(catalog.Config{
		BaseURL:    cfg.BaseURL,
		Token:      cfg.Token,
		CacheTTL:   cfg.CacheTTL,
		HTTPClient: httpClient,
		Fallback:   fallback,
		Clock:      clock,
		Logger:     events,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog client: %w", err)
	}
	return client, nil
}

func buildFreight(cfg config.FreightConfig, httpClient *http.Client, clock func() time.Time, events observability.EventLogger) (*shipping.FreightClient, error) {
	opts := []shipping.ClientOption{
		shipping.WithQuoteCache(cfg.CacheTTL),
		shipping.WithClock(clock),
		shipping.WithLogger(events),
	}
	if cfg.Retries > 0 {
		opts = append(opts, shipping.WithRetry(uint64(cfg.Retries)))
	}
	if cfg.BreakerFailures > 0 {
		opts = append(opts, shipping.WithCircuitBreaker(uint32(cfg.BreakerFailures), cfg.BreakerOpenFor))
	}
	if httpClient != nil {
		opts = append(opts, shipping.WithHTTPClient(httpClient))
	}
	client, err := shipping.NewFreightClient(shipping.FreightConfig{
		BaseURL:          cfg.BaseURL,
		Token:            cfg.Token,
		OriginPostalCode: cfg.OriginPostalCode,
		UserAgent:        cfg.UserAgent,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("freight client: %w", err)
	}
	return client, nil
}

func buildPayments(cfg config.PaymentsConfig, logger *zap.Logger, events observability.EventLogger, clock func() time.Time) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider, 1)
	switch cfg.Provider {
	case "sandbox":
		providers["sandbox"] = payments.NewSandboxProvider(payments.WithSandboxClock(clock))
	case "stripe", "":
		leveled := observability.NewLeveledAdapter(logger.Named("stripe"))
		backendConfig := &stripe.BackendConfig{LeveledLogger: leveled}
		provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:    cfg.StripeAPIKey,
			ReturnURL: cfg.ReturnURL,
			PIXExpiry: cfg.PIXExpiry,
			Backends: &stripe.Backends{
				API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
				Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
				Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
			},
			Logger: payments.StripeLogger(events),
			Clock:  clock,
		})
		if err != nil {
			return nil, fmt.Errorf("stripe provider: %w", err)
		}
		providers["stripe"] = provider
	default:
		return nil, fmt.Errorf("payments: unknown provider %q", cfg.Provider)
	}
	manager, err := payments.NewManager(providers, payments.WithDefaultProvider(firstKey(providers)))
	if err != nil {
		return nil, fmt.Errorf("payment manager: %w", err)
	}
	return manager, nil
}

func buildHMACValidator(cfg config.Config, nonces auth.NonceStore, events observability.EventLogger, clock func() time.Time) (*auth.HMACValidator, error) {
	secrets := make(auth.StaticSecrets, len(cfg.Security.HMAC.Secrets)+1)
	for name, value := range cfg.Security.HMAC.Secrets {
		secrets[name] = value
	}
	if secret := strings.TrimSpace(cfg.CMS.WebhookSecret); secret != "" {
		secrets[cmsSecretName] = secret
	}
	if secrets[cmsSecretName] == "" {
		return nil, nil
	}
	metrics, err := auth.NewMeterRecorder(otel.Meter(meterName))
	if err != nil {
		return nil, fmt.Errorf("hmac metrics: %w", err)
	}
	h := cfg.Security.HMAC
	return auth.NewHMACValidator(secrets, nonces,
		auth.WithHMACLogger(auth.Logger(events)),
		auth.WithHMACMetrics(metrics),
		auth.WithHMACClock(clock),
		auth.WithHMACHeaders(h.SignatureHeader, h.TimestampHeader, h.NonceHeader),
		auth.WithHMACClockSkew(h.ClockSkew),
		auth.WithHMACNonceTTL(h.NonceTTL),
	), nil
}

func firstKey(m map[string]payments.Provider) string {
	for key := range m {
		return key
	}
	return ""
}

// Close releases resources such as repository clients and broker connections, newest first.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
