package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/format"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/textutil"
)

const (
	defaultTimeout   = 8 * time.Second
	defaultUserAgent = "love-cosmetics-storefront"
	calculatePath    = "api/v2/me/shipment/calculate"
	meterNamespace   = "github.com/spikeboom/love-cosmetics-website-sub000/internal/shipping"

	// Carrier minimums applied when the catalog has no package data.
	minWidthCM    = 11.0
	minHeightCM   = 2.0
	minLengthCM   = 16.0
	minWeightGram = 300
)

// Quote lists the freight options available for a destination.
type Quote struct {
	PostalCode string
	Options    []domain.FreightOption
	Cheapest   *domain.FreightOption
}

// FreightConfig configures the carrier API client.
type FreightConfig struct {
	BaseURL          string
	Token            string
	OriginPostalCode string
	UserAgent        string
}

// ClientOption customises a FreightClient.
type ClientOption func(*FreightClient)

// WithRetry retries transient carrier failures up to attempts times with exponential backoff.
func WithRetry(attempts uint64) ClientOption {
	return func(c *FreightClient) {
		c.retries = attempts
	}
}

// WithCircuitBreaker opens after consecutive transport or 5xx failures.
func WithCircuitBreaker(failures uint32, openFor time.Duration) ClientOption {
	return func(c *FreightClient) {
		if failures == 0 {
			return
		}
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    "melhor-envio",
			Timeout: openFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || isClientError(err)
			},
		})
	}
}

// WithQuoteCache caches successful quotes for ttl.
func WithQuoteCache(ttl time.Duration) ClientOption {
	return func(c *FreightClient) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *FreightClient) {
		if client != nil {
			c.http = client
		}
	}
}

// WithClock overrides the clock used for cache expiry.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *FreightClient) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) ClientOption {
	return func(c *FreightClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// FreightClient quotes freight against a Melhor Envio compatible API.
type FreightClient struct {
	baseURL   string
	token     string
	origin    string
	userAgent string
	http      *http.Client
	retries   uint64
	breaker   *gobreaker.CircuitBreaker[[]byte]
	cacheTTL  time.Duration
	cache     *ttlCache[Quote]
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
	quotes    metric.Int64Counter
}

// NewFreightClient validates cfg and builds a client.
func NewFreightClient(cfg FreightConfig, opts ...ClientOption) (*FreightClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("shipping: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("shipping: invalid base url: %w", err)
	}
	origin, err := NormalizePostalCode(cfg.OriginPostalCode)
	if err != nil {
		return nil, fmt.Errorf("shipping: origin postal code: %w", err)
	}

	client := &FreightClient{
		baseURL:   base,
		token:     strings.TrimSpace(cfg.Token),
		origin:    origin,
		userAgent: strings.TrimSpace(cfg.UserAgent),
		now:       time.Now,
		logger:    func(context.Context, string, map[string]any) {},
	}
	if client.userAgent == "" {
		client.userAgent = defaultUserAgent
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.http == nil {
		client.http = &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if client.cacheTTL > 0 {
		client.cache = newTTLCache[Quote](client.cacheTTL, func() time.Time { return client.now().UTC() })
	}

	meter := otel.GetMeterProvider().Meter(meterNamespace)
	if counter, err := meter.Int64Counter("shipping.freight.quotes",
		metric.WithDescription("Freight quote attempts by outcome"),
	); err == nil {
		client.quotes = counter
	}
	return client, nil
}

// NormalizePostalCode strips every non-digit and requires exactly 8 digits.
func NormalizePostalCode(raw string) (string, error) {
	digits := textutil.Digits(raw)
	if len(digits) != 8 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPostalCode, raw)
	}
	return digits, nil
}

// Quote fetches the freight options for the items shipped to postalCode.
func (c *FreightClient) Quote(ctx context.Context, postalCode string, items []domain.CartLineItem) (Quote, error) {
	cep, err := NormalizePostalCode(postalCode)
	if err != nil {
		return Quote{}, &QuoteError{Message: MessageInvalidPostalCode, Err: err}
	}
	if len(items) == 0 {
		return Quote{}, &QuoteError{Message: MessageEmptyCart, Err: ErrEmptyCart}
	}

	key := quoteCacheKey(cep, items)
	if cached, ok := c.cache.Get(key); ok {
		c.record(ctx, "cache_hit")
		return cached, nil
	}

	payload, err := json.Marshal(c.buildRequest(cep, items))
	if err != nil {
		return Quote{}, &QuoteError{Message: MessageFreightFailed, Err: fmt.Errorf("%w: %v", ErrFreightUnavailable, err)}
	}

	raw, err := c.fetchWithRetry(ctx, payload)
	if err != nil {
		c.record(ctx, "error")
		c.logger(ctx, "shipping.freight.error", map[string]any{
			"postalCode": cep,
			"error":      err.Error(),
		})
		qe := &QuoteError{Message: MessageFreightFailed, Err: fmt.Errorf("%w: %v", ErrFreightUnavailable, err)}
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) {
			qe.Status = statusErr.Status
		}
		return Quote{}, qe
	}

	var services []servicePayload
	if err := json.Unmarshal(raw, &services); err != nil {
		c.record(ctx, "error")
		return Quote{}, &QuoteError{Message: MessageFreightFailed, Err: fmt.Errorf("%w: decode response: %v", ErrFreightUnavailable, err)}
	}

	quote := Quote{PostalCode: cep, Options: make([]domain.FreightOption, 0, len(services))}
	for _, svc := range services {
		if strings.TrimSpace(svc.Error) != "" || svc.Price <= 0 {
			continue
		}
		quote.Options = append(quote.Options, svc.toFreightOption())
	}
	quote.Cheapest = Cheapest(quote.Options)

	c.cache.Put(key, quote)
	c.record(ctx, "ok")
	c.logger(ctx, "shipping.freight.quoted", map[string]any{
		"postalCode": cep,
		"options":    len(quote.Options),
		"offered":    len(services),
	})
	return quote, nil
}

// QuoteOptions returns only the option list, for callers that re-validate a selection.
func (c *FreightClient) QuoteOptions(ctx context.Context, postalCode string, items []domain.CartLineItem) ([]domain.FreightOption, error) {
	quote, err := c.Quote(ctx, postalCode, items)
	if err != nil {
		return nil, err
	}
	return quote.Options, nil
}

// Cheapest returns the lowest priced option. Ties keep the first one offered.
func Cheapest(options []domain.FreightOption) *domain.FreightOption {
	if len(options) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(options); i++ {
		if options[i].Price < options[best].Price {
			best = i
		}
	}
	cheapest := options[best]
	return &cheapest
}

func (c *FreightClient) fetchWithRetry(ctx context.Context, payload []byte) ([]byte, error) {
	if c.retries == 0 {
		return c.fetch(ctx, payload)
	}
	var raw []byte
	operation := func() error {
		body, err := c.fetch(ctx, payload)
		if err != nil {
			if isClientError(err) || errors.Is(err, gobreaker.ErrOpenState) {
				return backoff.Permanent(err)
			}
			return err
		}
		raw = body
		return nil
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	notify := func(err error, wait time.Duration) {
		c.logger(ctx, "shipping.freight.retry", map[string]any{
			"error": err.Error(),
			"wait":  wait.String(),
		})
	}
	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.retries), ctx), notify)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *FreightClient) fetch(ctx context.Context, payload []byte) ([]byte, error) {
	if c.breaker == nil {
		return c.post(ctx, payload)
	}
	return c.breaker.Execute(func() ([]byte, error) {
		return c.post(ctx, payload)
	})
}

func (c *FreightClient) post(ctx context.Context, payload []byte) ([]byte, error) {
	endpoint, err := url.JoinPath(c.baseURL, calculatePath)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, &httpStatusError{Status: resp.StatusCode, Body: drainError(resp.Body)}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func (c *FreightClient) record(ctx context.Context, outcome string) {
	if c.quotes == nil {
		return
	}
	c.quotes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (c *FreightClient) buildRequest(cep string, items []domain.CartLineItem) calculateRequest {
	req := calculateRequest{
		From:     postalCodeRef{PostalCode: c.origin},
		To:       postalCodeRef{PostalCode: cep},
		Products: make([]productPayload, 0, len(items)),
	}
	for _, item := range items {
		pkg := item.Package
		weight := pkg.WeightGrams
		if weight <= 0 {
			weight = minWeightGram
		}
		req.Products = append(req.Products, productPayload{
			ID:             item.ProductID,
			Width:          atLeast(pkg.WidthCM, minWidthCM),
			Height:         atLeast(pkg.HeightCM, minHeightCM),
			Length:         atLeast(pkg.LengthCM, minLengthCM),
			Weight:         float64(weight) / 1000,
			InsuranceValue: json.Number(format.Decimal(item.UnitPrice)),
			Quantity:       item.Quantity,
		})
	}
	return req
}

func atLeast(v, floor float64) float64 {
	if v < floor {
		return floor
	}
	return v
}

type calculateRequest struct {
	From     postalCodeRef    `json:"from"`
	To       postalCodeRef    `json:"to"`
	Products []productPayload `json:"products"`
}

type postalCodeRef struct {
	PostalCode string `json:"postal_code"`
}

type productPayload struct {
	ID             string      `json:"id"`
	Width          float64     `json:"width"`
	Height         float64     `json:"height"`
	Length         float64     `json:"length"`
	Weight         float64     `json:"weight"`
	InsuranceValue json.Number `json:"insurance_value"`
	Quantity       int         `json:"quantity"`
}

type servicePayload struct {
	ID           flexString          `json:"id"`
	Name         string              `json:"name"`
	Price        format.DecimalCents `json:"price"`
	DeliveryTime int                 `json:"delivery_time"`
	Error        string              `json:"error"`
	Company      struct {
		Name string `json:"name"`
	} `json:"company"`
}

func (p servicePayload) toFreightOption() domain.FreightOption {
	return domain.FreightOption{
		Carrier:      strings.TrimSpace(p.Company.Name),
		ServiceName:  strings.TrimSpace(p.Name),
		ServiceCode:  string(p.ID),
		Price:        int64(p.Price),
		DeliveryDays: p.DeliveryTime,
	}
}

// flexString accepts either a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	*f = flexString(raw)
	return nil
}

type httpStatusError struct {
	Status int
	Body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

func isClientError(err error) bool {
	var statusErr *httpStatusError
	return errors.As(err, &statusErr) && statusErr.Status >= 400 && statusErr.Status < 500
}

func drainError(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4<<10))
	if err != nil {
		return err.Error()
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return "no response body"
	}
	return msg
}
