package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

// DefaultCEPBaseURL points at the public ViaCEP service.
const DefaultCEPBaseURL = "https://viacep.com.br"

// CEPClient resolves postal codes to street addresses.
type CEPClient struct {
	baseURL string
	http    *http.Client
	cache   *ttlCache[domain.AddressLookup]
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// CEPConfig configures the address lookup client.
type CEPConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	CacheTTL   time.Duration
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewCEPClient builds a ViaCEP compatible lookup client.
func NewCEPClient(cfg CEPConfig) *CEPClient {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultCEPBaseURL
	}
	client := &CEPClient{
		baseURL: base,
		http:    cfg.HTTPClient,
		logger:  cfg.Logger,
	}
	if client.http == nil {
		client.http = &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if client.logger == nil {
		client.logger = func(context.Context, string, map[string]any) {}
	}
	if cfg.CacheTTL > 0 {
		clock := cfg.Clock
		if clock == nil {
			clock = time.Now
		}
		client.cache = newTTLCache[domain.AddressLookup](cfg.CacheTTL, func() time.Time { return clock().UTC() })
	}
	return client
}

// LookupAddress returns the address registered for the postal code.
func (c *CEPClient) LookupAddress(ctx context.Context, postalCode string) (domain.AddressLookup, error) {
	cep, err := NormalizePostalCode(postalCode)
	if err != nil {
		return domain.AddressLookup{}, &QuoteError{Message: MessageInvalidPostalCode, Err: err}
	}
	if cached, ok := c.cache.Get(cep); ok {
		return cached, nil
	}

	endpoint, err := url.JoinPath(c.baseURL, "ws", cep, "json")
	if err != nil {
		return domain.AddressLookup{}, err
	}
	// ViaCEP redirects requests without the trailing slash.
	endpoint += "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.AddressLookup{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.AddressLookup{}, c.unavailable(ctx, cep, 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusBadRequest {
		return domain.AddressLookup{}, &QuoteError{Message: MessageInvalidPostalCode, Status: resp.StatusCode, Err: ErrInvalidPostalCode}
	}
	if resp.StatusCode >= 400 {
		return domain.AddressLookup{}, c.unavailable(ctx, cep, resp.StatusCode, errors.New(drainError(resp.Body)))
	}

	var payload addressPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.AddressLookup{}, c.unavailable(ctx, cep, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if payload.notFound() {
		return domain.AddressLookup{}, &QuoteError{Message: MessageAddressNotFound, Status: http.StatusNotFound, Err: ErrAddressNotFound}
	}

	address := payload.toAddressLookup(cep)
	c.cache.Put(cep, address)
	return address, nil
}

func (c *CEPClient) unavailable(ctx context.Context, cep string, status int, err error) error {
	c.logger(ctx, "shipping.cep.error", map[string]any{
		"postalCode": cep,
		"status":     status,
		"error":      err.Error(),
	})
	return &QuoteError{
		Message: MessageAddressFailed,
		Status:  status,
		Err:     fmt.Errorf("%w: %v", ErrAddressLookupUnavailable, err),
	}
}

type addressPayload struct {
	CEP        string          `json:"cep"`
	Logradouro string          `json:"logradouro"`
	Bairro     string          `json:"bairro"`
	Localidade string          `json:"localidade"`
	UF         string          `json:"uf"`
	IBGE       string          `json:"ibge"`
	Erro       json.RawMessage `json:"erro"`
}

// notFound accepts both the boolean and the string flavour of the erro flag.
func (p addressPayload) notFound() bool {
	flag := strings.Trim(strings.TrimSpace(string(p.Erro)), `"`)
	return strings.EqualFold(flag, "true")
}

func (p addressPayload) toAddressLookup(cep string) domain.AddressLookup {
	return domain.AddressLookup{
		PostalCode:   cep,
		Street:       strings.TrimSpace(p.Logradouro),
		Neighborhood: strings.TrimSpace(p.Bairro),
		City:         strings.TrimSpace(p.Localidade),
		State:        strings.ToUpper(strings.TrimSpace(p.UF)),
		IBGECode:     strings.TrimSpace(p.IBGE),
	}
}
