// Package client calls the storefront HTTP API. It backs the operator CLI and implements
// payments.StatusSource so a Poller can watch an order placed through it.
package client

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
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout    = 15 * time.Second
	apiPrefix         = "/api/v1"
	idempotencyHeader = "Idempotency-Key"
	maxErrorBody      = 4 << 10
)

// ErrMissingOrderID is returned when no order identifier is provided.
var ErrMissingOrderID = errors.New("client: missing order id")

// APIError is a non-2xx answer decoded from the API error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  []string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("storefront api: status %d (%s)", e.Status, e.Code)
	}
	return fmt.Sprintf("storefront api: status %d (%s): %s", e.Status, e.Code, e.Message)
}

// Client issues storefront API calls. Access tokens returned by PlaceOrder are remembered per
// order and sent on later status reads.
type Client struct {
	baseURL        string
	http           *http.Client
	courtesyHeader string
	courtesyToken  string
	retries        uint64
	retryWait      time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

// Option customises the Client.
type Option func(*Client)

// WithHTTPClient replaces the default traced HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetries sets how often a call is repeated after a transport error or a 502, 503 or 504.
// Checkouts are safe to repeat since they carry an idempotency key. Zero disables retries.
func WithRetries(n uint64) Option {
	return func(c *Client) { c.retries = n }
}

// WithCourtesyToken sends the staff token on checkout submissions.
func WithCourtesyToken(header, token string) Option {
	return func(c *Client) {
		c.courtesyHeader = strings.TrimSpace(header)
		c.courtesyToken = strings.TrimSpace(token)
	}
}

// New constructs a client for the API served at baseURL (scheme and host, optionally a path).
func New(baseURL string, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("client: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	c := &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		courtesyHeader: "X-Courtesy-Token",
		retries:        2,
		retryWait:      200 * time.Millisecond,
		tokens:         make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// SetOrderToken records the access token for an order placed elsewhere.
func (c *Client) SetOrderToken(orderID, token string) {
	orderID = strings.TrimSpace(orderID)
	token = strings.TrimSpace(token)
	if orderID == "" || token == "" {
		return
	}
	c.mu.Lock()
	c.tokens[orderID] = token
	c.mu.Unlock()
}

func (c *Client) orderToken(orderID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[orderID]
}

// LookupCEP resolves a postal code into an address.
func (c *Client) LookupCEP(ctx context.Context, cep string) (Address, error) {
	var out Address
	err := c.do(ctx, http.MethodGet, []string{"shipping", "cep", strings.TrimSpace(cep)}, nil, nil, &out)
	return out, err
}

// QuoteFreight asks for freight options for the items shipped to cep.
func (c *Client) QuoteFreight(ctx context.Context, cep string, items []Item) (Quote, error) {
	body := quoteRequest{PostalCode: strings.TrimSpace(cep), Items: items}
	var out Quote
	err := c.do(ctx, http.MethodPost, []string{"shipping", "quote"}, body, nil, &out)
	return out, err
}

// ListProducts returns the published catalog.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var out struct {
		Items []Product `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, []string{"products"}, nil, nil, &out)
	return out.Items, err
}

// PlaceOrder submits a checkout. An idempotency key is generated when the request has none so
// retries of the same call never create a second order.
func (c *Client) PlaceOrder(ctx context.Context, req CheckoutRequest) (CheckoutResponse, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = ulid.Make().String()
	}
	headers := http.Header{}
	headers.Set(idempotencyHeader, key)
	if req.Courtesy || req.Discount != nil {
		if c.courtesyHeader != "" && c.courtesyToken != "" {
			headers.Set(c.courtesyHeader, c.courtesyToken)
		}
	}

	var out CheckoutResponse
	if err := c.do(ctx, http.MethodPost, []string{"checkout"}, req, headers, &out); err != nil {
		return CheckoutResponse{}, err
	}
	c.SetOrderToken(out.OrderID, out.AccessToken)
	return out, nil
}

// OrderStatus reads the order's current status, refreshing a pending payment server-side.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderStatus{}, ErrMissingOrderID
	}
	headers := http.Header{}
	if token := c.orderToken(orderID); token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}
	var out OrderStatus
	err := c.do(ctx, http.MethodGet, []string{"orders", orderID, "status"}, nil, headers, &out)
	return out, err
}

// PaymentStatus implements payments.StatusSource.
func (c *Client) PaymentStatus(ctx context.Context, orderID string) (string, error) {
	status, err := c.OrderStatus(ctx, orderID)
	if err != nil {
		return "", err
	}
	return status.PaymentStatus, nil
}

func (c *Client) do(ctx context.Context, method string, segments []string, body any, headers http.Header, out any) error {
	endpoint, err := url.JoinPath(c.baseURL+apiPrefix, segments...)
	if err != nil {
		return err
	}
	var payload []byte
	if body != nil {
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryWait
	attempt := func() error {
		err := c.send(ctx, method, endpoint, payload, headers, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && !retryable(apiErr.Status) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, c.retries), ctx))
}

func retryable(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte, headers http.Header, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, values := range headers {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("client: decode %s %s: %w", method, endpoint, err))
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}
	var envelope struct {
		Error   string   `json:"error"`
		Message string   `json:"message"`
		Fields  []string `json:"fields"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		apiErr.Code = envelope.Error
		apiErr.Message = envelope.Message
		apiErr.Fields = envelope.Fields
		return apiErr
	}
	apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
	apiErr.Message = strings.TrimSpace(string(raw))
	return apiErr
}
