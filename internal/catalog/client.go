package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultCacheTTL = 5 * time.Minute
	pageSize        = 100
	maxPages        = 50
)

// Config configures the Strapi client.
type Config struct {
	BaseURL    string
	Token      string
	CacheTTL   time.Duration
	HTTPClient *http.Client
	Fallback   *Fallback
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// Client reads products and coupons from the Strapi REST API. Product listings are
// cached for CacheTTL; Invalidate drops the cache when the CMS reports a change.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	ttl      time.Duration
	fallback *Fallback
	render   *descriptionRenderer
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)

	mu       sync.RWMutex
	snapshot *productSnapshot
}

type productSnapshot struct {
	products []domain.Product
	byID     map[string]int
	bySlug   map[string]int
	expires  time.Time
	fallback bool
}

// NewClient builds a catalog client. Without BaseURL the fallback catalog is required
// and served exclusively.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" && cfg.Fallback == nil {
		return nil, errors.New("catalog: base url or fallback catalog is required")
	}
	client := &Client{
		baseURL:  base,
		token:    strings.TrimSpace(cfg.Token),
		http:     cfg.HTTPClient,
		ttl:      cfg.CacheTTL,
		fallback: cfg.Fallback,
		render:   newDescriptionRenderer(),
		now:      cfg.Clock,
		logger:   cfg.Logger,
	}
	if client.http == nil {
		client.http = &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if client.ttl <= 0 {
		client.ttl = defaultCacheTTL
	}
	if client.now == nil {
		client.now = time.Now
	}
	if client.logger == nil {
		client.logger = func(context.Context, string, map[string]any) {}
	}
	return client, nil
}

// ListProducts returns the published products ordered by name.
func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	snap, err := c.products(ctx)
	if err != nil {
		return nil, err
	}
	return cloneProducts(snap.products), nil
}

// GetProductBySlug returns one published product.
func (c *Client) GetProductBySlug(ctx context.Context, slug string) (domain.Product, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return domain.Product{}, notFound("catalog.get_by_slug", "empty slug")
	}
	snap, err := c.products(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	idx, ok := snap.bySlug[slug]
	if !ok {
		return domain.Product{}, notFound("catalog.get_by_slug", slug)
	}
	return cloneProduct(snap.products[idx]), nil
}

// GetProductByID returns one published product by CMS id.
func (c *Client) GetProductByID(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, notFound("catalog.get_by_id", "empty id")
	}
	snap, err := c.products(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	idx, ok := snap.byID[productID]
	if !ok {
		return domain.Product{}, notFound("catalog.get_by_id", productID)
	}
	return cloneProduct(snap.products[idx]), nil
}

// FindCouponByCode looks a coupon up case-insensitively. Coupons are not cached so
// deactivation in the CMS takes effect immediately.
func (c *Client) FindCouponByCode(ctx context.Context, code string) (domain.Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Coupon{}, notFound("catalog.find_coupon", "empty code")
	}
	if c.baseURL == "" {
		return c.fallbackCoupon(code)
	}

	query := url.Values{}
	query.Set("filters[code][$eqi]", code)
	query.Set("pagination[pageSize]", "1")
	var list strapiList
	if err := c.get(ctx, "coupons", query, &list); err != nil {
		if c.fallback != nil {
			c.logger(ctx, "catalog.coupon_fallback", map[string]any{"code": code, "error": err.Error()})
			return c.fallbackCoupon(code)
		}
		return domain.Coupon{}, unavailable("catalog.find_coupon", err)
	}
	if len(list.Data) == 0 {
		return domain.Coupon{}, notFound("catalog.find_coupon", code)
	}
	coupon, err := list.Data[0].toCoupon()
	if err != nil {
		return domain.Coupon{}, unavailable("catalog.find_coupon", fmt.Errorf("decode coupon: %w", err))
	}
	return coupon, nil
}

// Invalidate drops the cached product listing.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()
}

// Ping reports whether the CMS answers, for health checks.
func (c *Client) Ping(ctx context.Context) error {
	if c.baseURL == "" {
		return nil
	}
	query := url.Values{}
	query.Set("pagination[pageSize]", "1")
	var list strapiList
	return c.get(ctx, "products", query, &list)
}

func (c *Client) fallbackCoupon(code string) (domain.Coupon, error) {
	coupon, ok := c.fallback.coupon(code)
	if !ok {
		return domain.Coupon{}, notFound("catalog.find_coupon", code)
	}
	return coupon, nil
}

func (c *Client) products(ctx context.Context) (*productSnapshot, error) {
	now := c.now().UTC()
	c.mu.RLock()
	snap := c.snapshot
	c.mu.RUnlock()
	if snap != nil && now.Before(snap.expires) {
		return snap, nil
	}

	products, err := c.fetchProducts(ctx)
	usedFallback := false
	if err != nil {
		if c.fallback == nil {
			return nil, unavailable("catalog.list_products", err)
		}
		c.logger(ctx, "catalog.fallback", map[string]any{"error": err.Error()})
		products = c.fallback.published()
		usedFallback = true
	}

	snap = buildSnapshot(products, now.Add(c.ttl))
	snap.fallback = usedFallback
	if usedFallback && c.baseURL != "" {
		// Fallback snapshots expire early so the CMS is asked again soon.
		snap.expires = now.Add(c.ttl / 5)
	}
	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
	return snap, nil
}

func (c *Client) fetchProducts(ctx context.Context) ([]domain.Product, error) {
	if c.baseURL == "" {
		return nil, errors.New("catalog: no cms configured")
	}
	var products []domain.Product
	for page := 1; page <= maxPages; page++ {
		query := url.Values{}
		query.Set("populate", "*")
		query.Set("pagination[page]", strconv.Itoa(page))
		query.Set("pagination[pageSize]", strconv.Itoa(pageSize))
		var list strapiList
		if err := c.get(ctx, "products", query, &list); err != nil {
			return nil, err
		}
		for _, entry := range list.Data {
			product, err := entry.toProduct(c.baseURL, c.render.Render)
			if err != nil {
				c.logger(ctx, "catalog.product_skipped", map[string]any{"id": entry.key(), "error": err.Error()})
				continue
			}
			if !product.Published {
				continue
			}
			products = append(products, product)
		}
		if list.Meta.Pagination.PageCount <= page {
			break
		}
	}
	return products, nil
}

func (c *Client) get(ctx context.Context, resource string, query url.Values, out any) error {
	endpoint, err := url.JoinPath(c.baseURL, "api", resource)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("catalog: %s status %d: %s", resource, resp.StatusCode, drainError(resp.Body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func buildSnapshot(products []domain.Product, expires time.Time) *productSnapshot {
	sorted := cloneProducts(products)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})
	snap := &productSnapshot{
		products: sorted,
		byID:     make(map[string]int, len(sorted)),
		bySlug:   make(map[string]int, len(sorted)),
		expires:  expires,
	}
	for i, p := range sorted {
		snap.byID[p.ID] = i
		if p.Slug != "" {
			snap.bySlug[strings.ToLower(p.Slug)] = i
		}
	}
	return snap
}

func cloneProducts(src []domain.Product) []domain.Product {
	out := make([]domain.Product, len(src))
	for i, p := range src {
		out[i] = cloneProduct(p)
	}
	return out
}

func cloneProduct(p domain.Product) domain.Product {
	if p.OriginalPrice != nil {
		v := *p.OriginalPrice
		p.OriginalPrice = &v
	}
	if p.Stock != nil {
		v := *p.Stock
		p.Stock = &v
	}
	return p
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
