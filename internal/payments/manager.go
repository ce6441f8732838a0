package payments

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

// PaymentContext steers provider choice. PreferredProvider wins over Method routing.
type PaymentContext struct {
	PreferredProvider string
	Method            domain.PaymentMethod
}

// Manager picks a provider per call and stamps its name on the returned details.
type Manager struct {
	providers map[string]Provider
	fallback  string
	byMethod  map[domain.PaymentMethod]string
}

type ManagerOption func(*Manager)

// WithDefaultProvider names the provider used when nothing else decides. An empty name
// disables the default.
func WithDefaultProvider(name string) ManagerOption {
	return func(m *Manager) { m.fallback = normalizeName(name) }
}

// WithMethodRoutes maps payment methods ("pix", "card") to provider names.
func WithMethodRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		for method, name := range routes {
			m.byMethod[domain.PaymentMethod(normalizeName(method))] = normalizeName(name)
		}
	}
}

// NewManager registers providers under lower-cased names. Stripe is the default when present.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	m := &Manager{
		providers: make(map[string]Provider, len(providers)),
		byMethod:  make(map[domain.PaymentMethod]string),
	}
	for name, p := range providers {
		key := normalizeName(name)
		if key == "" || p == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", name)
		}
		m.providers[key] = p
	}
	if _, ok := m.providers["stripe"]; ok {
		m.fallback = "stripe"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

func (m *Manager) CreatePayment(ctx context.Context, pc PaymentContext, req PaymentRequest) (PaymentDetails, error) {
	return m.call(pc, func(p Provider) (PaymentDetails, error) { return p.CreatePayment(ctx, req) })
}

func (m *Manager) LookupPayment(ctx context.Context, pc PaymentContext, req LookupRequest) (PaymentDetails, error) {
	return m.call(pc, func(p Provider) (PaymentDetails, error) { return p.LookupPayment(ctx, req) })
}

func (m *Manager) call(pc PaymentContext, fn func(Provider) (PaymentDetails, error)) (PaymentDetails, error) {
	name, err := m.pick(pc)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := fn(m.providers[name])
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = name
	return details, nil
}

// pick resolves a provider name: explicit preference, then method route, then the default,
// then the only registered provider.
func (m *Manager) pick(pc PaymentContext) (string, error) {
	if m == nil || len(m.providers) == 0 {
		return "", errors.New("payments: no providers registered")
	}
	if preferred := normalizeName(pc.PreferredProvider); preferred != "" {
		if _, ok := m.providers[preferred]; !ok {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, preferred)
		}
		return preferred, nil
	}
	for _, candidate := range []string{m.byMethod[pc.Method], m.fallback} {
		if _, ok := m.providers[candidate]; ok && candidate != "" {
			return candidate, nil
		}
	}
	if len(m.providers) == 1 {
		return slices.Collect(maps.Keys(m.providers))[0], nil
	}
	return "", ErrUnsupportedProvider
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
