package cartstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/repositories"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/services"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/shipping"
)

type stubCoupons struct {
	coupons map[string]domain.Coupon
}

func (s *stubCoupons) Resolve(_ context.Context, code string, subtotal int64) (domain.Coupon, error) {
	coupon, ok := s.coupons[services.NormalizeCouponCode(code)]
	if !ok {
		return domain.Coupon{}, services.ErrCouponNotFound
	}
	if subtotal < coupon.MinSubtotal {
		return domain.Coupon{}, services.ErrCouponMinimumNotMet
	}
	return coupon, nil
}

type stubFreight struct {
	mu      sync.Mutex
	quotes  map[string]shipping.Quote
	release map[string]chan struct{}
	calls   []string
}

func (s *stubFreight) Quote(ctx context.Context, postalCode string, _ []domain.CartLineItem) (shipping.Quote, error) {
	s.mu.Lock()
	s.calls = append(s.calls, postalCode)
	wait := s.release[postalCode]
	quote := s.quotes[postalCode]
	s.mu.Unlock()
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return shipping.Quote{}, ctx.Err()
		}
	}
	return quote, nil
}

func newTestRegistry(t *testing.T, freight FreightQuoter) *Registry {
	t.Helper()
	registry, err := NewRegistry(RegistryDeps{
		Persister: NewMemoryPersister(),
		Catalog: &stubCatalog{products: map[string]domain.Product{
			"serum":  {ID: "serum", SKU: "SER-01", Name: "Sérum Facial", Price: 9999, Published: true},
			"hidden": {ID: "hidden", Price: 100},
		}},
		Coupons: &stubCoupons{coupons: map[string]domain.Coupon{
			"BEMVINDA10": {Code: "BEMVINDA10", Kind: domain.CouponKindPercentage, Value: 1000},
			"FRETE15":    {Code: "FRETE15", Kind: domain.CouponKindFixed, Value: 1500, MinSubtotal: 30000},
		}},
		Freight: freight,
		Clock:   func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return registry
}

func TestRegistryPersistsMutations(t *testing.T) {
	registry := newTestRegistry(t, nil)
	ctx := context.Background()

	var saved []domain.Cart
	unsubscribe := registry.Subscribe(func(cart domain.Cart) { saved = append(saved, cart) })
	defer unsubscribe()

	cart, err := registry.Create(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cart.ID, "cart_"))

	_, err = registry.AddProduct(ctx, cart.ID, "serum", 2)
	require.NoError(t, err)
	updated, added, err := registry.ApplyCoupon(ctx, cart.ID, "bemvinda10")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, int64(17998), updated.Totals.Total)

	_, added, err = registry.ApplyCoupon(ctx, cart.ID, "BEMVINDA10")
	require.NoError(t, err)
	assert.False(t, added)

	snapshot, err := registry.Snapshot(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, "SER-01", snapshot.Items[0].SKU)
	assert.Equal(t, int64(2000), snapshot.Coupons[0].Amount, "amounts are recomputed on load")
	assert.Len(t, saved, 2, "only changes are saved and published")
}

func TestRegistryRejectsCouponsAndProducts(t *testing.T) {
	registry := newTestRegistry(t, nil)
	ctx := context.Background()
	cart, err := registry.Create(ctx)
	require.NoError(t, err)
	_, err = registry.AddProduct(ctx, cart.ID, "serum", 1)
	require.NoError(t, err)

	_, _, err = registry.ApplyCoupon(ctx, cart.ID, "FRETE15")
	assert.ErrorIs(t, err, services.ErrCouponMinimumNotMet)
	_, err = registry.AddProduct(ctx, cart.ID, "hidden", 1)
	assert.ErrorIs(t, err, ErrInvalidItem)
	_, err = registry.AddProduct(ctx, cart.ID, "serum", 0)
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestRegistryCartSource(t *testing.T) {
	registry := newTestRegistry(t, nil)
	ctx := context.Background()
	var source services.CartSource = registry

	_, err := source.Snapshot(ctx, "cart_missing")
	var repoErr repositories.RepositoryError
	require.True(t, errors.As(err, &repoErr))
	assert.True(t, repoErr.IsNotFound())

	cart, err := registry.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, source.Clear(ctx, cart.ID))
	_, err = source.Snapshot(ctx, cart.ID)
	require.True(t, errors.As(err, &repoErr))
	assert.True(t, repoErr.IsNotFound())
}

func TestRegistryQuoteFreightDiscardsSupersededQuote(t *testing.T) {
	freight := &stubFreight{
		quotes: map[string]shipping.Quote{
			"01310100": {PostalCode: "01310100", Options: []domain.FreightOption{pac()}},
			"69020030": {PostalCode: "69020030", Options: []domain.FreightOption{{Carrier: "Correios", ServiceCode: "1", ServiceName: "PAC", Price: 2345}}},
		},
		release: map[string]chan struct{}{"01310100": make(chan struct{})},
	}
	registry := newTestRegistry(t, freight)
	ctx := context.Background()
	cart, err := registry.Create(ctx)
	require.NoError(t, err)
	_, err = registry.AddProduct(ctx, cart.ID, "serum", 1)
	require.NoError(t, err)

	slow := make(chan error, 1)
	go func() {
		_, _, err := registry.QuoteFreight(ctx, cart.ID, "01310100")
		slow <- err
	}()
	require.Eventually(t, func() bool { return freight.callCount() == 1 }, time.Second, 5*time.Millisecond)

	updated, quote, err := registry.QuoteFreight(ctx, cart.ID, "69020030")
	require.NoError(t, err)
	assert.Equal(t, "69020030", quote.PostalCode)
	assert.Equal(t, "69020030", updated.PostalCode)

	assert.ErrorIs(t, <-slow, shipping.ErrStaleResponse)
	stored, err := registry.Snapshot(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, "69020030", stored.PostalCode)
	require.Len(t, stored.FreightOptions, 1)
	assert.Equal(t, int64(2345), stored.FreightOptions[0].Price)
	assert.Zero(t, registry.sessionCount())
}

func (s *stubFreight) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (r *Registry) sessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

func TestRegistryQuoteFreightLatestWinsUnderLock(t *testing.T) {
	freight := &stubFreight{quotes: map[string]shipping.Quote{
		"01310100": {PostalCode: "01310100", Options: []domain.FreightOption{pac()}},
		"69020030": {PostalCode: "69020030", Options: []domain.FreightOption{{Carrier: "Correios", ServiceCode: "1", ServiceName: "PAC", Price: 2345}}},
	}}
	registry := newTestRegistry(t, freight)
	ctx := context.Background()
	cart, err := registry.Create(ctx)
	require.NoError(t, err)
	_, err = registry.AddProduct(ctx, cart.ID, "serum", 1)
	require.NoError(t, err)

	// Both quotes reach the carrier while the session is busy, so neither can store
	// its options before the other has started.
	unlock := registry.lock(cart.ID)
	older := make(chan error, 1)
	go func() {
		_, _, err := registry.QuoteFreight(ctx, cart.ID, "01310100")
		older <- err
	}()
	require.Eventually(t, func() bool { return freight.callCount() == 1 }, time.Second, 5*time.Millisecond)
	newer := make(chan error, 1)
	go func() {
		_, _, err := registry.QuoteFreight(ctx, cart.ID, "69020030")
		newer <- err
	}()
	require.Eventually(t, func() bool { return freight.callCount() == 2 }, time.Second, 5*time.Millisecond)
	unlock()

	assert.ErrorIs(t, <-older, shipping.ErrStaleResponse)
	require.NoError(t, <-newer)
	stored, err := registry.Snapshot(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, "69020030", stored.PostalCode)
	require.Len(t, stored.FreightOptions, 1)
	assert.Equal(t, int64(2345), stored.FreightOptions[0].Price)
	assert.Zero(t, registry.sessionCount(), "sessions are dropped once idle")
}

func TestRegistryQuoteFreightDropsQuoteForChangedItems(t *testing.T) {
	freight := &stubFreight{
		quotes:  map[string]shipping.Quote{"69020030": {PostalCode: "69020030", Options: []domain.FreightOption{pac()}}},
		release: map[string]chan struct{}{"69020030": make(chan struct{})},
	}
	registry := newTestRegistry(t, freight)
	ctx := context.Background()
	cart, err := registry.Create(ctx)
	require.NoError(t, err)
	_, err = registry.AddProduct(ctx, cart.ID, "serum", 1)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, _, err := registry.QuoteFreight(ctx, cart.ID, "69020030")
		done <- err
	}()
	require.Eventually(t, func() bool { return freight.callCount() == 1 }, time.Second, 5*time.Millisecond)
	_, err = registry.AddProduct(ctx, cart.ID, "serum", 2)
	require.NoError(t, err)
	close(freight.release["69020030"])

	assert.ErrorIs(t, <-done, shipping.ErrStaleResponse)
	stored, err := registry.Snapshot(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.FreightOptions)
	assert.Equal(t, 3, stored.Items[0].Quantity)
	assert.Zero(t, registry.sessionCount())
}

func TestRegistryCapsQuantity(t *testing.T) {
	registry := newTestRegistry(t, nil)
	ctx := context.Background()
	cart, err := registry.Create(ctx)
	require.NoError(t, err)

	_, err = registry.AddProduct(ctx, cart.ID, "serum", MaxQuantity+1)
	assert.ErrorIs(t, err, ErrInvalidItem)
	_, err = registry.AddProduct(ctx, cart.ID, "serum", MaxQuantity)
	require.NoError(t, err)
	_, err = registry.AddProduct(ctx, cart.ID, "serum", 1)
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestRegistryWithoutOptionalDeps(t *testing.T) {
	registry, err := NewRegistry(RegistryDeps{Persister: NewMemoryPersister()})
	require.NoError(t, err)
	ctx := context.Background()
	_, _, err = registry.QuoteFreight(ctx, "cart_1", "69020030")
	assert.ErrorIs(t, err, ErrQuoteUnavailable)
	_, err = registry.AddProduct(ctx, "cart_1", "serum", 1)
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
	_, _, err = registry.ApplyCoupon(ctx, "cart_1", "X")
	assert.ErrorIs(t, err, ErrCouponsUnavailable)

	_, err = NewRegistry(RegistryDeps{})
	assert.Error(t, err)
}
