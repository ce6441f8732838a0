package cartstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/services"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/shipping"
)

// FreightQuoter quotes freight for the cart items.
type FreightQuoter interface {
	Quote(ctx context.Context, postalCode string, items []domain.CartLineItem) (shipping.Quote, error)
}

var (
	// ErrCatalogUnavailable indicates products cannot be added because the catalog is not configured.
	ErrCatalogUnavailable = errors.New("cart: catalog unavailable")
	// ErrQuoteUnavailable indicates freight quoting is not configured.
	ErrQuoteUnavailable = errors.New("cart: freight quoting unavailable")
	// ErrCouponsUnavailable indicates coupon resolution is not configured.
	ErrCouponsUnavailable = errors.New("cart: coupons unavailable")
)

// RegistryDeps wires a Registry. Catalog, Coupons and Freight are optional; the
// operations that need them fail with an Unavailable error when absent.
type RegistryDeps struct {
	Persister Persister
	Catalog   services.ProductLookup
	Coupons   services.CouponService
	Freight   FreightQuoter
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// Registry hands out per-session stores. Each operation loads the session,
// applies one mutation and saves it back.
type Registry struct {
	persister Persister
	catalog   services.ProductLookup
	coupons   services.CouponService
	freight   FreightQuoter
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)

	mu     sync.Mutex
	locks  map[string]*session
	subs   map[int]func(domain.Cart)
	nextID int
}

// session serializes the operations on one cart. It lives while any operation or
// freight lookup holds a reference to it.
type session struct {
	mu     sync.Mutex
	refs   int
	quotes shipping.Sequencer
}

// NewRegistry validates deps and returns a Registry.
func NewRegistry(deps RegistryDeps) (*Registry, error) {
	if deps.Persister == nil {
		return nil, errors.New("cart registry: persister is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Registry{
		persister: deps.Persister,
		catalog:   deps.Catalog,
		coupons:   deps.Coupons,
		freight:   deps.Freight,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
		locks:     make(map[string]*session),
		subs:      make(map[int]func(domain.Cart)),
	}, nil
}

// Subscribe registers fn to receive every saved cart snapshot.
func (r *Registry) Subscribe(fn func(domain.Cart)) func() {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	}
}

// Create opens a new empty cart session.
func (r *Registry) Create(ctx context.Context) (domain.Cart, error) {
	now := r.now()
	id := "cart_" + strings.ToLower(ulid.MustNew(ulid.Timestamp(now), rand.Reader).String())
	store, err := NewStore(StoreDeps{
		Cart:   domain.Cart{ID: id, CreatedAt: now},
		Clock:  r.now,
		Logger: r.logger,
	})
	if err != nil {
		return domain.Cart{}, err
	}
	cart := store.Snapshot()
	if err := r.persister.Save(ctx, cart); err != nil {
		return domain.Cart{}, err
	}
	r.logger(ctx, "cart.created", map[string]any{"cartID": id})
	return cart, nil
}

// Snapshot loads the session state with freshly computed totals.
func (r *Registry) Snapshot(ctx context.Context, cartID string) (domain.Cart, error) {
	store, err := r.load(ctx, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	return store.Snapshot(), nil
}

// Clear deletes the session, typically once its order was placed.
func (r *Registry) Clear(ctx context.Context, cartID string) error {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return ErrCartIDRequired
	}
	unlock := r.lock(cartID)
	defer unlock()
	return r.persister.Delete(ctx, cartID)
}

// Update applies fn to the session store and saves the result.
func (r *Registry) Update(ctx context.Context, cartID string, fn func(*Store) error) (domain.Cart, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return domain.Cart{}, ErrCartIDRequired
	}
	unlock := r.lock(cartID)
	defer unlock()

	store, err := r.load(ctx, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := fn(store); err != nil {
		return domain.Cart{}, err
	}
	cart := store.Snapshot()
	if store.rev() == 0 {
		return cart, nil
	}
	if err := r.persister.Save(ctx, cart); err != nil {
		return domain.Cart{}, err
	}
	r.notify(cart)
	return cart, nil
}

// AddProduct adds quantity units of a catalog product, priced from the catalog.
func (r *Registry) AddProduct(ctx context.Context, cartID, productID string, quantity int) (domain.Cart, error) {
	if r.catalog == nil {
		return domain.Cart{}, ErrCatalogUnavailable
	}
	if quantity <= 0 || quantity > MaxQuantity {
		return domain.Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidItem, MaxQuantity)
	}
	product, err := r.catalog.GetProductByID(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Cart{}, err
	}
	if !product.Published {
		return domain.Cart{}, fmt.Errorf("%w: product %s is not available", ErrInvalidItem, product.ID)
	}
	item := domain.CartLineItem{
		ProductID:     product.ID,
		SKU:           product.SKU,
		Name:          product.Name,
		UnitPrice:     product.Price,
		Quantity:      quantity,
		OriginalPrice: product.OriginalPrice,
		ImageURL:      product.ImageURL,
		Package:       product.Package,
	}
	return r.Update(ctx, cartID, func(store *Store) error {
		return store.AddItem(item)
	})
}

// ApplyCoupon resolves code against the current subtotal and applies it. added is
// false when the code was already on the cart.
func (r *Registry) ApplyCoupon(ctx context.Context, cartID, code string) (cart domain.Cart, added bool, err error) {
	if r.coupons == nil {
		return domain.Cart{}, false, ErrCouponsUnavailable
	}
	cart, err = r.Update(ctx, cartID, func(store *Store) error {
		coupon, err := r.coupons.Resolve(ctx, code, store.Snapshot().Totals.Subtotal)
		if err != nil {
			return err
		}
		added, err = store.AddCoupon(ctx, coupon)
		return err
	})
	return cart, added, err
}

// QuoteFreight quotes the cart items for postalCode and stores the options. When a
// newer quote for the same cart starts meanwhile, or the items change before the
// options are stored, this one returns shipping.ErrStaleResponse.
func (r *Registry) QuoteFreight(ctx context.Context, cartID, postalCode string) (domain.Cart, shipping.Quote, error) {
	if r.freight == nil {
		return domain.Cart{}, shipping.Quote{}, ErrQuoteUnavailable
	}
	current, err := r.Snapshot(ctx, cartID)
	if err != nil {
		return domain.Cart{}, shipping.Quote{}, err
	}

	sess := r.acquire(current.ID)
	defer r.release(current.ID, sess)
	quoteCtx, n := sess.quotes.Begin(ctx)
	defer sess.quotes.Finish(n)

	quote, err := r.freight.Quote(quoteCtx, postalCode, current.Items)
	if !sess.quotes.IsLatest(n) {
		return domain.Cart{}, shipping.Quote{}, shipping.ErrStaleResponse
	}
	if err != nil {
		return domain.Cart{}, shipping.Quote{}, err
	}

	itemsKey := shipping.ItemsKey(current.Items)
	cart, err := r.Update(ctx, current.ID, func(store *Store) error {
		return store.ApplyQuote(&sess.quotes, n, itemsKey, quote)
	})
	if err != nil {
		return domain.Cart{}, shipping.Quote{}, err
	}
	return cart, quote, nil
}

// Validate reconciles the session items against the catalog.
func (r *Registry) Validate(ctx context.Context, cartID string) (domain.Cart, error) {
	return r.Update(ctx, cartID, func(store *Store) error {
		_, err := store.Validate(ctx, r.catalog)
		return err
	})
}

func (r *Registry) load(ctx context.Context, cartID string) (*Store, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return nil, ErrCartIDRequired
	}
	cart, err := r.persister.Load(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return NewStore(StoreDeps{Cart: cart, Clock: r.now, Logger: r.logger})
}

func (r *Registry) acquire(cartID string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.locks[cartID]
	if !ok {
		sess = &session{}
		r.locks[cartID] = sess
	}
	sess.refs++
	return sess
}

func (r *Registry) release(cartID string, sess *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess.refs--
	if sess.refs == 0 {
		delete(r.locks, cartID)
	}
}

func (r *Registry) lock(cartID string) func() {
	sess := r.acquire(cartID)
	sess.mu.Lock()
	return func() {
		sess.mu.Unlock()
		r.release(cartID, sess)
	}
}

func (r *Registry) notify(cart domain.Cart) {
	r.mu.Lock()
	subscribers := make([]func(domain.Cart), 0, len(r.subs))
	for _, fn := range r.subs {
		subscribers = append(subscribers, fn)
	}
	r.mu.Unlock()
	for _, fn := range subscribers {
		fn(cloneCart(cart))
	}
}
