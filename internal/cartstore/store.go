package cartstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/repositories"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/services"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/shipping"
)

// MaxQuantity caps the units of one product in a cart.
const MaxQuantity = 999

// Stale reasons recorded by Validate.
const (
	StaleReasonUnavailable  = "unavailable"
	StaleReasonPriceChanged = "price_changed"
)

// StoreDeps wires a Store. Cart is the rehydrated state, or zero for a new cart.
type StoreDeps struct {
	Cart   domain.Cart
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// Store owns the state of one cart session: items, coupons, freight selection,
// checkout step data and the totals derived from them.
type Store struct {
	mu       sync.Mutex
	cart     domain.Cart
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
	subs     map[int]func(domain.Cart)
	nextSub  int
	revision uint64
}

// NewStore rehydrates deps.Cart and computes its totals.
func NewStore(deps StoreDeps) (*Store, error) {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	cart := cloneCart(deps.Cart)
	cart.ID = strings.TrimSpace(cart.ID)
	if cart.ID == "" {
		return nil, ErrCartIDRequired
	}
	if cart.Currency == "" {
		cart.Currency = domain.DefaultCurrency
	}
	now := clock().UTC()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = cart.CreatedAt
	}
	if err := recompute(&cart); err != nil {
		return nil, fmt.Errorf("cart %s: rehydrate: %w", cart.ID, err)
	}

	return &Store{
		cart:   cart,
		now:    func() time.Time { return clock().UTC() },
		logger: logger,
		subs:   make(map[int]func(domain.Cart)),
	}, nil
}

// ID returns the cart session id.
func (s *Store) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.ID
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCart(s.cart)
}

func (s *Store) rev() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Subscribe registers fn to receive a snapshot after every mutation. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(domain.Cart)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// AddItem appends item, or adds its quantity to the line of the same product. A line
// never holds more than MaxQuantity units.
func (s *Store) AddItem(item domain.CartLineItem) error {
	item.ProductID = strings.TrimSpace(item.ProductID)
	if item.ProductID == "" || item.Quantity <= 0 || item.Quantity > MaxQuantity || item.UnitPrice < 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidItem, item)
	}
	return s.mutate(func(cart *domain.Cart, now time.Time) error {
		for i := range cart.Items {
			if cart.Items[i].ProductID == item.ProductID {
				if cart.Items[i].Quantity+item.Quantity > MaxQuantity {
					return fmt.Errorf("%w: more than %d units of %s", ErrInvalidItem, MaxQuantity, item.ProductID)
				}
				cart.Items[i].Quantity += item.Quantity
				return nil
			}
		}
		if item.AddedAt.IsZero() {
			item.AddedAt = now
		}
		cart.Items = append(cart.Items, item)
		return nil
	})
}

// ChangeQuantity sets the quantity of a line, never below 1.
func (s *Store) ChangeQuantity(productID string, quantity int) error {
	productID = strings.TrimSpace(productID)
	if quantity > MaxQuantity {
		return fmt.Errorf("%w: more than %d units of %s", ErrInvalidItem, MaxQuantity, productID)
	}
	if quantity < 1 {
		quantity = 1
	}
	return s.mutate(func(cart *domain.Cart, _ time.Time) error {
		for i := range cart.Items {
			if cart.Items[i].ProductID == productID {
				cart.Items[i].Quantity = quantity
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrItemNotFound, productID)
	})
}

// RemoveItem drops a line. Emptying the cart also drops the freight selection and quotes.
func (s *Store) RemoveItem(productID string) error {
	productID = strings.TrimSpace(productID)
	return s.mutate(func(cart *domain.Cart, _ time.Time) error {
		for i := range cart.Items {
			if cart.Items[i].ProductID == productID {
				cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrItemNotFound, productID)
	})
}

// AddCoupon applies a resolved coupon. A code already present is left untouched and
// reported with added == false.
func (s *Store) AddCoupon(ctx context.Context, coupon domain.Coupon) (bool, error) {
	code := services.NormalizeCouponCode(coupon.Code)
	if code == "" {
		return false, fmt.Errorf("%w: coupon code is required", services.ErrCouponInvalidCode)
	}
	added := true
	err := s.mutate(func(cart *domain.Cart, _ time.Time) error {
		for _, existing := range cart.Coupons {
			if existing.Code == code {
				added = false
				return errUnchanged
			}
		}
		cart.Coupons = append(cart.Coupons, domain.AppliedCoupon{
			Code:  code,
			Kind:  coupon.Kind,
			Value: coupon.Value,
		})
		return nil
	})
	if !added {
		s.logger(ctx, "cart.coupon_duplicate", map[string]any{
			"cartID": s.ID(),
			"code":   code,
		})
	}
	return added, err
}

// RemoveCoupon drops a coupon; unknown codes are ignored.
func (s *Store) RemoveCoupon(code string) error {
	code = services.NormalizeCouponCode(code)
	return s.mutate(func(cart *domain.Cart, _ time.Time) error {
		for i := range cart.Coupons {
			if cart.Coupons[i].Code == code {
				cart.Coupons = append(cart.Coupons[:i], cart.Coupons[i+1:]...)
				return nil
			}
		}
		return errUnchanged
	})
}

// SelectFreight chooses a freight option. When quotes are known the option must be one of them.
func (s *Store) SelectFreight(option domain.FreightOption) error {
	if option.Price < 0 {
		return fmt.Errorf("%w: negative price", ErrInvalidFreight)
	}
	return s.mutate(func(cart *domain.Cart, _ time.Time) error {
		if len(cart.Items) == 0 {
			return fmt.Errorf("%w: cart is empty", ErrInvalidFreight)
		}
		if len(cart.FreightOptions) > 0 {
			match, ok := findOption(cart.FreightOptions, option)
			if !ok {
				return fmt.Errorf("%w: %s %s was not quoted", ErrInvalidFreight, option.Carrier, option.ServiceName)
			}
			option = match
		}
		selected := option
		cart.Freight = &selected
		return nil
	})
}

// ResetFreight clears the freight selection and the quoted options.
func (s *Store) ResetFreight() error {
	return s.mutate(func(cart *domain.Cart, _ time.Time) error {
		if cart.Freight == nil && len(cart.FreightOptions) == 0 && cart.PostalCode == "" {
			return errUnchanged
		}
		resetFreight(cart)
		return nil
	})
}

// ApplyQuote stores the options of the lookup tagged n by seq, quoted for the items
// fingerprinted by itemsKey. The quote is dropped with shipping.ErrStaleResponse when
// a newer lookup began or the items changed since. The current selection survives
// when the same service is still offered, at its new price.
func (s *Store) ApplyQuote(seq *shipping.Sequencer, n uint64, itemsKey string, quote shipping.Quote) error {
	if seq != nil && !seq.IsLatest(n) {
		return shipping.ErrStaleResponse
	}
	return s.mutate(func(cart *domain.Cart, _ time.Time) error {
		if shipping.ItemsKey(cart.Items) != itemsKey {
			return fmt.Errorf("%w: cart items changed", shipping.ErrStaleResponse)
		}
		return applyQuote(cart, quote)
	})
}

func applyQuote(cart *domain.Cart, quote shipping.Quote) error {
	if len(cart.Items) == 0 {
		resetFreight(cart)
		return nil
	}
	cart.PostalCode = quote.PostalCode
	cart.FreightOptions = append([]domain.FreightOption(nil), quote.Options...)
	if cart.Freight != nil {
		if match, ok := findOption(cart.FreightOptions, *cart.Freight); ok {
			cart.Freight = &match
		} else {
			cart.Freight = nil
		}
	}
	return nil
}

// SetStep stores the data captured by a checkout step, replacing earlier data for it.
func (s *Store) SetStep(step domain.CheckoutStep, data map[string]string) error {
	switch step {
	case domain.CheckoutStepIdentification, domain.CheckoutStepDelivery, domain.CheckoutStepPayment:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStep, step)
	}
	return s.mutate(func(cart *domain.Cart, _ time.Time) error {
		if cart.Steps == nil {
			cart.Steps = make(map[domain.CheckoutStep]map[string]string)
		}
		values := make(map[string]string, len(data))
		for k, v := range data {
			values[k] = strings.TrimSpace(v)
		}
		cart.Steps[step] = values
		return nil
	})
}

// Validate reconciles item prices against the catalog. Missing products are flagged
// stale, changed prices are updated and flagged. Catalog outages are logged and ignored.
func (s *Store) Validate(ctx context.Context, catalog services.ProductLookup) (bool, error) {
	if catalog == nil {
		return false, nil
	}
	items := s.Snapshot().Items
	type verdict struct {
		price  int64
		stale  bool
		reason string
	}
	verdicts := make(map[string]verdict, len(items))
	for _, item := range items {
		product, err := catalog.GetProductByID(ctx, item.ProductID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				verdicts[item.ProductID] = verdict{price: item.UnitPrice, stale: true, reason: StaleReasonUnavailable}
				continue
			}
			s.logger(ctx, "cart.validate_skipped", map[string]any{
				"cartID":    s.ID(),
				"productID": item.ProductID,
				"error":     err.Error(),
			})
			return false, nil
		}
		switch {
		case !product.Published:
			verdicts[item.ProductID] = verdict{price: item.UnitPrice, stale: true, reason: StaleReasonUnavailable}
		case product.Price != item.UnitPrice:
			verdicts[item.ProductID] = verdict{price: product.Price, stale: true, reason: StaleReasonPriceChanged}
		default:
			verdicts[item.ProductID] = verdict{price: product.Price}
		}
	}

	changed := false
	err := s.mutate(func(cart *domain.Cart, _ time.Time) error {
		for i := range cart.Items {
			v, ok := verdicts[cart.Items[i].ProductID]
			if !ok {
				continue
			}
			line := &cart.Items[i]
			if line.UnitPrice != v.price || line.Stale != v.stale || line.StaleReason != v.reason {
				changed = true
			}
			line.UnitPrice = v.price
			line.Stale = v.stale
			line.StaleReason = v.reason
		}
		if !changed {
			return errUnchanged
		}
		return nil
	})
	return changed, err
}

var errUnchanged = errors.New("cart: unchanged")

// mutate applies fn to a copy of the state, recomputes totals and publishes the
// result. Subscribers run after the lock is released.
func (s *Store) mutate(fn func(cart *domain.Cart, now time.Time) error) error {
	s.mu.Lock()
	now := s.now()
	next := cloneCart(s.cart)
	if err := fn(&next, now); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	if len(next.Items) == 0 {
		resetFreight(&next)
	}
	if err := recompute(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	next.UpdatedAt = now
	s.cart = next
	s.revision++

	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subscribers := make([]func(domain.Cart), 0, len(ids))
	for _, id := range ids {
		subscribers = append(subscribers, s.subs[id])
	}
	s.mu.Unlock()

	for _, notify := range subscribers {
		notify(cloneCart(next))
	}
	return nil
}

func recompute(cart *domain.Cart) error {
	spec := domain.DiscountSpec{}
	if len(cart.Coupons) > 0 {
		spec.Mode = domain.DiscountCoupon
		spec.Coupons = make([]domain.Coupon, len(cart.Coupons))
		for i, applied := range cart.Coupons {
			spec.Coupons[i] = domain.Coupon{Code: applied.Code, Kind: applied.Kind, Value: applied.Value, Active: true}
		}
	}
	var freight int64
	if cart.Freight != nil {
		freight = cart.Freight.Price
	}
	breakdown, err := services.CalculateTotals(services.TotalsInput{
		Items:    cart.Items,
		Discount: spec,
		Freight:  freight,
	})
	if err != nil {
		return err
	}
	for i := range cart.Coupons {
		cart.Coupons[i].Amount = 0
		for _, d := range breakdown.Discounts {
			if d.Code == cart.Coupons[i].Code {
				cart.Coupons[i].Amount = d.Amount
				break
			}
		}
	}
	cart.Totals = breakdown.Totals
	return nil
}

func resetFreight(cart *domain.Cart) {
	cart.Freight = nil
	cart.FreightOptions = nil
	cart.PostalCode = ""
}

func findOption(options []domain.FreightOption, want domain.FreightOption) (domain.FreightOption, bool) {
	for _, option := range options {
		if option.ServiceCode == want.ServiceCode && strings.EqualFold(option.Carrier, want.Carrier) {
			return option, true
		}
	}
	return domain.FreightOption{}, false
}

func cloneCart(cart domain.Cart) domain.Cart {
	out := cart
	out.Items = append([]domain.CartLineItem(nil), cart.Items...)
	for i := range out.Items {
		if cart.Items[i].OriginalPrice != nil {
			price := *cart.Items[i].OriginalPrice
			out.Items[i].OriginalPrice = &price
		}
	}
	out.Coupons = append([]domain.AppliedCoupon(nil), cart.Coupons...)
	out.FreightOptions = append([]domain.FreightOption(nil), cart.FreightOptions...)
	if cart.Freight != nil {
		selected := *cart.Freight
		out.Freight = &selected
	}
	if cart.Steps != nil {
		out.Steps = make(map[domain.CheckoutStep]map[string]string, len(cart.Steps))
		for step, values := range cart.Steps {
			copied := make(map[string]string, len(values))
			for k, v := range values {
				copied[k] = v
			}
			out.Steps[step] = copied
		}
	}
	return out
}
