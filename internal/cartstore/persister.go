package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

// DefaultSessionTTL is how long an idle cart session survives.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Persister loads and saves cart sessions. Load returns an *Error with IsNotFound
// when the session does not exist.
type Persister interface {
	Load(ctx context.Context, cartID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
	Delete(ctx context.Context, cartID string) error
}

// MemoryPersister keeps sessions in process memory.
type MemoryPersister struct {
	mu    sync.RWMutex
	carts map[string]cartDocument
}

// NewMemoryPersister returns an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{carts: make(map[string]cartDocument)}
}

func (p *MemoryPersister) Load(_ context.Context, cartID string) (domain.Cart, error) {
	p.mu.RLock()
	doc, ok := p.carts[cartID]
	p.mu.RUnlock()
	if !ok {
		return domain.Cart{}, notFoundError("cart.load", cartID)
	}
	return doc.toDomain(), nil
}

func (p *MemoryPersister) Save(_ context.Context, cart domain.Cart) error {
	if strings.TrimSpace(cart.ID) == "" {
		return ErrCartIDRequired
	}
	p.mu.Lock()
	p.carts[cart.ID] = newCartDocument(cart)
	p.mu.Unlock()
	return nil
}

func (p *MemoryPersister) Delete(_ context.Context, cartID string) error {
	p.mu.Lock()
	delete(p.carts, cartID)
	p.mu.Unlock()
	return nil
}

// RedisPersister stores sessions as JSON under cart:<id> with a sliding TTL.
type RedisPersister struct {
	client  redis.UniversalClient
	baseTTL time.Duration
	jitter  time.Duration
}

// NewRedisPersister wraps client. A zero ttl uses DefaultSessionTTL.
func NewRedisPersister(client redis.UniversalClient, ttl time.Duration) (*RedisPersister, error) {
	if client == nil {
		return nil, errors.New("cart persister: redis client is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisPersister{client: client, baseTTL: ttl, jitter: 5 * time.Minute}, nil
}

func (p *RedisPersister) Load(ctx context.Context, cartID string) (domain.Cart, error) {
	data, err := p.client.Get(ctx, redisKey(cartID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Cart{}, notFoundError("cart.load", cartID)
	}
	if err != nil {
		return domain.Cart{}, unavailableError("cart.load", fmt.Errorf("redis get failed: %w", err))
	}
	var doc cartDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.Cart{}, &Error{op: "cart.load", err: fmt.Errorf("unmarshal cart failed: %w", err)}
	}
	return doc.toDomain(), nil
}

func (p *RedisPersister) Save(ctx context.Context, cart domain.Cart) error {
	if strings.TrimSpace(cart.ID) == "" {
		return ErrCartIDRequired
	}
	payload, err := json.Marshal(newCartDocument(cart))
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	ttl := p.baseTTL
	if p.jitter > 0 {
		ttl += time.Duration(rand.Int63n(int64(p.jitter)))
	}
	if err := p.client.Set(ctx, redisKey(cart.ID), payload, ttl).Err(); err != nil {
		return unavailableError("cart.save", fmt.Errorf("redis set failed: %w", err))
	}
	return nil
}

func (p *RedisPersister) Delete(ctx context.Context, cartID string) error {
	if err := p.client.Del(ctx, redisKey(cartID)).Err(); err != nil {
		return unavailableError("cart.delete", fmt.Errorf("redis delete failed: %w", err))
	}
	return nil
}

func redisKey(cartID string) string {
	return fmt.Sprintf("cart:%s", cartID)
}

type cartDocument struct {
	ID             string                       `json:"id"`
	Currency       string                       `json:"currency"`
	Items          []cartItemDocument           `json:"items"`
	Coupons        []cartCouponDocument         `json:"coupons,omitempty"`
	FreightOptions []freightDocument            `json:"freightOptions,omitempty"`
	Freight        *freightDocument             `json:"freight,omitempty"`
	PostalCode     string                       `json:"postalCode,omitempty"`
	Steps          map[string]map[string]string `json:"steps,omitempty"`
	CreatedAt      time.Time                    `json:"createdAt"`
	UpdatedAt      time.Time                    `json:"updatedAt"`
}

type cartItemDocument struct {
	ProductID     string    `json:"productId"`
	SKU           string    `json:"sku,omitempty"`
	Name          string    `json:"name"`
	UnitPrice     int64     `json:"unitPrice"`
	Quantity      int       `json:"quantity"`
	OriginalPrice *int64    `json:"originalPrice,omitempty"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	WeightGrams   int       `json:"weightGrams,omitempty"`
	WidthCM       float64   `json:"widthCm,omitempty"`
	HeightCM      float64   `json:"heightCm,omitempty"`
	LengthCM      float64   `json:"lengthCm,omitempty"`
	Stale         bool      `json:"stale,omitempty"`
	StaleReason   string    `json:"staleReason,omitempty"`
	AddedAt       time.Time `json:"addedAt"`
}

type cartCouponDocument struct {
	Code  string `json:"code"`
	Kind  string `json:"kind"`
	Value int64  `json:"value"`
}

type freightDocument struct {
	Carrier      string `json:"carrier"`
	ServiceName  string `json:"serviceName"`
	ServiceCode  string `json:"serviceCode"`
	Price        int64  `json:"price"`
	DeliveryDays int    `json:"deliveryDays"`
}

// Totals and coupon amounts are derived, so they are recomputed on load instead of stored.
func newCartDocument(cart domain.Cart) cartDocument {
	doc := cartDocument{
		ID:         cart.ID,
		Currency:   cart.Currency,
		Items:      make([]cartItemDocument, 0, len(cart.Items)),
		PostalCode: cart.PostalCode,
		CreatedAt:  cart.CreatedAt.UTC(),
		UpdatedAt:  cart.UpdatedAt.UTC(),
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ProductID:     item.ProductID,
			SKU:           item.SKU,
			Name:          item.Name,
			UnitPrice:     item.UnitPrice,
			Quantity:      item.Quantity,
			OriginalPrice: item.OriginalPrice,
			ImageURL:      item.ImageURL,
			WeightGrams:   item.Package.WeightGrams,
			WidthCM:       item.Package.WidthCM,
			HeightCM:      item.Package.HeightCM,
			LengthCM:      item.Package.LengthCM,
			Stale:         item.Stale,
			StaleReason:   item.StaleReason,
			AddedAt:       item.AddedAt.UTC(),
		})
	}
	for _, coupon := range cart.Coupons {
		doc.Coupons = append(doc.Coupons, cartCouponDocument{Code: coupon.Code, Kind: string(coupon.Kind), Value: coupon.Value})
	}
	for _, option := range cart.FreightOptions {
		doc.FreightOptions = append(doc.FreightOptions, freightDocumentFrom(option))
	}
	if cart.Freight != nil {
		selected := freightDocumentFrom(*cart.Freight)
		doc.Freight = &selected
	}
	if len(cart.Steps) > 0 {
		doc.Steps = make(map[string]map[string]string, len(cart.Steps))
		for step, values := range cart.Steps {
			copied := make(map[string]string, len(values))
			for k, v := range values {
				copied[k] = v
			}
			doc.Steps[string(step)] = copied
		}
	}
	return doc
}

func (d cartDocument) toDomain() domain.Cart {
	cart := domain.Cart{
		ID:         d.ID,
		Currency:   d.Currency,
		Items:      make([]domain.CartLineItem, 0, len(d.Items)),
		PostalCode: d.PostalCode,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	for _, item := range d.Items {
		cart.Items = append(cart.Items, domain.CartLineItem{
			ProductID:     item.ProductID,
			SKU:           item.SKU,
			Name:          item.Name,
			UnitPrice:     item.UnitPrice,
			Quantity:      item.Quantity,
			OriginalPrice: item.OriginalPrice,
			ImageURL:      item.ImageURL,
			Package: domain.PackageDimensions{
				WeightGrams: item.WeightGrams,
				WidthCM:     item.WidthCM,
				HeightCM:    item.HeightCM,
				LengthCM:    item.LengthCM,
			},
			Stale:       item.Stale,
			StaleReason: item.StaleReason,
			AddedAt:     item.AddedAt,
		})
	}
	for _, coupon := range d.Coupons {
		cart.Coupons = append(cart.Coupons, domain.AppliedCoupon{Code: coupon.Code, Kind: domain.CouponKind(coupon.Kind), Value: coupon.Value})
	}
	for _, option := range d.FreightOptions {
		cart.FreightOptions = append(cart.FreightOptions, option.toDomain())
	}
	if d.Freight != nil {
		selected := d.Freight.toDomain()
		cart.Freight = &selected
	}
	if len(d.Steps) > 0 {
		cart.Steps = make(map[domain.CheckoutStep]map[string]string, len(d.Steps))
		for step, values := range d.Steps {
			cart.Steps[domain.CheckoutStep(step)] = values
		}
	}
	return cart
}

func freightDocumentFrom(option domain.FreightOption) freightDocument {
	return freightDocument{
		Carrier:      option.Carrier,
		ServiceName:  option.ServiceName,
		ServiceCode:  option.ServiceCode,
		Price:        option.Price,
		DeliveryDays: option.DeliveryDays,
	}
}

func (d freightDocument) toDomain() domain.FreightOption {
	return domain.FreightOption{
		Carrier:      d.Carrier,
		ServiceName:  d.ServiceName,
		ServiceCode:  d.ServiceCode,
		Price:        d.Price,
		DeliveryDays: d.DeliveryDays,
	}
}
