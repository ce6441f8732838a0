package firestore

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	pfirestore "github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/firestore"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/repositories"
)

const (
	orderCollection = "orders"
	// Indexed single-field path used by the payment webhook lookup.
	paymentIntentPath = "payment.intentId"
)

// OrderRepository persists checkout orders in Firestore.
type OrderRepository struct {
	orders *pfirestore.Collection[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(client *pfirestore.Client) (*OrderRepository, error) {
	if client == nil {
		return nil, errors.New("order repository requires a firestore client")
	}
	return &OrderRepository{orders: pfirestore.NewCollection[orderDocument](client, orderCollection)}, nil
}

// Insert fails with a conflict when the id is taken.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	id, err := orderID(order)
	if err != nil {
		return err
	}
	return r.orders.Create(ctx, id, newOrderDocument(order))
}

// Update overwrites a stored order but keeps its original creation time.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	id, err := orderID(order)
	if err != nil {
		return err
	}
	next := newOrderDocument(order)
	return r.orders.Replace(ctx, id, func(current orderDocument) orderDocument {
		doc := next
		if !current.CreatedAt.IsZero() {
			doc.CreatedAt = current.CreatedAt
		}
		return doc
	})
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (domain.Order, error) {
	id = strings.TrimSpace(id)
	doc, err := r.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(id), nil
}

// FindByPaymentIntent serves the payment webhooks, which only know the provider reference.
func (r *OrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return domain.Order{}, pfirestore.NotFound("orders.find_by_intent", "payment intent id is empty")
	}
	id, doc, err := r.orders.FindOne(ctx, paymentIntentPath, intentID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(id), nil
}

func orderID(order domain.Order) (string, error) {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return "", errors.New("order repository: order id is required")
	}
	return id, nil
}

type orderDocument struct {
	Number          string              `firestore:"number"`
	CartID          string              `firestore:"cartId,omitempty"`
	Status          string              `firestore:"status"`
	Currency        string              `firestore:"currency"`
	Customer        customerDocument    `firestore:"customer"`
	ShippingAddress addressDocument     `firestore:"shippingAddress"`
	Items           []orderItemDocument `firestore:"items"`
	Coupons         []couponDocument    `firestore:"coupons,omitempty"`
	Freight         *freightDocument    `firestore:"freight,omitempty"`
	Totals          totalsDocument      `firestore:"totals"`
	Courtesy        bool                `firestore:"courtesy"`
	Payment         *paymentDocument    `firestore:"payment,omitempty"`
	Metadata        map[string]string   `firestore:"metadata,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	PaidAt          *time.Time          `firestore:"paidAt,omitempty"`
}

type customerDocument struct {
	Name     string `firestore:"name"`
	Email    string `firestore:"email"`
	Document string `firestore:"document"`
	Phone    string `firestore:"phone,omitempty"`
}

type addressDocument struct {
	PostalCode   string `firestore:"postalCode"`
	Street       string `firestore:"street"`
	Number       string `firestore:"number"`
	Complement   string `firestore:"complement,omitempty"`
	Neighborhood string `firestore:"neighborhood"`
	City         string `firestore:"city"`
	State        string `firestore:"state"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	SKU       string `firestore:"sku,omitempty"`
	Name      string `firestore:"name"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"quantity"`
	Subtotal  int64  `firestore:"subtotal"`
	Discount  int64  `firestore:"discount"`
	Total     int64  `firestore:"total"`
}

type couponDocument struct {
	Code   string `firestore:"code"`
	Kind   string `firestore:"kind"`
	Value  int64  `firestore:"value"`
	Amount int64  `firestore:"amount"`
}

type freightDocument struct {
	Carrier      string `firestore:"carrier"`
	ServiceName  string `firestore:"serviceName"`
	ServiceCode  string `firestore:"serviceCode"`
	Price        int64  `firestore:"price"`
	DeliveryDays int    `firestore:"deliveryDays"`
}

type totalsDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Discount int64 `firestore:"discount"`
	Freight  int64 `firestore:"freight"`
	Total    int64 `firestore:"total"`
	Courtesy bool  `firestore:"courtesy"`
}

type paymentDocument struct {
	Method      string     `firestore:"method"`
	Provider    string     `firestore:"provider"`
	IntentID    string     `firestore:"intentId"`
	Status      string     `firestore:"status"`
	Amount      int64      `firestore:"amount"`
	PIXQRCode   string     `firestore:"pixQrCode,omitempty"`
	PIXCopyCode string     `firestore:"pixCopyCode,omitempty"`
	PaymentLink string     `firestore:"paymentLink,omitempty"`
	ExpiresAt   *time.Time `firestore:"expiresAt,omitempty"`
	FailureCode string     `firestore:"failureCode,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		Number:   order.Number,
		CartID:   order.CartID,
		Status:   string(order.Status),
		Currency: strings.ToUpper(strings.TrimSpace(order.Currency)),
		Customer: customerDocument{
			Name:     order.Customer.Name,
			Email:    strings.ToLower(strings.TrimSpace(order.Customer.Email)),
			Document: order.Customer.Document,
			Phone:    order.Customer.Phone,
		},
		ShippingAddress: addressDocument(order.ShippingAddress),
		Totals: totalsDocument{
			Subtotal: order.Totals.Subtotal,
			Discount: order.Totals.Discount,
			Freight:  order.Totals.Freight,
			Total:    order.Totals.Total,
			Courtesy: order.Totals.Courtesy,
		},
		Courtesy:  order.Courtesy,
		Metadata:  cloneStringMap(order.Metadata),
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
		PaidAt:    utcPtr(order.PaidAt),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument(item))
	}
	for _, coupon := range order.Coupons {
		doc.Coupons = append(doc.Coupons, couponDocument{
			Code:   coupon.Code,
			Kind:   string(coupon.Kind),
			Value:  coupon.Value,
			Amount: coupon.Amount,
		})
	}
	if order.Freight != nil {
		freight := freightDocument(*order.Freight)
		doc.Freight = &freight
	}
	if p := order.Payment; p != nil {
		doc.Payment = &paymentDocument{
			Method:      string(p.Method),
			Provider:    p.Provider,
			IntentID:    p.IntentID,
			Status:      string(p.Status),
			Amount:      p.Amount,
			PIXQRCode:   p.PIXQRCode,
			PIXCopyCode: p.PIXCopyCode,
			PaymentLink: p.PaymentLink,
			ExpiresAt:   utcPtr(p.ExpiresAt),
			FailureCode: p.FailureCode,
			CreatedAt:   p.CreatedAt.UTC(),
			UpdatedAt:   p.UpdatedAt.UTC(),
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:              id,
		Number:          d.Number,
		CartID:          d.CartID,
		Status:          domain.OrderStatus(d.Status),
		Currency:        d.Currency,
		Customer:        domain.Customer(d.Customer),
		ShippingAddress: domain.Address(d.ShippingAddress),
		Totals: domain.OrderTotals{
			Subtotal: d.Totals.Subtotal,
			Discount: d.Totals.Discount,
			Freight:  d.Totals.Freight,
			Total:    d.Totals.Total,
			Courtesy: d.Totals.Courtesy,
		},
		Courtesy:  d.Courtesy,
		Metadata:  cloneStringMap(d.Metadata),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		PaidAt:    d.PaidAt,
	}
	order.Items = make([]domain.OrderLineItem, 0, len(d.Items))
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderLineItem(item))
	}
	for _, coupon := range d.Coupons {
		order.Coupons = append(order.Coupons, domain.AppliedCoupon{
			Code:   coupon.Code,
			Kind:   domain.CouponKind(coupon.Kind),
			Value:  coupon.Value,
			Amount: coupon.Amount,
		})
	}
	if d.Freight != nil {
		freight := domain.FreightOption(*d.Freight)
		order.Freight = &freight
	}
	if p := d.Payment; p != nil {
		order.Payment = &domain.PaymentSession{
			OrderID:     id,
			Method:      domain.PaymentMethod(p.Method),
			Provider:    p.Provider,
			IntentID:    p.IntentID,
			Status:      domain.PaymentStatus(p.Status),
			Amount:      p.Amount,
			PIXQRCode:   p.PIXQRCode,
			PIXCopyCode: p.PIXCopyCode,
			PaymentLink: p.PaymentLink,
			ExpiresAt:   p.ExpiresAt,
			FailureCode: p.FailureCode,
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
		}
	}
	return order
}

func cloneStringMap(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
