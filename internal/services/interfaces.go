package services

import (
	"context"
	"time"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	PaymentSession     = domain.PaymentSession
	SystemHealthReport = domain.SystemHealthReport
)

// CouponService validates discount codes against the catalog.
type CouponService interface {
	Resolve(ctx context.Context, code string, subtotal int64) (domain.Coupon, error)
}

// CheckoutService places orders and starts their payment.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error)
}

// OrderStatusService reports, and refreshes from the payment provider, the payment state of an order.
type OrderStatusService interface {
	GetStatus(ctx context.Context, orderID string) (OrderStatusResult, error)
	RefreshByPaymentIntent(ctx context.Context, intentID string) (OrderStatusResult, error)
}

// SystemService exposes health information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CartSource loads a cart session snapshot and clears it once an order was placed.
type CartSource interface {
	Snapshot(ctx context.Context, cartID string) (domain.Cart, error)
	Clear(ctx context.Context, cartID string) error
}

// ProductLookup resolves catalog products, the source of truth for unit prices at checkout.
type ProductLookup interface {
	GetProductByID(ctx context.Context, productID string) (domain.Product, error)
}

// FreightQuoter re-quotes a destination so checkout charges the carrier's current price.
type FreightQuoter interface {
	QuoteOptions(ctx context.Context, postalCode string, items []domain.CartLineItem) ([]domain.FreightOption, error)
}

// OrderEventPublisher emits order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// OrderTokenIssuer signs the token that lets a guest read the status of their own order.
type OrderTokenIssuer interface {
	Issue(orderID string) (string, error)
}

// OrderEventType enumerates emitted order events.
type OrderEventType string

const (
	OrderEventPlaced        OrderEventType = "order.placed"
	OrderEventPaid          OrderEventType = "order.paid"
	OrderEventPaymentFailed OrderEventType = "order.payment_failed"
)

// OrderEvent is the message body published on the order events topic.
type OrderEvent struct {
	Type       OrderEventType `json:"type"`
	OrderID    string         `json:"orderId"`
	Number     string         `json:"number"`
	Status     string         `json:"status"`
	Total      int64          `json:"total"`
	Courtesy   bool           `json:"courtesy"`
	Method     string         `json:"method,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// OrderStatusResult is returned by the status endpoint that the payment poller queries.
type OrderStatusResult struct {
	OrderID       string
	Number        string
	OrderStatus   domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	Total         int64
	UpdatedAt     time.Time
}
