package domain

import (
	"time"
)

// DefaultCurrency is the only currency the storefront sells in.
const DefaultCurrency = "BRL"

// Product mirrors the catalog entry published by the CMS.
type Product struct {
	ID              string
	Slug            string
	Name            string
	SKU             string
	Price           int64
	OriginalPrice   *int64
	DescriptionHTML string
	ImageURL        string
	Stock           *int
	Package         PackageDimensions
	Published       bool
	UpdatedAt       time.Time
}

// PackageDimensions carries the physical attributes carriers price freight on.
type PackageDimensions struct {
	WeightGrams int
	WidthCM     float64
	HeightCM    float64
	LengthCM    float64
}

// CartLineItem stores a single product entry within a cart. Items are unique by ProductID.
type CartLineItem struct {
	ProductID     string
	SKU           string
	Name          string
	UnitPrice     int64
	Quantity      int
	OriginalPrice *int64
	ImageURL      string
	Package       PackageDimensions
	Stale         bool
	StaleReason   string
	AddedAt       time.Time
}

// LineTotal returns unit price times quantity.
func (i CartLineItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// CouponKind identifies how a coupon resolves into a discount amount.
type CouponKind string

const (
	// CouponKindPercentage discounts a share of the subtotal, expressed in basis points.
	CouponKindPercentage CouponKind = "percentage"
	// CouponKindFixed discounts a fixed amount in cents.
	CouponKindFixed CouponKind = "fixed"
)

// Coupon describes a discount code published in the CMS.
type Coupon struct {
	Code        string
	Kind        CouponKind
	Value       int64
	Description string
	Active      bool
	StartsAt    *time.Time
	EndsAt      *time.Time
	MinSubtotal int64
}

// AppliedCoupon is the snapshot of a coupon stored on a cart or an order.
type AppliedCoupon struct {
	Code   string
	Kind   CouponKind
	Value  int64
	Amount int64
}

// FreightOption is one shipping service returned by the carrier quote.
type FreightOption struct {
	Carrier      string
	ServiceName  string
	ServiceCode  string
	Price        int64
	DeliveryDays int
}

// CheckoutStep names a resumable checkout step.
type CheckoutStep string

const (
	// CheckoutStepIdentification stores customer identification data.
	CheckoutStepIdentification CheckoutStep = "identification"
	// CheckoutStepDelivery stores the delivery address.
	CheckoutStepDelivery CheckoutStep = "delivery"
	// CheckoutStepPayment stores the chosen payment method.
	CheckoutStepPayment CheckoutStep = "payment"
)

// Cart aggregates the mutable shopping cart state for one cart session.
type Cart struct {
	ID             string
	Currency       string
	Items          []CartLineItem
	Coupons        []AppliedCoupon
	FreightOptions []FreightOption
	Freight        *FreightOption
	PostalCode     string
	Steps          map[CheckoutStep]map[string]string
	Totals         OrderTotals
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Customer identifies the buyer of a guest checkout.
type Customer struct {
	Name     string
	Email    string
	Document string
	Phone    string
}

// Address represents a Brazilian delivery address.
type Address struct {
	PostalCode   string
	Street       string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	State        string
}

// AddressLookup is the result of resolving a CEP.
type AddressLookup struct {
	PostalCode   string
	Street       string
	Neighborhood string
	City         string
	State        string
	IBGECode     string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPendingPayment indicates the order awaits payment completion.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusPaid indicates payment succeeded.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusPaymentFailed indicates the payment was declined or expired.
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
	// OrderStatusCanceled indicates the order has been canceled.
	OrderStatusCanceled OrderStatus = "canceled"
)

// Order captures a placed order.
type Order struct {
	ID              string
	Number          string
	CartID          string
	Status          OrderStatus
	Currency        string
	Customer        Customer
	ShippingAddress Address
	Items           []OrderLineItem
	Coupons         []AppliedCoupon
	Freight         *FreightOption
	Totals          OrderTotals
	Courtesy        bool
	Payment         *PaymentSession
	Metadata        map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
}

// OrderLineItem mirrors cart items at the time of checkout.
type OrderLineItem struct {
	ProductID string
	SKU       string
	Name      string
	UnitPrice int64
	Quantity  int
	Subtotal  int64
	Discount  int64
	Total     int64
}

// PaymentMethod identifies the payment rail chosen at checkout.
type PaymentMethod string

const (
	// PaymentMethodPIX pays through a PIX QR code or copy-and-paste code.
	PaymentMethodPIX PaymentMethod = "pix"
	// PaymentMethodCard pays with a credit card tokenized on the client.
	PaymentMethodCard PaymentMethod = "card"
)

// PaymentStatus is the externally visible payment state of an order.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusExpired    PaymentStatus = "expired"
)

// Terminal reports whether no further status transitions are expected.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusAuthorized, PaymentStatusFailed, PaymentStatusExpired:
		return true
	}
	return false
}

// Paid reports whether the order can be fulfilled.
func (s PaymentStatus) Paid() bool {
	return s == PaymentStatusPaid || s == PaymentStatusAuthorized
}

// PaymentSession tracks the payment created for an order.
type PaymentSession struct {
	OrderID     string
	Method      PaymentMethod
	Provider    string
	IntentID    string
	Status      PaymentStatus
	Amount      int64
	PIXQRCode   string
	PIXCopyCode string
	PaymentLink string
	ExpiresAt   *time.Time
	FailureCode string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Critical  bool
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
