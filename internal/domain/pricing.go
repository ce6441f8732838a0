package domain

// OrderTotals is derived from the cart inputs and never mutated directly.
type OrderTotals struct {
	Subtotal int64
	Discount int64
	Freight  int64
	Total    int64
	Courtesy bool
}

// DiscountMode selects how the calculator derives the discount amount.
type DiscountMode string

const (
	DiscountNone       DiscountMode = ""
	DiscountPercentage DiscountMode = "percentage"
	DiscountFixed      DiscountMode = "fixed"
	DiscountCoupon     DiscountMode = "coupon"
)

// DiscountSpec describes a manual discount or the coupons to resolve.
// BasisPoints is used for percentage mode (1000 = 10%), Amount for fixed mode.
type DiscountSpec struct {
	Mode        DiscountMode
	BasisPoints int64
	Amount      int64
	Coupons     []Coupon
}

// PricingBreakdown captures the totals together with how the discount was built.
type PricingBreakdown struct {
	Totals    OrderTotals
	Items     []ItemPricingBreakdown
	Discounts []DiscountBreakdown
	Clamped   bool
}

// ItemPricingBreakdown stores the per-item share of the discount.
type ItemPricingBreakdown struct {
	ProductID string
	Subtotal  int64
	Discount  int64
	Total     int64
}

// DiscountBreakdown lists the individual discount adjustments applied to the cart.
type DiscountBreakdown struct {
	Type   string
	Code   string
	Amount int64
}
