package services

import (
	"errors"
	"fmt"
	"math"
	"sort"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

var (
	// ErrPricingInvalidInput signals bad pricing data such as non-positive quantities or negative prices.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
)

const basisPointsDenominator = 10000

// TotalsInput bundles everything the calculator needs.
type TotalsInput struct {
	Items    []domain.CartLineItem
	Discount domain.DiscountSpec
	Freight  int64
	Courtesy bool
}

// CalculateTotals derives subtotal, discount and grand total from the cart inputs.
// It has no side effects, so calling it twice with the same input yields the same breakdown.
func CalculateTotals(in TotalsInput) (domain.PricingBreakdown, error) {
	if in.Freight < 0 {
		return domain.PricingBreakdown{}, fmt.Errorf("%w: freight cannot be negative", ErrPricingInvalidInput)
	}

	weights := make([]int64, len(in.Items))
	var subtotal int64
	for i, item := range in.Items {
		if item.Quantity <= 0 {
			return domain.PricingBreakdown{}, fmt.Errorf("%w: item %s quantity must be positive", ErrPricingInvalidInput, item.ProductID)
		}
		if item.UnitPrice < 0 {
			return domain.PricingBreakdown{}, fmt.Errorf("%w: item %s unit price cannot be negative", ErrPricingInvalidInput, item.ProductID)
		}
		quantity := int64(item.Quantity)
		if item.UnitPrice > 0 && item.UnitPrice > math.MaxInt64/quantity {
			return domain.PricingBreakdown{}, fmt.Errorf("%w: item %s subtotal overflow", ErrPricingInvalidInput, item.ProductID)
		}
		line := item.UnitPrice * quantity
		if subtotal > math.MaxInt64-line {
			return domain.PricingBreakdown{}, fmt.Errorf("%w: cart subtotal overflow", ErrPricingInvalidInput)
		}
		subtotal += line
		weights[i] = line
	}

	discounts, err := resolveDiscounts(subtotal, in.Discount)
	if err != nil {
		return domain.PricingBreakdown{}, err
	}

	var discount int64
	for _, d := range discounts {
		if discount > math.MaxInt64-d.Amount {
			return domain.PricingBreakdown{}, fmt.Errorf("%w: discount overflow", ErrPricingInvalidInput)
		}
		discount += d.Amount
	}

	clamped := false
	if discount > subtotal {
		clamped = true
		shares := allocateByWeight(subtotal, discountWeights(discounts))
		for i := range discounts {
			discounts[i].Amount = shares[i]
		}
		discount = subtotal
	}

	if subtotal > math.MaxInt64-in.Freight {
		return domain.PricingBreakdown{}, fmt.Errorf("%w: total overflow", ErrPricingInvalidInput)
	}
	total := subtotal - discount + in.Freight
	if total < 0 {
		total = 0
	}
	if in.Courtesy {
		total = 0
	}

	itemDiscounts := allocateByWeight(discount, weights)
	items := make([]domain.ItemPricingBreakdown, len(in.Items))
	for i, item := range in.Items {
		items[i] = domain.ItemPricingBreakdown{
			ProductID: item.ProductID,
			Subtotal:  weights[i],
			Discount:  itemDiscounts[i],
			Total:     weights[i] - itemDiscounts[i],
		}
	}

	return domain.PricingBreakdown{
		Totals: domain.OrderTotals{
			Subtotal: subtotal,
			Discount: discount,
			Freight:  in.Freight,
			Total:    total,
			Courtesy: in.Courtesy,
		},
		Items:     items,
		Discounts: discounts,
		Clamped:   clamped,
	}, nil
}

func resolveDiscounts(subtotal int64, spec domain.DiscountSpec) ([]domain.DiscountBreakdown, error) {
	switch spec.Mode {
	case domain.DiscountNone:
		return nil, nil
	case domain.DiscountPercentage:
		amount, err := percentageOf(subtotal, spec.BasisPoints)
		if err != nil {
			return nil, err
		}
		return []domain.DiscountBreakdown{{Type: string(domain.DiscountPercentage), Amount: amount}}, nil
	case domain.DiscountFixed:
		if spec.Amount < 0 {
			return nil, fmt.Errorf("%w: fixed discount cannot be negative", ErrPricingInvalidInput)
		}
		return []domain.DiscountBreakdown{{Type: string(domain.DiscountFixed), Amount: spec.Amount}}, nil
	case domain.DiscountCoupon:
		out := make([]domain.DiscountBreakdown, 0, len(spec.Coupons))
		for _, coupon := range spec.Coupons {
			amount, err := CouponAmount(coupon, subtotal)
			if err != nil {
				return nil, err
			}
			out = append(out, domain.DiscountBreakdown{Type: string(domain.DiscountCoupon), Code: coupon.Code, Amount: amount})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown discount mode %q", ErrPricingInvalidInput, spec.Mode)
	}
}

// CouponAmount resolves a coupon rule against a subtotal, before any clamping.
func CouponAmount(coupon domain.Coupon, subtotal int64) (int64, error) {
	switch coupon.Kind {
	case domain.CouponKindPercentage:
		return percentageOf(subtotal, coupon.Value)
	case domain.CouponKindFixed:
		if coupon.Value < 0 {
			return 0, fmt.Errorf("%w: coupon %s value cannot be negative", ErrPricingInvalidInput, coupon.Code)
		}
		return coupon.Value, nil
	default:
		return 0, fmt.Errorf("%w: coupon %s has unknown kind %q", ErrPricingInvalidInput, coupon.Code, coupon.Kind)
	}
}

// percentageOf rounds half-up to the nearest cent.
func percentageOf(subtotal, bps int64) (int64, error) {
	if bps < 0 || bps > basisPointsDenominator {
		return 0, fmt.Errorf("%w: percentage must be between 0 and 100", ErrPricingInvalidInput)
	}
	if bps > 0 && subtotal > (math.MaxInt64-basisPointsDenominator/2)/bps {
		return 0, fmt.Errorf("%w: discount overflow", ErrPricingInvalidInput)
	}
	return (subtotal*bps + basisPointsDenominator/2) / basisPointsDenominator, nil
}

func discountWeights(discounts []domain.DiscountBreakdown) []int64 {
	weights := make([]int64, len(discounts))
	for i, d := range discounts {
		weights[i] = d.Amount
	}
	return weights
}

// allocateByWeight splits amount across weights using the largest remainder method so
// the shares always add up to amount.
func allocateByWeight(amount int64, weights []int64) []int64 {
	if len(weights) == 0 {
		return nil
	}
	allocations := make([]int64, len(weights))
	if amount == 0 {
		return allocations
	}
	totalWeight := int64(0)
	for _, w := range weights {
		if w > 0 {
			totalWeight += w
		}
	}
	if totalWeight == 0 {
		base := amount / int64(len(weights))
		remainder := amount % int64(len(weights))
		for i := range weights {
			allocations[i] = base
			if remainder > 0 {
				allocations[i]++
				remainder--
			}
		}
		return allocations
	}

	type remainderPair struct {
		idx       int
		remainder int64
	}
	pairs := make([]remainderPair, len(weights))

	distributed := int64(0)
	for i, w := range weights {
		if w < 0 {
			w = 0
		}
		share, rem := mulDivRem(amount, w, totalWeight)
		allocations[i] = share
		distributed += share
		pairs[i] = remainderPair{idx: i, remainder: rem}
	}

	remainder := amount - distributed
	if remainder <= 0 {
		return allocations
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].remainder == pairs[j].remainder {
			return pairs[i].idx < pairs[j].idx
		}
		return pairs[i].remainder > pairs[j].remainder
	})

	for _, entry := range pairs {
		if remainder == 0 {
			break
		}
		allocations[entry.idx]++
		remainder--
	}

	return allocations
}

// mulDivRem computes a*b/c and the remainder, falling back to float math only when
// the product would overflow int64.
func mulDivRem(a, b, c int64) (int64, int64) {
	if b == 0 || a <= math.MaxInt64/b {
		product := a * b
		return product / c, product % c
	}
	share := int64(float64(a) * (float64(b) / float64(c)))
	return share, 0
}
