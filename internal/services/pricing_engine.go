package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

// PricingEngine prices carts by resolving coupon codes and delegating the arithmetic to CalculateTotals.
type PricingEngine struct {
	coupons CouponService
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// PricingEngineDeps bundles the collaborators required by the engine.
type PricingEngineDeps struct {
	Coupons CouponService
	Now     func() time.Time
	Logger  func(context.Context, string, map[string]any)
}

// NewPricingEngine validates deps and returns an engine.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.Coupons == nil {
		return nil, errors.New("pricing engine: coupon service is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PricingEngine{
		coupons: deps.Coupons,
		now: func() time.Time {
			return now().UTC()
		},
		logger: logger,
	}, nil
}

// PriceCommand describes a pricing request. Manual overrides coupon codes when set.
type PriceCommand struct {
	Items       []domain.CartLineItem
	CouponCodes []string
	Manual      *domain.DiscountSpec
	Freight     int64
	Courtesy    bool
}

// CouponRejection explains why a requested coupon was not applied.
type CouponRejection struct {
	Code   string
	Reason error
}

// PriceResult carries the breakdown with the applied and rejected coupons.
type PriceResult struct {
	Breakdown domain.PricingBreakdown
	Applied   []domain.AppliedCoupon
	Rejected  []CouponRejection
}

// Price resolves coupons and computes totals. Invalid coupon codes are reported in
// Rejected instead of failing the whole computation; an unreachable coupon source is an error.
func (e *PricingEngine) Price(ctx context.Context, cmd PriceCommand) (PriceResult, error) {
	if e == nil {
		return PriceResult{}, errors.New("pricing engine: not initialised")
	}

	spec := domain.DiscountSpec{}
	var rejected []CouponRejection

	if cmd.Manual != nil && cmd.Manual.Mode != domain.DiscountNone {
		spec = *cmd.Manual
		if spec.Mode == domain.DiscountCoupon {
			return PriceResult{}, fmt.Errorf("%w: manual discount cannot be coupon mode", ErrPricingInvalidInput)
		}
	} else if len(cmd.CouponCodes) > 0 {
		subtotal, err := subtotalOf(cmd.Items)
		if err != nil {
			return PriceResult{}, err
		}
		seen := make(map[string]struct{}, len(cmd.CouponCodes))
		coupons := make([]domain.Coupon, 0, len(cmd.CouponCodes))
		for _, raw := range cmd.CouponCodes {
			code := NormalizeCouponCode(raw)
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}

			coupon, err := e.coupons.Resolve(ctx, code, subtotal)
			if err != nil {
				if errors.Is(err, ErrCouponUnavailable) || errors.Is(err, ErrCouponRepositoryMissing) {
					return PriceResult{}, err
				}
				e.logger(ctx, "pricing.coupon_rejected", map[string]any{
					"code":  code,
					"error": err.Error(),
				})
				rejected = append(rejected, CouponRejection{Code: code, Reason: err})
				continue
			}
			coupons = append(coupons, coupon)
		}
		if len(coupons) > 0 {
			spec = domain.DiscountSpec{Mode: domain.DiscountCoupon, Coupons: coupons}
		}
	}

	breakdown, err := CalculateTotals(TotalsInput{
		Items:    cmd.Items,
		Discount: spec,
		Freight:  cmd.Freight,
		Courtesy: cmd.Courtesy,
	})
	if err != nil {
		return PriceResult{}, err
	}

	if breakdown.Clamped {
		e.logger(ctx, "pricing.discount_clamped", map[string]any{
			"subtotal": breakdown.Totals.Subtotal,
			"discount": breakdown.Totals.Discount,
			"mode":     string(spec.Mode),
		})
	}

	var applied []domain.AppliedCoupon
	if spec.Mode == domain.DiscountCoupon {
		applied = make([]domain.AppliedCoupon, 0, len(spec.Coupons))
		for i, coupon := range spec.Coupons {
			applied = append(applied, domain.AppliedCoupon{
				Code:   coupon.Code,
				Kind:   coupon.Kind,
				Value:  coupon.Value,
				Amount: breakdown.Discounts[i].Amount,
			})
		}
	}

	return PriceResult{
		Breakdown: breakdown,
		Applied:   applied,
		Rejected:  rejected,
	}, nil
}

func subtotalOf(items []domain.CartLineItem) (int64, error) {
	breakdown, err := CalculateTotals(TotalsInput{Items: items})
	if err != nil {
		return 0, err
	}
	return breakdown.Totals.Subtotal, nil
}

// RejectionMessages renders rejected coupons for API responses.
func RejectionMessages(rejected []CouponRejection) []string {
	if len(rejected) == 0 {
		return nil
	}
	out := make([]string, 0, len(rejected))
	for _, r := range rejected {
		reason := "invalid"
		switch {
		case errors.Is(r.Reason, ErrCouponNotFound):
			reason = "not_found"
		case errors.Is(r.Reason, ErrCouponInactive):
			reason = "inactive"
		case errors.Is(r.Reason, ErrCouponMinimumNotMet):
			reason = "minimum_not_met"
		}
		out = append(out, strings.Join([]string{r.Code, reason}, ":"))
	}
	return out
}
