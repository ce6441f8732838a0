package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

type loggedEvent struct {
	name   string
	fields map[string]any
}

func newTestPricingEngine(t *testing.T, repo *stubCouponRepository, events *[]loggedEvent) *PricingEngine {
	t.Helper()
	coupons := newTestCouponService(t, repo)
	engine, err := NewPricingEngine(PricingEngineDeps{
		Coupons: coupons,
		Logger: func(_ context.Context, event string, fields map[string]any) {
			if events != nil {
				*events = append(*events, loggedEvent{name: event, fields: fields})
			}
		},
	})
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}
	return engine
}

func TestPricingEngineAppliesCouponsAndRejectsInvalid(t *testing.T) {
	var events []loggedEvent
	engine := newTestPricingEngine(t, couponFixtures(), &events)

	result, err := engine.Price(context.Background(), PriceCommand{
		Items:       twoSerums(),
		CouponCodes: []string{"bemvinda10", "BEMVINDA10", "nope", "FRETE15"},
		Freight:     1500,
	})
	if err != nil {
		t.Fatalf("Price: %v", err)
	}

	if len(result.Applied) != 2 {
		t.Fatalf("expected 2 applied coupons, got %+v", result.Applied)
	}
	if result.Applied[0].Code != "BEMVINDA10" || result.Applied[0].Amount != 2000 {
		t.Fatalf("unexpected first coupon %+v", result.Applied[0])
	}
	if result.Applied[1].Code != "FRETE15" || result.Applied[1].Amount != 1500 {
		t.Fatalf("unexpected second coupon %+v", result.Applied[1])
	}
	if result.Breakdown.Totals.Discount != 3500 {
		t.Fatalf("expected summed discount 3500, got %d", result.Breakdown.Totals.Discount)
	}
	if result.Breakdown.Totals.Total != 19998-3500+1500 {
		t.Fatalf("unexpected total %d", result.Breakdown.Totals.Total)
	}

	if len(result.Rejected) != 1 || result.Rejected[0].Code != "NOPE" {
		t.Fatalf("expected NOPE rejected, got %+v", result.Rejected)
	}
	messages := RejectionMessages(result.Rejected)
	if len(messages) != 1 || messages[0] != "NOPE:not_found" {
		t.Fatalf("unexpected rejection messages %v", messages)
	}
	if len(events) != 1 || events[0].name != "pricing.coupon_rejected" {
		t.Fatalf("expected rejection to be logged, got %+v", events)
	}
}

func TestPricingEngineManualDiscountOverridesCoupons(t *testing.T) {
	repo := couponFixtures()
	engine := newTestPricingEngine(t, repo, nil)

	result, err := engine.Price(context.Background(), PriceCommand{
		Items:       twoSerums(),
		CouponCodes: []string{"BEMVINDA10"},
		Manual:      &domain.DiscountSpec{Mode: domain.DiscountPercentage, BasisPoints: 1000},
		Freight:     1500,
	})
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if result.Breakdown.Totals.Total != 19498 {
		t.Fatalf("expected total 19498, got %d", result.Breakdown.Totals.Total)
	}
	if len(result.Applied) != 0 {
		t.Fatalf("expected no coupons applied with manual discount")
	}
	if len(repo.lookups) != 0 {
		t.Fatalf("expected no coupon lookups, got %v", repo.lookups)
	}

	_, err = engine.Price(context.Background(), PriceCommand{
		Items:  twoSerums(),
		Manual: &domain.DiscountSpec{Mode: domain.DiscountCoupon},
	})
	if !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected ErrPricingInvalidInput for manual coupon mode, got %v", err)
	}
}

func TestPricingEngineLogsClamp(t *testing.T) {
	var events []loggedEvent
	engine := newTestPricingEngine(t, couponFixtures(), &events)

	result, err := engine.Price(context.Background(), PriceCommand{
		Items:  []domain.CartLineItem{{ProductID: "lip", UnitPrice: 1000, Quantity: 1}},
		Manual: &domain.DiscountSpec{Mode: domain.DiscountFixed, Amount: 2500},
	})
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if !result.Breakdown.Clamped || result.Breakdown.Totals.Total != 0 {
		t.Fatalf("expected clamped zero total, got %+v", result.Breakdown)
	}
	if len(events) != 1 || events[0].name != "pricing.discount_clamped" {
		t.Fatalf("expected clamp log, got %+v", events)
	}
}

func TestPricingEngineFailsWhenCouponSourceUnavailable(t *testing.T) {
	engine := newTestPricingEngine(t, &stubCouponRepository{err: stubRepoError{unavailable: true}}, nil)
	_, err := engine.Price(context.Background(), PriceCommand{
		Items:       twoSerums(),
		CouponCodes: []string{"BEMVINDA10"},
	})
	if !errors.Is(err, ErrCouponUnavailable) {
		t.Fatalf("expected ErrCouponUnavailable, got %v", err)
	}
}

func TestNewPricingEngineRequiresCoupons(t *testing.T) {
	if _, err := NewPricingEngine(PricingEngineDeps{}); err == nil {
		t.Fatalf("expected error without coupon service")
	}
}
