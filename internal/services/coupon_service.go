package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/textutil"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/repositories"
)

var (
	// ErrCouponRepositoryMissing indicates the coupon repository dependency is absent.
	ErrCouponRepositoryMissing = errors.New("coupon service: repository is not configured")
	// ErrCouponInvalidCode signals the supplied coupon code is missing or malformed.
	ErrCouponInvalidCode = errors.New("coupon service: invalid coupon code")
	// ErrCouponNotFound indicates no coupon exists for the provided code.
	ErrCouponNotFound = errors.New("coupon service: coupon not found")
	// ErrCouponInactive indicates the coupon exists but is disabled or outside its validity window.
	ErrCouponInactive = errors.New("coupon service: coupon inactive")
	// ErrCouponMinimumNotMet indicates the cart subtotal is below the coupon minimum.
	ErrCouponMinimumNotMet = errors.New("coupon service: minimum subtotal not met")
	// ErrCouponUnavailable indicates the coupon source could not be reached.
	ErrCouponUnavailable = errors.New("coupon service: coupon source unavailable")
)

// CouponServiceDeps bundles dependencies required to construct a CouponService implementation.
type CouponServiceDeps struct {
	Coupons repositories.CouponRepository
	Clock   func() time.Time
}

type couponService struct {
	repo  repositories.CouponRepository
	clock func() time.Time
}

// NewCouponService wires a CouponService backed by the provided repository.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, ErrCouponRepositoryMissing
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &couponService{
		repo:  deps.Coupons,
		clock: func() time.Time { return clock().UTC() },
	}, nil
}

func (s *couponService) Resolve(ctx context.Context, code string, subtotal int64) (domain.Coupon, error) {
	if s == nil || s.repo == nil {
		return domain.Coupon{}, ErrCouponRepositoryMissing
	}

	normalized := NormalizeCouponCode(code)
	if normalized == "" {
		return domain.Coupon{}, ErrCouponInvalidCode
	}

	coupon, err := s.repo.FindCouponByCode(ctx, normalized)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) {
			switch {
			case repoErr.IsNotFound():
				return domain.Coupon{}, fmt.Errorf("%w: %s", ErrCouponNotFound, normalized)
			case repoErr.IsUnavailable():
				return domain.Coupon{}, fmt.Errorf("%w: %v", ErrCouponUnavailable, err)
			}
		}
		return domain.Coupon{}, err
	}
	coupon.Code = NormalizeCouponCode(coupon.Code)

	now := s.clock()
	if !coupon.Active {
		return domain.Coupon{}, fmt.Errorf("%w: %s", ErrCouponInactive, normalized)
	}
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return domain.Coupon{}, fmt.Errorf("%w: %s not started", ErrCouponInactive, normalized)
	}
	if coupon.EndsAt != nil && now.After(*coupon.EndsAt) {
		return domain.Coupon{}, fmt.Errorf("%w: %s expired", ErrCouponInactive, normalized)
	}
	if coupon.MinSubtotal > 0 && subtotal < coupon.MinSubtotal {
		return domain.Coupon{}, fmt.Errorf("%w: %s requires %d", ErrCouponMinimumNotMet, normalized, coupon.MinSubtotal)
	}
	if _, err := CouponAmount(coupon, subtotal); err != nil {
		return domain.Coupon{}, err
	}
	return coupon, nil
}

// NormalizeCouponCode folds case and accents so codes typed by customers match the CMS entry.
func NormalizeCouponCode(code string) string {
	return textutil.FoldCode(code)
}
