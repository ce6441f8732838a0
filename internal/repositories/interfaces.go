// Package repositories declares the storefront's persistence ports and their in-process and
// probe implementations. Firestore backed stores live in the firestore subpackage.
package repositories

import (
	"context"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

// RepositoryError classifies a storage failure so services can map it without importing a driver.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// FindByPaymentIntent returns the order paid through intentID.
	FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error)
}

// ProductRepository is the published catalog, read only.
type ProductRepository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (domain.Product, error)
	GetProductByID(ctx context.Context, productID string) (domain.Product, error)
}

// CouponRepository misses with an IsNotFound RepositoryError.
type CouponRepository interface {
	FindCouponByCode(ctx context.Context, code string) (domain.Coupon, error)
}

type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
