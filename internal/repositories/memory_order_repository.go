package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

// MemoryOrderRepository keeps orders in process. It backs local runs without Firestore;
// orders are lost on restart.
type MemoryOrderRepository struct {
	mu       sync.RWMutex
	orders   map[string]domain.Order
	byIntent map[string]string
}

var _ OrderRepository = (*MemoryOrderRepository)(nil)

// NewMemoryOrderRepository constructs an empty repository.
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders:   make(map[string]domain.Order),
		byIntent: make(map[string]string),
	}
}

// Insert stores a new order.
func (r *MemoryOrderRepository) Insert(_ context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[id]; exists {
		return NewError(ErrorConflict, "orders.insert", fmt.Errorf("order %s already exists", id))
	}
	r.store(order)
	return nil
}

// Update replaces an existing order.
func (r *MemoryOrderRepository) Update(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, exists := r.orders[order.ID]
	if !exists {
		return NewError(ErrorNotFound, "orders.update", fmt.Errorf("order %s not found", order.ID))
	}
	if current.Payment != nil && current.Payment.IntentID != "" {
		delete(r.byIntent, current.Payment.IntentID)
	}
	if !current.CreatedAt.IsZero() {
		order.CreatedAt = current.CreatedAt
	}
	r.store(order)
	return nil
}

// FindByID loads an order by id.
func (r *MemoryOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[strings.TrimSpace(orderID)]
	if !ok {
		return domain.Order{}, NewError(ErrorNotFound, "orders.find", fmt.Errorf("order %s not found", orderID))
	}
	return cloneOrder(order), nil
}

// FindByPaymentIntent resolves the order holding the provider payment reference.
func (r *MemoryOrderRepository) FindByPaymentIntent(_ context.Context, intentID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byIntent[strings.TrimSpace(intentID)]
	if !ok {
		return domain.Order{}, NewError(ErrorNotFound, "orders.find_by_intent", fmt.Errorf("no order for intent %s", intentID))
	}
	return cloneOrder(r.orders[id]), nil
}

func (r *MemoryOrderRepository) store(order domain.Order) {
	order = cloneOrder(order)
	r.orders[order.ID] = order
	if order.Payment != nil && order.Payment.IntentID != "" {
		r.byIntent[order.Payment.IntentID] = order.ID
	}
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = append([]domain.OrderLineItem(nil), order.Items...)
	order.Coupons = append([]domain.AppliedCoupon(nil), order.Coupons...)
	if order.Freight != nil {
		freight := *order.Freight
		order.Freight = &freight
	}
	if order.Payment != nil {
		payment := *order.Payment
		order.Payment = &payment
	}
	if order.PaidAt != nil {
		paidAt := *order.PaidAt
		order.PaidAt = &paidAt
	}
	if order.Metadata != nil {
		metadata := make(map[string]string, len(order.Metadata))
		for k, v := range order.Metadata {
			metadata[k] = v
		}
		order.Metadata = metadata
	}
	return order
}
