package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/payments"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderUnavailable indicates the order store could not be reached.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPendingPayment: {domain.OrderStatusPaid, domain.OrderStatusPaymentFailed, domain.OrderStatusCanceled},
	// A PIX charge can still settle after the storefront gave up waiting.
	domain.OrderStatusPaymentFailed: {domain.OrderStatusPaid},
}

// orderPaymentLookup abstracts payments.Manager for easier testing.
type orderPaymentLookup interface {
	LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// OrderStatusServiceDeps wires the dependencies required by the order status service.
type OrderStatusServiceDeps struct {
	Orders   repositories.OrderRepository
	Payments orderPaymentLookup
	Events   OrderEventPublisher
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type orderStatusService struct {
	orders   repositories.OrderRepository
	payments orderPaymentLookup
	events   OrderEventPublisher
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderStatusService constructs the service answering payment status polls.
func NewOrderStatusService(deps OrderStatusServiceDeps) (OrderStatusService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order status service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderStatusService{
		orders:   deps.Orders,
		payments: deps.Payments,
		events:   deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// GetStatus returns the order payment state, asking the provider while the payment is still open.
// Provider failures leave the stored state untouched so the poller simply retries on its next tick.
func (s *orderStatusService) GetStatus(ctx context.Context, orderID string) (OrderStatusResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderStatusResult{}, ErrOrderInvalidInput
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderStatusResult{}, s.mapRepositoryError(err)
	}

	if needsRefresh(order) {
		refreshed, err := s.refresh(ctx, order)
		if err != nil {
			s.logger(ctx, "orders.payment_refresh_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		} else {
			order = refreshed
		}
	}
	return statusResult(order), nil
}

// RefreshByPaymentIntent reconciles the order owning a provider intent, used by payment webhooks.
func (s *orderStatusService) RefreshByPaymentIntent(ctx context.Context, intentID string) (OrderStatusResult, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return OrderStatusResult{}, ErrOrderInvalidInput
	}
	order, err := s.orders.FindByPaymentIntent(ctx, intentID)
	if err != nil {
		return OrderStatusResult{}, s.mapRepositoryError(err)
	}
	if order.Payment == nil {
		return statusResult(order), nil
	}
	refreshed, err := s.refresh(ctx, order)
	if err != nil {
		return OrderStatusResult{}, err
	}
	return statusResult(refreshed), nil
}

func (s *orderStatusService) refresh(ctx context.Context, order domain.Order) (domain.Order, error) {
	if s.payments == nil {
		return order, errors.New("order status service: payment lookup is not configured")
	}
	payment := *order.Payment
	details, err := s.payments.LookupPayment(ctx, payments.PaymentContext{
		PreferredProvider: payment.Provider,
		Method:            payment.Method,
	}, payments.LookupRequest{IntentID: payment.IntentID})
	if err != nil {
		return order, fmt.Errorf("lookup payment %s: %w", payment.IntentID, err)
	}

	next := details.Status.DomainStatus()
	if next == payment.Status {
		return order, nil
	}

	now := s.now()
	payment.Status = next
	payment.UpdatedAt = now
	if details.FailureCode != "" {
		payment.FailureCode = details.FailureCode
	}
	previous := order.Status
	order.Payment = &payment
	order.UpdatedAt = now

	var eventType OrderEventType
	switch {
	case next.Paid():
		if canTransition(order.Status, domain.OrderStatusPaid) {
			order.Status = domain.OrderStatusPaid
			order.PaidAt = &now
			eventType = OrderEventPaid
		}
	case next == domain.PaymentStatusFailed || next == domain.PaymentStatusExpired:
		if canTransition(order.Status, domain.OrderStatusPaymentFailed) {
			order.Status = domain.OrderStatusPaymentFailed
			eventType = OrderEventPaymentFailed
		}
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return order, s.mapRepositoryError(err)
	}

	s.logger(ctx, "orders.payment_status_changed", map[string]any{
		"orderId":       order.ID,
		"paymentStatus": string(next),
		"from":          string(previous),
		"to":            string(order.Status),
	})
	if eventType != "" && s.events != nil {
		publishOrderEvent(ctx, s.events, s.logger, eventType, order, now)
	}
	return order, nil
}

func (s *orderStatusService) mapRepositoryError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

func needsRefresh(order domain.Order) bool {
	if order.Payment == nil || strings.TrimSpace(order.Payment.IntentID) == "" {
		return false
	}
	if order.Status != domain.OrderStatusPendingPayment {
		return false
	}
	return !order.Payment.Status.Terminal()
}

func canTransition(from, to domain.OrderStatus) bool {
	for _, candidate := range orderStateTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func statusResult(order domain.Order) OrderStatusResult {
	result := OrderStatusResult{
		OrderID:     order.ID,
		Number:      order.Number,
		OrderStatus: order.Status,
		Total:       order.Totals.Total,
		UpdatedAt:   order.UpdatedAt,
	}
	switch {
	case order.Payment != nil:
		result.PaymentStatus = order.Payment.Status
	case order.Status == domain.OrderStatusPaid:
		// Courtesy and zero-total orders never open a payment.
		result.PaymentStatus = domain.PaymentStatusPaid
	default:
		result.PaymentStatus = domain.PaymentStatusPending
	}
	return result
}
