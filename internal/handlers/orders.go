package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/httpx"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/services"
)

// OrderHandlers exposes the order status endpoint polled while a payment is pending.
type OrderHandlers struct {
	orders services.OrderStatusService
	access func(orderID func(*http.Request) string) func(http.Handler) http.Handler
}

// NewOrderHandlers constructs order handlers. access builds the middleware authorising a
// request for the order named in the path; nil leaves the route open.
func NewOrderHandlers(orders services.OrderStatusService, access func(orderID func(*http.Request) string) func(http.Handler) http.Handler) *OrderHandlers {
	return &OrderHandlers{
		orders: orders,
		access: access,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.access != nil {
		group = r.With(h.access(orderIDParam))
	}
	group.Get("/{id}/status", h.getStatus)
}

func orderIDParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}

type orderStatusResponse struct {
	OrderID       string       `json:"orderId"`
	OrderNumber   string       `json:"orderNumber,omitempty"`
	Status        string       `json:"status"`
	PaymentStatus string       `json:"paymentStatus"`
	Total         moneyPayload `json:"total"`
	UpdatedAt     string       `json:"updatedAt,omitempty"`
}

func (h *OrderHandlers) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", httpx.MessageUnavailable, http.StatusServiceUnavailable))
		return
	}

	result, err := h.orders.GetStatus(ctx, orderIDParam(r))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderStatusResponse(result))
}

// buildOrderStatusResponse reports the payment status upper-cased, the form payment pollers match on.
func buildOrderStatusResponse(result services.OrderStatusResult) orderStatusResponse {
	paymentStatus := string(result.PaymentStatus)
	if result.OrderStatus == domain.OrderStatusCanceled {
		paymentStatus = "canceled"
	}
	return orderStatusResponse{
		OrderID:       result.OrderID,
		OrderNumber:   result.Number,
		Status:        string(result.OrderStatus),
		PaymentStatus: strings.ToUpper(paymentStatus),
		Total:         money(result.Total),
		UpdatedAt:     formatTime(result.UpdatedAt),
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Pedido inválido.", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "Pedido não encontrado.", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", httpx.MessageUnavailable, http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", httpx.MessageInternal, http.StatusInternalServerError))
	}
}
