package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/format"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/httpx"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/services"
)

const (
	maxCheckoutRequestBody = 32 * 1024
	checkoutSuccessMessage = "Pedido realizado com sucesso."
)

// CheckoutHandlers accepts guest checkout submissions.
type CheckoutHandlers struct {
	checkout       services.CheckoutService
	courtesyHeader string
	courtesyToken  string
	keyHeader      string
	middlewares    []func(http.Handler) http.Handler
	limiter        rateLimiter
	logger         func(ctx context.Context, event string, fields map[string]any)
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCourtesyToken enables courtesy orders and manual discounts for requests that carry
// token in header. An empty token disables both.
func WithCourtesyToken(header, token string) CheckoutOption {
	return func(h *CheckoutHandlers) {
		if strings.TrimSpace(header) != "" {
			h.courtesyHeader = strings.TrimSpace(header)
		}
		h.courtesyToken = token
	}
}

// WithIdempotencyKeyHeader names the header whose value is forwarded to the payment provider
// as idempotency key.
func WithIdempotencyKeyHeader(header string) CheckoutOption {
	return func(h *CheckoutHandlers) {
		if strings.TrimSpace(header) != "" {
			h.keyHeader = strings.TrimSpace(header)
		}
	}
}

// WithCheckoutMiddlewares wraps the submission route, e.g. with idempotency.
func WithCheckoutMiddlewares(mw ...func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.middlewares = append(h.middlewares, mw...)
	}
}

// WithCheckoutRateLimit limits submissions per client address and minute.
func WithCheckoutRateLimit(perMinute int, clock func() time.Time) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.limiter = newClientBuckets(perMinute, time.Minute, clock)
	}
}

// WithCheckoutLogger sets the event logger.
func WithCheckoutLogger(logger func(ctx context.Context, event string, fields map[string]any)) CheckoutOption {
	return func(h *CheckoutHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		checkout:       checkout,
		courtesyHeader: "X-Courtesy-Token",
		keyHeader:      "Idempotency-Key",
		logger:         func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the checkout submission. The rate limiter runs before idempotency so
// replays of a stored response are throttled too.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r.With(limitByClient(h.limiter, h.logger))
	for _, mw := range h.middlewares {
		if mw != nil {
			group = group.With(mw)
		}
	}
	group.Post("/", h.placeOrder)
}

type checkoutCustomerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document"`
	Phone    string `json:"phone"`
}

type checkoutAddressRequest struct {
	PostalCode   string `json:"postalCode"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
}

type checkoutFreightRequest struct {
	Carrier     string `json:"carrier"`
	ServiceName string `json:"serviceName"`
	ServiceCode string `json:"serviceCode"`
	Price       int64  `json:"price"`
}

type checkoutDiscountRequest struct {
	Mode    string `json:"mode"`
	Percent string `json:"percent"`
	Amount  string `json:"amount"`
}

type checkoutPaymentRequest struct {
	Method       string `json:"method"`
	CardToken    string `json:"cardToken"`
	Installments int    `json:"installments"`
}

type checkoutRequest struct {
	CartID          string                   `json:"cartId"`
	Customer        checkoutCustomerRequest  `json:"customer"`
	ShippingAddress checkoutAddressRequest   `json:"shippingAddress"`
	Items           []quoteItemRequest       `json:"items"`
	CouponCodes     []string                 `json:"couponCodes"`
	Discount        *checkoutDiscountRequest `json:"discount"`
	Freight         *checkoutFreightRequest  `json:"freight"`
	Payment         checkoutPaymentRequest   `json:"payment"`
	Courtesy        bool                     `json:"courtesy"`
	Metadata        map[string]string        `json:"metadata"`
}

type pixPayload struct {
	QRCode    string `json:"qrCode,omitempty"`
	CopyCode  string `json:"copyCode"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

type checkoutResponse struct {
	Message       string        `json:"message"`
	OrderID       string        `json:"orderId"`
	OrderNumber   string        `json:"orderNumber"`
	Status        string        `json:"status"`
	PaymentStatus string        `json:"paymentStatus"`
	Totals        totalsPayload `json:"totals"`
	PaymentLink   string        `json:"paymentLink,omitempty"`
	PIX           *pixPayload   `json:"pix,omitempty"`
	AccessToken   string        `json:"accessToken,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", httpx.MessageUnavailable, http.StatusServiceUnavailable))
		return
	}

	var req checkoutRequest
	if !decodeBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}

	privileged := h.privileged(r)
	if req.Courtesy && !privileged {
		h.logger(ctx, "checkout.courtesy_rejected", map[string]any{"tokenPresent": r.Header.Get(h.courtesyHeader) != ""})
		httpx.WriteError(ctx, w, httpx.NewError("courtesy_forbidden", "Pedido cortesia não autorizado.", http.StatusForbidden))
		return
	}

	discount, err := parseDiscount(req.Discount)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_discount", "Desconto inválido.", http.StatusBadRequest))
		return
	}
	if discount != nil && discount.Mode != domain.DiscountCoupon && !privileged {
		httpx.WriteError(ctx, w, httpx.NewError("discount_forbidden", "Desconto manual não autorizado.", http.StatusForbidden))
		return
	}

	cmd := services.PlaceOrderCommand{
		CartID: strings.TrimSpace(req.CartID),
		Customer: domain.Customer{
			Name:     req.Customer.Name,
			Email:    req.Customer.Email,
			Document: req.Customer.Document,
			Phone:    req.Customer.Phone,
		},
		ShippingAddress: domain.Address{
			PostalCode:   req.ShippingAddress.PostalCode,
			Street:       req.ShippingAddress.Street,
			Number:       req.ShippingAddress.Number,
			Complement:   req.ShippingAddress.Complement,
			Neighborhood: req.ShippingAddress.Neighborhood,
			City:         req.ShippingAddress.City,
			State:        req.ShippingAddress.State,
		},
		CouponCodes:    req.CouponCodes,
		Discount:       discount,
		Method:         domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Payment.Method))),
		CardToken:      strings.TrimSpace(req.Payment.CardToken),
		Installments:   req.Payment.Installments,
		Courtesy:       req.Courtesy,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(h.keyHeader)),
		Metadata:       req.Metadata,
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.PlaceOrderItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}
	if req.Freight != nil {
		cmd.Freight = &domain.FreightOption{
			Carrier:     strings.TrimSpace(req.Freight.Carrier),
			ServiceName: strings.TrimSpace(req.Freight.ServiceName),
			ServiceCode: strings.TrimSpace(req.Freight.ServiceCode),
			Price:       req.Freight.Price,
		}
	}

	result, err := h.checkout.PlaceOrder(ctx, cmd)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildCheckoutResponse(result))
}

// privileged reports whether the request carries the configured courtesy token.
func (h *CheckoutHandlers) privileged(r *http.Request) bool {
	if h.courtesyToken == "" {
		return false
	}
	supplied := strings.TrimSpace(r.Header.Get(h.courtesyHeader))
	return supplied != "" && subtle.ConstantTimeCompare([]byte(supplied), []byte(h.courtesyToken)) == 1
}

// parseDiscount converts the manual discount: percent as a decimal ("10", "12.5") and
// amount in reais ("15.00").
func parseDiscount(req *checkoutDiscountRequest) (*domain.DiscountSpec, error) {
	if req == nil {
		return nil, nil
	}
	switch domain.DiscountMode(strings.ToLower(strings.TrimSpace(req.Mode))) {
	case domain.DiscountNone:
		return nil, nil
	case domain.DiscountPercentage:
		bps, err := format.ParseDecimalCents(req.Percent)
		if err != nil || bps < 0 || bps > 10000 {
			return nil, errors.New("percent must be between 0 and 100")
		}
		return &domain.DiscountSpec{Mode: domain.DiscountPercentage, BasisPoints: bps}, nil
	case domain.DiscountFixed:
		amount, err := format.ParseDecimalCents(req.Amount)
		if err != nil || amount < 0 {
			return nil, errors.New("amount must be a non-negative decimal")
		}
		return &domain.DiscountSpec{Mode: domain.DiscountFixed, Amount: amount}, nil
	case domain.DiscountCoupon:
		return &domain.DiscountSpec{Mode: domain.DiscountCoupon}, nil
	default:
		return nil, errors.New("unknown discount mode")
	}
}

func buildCheckoutResponse(result services.PlaceOrderResult) checkoutResponse {
	order := result.Order
	resp := checkoutResponse{
		Message:       checkoutSuccessMessage,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		Status:        string(order.Status),
		PaymentStatus: strings.ToUpper(string(domain.PaymentStatusPaid)),
		Totals:        buildTotalsPayload(order.Totals),
		PaymentLink:   result.PaymentLink,
		AccessToken:   result.AccessToken,
		Warnings:      result.Warnings,
	}
	if payment := order.Payment; payment != nil {
		resp.PaymentStatus = strings.ToUpper(string(payment.Status))
		if payment.Method == domain.PaymentMethodPIX && payment.PIXCopyCode != "" {
			pix := &pixPayload{QRCode: payment.PIXQRCode, CopyCode: payment.PIXCopyCode}
			if payment.ExpiresAt != nil {
				pix.ExpiresAt = formatTime(*payment.ExpiresAt)
			}
			resp.PIX = pix
		}
	}
	return resp
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		apiErr := httpx.NewError("invalid_request", "Confira os dados do pedido.", http.StatusUnprocessableEntity)
		if fields := invalidFields(err); len(fields) > 0 {
			apiErr = apiErr.WithDetails(map[string]any{"fields": fields})
		}
		httpx.WriteError(ctx, w, apiErr)
	case errors.Is(err, services.ErrCheckoutCartNotReady):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_ready", "Seu carrinho está vazio ou expirou.", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "Um dos produtos não tem estoque suficiente.", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutFreightMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("freight_changed", "A opção de frete mudou. Calcule o frete novamente.", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentDeclined):
		httpx.WriteError(ctx, w, httpx.NewError("payment_declined", "Pagamento recusado. Verifique os dados ou tente outro meio de pagamento.", http.StatusPaymentRequired))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "Não foi possível iniciar o pagamento. Tente novamente.", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", httpx.MessageUnavailable, http.StatusServiceUnavailable))
	default:
		h.logger(ctx, "checkout.unexpected_error", map[string]any{"error": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", httpx.MessageInternal, http.StatusInternalServerError))
	}
}

// invalidFields extracts the "field:rule" list the checkout service appends to invalid input errors.
func invalidFields(err error) []string {
	prefix := services.ErrCheckoutInvalidInput.Error() + ": "
	msg := err.Error()
	idx := strings.Index(msg, prefix)
	if idx < 0 {
		return nil
	}
	var fields []string
	for _, part := range strings.Split(msg[idx+len(prefix):], ",") {
		part = strings.TrimSpace(part)
		if name, rule, ok := strings.Cut(part, ":"); ok && name != "" && rule != "" && !strings.Contains(part, " ") {
			fields = append(fields, part)
		}
	}
	return fields
}
