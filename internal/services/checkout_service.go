package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/payments"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/textutil"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutCartNotReady indicates the cart is missing required data for checkout.
	ErrCheckoutCartNotReady = errors.New("checkout: cart not ready")
	// ErrCheckoutInsufficientStock indicates the catalog has fewer units than requested.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutFreightMismatch indicates the selected freight option is no longer offered for the address.
	ErrCheckoutFreightMismatch = errors.New("checkout: freight option unavailable")
	// ErrCheckoutPaymentFailed indicates the PSP payment could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrCheckoutPaymentDeclined indicates the PSP refused the charge.
	ErrCheckoutPaymentDeclined = errors.New("checkout: payment declined")
)

// checkoutPaymentGateway abstracts payments.Manager for easier testing.
type checkoutPaymentGateway interface {
	CreatePayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.PaymentRequest) (payments.PaymentDetails, error)
}

// PlaceOrderItem references a catalog product; the unit price always comes from the catalog.
type PlaceOrderItem struct {
	ProductID string
	Quantity  int
}

// PlaceOrderCommand is the checkout submission. When Items is empty the cart session identified
// by CartID supplies items, coupons and the selected freight.
type PlaceOrderCommand struct {
	CartID          string
	Customer        domain.Customer
	ShippingAddress domain.Address
	Items           []PlaceOrderItem
	CouponCodes     []string
	Discount        *domain.DiscountSpec
	Freight         *domain.FreightOption
	Method          domain.PaymentMethod
	CardToken       string
	Installments    int
	Courtesy        bool
	IdempotencyKey  string
	Metadata        map[string]string
}

// PlaceOrderResult is returned after an order was stored.
type PlaceOrderResult struct {
	Order       domain.Order
	AccessToken string
	PaymentLink string
	Warnings    []string
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Orders    repositories.OrderRepository
	Products  ProductLookup
	Pricing   *PricingEngine
	Payments  checkoutPaymentGateway
	Carts     CartSource
	Freight   FreightQuoter
	Events    OrderEventPublisher
	Tokens    OrderTokenIssuer
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
	Validator *validator.Validate
}

type checkoutService struct {
	orders   repositories.OrderRepository
	products ProductLookup
	pricing  *PricingEngine
	payments checkoutPaymentGateway
	carts    CartSource
	freight  FreightQuoter
	events   OrderEventPublisher
	tokens   OrderTokenIssuer
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
	validate *validator.Validate
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("checkout service: product lookup is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing engine is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment manager is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	validate := deps.Validator
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &checkoutService{
		orders:   deps.Orders,
		products: deps.Products,
		pricing:  deps.Pricing,
		payments: deps.Payments,
		carts:    deps.Carts,
		freight:  deps.Freight,
		events:   deps.Events,
		tokens:   deps.Tokens,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:   logger,
		validate: validate,
	}, nil
}

// checkoutForm holds the normalised submission fields checked by struct tags.
type checkoutForm struct {
	Name         string `validate:"required,max=120"`
	Email        string `validate:"required,email"`
	Document     string `validate:"required,len=11,numeric"`
	Phone        string `validate:"omitempty,min=10,max=11,numeric"`
	PostalCode   string `validate:"required,len=8,numeric"`
	Street       string `validate:"required,max=200"`
	Number       string `validate:"required,max=20"`
	Neighborhood string `validate:"required,max=120"`
	City         string `validate:"required,max=120"`
	State        string `validate:"required,len=2,alpha"`
	Method       string `validate:"required_without=Courtesy,omitempty,oneof=pix card"`
	Installments int    `validate:"min=0,max=12"`
	Courtesy     bool
}

// PlaceOrder validates the submission, prices it from catalog data, stores the order and starts payment.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	if s == nil || s.orders == nil || s.payments == nil {
		return PlaceOrderResult{}, ErrCheckoutUnavailable
	}

	cmd = normalisePlaceOrderCommand(cmd)
	if err := s.validateCommand(cmd); err != nil {
		return PlaceOrderResult{}, err
	}

	requested, couponCodes, freight, err := s.resolveRequest(ctx, cmd)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	lines, err := s.priceLines(ctx, requested)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	freight, err = s.confirmFreight(ctx, cmd.ShippingAddress.PostalCode, lines, freight)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	var freightAmount int64
	if freight != nil {
		freightAmount = freight.Price
	}

	priced, err := s.pricing.Price(ctx, PriceCommand{
		Items:       lines,
		CouponCodes: couponCodes,
		Manual:      cmd.Discount,
		Freight:     freightAmount,
		Courtesy:    cmd.Courtesy,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrPricingInvalidInput):
			return PlaceOrderResult{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
		case errors.Is(err, ErrCouponUnavailable), errors.Is(err, ErrCouponRepositoryMissing):
			return PlaceOrderResult{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		default:
			return PlaceOrderResult{}, err
		}
	}

	now := s.now()
	order := buildOrder(cmd, lines, priced, freight, now)
	warnings := RejectionMessages(priced.Rejected)

	if order.Courtesy || order.Totals.Total == 0 {
		order.Status = domain.OrderStatusPaid
		order.PaidAt = &now
		if err := s.orders.Insert(ctx, order); err != nil {
			return PlaceOrderResult{}, s.translateRepoError(err)
		}
		s.logger(ctx, "checkout.order_placed", map[string]any{
			"orderId":  order.ID,
			"courtesy": order.Courtesy,
			"total":    order.Totals.Total,
		})
		s.publish(ctx, OrderEventPlaced, order)
		s.publish(ctx, OrderEventPaid, order)
		s.clearCart(ctx, cmd.CartID)
		return s.result(ctx, order, warnings)
	}

	if cmd.Method == domain.PaymentMethodCard && cmd.CardToken == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: card token is required", ErrCheckoutInvalidInput)
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return PlaceOrderResult{}, s.translateRepoError(err)
	}

	idempotencyKey := cmd.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = order.ID
	}
	details, err := s.payments.CreatePayment(ctx, payments.PaymentContext{Method: cmd.Method}, payments.PaymentRequest{
		OrderID:          order.ID,
		Method:           cmd.Method,
		Amount:           order.Totals.Total,
		Currency:         order.Currency,
		CardToken:        cmd.CardToken,
		Installments:     cmd.Installments,
		CustomerName:     order.Customer.Name,
		CustomerEmail:    order.Customer.Email,
		CustomerDocument: order.Customer.Document,
		Description:      "Pedido " + order.Number,
		Metadata:         map[string]string{"order_number": order.Number},
		IdempotencyKey:   "checkout:" + idempotencyKey,
	})
	if err != nil {
		return PlaceOrderResult{}, s.failPayment(ctx, order, err)
	}

	session := paymentSessionFromDetails(order.ID, cmd.Method, details, now)
	order.Payment = &session
	order.UpdatedAt = now
	switch {
	case session.Status.Paid():
		order.Status = domain.OrderStatusPaid
		order.PaidAt = &now
	case session.Status == domain.PaymentStatusFailed || session.Status == domain.PaymentStatusExpired:
		order.Status = domain.OrderStatusPaymentFailed
	}

	if err := s.orders.Update(ctx, order); err != nil {
		// The PSP already holds the intent; the webhook reconciles the order by intent id later.
		s.logger(ctx, "checkout.order_update_failed", map[string]any{
			"orderId":  order.ID,
			"intentId": session.IntentID,
			"error":    err.Error(),
		})
		return PlaceOrderResult{}, s.translateRepoError(err)
	}

	s.logger(ctx, "checkout.order_placed", map[string]any{
		"orderId":  order.ID,
		"method":   string(cmd.Method),
		"provider": session.Provider,
		"status":   string(session.Status),
		"total":    order.Totals.Total,
	})

	s.publish(ctx, OrderEventPlaced, order)
	switch order.Status {
	case domain.OrderStatusPaid:
		s.publish(ctx, OrderEventPaid, order)
	case domain.OrderStatusPaymentFailed:
		s.publish(ctx, OrderEventPaymentFailed, order)
		return PlaceOrderResult{}, fmt.Errorf("%w: %s", ErrCheckoutPaymentDeclined, session.FailureCode)
	}
	s.clearCart(ctx, cmd.CartID)

	return s.result(ctx, order, warnings)
}

func (s *checkoutService) validateCommand(cmd PlaceOrderCommand) error {
	form := checkoutForm{
		Name:         cmd.Customer.Name,
		Email:        cmd.Customer.Email,
		Document:     cmd.Customer.Document,
		Phone:        cmd.Customer.Phone,
		PostalCode:   cmd.ShippingAddress.PostalCode,
		Street:       cmd.ShippingAddress.Street,
		Number:       cmd.ShippingAddress.Number,
		Neighborhood: cmd.ShippingAddress.Neighborhood,
		City:         cmd.ShippingAddress.City,
		State:        cmd.ShippingAddress.State,
		Method:       string(cmd.Method),
		Installments: cmd.Installments,
		Courtesy:     cmd.Courtesy,
	}
	if err := s.validate.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, fmt.Sprintf("%s:%s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrCheckoutInvalidInput, strings.Join(fields, ","))
		}
		return fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}
	if cmd.Method == domain.PaymentMethodPIX && cmd.Installments > 1 {
		return fmt.Errorf("%w: installments:pix", ErrCheckoutInvalidInput)
	}
	if len(cmd.Items) == 0 && cmd.CartID == "" {
		return fmt.Errorf("%w: items:required", ErrCheckoutInvalidInput)
	}
	for _, item := range cmd.Items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return fmt.Errorf("%w: items:invalid", ErrCheckoutInvalidInput)
		}
	}
	if cmd.Freight != nil && cmd.Freight.Price < 0 {
		return fmt.Errorf("%w: freight:invalid", ErrCheckoutInvalidInput)
	}
	return nil
}

// resolveRequest merges the command with the cart session when the submission references one.
func (s *checkoutService) resolveRequest(ctx context.Context, cmd PlaceOrderCommand) ([]PlaceOrderItem, []string, *domain.FreightOption, error) {
	items := cmd.Items
	coupons := cmd.CouponCodes
	freight := cmd.Freight

	if len(items) > 0 || cmd.CartID == "" {
		return items, coupons, freight, nil
	}
	if s.carts == nil {
		return nil, nil, nil, fmt.Errorf("%w: cart sessions are not configured", ErrCheckoutUnavailable)
	}

	cart, err := s.carts.Snapshot(ctx, cmd.CartID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil, nil, nil, ErrCheckoutCartNotReady
		}
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	if len(cart.Items) == 0 {
		return nil, nil, nil, ErrCheckoutCartNotReady
	}

	items = make([]PlaceOrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, PlaceOrderItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	if len(coupons) == 0 {
		for _, applied := range cart.Coupons {
			coupons = append(coupons, applied.Code)
		}
	}
	if freight == nil && cart.Freight != nil {
		selected := *cart.Freight
		freight = &selected
	}
	return items, coupons, freight, nil
}

// priceLines loads every product so unit prices and stock come from the catalog, never the client.
func (s *checkoutService) priceLines(ctx context.Context, requested []PlaceOrderItem) ([]domain.CartLineItem, error) {
	merged := make(map[string]int, len(requested))
	order := make([]string, 0, len(requested))
	for _, item := range requested {
		if _, ok := merged[item.ProductID]; !ok {
			order = append(order, item.ProductID)
		}
		merged[item.ProductID] += item.Quantity
	}

	lines := make([]domain.CartLineItem, 0, len(order))
	for _, productID := range order {
		quantity := merged[productID]
		product, err := s.products.GetProductByID(ctx, productID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) {
				switch {
				case repoErr.IsNotFound():
					return nil, fmt.Errorf("%w: product %s not found", ErrCheckoutInvalidInput, productID)
				case repoErr.IsUnavailable():
					return nil, fmt.Errorf("%w: catalog unavailable", ErrCheckoutUnavailable)
				}
			}
			return nil, err
		}
		if product.Stock != nil && *product.Stock < quantity {
			return nil, fmt.Errorf("%w: product %s", ErrCheckoutInsufficientStock, productID)
		}
		lines = append(lines, domain.CartLineItem{
			ProductID:     product.ID,
			SKU:           product.SKU,
			Name:          product.Name,
			UnitPrice:     product.Price,
			Quantity:      quantity,
			OriginalPrice: product.OriginalPrice,
			ImageURL:      product.ImageURL,
			Package:       product.Package,
		})
	}
	return lines, nil
}

// confirmFreight re-quotes the destination when a quoter is configured and takes the price from the quote.
func (s *checkoutService) confirmFreight(ctx context.Context, postalCode string, lines []domain.CartLineItem, selected *domain.FreightOption) (*domain.FreightOption, error) {
	if selected == nil || s.freight == nil {
		return selected, nil
	}
	options, err := s.freight.QuoteOptions(ctx, postalCode, lines)
	if err != nil {
		s.logger(ctx, "checkout.freight_requote_failed", map[string]any{
			"postalCode": postalCode,
			"error":      err.Error(),
		})
		return nil, fmt.Errorf("%w: freight quote unavailable", ErrCheckoutUnavailable)
	}
	for _, option := range options {
		if strings.EqualFold(option.ServiceCode, selected.ServiceCode) {
			confirmed := option
			return &confirmed, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCheckoutFreightMismatch, selected.ServiceCode)
}

func (s *checkoutService) failPayment(ctx context.Context, order domain.Order, cause error) error {
	order.Status = domain.OrderStatusPaymentFailed
	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, order); err != nil {
		s.logger(ctx, "checkout.order_update_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
	s.logger(ctx, "checkout.payment_failed", map[string]any{
		"orderId": order.ID,
		"error":   cause.Error(),
	})
	s.publish(ctx, OrderEventPaymentFailed, order)

	switch {
	case errors.Is(cause, payments.ErrPaymentDeclined):
		return fmt.Errorf("%w: %v", ErrCheckoutPaymentDeclined, cause)
	case errors.Is(cause, payments.ErrCardTokenRequired), errors.Is(cause, payments.ErrUnsupportedMethod):
		return fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, cause)
	default:
		return fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, cause)
	}
}

func (s *checkoutService) result(ctx context.Context, order domain.Order, warnings []string) (PlaceOrderResult, error) {
	result := PlaceOrderResult{Order: order, Warnings: warnings}
	if order.Payment != nil {
		result.PaymentLink = order.Payment.PaymentLink
	}
	if s.tokens != nil {
		token, err := s.tokens.Issue(order.ID)
		if err != nil {
			s.logger(ctx, "checkout.token_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		} else {
			result.AccessToken = token
		}
	}
	return result, nil
}

func (s *checkoutService) publish(ctx context.Context, eventType OrderEventType, order domain.Order) {
	if s.events == nil {
		return
	}
	publishOrderEvent(ctx, s.events, s.logger, eventType, order, s.now())
}

func (s *checkoutService) clearCart(ctx context.Context, cartID string) {
	if s.carts == nil || cartID == "" {
		return
	}
	if err := s.carts.Clear(ctx, cartID); err != nil {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
			"cartId": cartID,
			"error":  err.Error(),
		})
	}
}

func (s *checkoutService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	return err
}

func publishOrderEvent(ctx context.Context, publisher OrderEventPublisher, logger func(context.Context, string, map[string]any), eventType OrderEventType, order domain.Order, now time.Time) {
	event := OrderEvent{
		Type:       eventType,
		OrderID:    order.ID,
		Number:     order.Number,
		Status:     string(order.Status),
		Total:      order.Totals.Total,
		Courtesy:   order.Courtesy,
		OccurredAt: now,
	}
	if order.Payment != nil {
		event.Method = string(order.Payment.Method)
	}
	if _, err := publisher.PublishOrderEvent(ctx, event); err != nil {
		logger(ctx, "orders.event_publish_failed", map[string]any{
			"orderId": order.ID,
			"type":    string(eventType),
			"error":   err.Error(),
		})
	}
}

func normalisePlaceOrderCommand(cmd PlaceOrderCommand) PlaceOrderCommand {
	cmd.CartID = strings.TrimSpace(cmd.CartID)
	cmd.Customer.Name = strings.TrimSpace(cmd.Customer.Name)
	cmd.Customer.Email = strings.ToLower(strings.TrimSpace(cmd.Customer.Email))
	cmd.Customer.Document = textutil.Digits(cmd.Customer.Document)
	cmd.Customer.Phone = textutil.Digits(cmd.Customer.Phone)
	cmd.ShippingAddress.PostalCode = textutil.Digits(cmd.ShippingAddress.PostalCode)
	cmd.ShippingAddress.Street = strings.TrimSpace(cmd.ShippingAddress.Street)
	cmd.ShippingAddress.Number = strings.TrimSpace(cmd.ShippingAddress.Number)
	cmd.ShippingAddress.Complement = strings.TrimSpace(cmd.ShippingAddress.Complement)
	cmd.ShippingAddress.Neighborhood = strings.TrimSpace(cmd.ShippingAddress.Neighborhood)
	cmd.ShippingAddress.City = strings.TrimSpace(cmd.ShippingAddress.City)
	cmd.ShippingAddress.State = strings.ToUpper(strings.TrimSpace(cmd.ShippingAddress.State))
	cmd.Method = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(cmd.Method))))
	cmd.CardToken = strings.TrimSpace(cmd.CardToken)
	cmd.IdempotencyKey = strings.TrimSpace(cmd.IdempotencyKey)
	cmd.Metadata = textutil.NormalizeStringMap(cmd.Metadata)
	for i := range cmd.Items {
		cmd.Items[i].ProductID = strings.TrimSpace(cmd.Items[i].ProductID)
	}
	return cmd
}

func buildOrder(cmd PlaceOrderCommand, lines []domain.CartLineItem, priced PriceResult, freight *domain.FreightOption, now time.Time) domain.Order {
	id := newOrderID(now)
	items := make([]domain.OrderLineItem, len(lines))
	for i, line := range lines {
		breakdown := priced.Breakdown.Items[i]
		items[i] = domain.OrderLineItem{
			ProductID: line.ProductID,
			SKU:       line.SKU,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Subtotal:  breakdown.Subtotal,
			Discount:  breakdown.Discount,
			Total:     breakdown.Total,
		}
	}

	metadata := cmd.Metadata
	if cmd.Discount != nil && cmd.Discount.Mode != domain.DiscountNone {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["manual_discount"] = string(cmd.Discount.Mode)
	}

	return domain.Order{
		ID:              id,
		Number:          orderNumber(id, now),
		CartID:          cmd.CartID,
		Status:          domain.OrderStatusPendingPayment,
		Currency:        domain.DefaultCurrency,
		Customer:        cmd.Customer,
		ShippingAddress: cmd.ShippingAddress,
		Items:           items,
		Coupons:         priced.Applied,
		Freight:         freight,
		Totals:          priced.Breakdown.Totals,
		Courtesy:        cmd.Courtesy,
		Metadata:        metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func paymentSessionFromDetails(orderID string, method domain.PaymentMethod, details payments.PaymentDetails, now time.Time) domain.PaymentSession {
	if details.Method != "" {
		method = details.Method
	}
	return domain.PaymentSession{
		OrderID:     orderID,
		Method:      method,
		Provider:    details.Provider,
		IntentID:    details.IntentID,
		Status:      details.Status.DomainStatus(),
		Amount:      details.Amount,
		PIXQRCode:   details.PIXQRCode,
		PIXCopyCode: details.PIXCopyCode,
		PaymentLink: details.RedirectURL,
		ExpiresAt:   details.ExpiresAt,
		FailureCode: details.FailureCode,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newOrderID(now time.Time) string {
	return "ord_" + strings.ToLower(ulid.MustNew(ulid.Timestamp(now), rand.Reader).String())
}

// orderNumber derives the customer facing number, e.g. LC-260301-7ZK2QD.
func orderNumber(id string, now time.Time) string {
	suffix := strings.ToUpper(id)
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return fmt.Sprintf("LC-%s-%s", now.Format("060102"), suffix)
}
