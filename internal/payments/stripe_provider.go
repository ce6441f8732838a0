package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

// ErrPaymentDeclined is returned when the PSP refuses the charge synchronously.
var ErrPaymentDeclined = errors.New("payments: payment declined")

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	// ReturnURL receives the customer back after a 3-D Secure challenge.
	ReturnURL string
	// PIXExpiry bounds how long a PIX QR code can be paid.
	PIXExpiry time.Duration
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Intents   stripePaymentIntentAPI
}

// StripeProvider implements the Provider interface using Stripe PaymentIntents.
type StripeProvider struct {
	intents   stripePaymentIntentAPI
	account   string
	returnURL string
	pixExpiry time.Duration
	clock     func() time.Time
	logger    StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	pixExpiry := cfg.PIXExpiry
	if pixExpiry <= 0 {
		pixExpiry = 15 * time.Minute
	}

	return &StripeProvider{
		intents:   intents,
		account:   strings.TrimSpace(cfg.AccountID),
		returnURL: strings.TrimSpace(cfg.ReturnURL),
		pixExpiry: pixExpiry,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreatePayment creates and confirms a PaymentIntent for the requested method.
func (p *StripeProvider) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	if req.Amount <= 0 {
		return PaymentDetails{}, fmt.Errorf("stripe: amount must be positive, got %d", req.Amount)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(defaultString(req.Currency, domain.DefaultCurrency))),
		Confirm:  stripe.Bool(true),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}

	metadata := map[string]string{"order_id": req.OrderID}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if req.Installments > 1 {
		metadata["installments"] = strconv.Itoa(req.Installments)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	switch req.Method {
	case domain.PaymentMethodCard:
		token := strings.TrimSpace(req.CardToken)
		if token == "" {
			return PaymentDetails{}, ErrCardTokenRequired
		}
		params.PaymentMethodTypes = stripe.StringSlice([]string{"card"})
		params.PaymentMethod = stripe.String(token)
		if p.returnURL != "" {
			params.ReturnURL = stripe.String(p.returnURL)
		}
	case domain.PaymentMethodPIX:
		params.PaymentMethodTypes = stripe.StringSlice([]string{"pix"})
		params.PaymentMethodData = &stripe.PaymentIntentPaymentMethodDataParams{
			Type: stripe.String("pix"),
			BillingDetails: &stripe.PaymentIntentPaymentMethodDataBillingDetailsParams{
				Name:  stripe.String(req.CustomerName),
				Email: stripe.String(req.CustomerEmail),
			},
		}
	default:
		return PaymentDetails{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, req.Method)
	}

	intent, err := p.intents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			p.logger(ctx, "payments.stripe.intent.declined", map[string]any{
				"orderId": req.OrderID,
				"code":    string(stripeErr.Code),
			})
			return PaymentDetails{}, fmt.Errorf("%w: %s", ErrPaymentDeclined, stripeErr.Msg)
		}
		return PaymentDetails{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"orderId":       req.OrderID,
		"method":        string(req.Method),
		"status":        string(intent.Status),
	})

	details := stripePaymentDetails(intent)
	details.Method = req.Method
	if req.Method == domain.PaymentMethodPIX && details.ExpiresAt == nil {
		expires := p.clock().Add(p.pixExpiry)
		details.ExpiresAt = &expires
	}
	return details, nil
}

// LookupPayment retrieves a Stripe Payment Intent.
func (p *StripeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.intents.Get(req.IntentID, params)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	return stripePaymentDetails(intent), nil
}

func stripePaymentDetails(intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}

	method := domain.PaymentMethodCard
	for _, t := range intent.PaymentMethodTypes {
		if t == "pix" {
			method = domain.PaymentMethodPIX
		}
	}

	status := StatusPending
	failureCode := ""
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusRequiresCapture:
		status = StatusAuthorized
	case stripe.PaymentIntentStatusCanceled:
		status = StatusFailed
		if method == domain.PaymentMethodPIX {
			status = StatusExpired
		}
		failureCode = string(intent.CancellationReason)
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// A confirmed intent falls back to requires_payment_method after a decline.
		if intent.LastPaymentError != nil {
			status = StatusFailed
			failureCode = string(intent.LastPaymentError.Code)
		}
	}

	// Prefer the raw response body: it carries next_action fields the typed struct may not model.
	raw := map[string]any{}
	if intent.LastResponse != nil && len(intent.LastResponse.RawJSON) > 0 {
		_ = json.Unmarshal(intent.LastResponse.RawJSON, &raw)
	}
	if len(raw) == 0 {
		if data, err := json.Marshal(intent); err == nil {
			_ = json.Unmarshal(data, &raw)
		} else {
			raw["payment_intent"] = intent
		}
	}

	details := PaymentDetails{
		Provider:    "stripe",
		IntentID:    intent.ID,
		Method:      method,
		Status:      status,
		Amount:      intent.Amount,
		Currency:    strings.ToUpper(string(intent.Currency)),
		FailureCode: failureCode,
		Raw:         raw,
	}

	if next, ok := raw["next_action"].(map[string]any); ok {
		if pix, ok := next["pix_display_qr_code"].(map[string]any); ok {
			details.PIXCopyCode, _ = pix["data"].(string)
			details.PIXQRCode, _ = pix["image_url_png"].(string)
			if details.RedirectURL == "" {
				details.RedirectURL, _ = pix["hosted_instructions_url"].(string)
			}
			if exp, ok := pix["expires_at"].(float64); ok && exp > 0 {
				t := time.Unix(int64(exp), 0).UTC()
				details.ExpiresAt = &t
			}
		}
		if redirect, ok := next["redirect_to_url"].(map[string]any); ok {
			details.RedirectURL, _ = redirect["url"].(string)
		}
	}

	return details
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
