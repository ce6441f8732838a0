package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

// Card tokens understood by the sandbox provider.
const (
	SandboxCardDeclined   = "tok_sandbox_declined"
	SandboxCardAuthorized = "tok_sandbox_authorized"
)

// ErrSandboxIntentNotFound is returned when looking up an intent the sandbox never issued.
var ErrSandboxIntentNotFound = errors.New("payments: sandbox intent not found")

// SandboxProvider is an in-memory provider for local development and tests. Card payments settle
// immediately; PIX payments stay pending until the WithPIXSettleAfter delay has elapsed since creation.
type SandboxProvider struct {
	mu      sync.Mutex
	intents map[string]PaymentDetails
	created map[string]time.Time
	clock   func() time.Time
	settle  time.Duration
	expiry  time.Duration
}

// SandboxOption customises the sandbox provider.
type SandboxOption func(*SandboxProvider)

// WithSandboxClock overrides the clock used to settle PIX payments.
func WithSandboxClock(clock func() time.Time) SandboxOption {
	return func(p *SandboxProvider) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithPIXSettleAfter controls how long sandbox PIX charges remain pending. Zero keeps them pending
// until they expire.
func WithPIXSettleAfter(d time.Duration) SandboxOption {
	return func(p *SandboxProvider) {
		p.settle = d
	}
}

// NewSandboxProvider builds a sandbox provider.
func NewSandboxProvider(opts ...SandboxOption) *SandboxProvider {
	p := &SandboxProvider{
		intents: make(map[string]PaymentDetails),
		created: make(map[string]time.Time),
		clock:   time.Now,
		settle:  10 * time.Second,
		expiry:  PIXPollTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// CreatePayment records a fake intent for the request.
func (p *SandboxProvider) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentDetails, error) {
	if err := ctx.Err(); err != nil {
		return PaymentDetails{}, err
	}
	if req.Amount <= 0 {
		return PaymentDetails{}, fmt.Errorf("sandbox: amount must be positive, got %d", req.Amount)
	}

	now := p.clock().UTC()
	details := PaymentDetails{
		Provider: "sandbox",
		IntentID: "sbx_" + strings.ToLower(ulid.Make().String()),
		Method:   req.Method,
		Amount:   req.Amount,
		Currency: strings.ToUpper(defaultString(req.Currency, domain.DefaultCurrency)),
		Raw:      map[string]any{"order_id": req.OrderID},
	}

	switch req.Method {
	case domain.PaymentMethodCard:
		token := strings.TrimSpace(req.CardToken)
		switch token {
		case "":
			return PaymentDetails{}, ErrCardTokenRequired
		case SandboxCardDeclined:
			return PaymentDetails{}, fmt.Errorf("%w: card_declined", ErrPaymentDeclined)
		case SandboxCardAuthorized:
			details.Status = StatusAuthorized
		default:
			details.Status = StatusSucceeded
		}
	case domain.PaymentMethodPIX:
		expires := now.Add(p.expiry)
		details.Status = StatusPending
		details.PIXCopyCode = sandboxPIXCode(req.OrderID, req.Amount)
		details.PIXQRCode = "https://sandbox.invalid/pix/" + details.IntentID + ".png"
		details.ExpiresAt = &expires
	default:
		return PaymentDetails{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, req.Method)
	}

	p.mu.Lock()
	p.intents[details.IntentID] = details
	p.created[details.IntentID] = now
	p.mu.Unlock()

	return details, nil
}

// LookupPayment returns the stored intent, settling or expiring PIX charges as time passes.
func (p *SandboxProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if err := ctx.Err(); err != nil {
		return PaymentDetails{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	details, ok := p.intents[req.IntentID]
	if !ok {
		return PaymentDetails{}, fmt.Errorf("%w: %s", ErrSandboxIntentNotFound, req.IntentID)
	}
	if details.Method == domain.PaymentMethodPIX && details.Status == StatusPending {
		now := p.clock().UTC()
		switch {
		case details.ExpiresAt != nil && !now.Before(*details.ExpiresAt):
			details.Status = StatusExpired
		case p.settle > 0 && now.Sub(p.created[req.IntentID]) >= p.settle:
			details.Status = StatusSucceeded
		}
		p.intents[req.IntentID] = details
	}
	return details, nil
}

// MarkStatus forces an intent into the given status.
func (p *SandboxProvider) MarkStatus(intentID string, status Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	details, ok := p.intents[intentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSandboxIntentNotFound, intentID)
	}
	details.Status = status
	p.intents[intentID] = details
	return nil
}

func sandboxPIXCode(orderID string, amount int64) string {
	return fmt.Sprintf("00020126580014BR.GOV.BCB.PIX0136sandbox-%s5204000053039865406%d.%02d5802BR6304", orderID, amount/100, amount%100)
}
