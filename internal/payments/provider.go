// Package payments charges orders through a payment service provider (Stripe, or the sandbox
// outside production) and normalises what the provider reports.
package payments

import (
	"context"
	"errors"
	"time"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

// Status is a provider state reduced to what checkout cares about.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSucceeded  Status = "succeeded"
	StatusAuthorized Status = "authorized" // card held, not captured
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired" // PIX charge not paid in time
)

var toDomain = map[Status]domain.PaymentStatus{
	StatusSucceeded:  domain.PaymentStatusPaid,
	StatusAuthorized: domain.PaymentStatusAuthorized,
	StatusFailed:     domain.PaymentStatusFailed,
	StatusExpired:    domain.PaymentStatusExpired,
}

// DomainStatus is the order payment status for s. Unknown states count as pending.
func (s Status) DomainStatus() domain.PaymentStatus {
	if st, ok := toDomain[s]; ok {
		return st
	}
	return domain.PaymentStatusPending
}

var (
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	ErrUnsupportedMethod   = errors.New("payments: unsupported payment method")
	// ErrCardTokenRequired means a card charge arrived without the browser tokenised card.
	ErrCardTokenRequired = errors.New("payments: card token is required")
)

// PaymentRequest is one charge. Amount is in centavos.
type PaymentRequest struct {
	OrderID          string
	Method           domain.PaymentMethod
	Amount           int64
	Currency         string
	CardToken        string
	Installments     int
	CustomerName     string
	CustomerEmail    string
	CustomerDocument string
	Description      string
	Metadata         map[string]string
	IdempotencyKey   string
}

type LookupRequest struct {
	IntentID string
}

// PaymentDetails is what a provider reports about a charge. PIX fields are set only for PIX.
type PaymentDetails struct {
	Provider    string
	IntentID    string
	Method      domain.PaymentMethod
	Status      Status
	Amount      int64
	Currency    string
	PIXQRCode   string
	PIXCopyCode string
	RedirectURL string
	ExpiresAt   *time.Time
	FailureCode string
	Raw         map[string]any
}

// Provider is implemented by each PSP adapter.
type Provider interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (PaymentDetails, error)
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}
