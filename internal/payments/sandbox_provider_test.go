package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

func TestSandboxCardOutcomes(t *testing.T) {
	ctx := context.Background()
	p := NewSandboxProvider()

	paid, err := p.CreatePayment(ctx, PaymentRequest{OrderID: "ord_1", Method: domain.PaymentMethodCard, Amount: 1000, CardToken: "tok_ok"})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, paid.Status)
	assert.Equal(t, "BRL", paid.Currency)

	authorized, err := p.CreatePayment(ctx, PaymentRequest{OrderID: "ord_2", Method: domain.PaymentMethodCard, Amount: 1000, CardToken: SandboxCardAuthorized})
	require.NoError(t, err)
	assert.Equal(t, StatusAuthorized, authorized.Status)

	_, err = p.CreatePayment(ctx, PaymentRequest{OrderID: "ord_3", Method: domain.PaymentMethodCard, Amount: 1000, CardToken: SandboxCardDeclined})
	assert.ErrorIs(t, err, ErrPaymentDeclined)

	_, err = p.CreatePayment(ctx, PaymentRequest{OrderID: "ord_4", Method: domain.PaymentMethodCard, Amount: 1000})
	assert.ErrorIs(t, err, ErrCardTokenRequired)
}

func TestSandboxPIXSettlesAfterDelay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewSandboxProvider(
		WithSandboxClock(func() time.Time { return now }),
		WithPIXSettleAfter(30*time.Second),
	)

	created, err := p.CreatePayment(ctx, PaymentRequest{OrderID: "ord_1", Method: domain.PaymentMethodPIX, Amount: 19498})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, created.Status)
	assert.NotEmpty(t, created.PIXCopyCode)
	assert.Contains(t, created.PIXCopyCode, "194.98")
	require.NotNil(t, created.ExpiresAt)

	looked, err := p.LookupPayment(ctx, LookupRequest{IntentID: created.IntentID})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, looked.Status)

	now = now.Add(31 * time.Second)
	looked, err = p.LookupPayment(ctx, LookupRequest{IntentID: created.IntentID})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, looked.Status)
}

func TestSandboxPIXExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewSandboxProvider(
		WithSandboxClock(func() time.Time { return now }),
		WithPIXSettleAfter(0),
	)

	created, err := p.CreatePayment(ctx, PaymentRequest{OrderID: "ord_1", Method: domain.PaymentMethodPIX, Amount: 500})
	require.NoError(t, err)

	now = now.Add(PIXPollTimeout)
	looked, err := p.LookupPayment(ctx, LookupRequest{IntentID: created.IntentID})
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, looked.Status)
}

func TestSandboxMarkStatusAndUnknownIntent(t *testing.T) {
	ctx := context.Background()
	p := NewSandboxProvider(WithPIXSettleAfter(0))

	created, err := p.CreatePayment(ctx, PaymentRequest{OrderID: "ord_1", Method: domain.PaymentMethodPIX, Amount: 500})
	require.NoError(t, err)
	require.NoError(t, p.MarkStatus(created.IntentID, StatusFailed))

	looked, err := p.LookupPayment(ctx, LookupRequest{IntentID: created.IntentID})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, looked.Status)

	_, err = p.LookupPayment(ctx, LookupRequest{IntentID: "sbx_missing"})
	assert.ErrorIs(t, err, ErrSandboxIntentNotFound)
	assert.ErrorIs(t, p.MarkStatus("sbx_missing", StatusFailed), ErrSandboxIntentNotFound)
}
