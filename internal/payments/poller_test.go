package payments

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

type scriptedSource struct {
	mu       sync.Mutex
	statuses []string
	errs     []error
	calls    atomic.Int32
}

func (s *scriptedSource) PaymentStatus(ctx context.Context, orderID string) (string, error) {
	n := int(s.calls.Add(1)) - 1
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if n < len(s.errs) {
		err = s.errs[n]
	}
	if err != nil {
		return "", err
	}
	if len(s.statuses) == 0 {
		return "PENDING", nil
	}
	if n >= len(s.statuses) {
		return s.statuses[len(s.statuses)-1], nil
	}
	return s.statuses[n], nil
}

type callbackRecorder struct {
	successes atomic.Int32
	failures  atomic.Int32
	mu        sync.Mutex
	status    string
	err       error
}

func (r *callbackRecorder) success(status string) {
	r.successes.Add(1)
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
}

func (r *callbackRecorder) failure(err error) {
	r.failures.Add(1)
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func newTestPoller(t *testing.T, source StatusSource, rec *callbackRecorder, interval, timeout time.Duration) *Poller {
	t.Helper()
	p, err := NewPoller(PollerConfig{
		Source:    source,
		OrderID:   "ord_1",
		Method:    domain.PaymentMethodCard,
		Interval:  interval,
		Timeout:   timeout,
		OnSuccess: rec.success,
		OnFailure: rec.failure,
	})
	require.NoError(t, err)
	return p
}

func TestPollerStopsAfterSuccess(t *testing.T) {
	source := &scriptedSource{statuses: []string{"pending", "PENDING", "paid"}}
	rec := &callbackRecorder{}
	p := newTestPoller(t, source, rec, 5*time.Millisecond, time.Second)

	require.NoError(t, p.Start(context.Background()))
	state, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollSucceeded, state)
	assert.Equal(t, int32(1), rec.successes.Load())
	assert.Equal(t, int32(0), rec.failures.Load())
	assert.Equal(t, "PAID", rec.status)

	calls := source.calls.Load()
	assert.Equal(t, int32(3), calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, source.calls.Load(), "no requests after success")
}

func TestPollerAuthorizedIsSuccess(t *testing.T) {
	source := &scriptedSource{statuses: []string{"Authorized"}}
	rec := &callbackRecorder{}
	p := newTestPoller(t, source, rec, 5*time.Millisecond, time.Second)

	require.NoError(t, p.Start(context.Background()))
	state, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollSucceeded, state)
	assert.Equal(t, "AUTHORIZED", rec.status)
}

func TestPollerFailureStatuses(t *testing.T) {
	for _, status := range []string{"FAILED", "expired", "Canceled"} {
		t.Run(status, func(t *testing.T) {
			source := &scriptedSource{statuses: []string{status}}
			rec := &callbackRecorder{}
			p := newTestPoller(t, source, rec, 5*time.Millisecond, time.Second)

			require.NoError(t, p.Start(context.Background()))
			state, err := p.Wait(context.Background())
			assert.Equal(t, PollFailed, state)
			assert.ErrorIs(t, err, ErrPollPaymentFailed)
			assert.Equal(t, int32(1), rec.failures.Load())
			assert.Equal(t, int32(0), rec.successes.Load())
			assert.False(t, errors.Is(rec.err, ErrPollTimeout))
		})
	}
}

func TestPollerTimeoutFiresOnceAndStopsRequests(t *testing.T) {
	source := &scriptedSource{}
	rec := &callbackRecorder{}
	p := newTestPoller(t, source, rec, 5*time.Millisecond, 40*time.Millisecond)

	require.NoError(t, p.Start(context.Background()))
	state, err := p.Wait(context.Background())
	assert.Equal(t, PollTimedOut, state)
	assert.ErrorIs(t, err, ErrPollTimeout)

	calls := source.calls.Load()
	assert.Greater(t, calls, int32(0))
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, calls, source.calls.Load(), "no requests after timeout")
	assert.Equal(t, int32(1), rec.failures.Load())
	assert.Equal(t, int32(0), rec.successes.Load())
	assert.ErrorIs(t, rec.err, ErrPollTimeout)
}

func TestPollerNetworkErrorsAreNotTerminal(t *testing.T) {
	boom := errors.New("connection reset")
	source := &scriptedSource{
		errs:     []error{boom, boom},
		statuses: []string{"", "", "PAID"},
	}
	rec := &callbackRecorder{}
	var logged atomic.Int32
	p, err := NewPoller(PollerConfig{
		Source:    source,
		OrderID:   "ord_1",
		Interval:  5 * time.Millisecond,
		Timeout:   time.Second,
		OnSuccess: rec.success,
		OnFailure: rec.failure,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			if event == "payments.poll.error" {
				logged.Add(1)
			}
		},
	})
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	state, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollSucceeded, state)
	assert.Equal(t, int32(2), logged.Load())
	assert.Equal(t, int32(0), rec.failures.Load())
}

func TestPollerStopCancelsWithoutCallback(t *testing.T) {
	source := &scriptedSource{}
	rec := &callbackRecorder{}
	p := newTestPoller(t, source, rec, 5*time.Millisecond, time.Second)

	require.NoError(t, p.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	p.Stop()
	p.Stop()

	state, err := p.Wait(context.Background())
	assert.Equal(t, PollStopped, state)
	assert.ErrorIs(t, err, ErrPollerStopped)

	calls := source.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, source.calls.Load())
	assert.Equal(t, int32(0), rec.successes.Load())
	assert.Equal(t, int32(0), rec.failures.Load())
}

func TestPollerStartTwice(t *testing.T) {
	p := newTestPoller(t, &scriptedSource{}, &callbackRecorder{}, 5*time.Millisecond, time.Second)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()
	assert.ErrorIs(t, p.Start(context.Background()), ErrPollerStarted)
}

func TestNewPollerDefaults(t *testing.T) {
	p, err := NewPoller(PollerConfig{Source: &scriptedSource{}, OrderID: "ord", Method: domain.PaymentMethodPIX})
	require.NoError(t, err)
	assert.Equal(t, PIXPollInterval, p.interval)
	assert.Equal(t, PIXPollTimeout, p.timeout)
	assert.Equal(t, PollIdle, p.State())

	_, err = NewPoller(PollerConfig{OrderID: "ord"})
	assert.Error(t, err)
	_, err = NewPoller(PollerConfig{Source: &scriptedSource{}})
	assert.Error(t, err)

	interval, timeout := DefaultPollTiming(domain.PaymentMethodCard)
	assert.Equal(t, 3*time.Second, interval)
	assert.Equal(t, 2*time.Minute, timeout)
}
