package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

const pollerMetricNamespace = "github.com/spikeboom/love-cosmetics-website-sub000/internal/payments"

// PollState enumerates the poller lifecycle.
type PollState string

const (
	PollIdle      PollState = "idle"
	PollPolling   PollState = "polling"
	PollSucceeded PollState = "succeeded"
	PollFailed    PollState = "failed"
	PollTimedOut  PollState = "timed_out"
	// PollStopped is reached through Stop before any terminal status was observed.
	PollStopped PollState = "stopped"
)

// Terminal reports whether the state ends the polling loop.
func (s PollState) Terminal() bool {
	switch s {
	case PollSucceeded, PollFailed, PollTimedOut, PollStopped:
		return true
	default:
		return false
	}
}

var (
	// ErrPollTimeout is delivered to the failure callback when the payment was not confirmed in time.
	ErrPollTimeout = errors.New("payments: payment confirmation timed out")
	// ErrPollPaymentFailed is delivered to the failure callback when the backend reports a failed payment.
	ErrPollPaymentFailed = errors.New("payments: payment was not approved")
	// ErrPollerStopped is returned by Wait when the poller was stopped explicitly.
	ErrPollerStopped = errors.New("payments: poller stopped")
	// ErrPollerStarted is returned when Start is called more than once.
	ErrPollerStarted = errors.New("payments: poller already started")
)

// Default polling cadence per payment method.
const (
	CardPollInterval = 3 * time.Second
	CardPollTimeout  = 2 * time.Minute
	PIXPollInterval  = 5 * time.Second
	PIXPollTimeout   = 15 * time.Minute
)

// DefaultPollTiming returns the interval and timeout used for a payment method.
func DefaultPollTiming(method domain.PaymentMethod) (time.Duration, time.Duration) {
	if method == domain.PaymentMethodPIX {
		return PIXPollInterval, PIXPollTimeout
	}
	return CardPollInterval, CardPollTimeout
}

var (
	pollSuccessStatuses = map[string]struct{}{"PAID": {}, "AUTHORIZED": {}}
	pollFailureStatuses = map[string]struct{}{"FAILED": {}, "EXPIRED": {}, "CANCELED": {}, "CANCELLED": {}}
)

// StatusSource returns the payment status the backend currently reports for an order.
type StatusSource interface {
	PaymentStatus(ctx context.Context, orderID string) (string, error)
}

// PollerConfig configures a Poller. Zero Interval/Timeout fall back to DefaultPollTiming.
type PollerConfig struct {
	Source    StatusSource
	OrderID   string
	Method    domain.PaymentMethod
	Interval  time.Duration
	Timeout   time.Duration
	OnSuccess func(status string)
	OnFailure func(err error)
	Logger    func(ctx context.Context, event string, fields map[string]any)
	Meter     metric.Meter
}

// Poller watches an order until its payment reaches a terminal status or the timeout elapses.
type Poller struct {
	source    StatusSource
	orderID   string
	method    domain.PaymentMethod
	interval  time.Duration
	timeout   time.Duration
	onSuccess func(string)
	onFailure func(error)
	logger    func(context.Context, string, map[string]any)

	outcomes        metric.Int64Counter
	outcomesEnabled bool

	mu       sync.Mutex
	state    PollState
	err      error
	status   string
	requests int
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPoller validates the configuration and returns an idle poller.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.Source == nil {
		return nil, errors.New("poller: status source is required")
	}
	orderID := strings.TrimSpace(cfg.OrderID)
	if orderID == "" {
		return nil, errors.New("poller: order id is required")
	}

	interval, timeout := DefaultPollTiming(cfg.Method)
	if cfg.Interval > 0 {
		interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	onSuccess := cfg.OnSuccess
	if onSuccess == nil {
		onSuccess = func(string) {}
	}
	onFailure := cfg.OnFailure
	if onFailure == nil {
		onFailure = func(error) {}
	}

	meter := cfg.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(pollerMetricNamespace)
	}
	outcomes, err := meter.Int64Counter(
		"payments.poll.outcomes",
		metric.WithDescription("Count of payment polls by terminal outcome"),
	)

	return &Poller{
		source:          cfg.Source,
		orderID:         orderID,
		method:          cfg.Method,
		interval:        interval,
		timeout:         timeout,
		onSuccess:       onSuccess,
		onFailure:       onFailure,
		logger:          logger,
		outcomes:        outcomes,
		outcomesEnabled: err == nil,
		state:           PollIdle,
	}, nil
}

// Start begins polling in a background goroutine. The first check runs one interval after Start.
func (p *Poller) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	if p.state != PollIdle {
		p.mu.Unlock()
		return ErrPollerStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.state = PollPolling
	p.cancel = cancel
	p.done = make(chan struct{})
	deadline := time.Now().Add(p.timeout)
	done := p.done
	p.mu.Unlock()

	p.logger(ctx, "payments.poll.started", map[string]any{
		"orderId":  p.orderID,
		"method":   string(p.method),
		"interval": p.interval.String(),
		"timeout":  p.timeout.String(),
	})

	go p.run(loopCtx, deadline, done)
	return nil
}

// Stop cancels the next scheduled check. Checks that complete after Stop never reach a callback.
// Safe to call repeatedly.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state == PollPolling {
		p.state = PollStopped
		p.err = ErrPollerStopped
	}
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// State reports the current lifecycle state.
func (p *Poller) State() PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Requests reports how many status checks were issued.
func (p *Poller) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

// Wait blocks until the poller reaches a terminal state or ctx is done. It returns the
// final state together with the error handed to the failure callback, if any.
func (p *Poller) Wait(ctx context.Context) (PollState, error) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return PollIdle, errors.New("poller: not started")
	}

	select {
	case <-done:
	case <-ctx.Done():
		return p.State(), ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.err
}

func (p *Poller) run(ctx context.Context, deadline time.Time, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Stop()
			return
		case <-timer.C:
			p.finish(ctx, PollTimedOut, "", fmt.Errorf("%w after %s", ErrPollTimeout, p.timeout))
			return
		case <-ticker.C:
			if time.Now().After(deadline) {
				p.finish(ctx, PollTimedOut, "", fmt.Errorf("%w after %s", ErrPollTimeout, p.timeout))
				return
			}
			if p.check(ctx, deadline) {
				return
			}
		}
	}
}

// check issues one status request and reports whether polling is over.
func (p *Poller) check(ctx context.Context, deadline time.Time) bool {
	p.mu.Lock()
	if p.state != PollPolling {
		p.mu.Unlock()
		return true
	}
	p.requests++
	attempt := p.requests
	p.mu.Unlock()

	reqCtx, cancel := context.WithDeadline(ctx, deadline)
	raw, err := p.source.PaymentStatus(reqCtx, p.orderID)
	cancel()

	if ctx.Err() != nil {
		p.Stop()
		return true
	}
	if err != nil {
		p.logger(ctx, "payments.poll.error", map[string]any{
			"orderId": p.orderID,
			"attempt": attempt,
			"error":   err.Error(),
		})
		return false
	}

	status := strings.ToUpper(strings.TrimSpace(raw))
	if _, ok := pollSuccessStatuses[status]; ok {
		return p.finish(ctx, PollSucceeded, status, nil)
	}
	if _, ok := pollFailureStatuses[status]; ok {
		return p.finish(ctx, PollFailed, status, fmt.Errorf("%w: status %s", ErrPollPaymentFailed, status))
	}
	return false
}

// finish moves the poller into a terminal state and fires the matching callback once.
func (p *Poller) finish(ctx context.Context, state PollState, status string, err error) bool {
	p.mu.Lock()
	if p.state != PollPolling {
		p.mu.Unlock()
		return true
	}
	p.state = state
	p.status = status
	p.err = err
	attempts := p.requests
	p.mu.Unlock()

	p.logger(ctx, "payments.poll.finished", map[string]any{
		"orderId":  p.orderID,
		"state":    string(state),
		"status":   status,
		"attempts": attempts,
	})
	if p.outcomesEnabled {
		p.outcomes.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
			attribute.String("outcome", string(state)),
			attribute.String("method", string(p.method)),
		))
	}

	if state == PollSucceeded {
		p.onSuccess(status)
	} else {
		p.onFailure(err)
	}
	return true
}
