package db

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"receipt-drop/internal/receipts"
)

// CircuitState is the state of a Breaker.
type CircuitState int

const (
	// StateClosed lets calls through.
	StateClosed CircuitState = iota
	// StateOpen fails calls fast.
	StateOpen
	// StateHalfOpen lets a single probe through.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is wrapped in a ConnectivityError while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned while a half-open probe is in flight.
	ErrTooManyRequests = errors.New("too many requests while circuit is half-open")
)

// BreakerStats is a point-in-time snapshot of a Breaker.
type BreakerStats struct {
	State            string    `json:"state"`
	Failures         uint32    `json:"failures"`
	TotalRequests    uint64    `json:"total_requests"`
	SuccessRequests  uint64    `json:"success_requests"`
	FailedRequests   uint64    `json:"failed_requests"`
	RejectedRequests uint64    `json:"rejected_requests"`
	LastFailureTime  time.Time `json:"last_failure_time,omitempty"`
}

// Breaker wraps a Store and stops calling it after maxFailures consecutive
// connectivity failures. After timeout one probe is allowed through; its
// outcome closes or re-opens the circuit. Only connectivity errors count as
// failures, so a missing record or a rejected insert never trips it.
type Breaker struct {
	Store

	mu  sync.Mutex
	log *slog.Logger
	now func() time.Time

	maxFailures uint32
	timeout     time.Duration
	maxHalfOpen uint32

	state            CircuitState
	failures         uint32
	lastFailureTime  time.Time
	halfOpenRequests uint32

	totalRequests    uint64
	successRequests  uint64
	failedRequests   uint64
	rejectedRequests uint64
}

// NewBreaker wraps store. log may be nil.
func NewBreaker(store Store, maxFailures uint32, timeout time.Duration, log *slog.Logger) *Breaker {
	if log == nil {
		log = slog.Default()
	}
	if maxFailures == 0 {
		maxFailures = 1
	}
	return &Breaker{
		Store:       store,
		log:         log,
		now:         time.Now,
		maxFailures: maxFailures,
		timeout:     timeout,
		maxHalfOpen: 1,
		state:       StateClosed,
	}
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailureTime) <= b.timeout {
			b.rejectedRequests++
			return &receipts.ConnectivityError{Err: ErrCircuitOpen}
		}
		b.state = StateHalfOpen
		b.halfOpenRequests = 0
		b.log.Info("circuit_breaker_half_open", "backend", b.Backend(), "timeout_elapsed", b.timeout.String())
		fallthrough
	case StateHalfOpen:
		if b.halfOpenRequests >= b.maxHalfOpen {
			b.rejectedRequests++
			return &receipts.ConnectivityError{Err: ErrTooManyRequests}
		}
		b.halfOpenRequests++
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.halfOpenRequests > 0 {
		b.halfOpenRequests--
	}

	if receipts.KindOf(err) != receipts.KindUnavailable {
		b.successRequests++
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.log.Info("circuit_breaker_closed", "backend", b.Backend(), "reason", "recovery_successful")
		}
		b.failures = 0
		return
	}

	b.failedRequests++
	b.failures++
	b.lastFailureTime = b.now()
	if b.state == StateHalfOpen || (b.failures >= b.maxFailures && b.state != StateOpen) {
		b.state = StateOpen
		b.log.Warn("circuit_breaker_opened", "backend", b.Backend(),
			"failures", b.failures, "max_failures", b.maxFailures, "timeout", b.timeout.String())
	}
}

func (b *Breaker) do(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) Insert(ctx context.Context, r *receipts.Receipt) error {
	return b.do(func() error { return b.Store.Insert(ctx, r) })
}

func (b *Breaker) Get(ctx context.Context, id string) (*receipts.Receipt, error) {
	var out *receipts.Receipt
	err := b.do(func() error {
		var err error
		out, err = b.Store.Get(ctx, id)
		return err
	})
	return out, err
}

func (b *Breaker) List(ctx context.Context, q receipts.ListQuery) ([]receipts.Receipt, error) {
	var out []receipts.Receipt
	err := b.do(func() error {
		var err error
		out, err = b.Store.List(ctx, q)
		return err
	})
	return out, err
}

func (b *Breaker) HasObject(ctx context.Context, key string) (bool, error) {
	var found bool
	err := b.do(func() error {
		var err error
		found, err = b.Store.HasObject(ctx, key)
		return err
	})
	return found, err
}

// Ping always reaches the store so health checks report the real state; a
// successful ping closes an open circuit early.
func (b *Breaker) Ping(ctx context.Context) error {
	err := b.Store.Ping(ctx)
	if err == nil {
		b.mu.Lock()
		if b.state != StateClosed {
			b.state = StateClosed
			b.failures = 0
			b.halfOpenRequests = 0
			b.log.Info("circuit_breaker_closed", "backend", b.Backend(), "reason", "ping_ok")
		}
		b.mu.Unlock()
	}
	return err
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the breaker counters.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:            b.state.String(),
		Failures:         b.failures,
		TotalRequests:    b.totalRequests,
		SuccessRequests:  b.successRequests,
		FailedRequests:   b.failedRequests,
		RejectedRequests: b.rejectedRequests,
		LastFailureTime:  b.lastFailureTime,
	}
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.halfOpenRequests = 0
	b.log.Info("circuit_breaker_reset", "backend", b.Backend())
}
