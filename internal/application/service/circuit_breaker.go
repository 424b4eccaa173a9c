package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"embedqueue/internal/application/common/slogger"
	domainerrors "embedqueue/internal/domain/errors/domain"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int32

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns the state name used on health endpoints and in logs.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerSettings configures an EmbeddingCircuitBreaker.
type CircuitBreakerSettings struct {
	// Name identifies the guarded target in errors, logs and metrics.
	Name string
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before a single
	// trial call is allowed through.
	ResetTimeout time.Duration
}

// CircuitBreakerSnapshot is a point-in-time view of breaker state and
// call statistics.
type CircuitBreakerSnapshot struct {
	Name                string
	State               CircuitState
	ConsecutiveFailures int64
	FailureThreshold    int
	OpenedAt            time.Time
	LastStateChange     time.Time
	TotalCalls          int64
	SuccessfulCalls     int64
	FailedCalls         int64
	RejectedCalls       int64
	RateLimitedCalls    int64
	StateTransitions    int64
}

// EmbeddingCircuitBreaker guards the embedding provider call. While CLOSED,
// calls pass through and consecutive failures are counted; reaching the
// threshold opens the circuit. While OPEN, calls are rejected with
// CircuitOpenError without touching the provider; rejections do not count
// toward the failure threshold. After the reset timeout a single trial call
// is admitted (HALF_OPEN); its success closes the circuit, its failure
// reopens it and restarts the timer.
//
// Rate-limited responses are backpressure, not unavailability: they never
// increment the failure counter, and a throttled trial call still closes a
// half-open circuit because the provider demonstrably answered.
type EmbeddingCircuitBreaker struct {
	name             string
	failureThreshold int64
	resetTimeout     time.Duration

	state               int32 // atomic CircuitState
	consecutiveFailures int64 // atomic
	openedAt            int64 // atomic unix nano, 0 while not open
	lastStateChange     int64 // atomic unix nano
	totalCalls          int64 // atomic
	successfulCalls     int64 // atomic
	failedCalls         int64 // atomic
	rejectedCalls       int64 // atomic
	rateLimitedCalls    int64 // atomic
	stateTransitions    int64 // atomic

	mu      sync.Mutex
	logger  *slogger.Logger
	metrics *breakerMetrics
}

// NewEmbeddingCircuitBreaker creates a circuit breaker in the CLOSED state.
func NewEmbeddingCircuitBreaker(settings CircuitBreakerSettings) (*EmbeddingCircuitBreaker, error) {
	if settings.Name == "" {
		settings.Name = "embedding-provider"
	}
	if settings.FailureThreshold < 1 {
		return nil, errors.New("circuit breaker failure threshold must be at least 1")
	}
	if settings.ResetTimeout <= 0 {
		return nil, errors.New("circuit breaker reset timeout must be positive")
	}

	metrics, err := newBreakerMetrics()
	if err != nil {
		return nil, err
	}

	return &EmbeddingCircuitBreaker{
		name:             settings.Name,
		failureThreshold: int64(settings.FailureThreshold),
		resetTimeout:     settings.ResetTimeout,
		state:            int32(CircuitClosed),
		lastStateChange:  time.Now().UnixNano(),
		logger:           slogger.WithComponent("circuit-breaker"),
		metrics:          metrics,
	}, nil
}

// Execute runs fn under circuit breaker protection. When the circuit is
// open (and the reset timeout has not elapsed) fn is never invoked and a
// CircuitOpenError is returned instead.
func (cb *EmbeddingCircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	atomic.AddInt64(&cb.totalCalls, 1)

	if !cb.admit(ctx) {
		atomic.AddInt64(&cb.rejectedCalls, 1)
		cb.metrics.recordRejection(ctx)
		return &domainerrors.CircuitOpenError{Name: cb.name, OpenedAt: cb.OpenedAt()}
	}

	err := fn(ctx)

	var rateLimited *domainerrors.RateLimitedError
	switch {
	case err == nil:
		cb.onSuccess(ctx)
	case errors.As(err, &rateLimited):
		cb.onThrottle(ctx)
	default:
		cb.onFailure(ctx)
	}
	return err
}

// admit decides whether a call may proceed. In HALF_OPEN exactly one caller
// is admitted: the one that wins the OPEN→HALF_OPEN transition.
func (cb *EmbeddingCircuitBreaker) admit(ctx context.Context) bool {
	switch cb.State() {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if !cb.resetTimeoutElapsed() {
			return false
		}
		return cb.transitionToHalfOpen(ctx)
	case CircuitHalfOpen:
		// The trial slot belongs to whichever caller performed the
		// OPEN→HALF_OPEN transition.
		return false
	default:
		return false
	}
}

func (cb *EmbeddingCircuitBreaker) resetTimeoutElapsed() bool {
	openedAt := atomic.LoadInt64(&cb.openedAt)
	if openedAt == 0 {
		return true
	}
	return time.Since(time.Unix(0, openedAt)) >= cb.resetTimeout
}

func (cb *EmbeddingCircuitBreaker) onSuccess(ctx context.Context) {
	atomic.AddInt64(&cb.successfulCalls, 1)
	atomic.StoreInt64(&cb.consecutiveFailures, 0)

	if cb.State() == CircuitHalfOpen {
		cb.transitionToClosed(ctx)
	}
}

// onThrottle records a rate-limited response. Throttling proves the provider
// is reachable, so the failure counter stays untouched and a half-open trial
// that gets throttled still closes the circuit.
func (cb *EmbeddingCircuitBreaker) onThrottle(ctx context.Context) {
	atomic.AddInt64(&cb.rateLimitedCalls, 1)

	if cb.State() == CircuitHalfOpen {
		cb.transitionToClosed(ctx)
	}
}

func (cb *EmbeddingCircuitBreaker) onFailure(ctx context.Context) {
	atomic.AddInt64(&cb.failedCalls, 1)
	failures := atomic.AddInt64(&cb.consecutiveFailures, 1)

	switch cb.State() {
	case CircuitClosed:
		if failures >= cb.failureThreshold {
			cb.transitionToOpen(ctx)
		}
	case CircuitHalfOpen:
		// Trial failed; reopen and restart the timer.
		cb.transitionToOpen(ctx)
	case CircuitOpen:
		// Already open; a straggling in-flight call finished late.
	}
}

// transitionToOpen opens the circuit and records the opening time.
func (cb *EmbeddingCircuitBreaker) transitionToOpen(ctx context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	from := CircuitState(atomic.LoadInt32(&cb.state))
	if atomic.CompareAndSwapInt32(&cb.state, int32(CircuitClosed), int32(CircuitOpen)) ||
		atomic.CompareAndSwapInt32(&cb.state, int32(CircuitHalfOpen), int32(CircuitOpen)) {
		now := time.Now().UnixNano()
		atomic.StoreInt64(&cb.openedAt, now)
		atomic.StoreInt64(&cb.lastStateChange, now)
		atomic.AddInt64(&cb.stateTransitions, 1)

		cb.logger.Warn(ctx, "circuit breaker opened", slogger.Fields{
			"breaker":              cb.name,
			"from_state":           from.String(),
			"consecutive_failures": atomic.LoadInt64(&cb.consecutiveFailures),
			"failure_threshold":    cb.failureThreshold,
			"reset_timeout":        cb.resetTimeout.String(),
		})
		cb.metrics.recordTransition(ctx, from, CircuitOpen)
	}
}

// transitionToHalfOpen admits exactly one trial call: only the caller whose
// CAS moves OPEN→HALF_OPEN gets true.
func (cb *EmbeddingCircuitBreaker) transitionToHalfOpen(ctx context.Context) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !atomic.CompareAndSwapInt32(&cb.state, int32(CircuitOpen), int32(CircuitHalfOpen)) {
		return false
	}
	atomic.StoreInt64(&cb.lastStateChange, time.Now().UnixNano())
	atomic.AddInt64(&cb.stateTransitions, 1)

	cb.logger.Info(ctx, "circuit breaker half-open, admitting trial call", slogger.Fields{
		"breaker": cb.name,
	})
	cb.metrics.recordTransition(ctx, CircuitOpen, CircuitHalfOpen)
	return true
}

func (cb *EmbeddingCircuitBreaker) transitionToClosed(ctx context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if atomic.CompareAndSwapInt32(&cb.state, int32(CircuitHalfOpen), int32(CircuitClosed)) {
		atomic.StoreInt64(&cb.consecutiveFailures, 0)
		atomic.StoreInt64(&cb.openedAt, 0)
		atomic.StoreInt64(&cb.lastStateChange, time.Now().UnixNano())
		atomic.AddInt64(&cb.stateTransitions, 1)

		cb.logger.Info(ctx, "circuit breaker closed after successful trial", slogger.Fields{
			"breaker": cb.name,
		})
		cb.metrics.recordTransition(ctx, CircuitHalfOpen, CircuitClosed)
	}
}

// Reset forces the circuit CLOSED regardless of current state. It is the
// operator escape hatch and is always audited with the acting identity and
// the stated reason.
func (cb *EmbeddingCircuitBreaker) Reset(ctx context.Context, actor, reason string) CircuitState {
	cb.mu.Lock()
	previous := CircuitState(atomic.LoadInt32(&cb.state))
	atomic.StoreInt32(&cb.state, int32(CircuitClosed))
	atomic.StoreInt64(&cb.consecutiveFailures, 0)
	atomic.StoreInt64(&cb.openedAt, 0)
	atomic.StoreInt64(&cb.lastStateChange, time.Now().UnixNano())
	if previous != CircuitClosed {
		atomic.AddInt64(&cb.stateTransitions, 1)
	}
	cb.mu.Unlock()

	cb.logger.Warn(ctx, "circuit breaker manually reset", slogger.Fields{
		"breaker":        cb.name,
		"previous_state": previous.String(),
		"actor":          actor,
		"reason":         reason,
	})
	cb.metrics.recordReset(ctx, actor)
	return previous
}

// State returns the current circuit state.
func (cb *EmbeddingCircuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt32(&cb.state))
}

// Name returns the breaker's target name.
func (cb *EmbeddingCircuitBreaker) Name() string {
	return cb.name
}

// ConsecutiveFailures returns the current consecutive failure count.
func (cb *EmbeddingCircuitBreaker) ConsecutiveFailures() int64 {
	return atomic.LoadInt64(&cb.consecutiveFailures)
}

// OpenedAt returns when the circuit last opened, or the zero time if it is
// not open.
func (cb *EmbeddingCircuitBreaker) OpenedAt() time.Time {
	openedAt := atomic.LoadInt64(&cb.openedAt)
	if openedAt == 0 {
		return time.Time{}
	}
	return time.Unix(0, openedAt)
}

// Snapshot returns current state and call statistics.
func (cb *EmbeddingCircuitBreaker) Snapshot() CircuitBreakerSnapshot {
	return CircuitBreakerSnapshot{
		Name:                cb.name,
		State:               cb.State(),
		ConsecutiveFailures: atomic.LoadInt64(&cb.consecutiveFailures),
		FailureThreshold:    int(cb.failureThreshold),
		OpenedAt:            cb.OpenedAt(),
		LastStateChange:     time.Unix(0, atomic.LoadInt64(&cb.lastStateChange)),
		TotalCalls:          atomic.LoadInt64(&cb.totalCalls),
		SuccessfulCalls:     atomic.LoadInt64(&cb.successfulCalls),
		FailedCalls:         atomic.LoadInt64(&cb.failedCalls),
		RejectedCalls:       atomic.LoadInt64(&cb.rejectedCalls),
		RateLimitedCalls:    atomic.LoadInt64(&cb.rateLimitedCalls),
		StateTransitions:    atomic.LoadInt64(&cb.stateTransitions),
	}
}
