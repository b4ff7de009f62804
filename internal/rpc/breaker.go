package rpc

import (
	"sync"
	"time"
)

// CircuitState is the observable state of a CircuitBreaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker is a rolling-failure guard in front of one RPC pool. Closed is the
// default state; after failureThreshold consecutive failures it opens for
// openDuration. The first call after the open window acts as an implicit
// half-open probe: a success returns to Closed after two consecutive successes
// reset the failure counter, any failure reopens the breaker.
type CircuitBreaker struct {
	failureThreshold int
	openDuration     time.Duration

	mu              sync.Mutex
	state           CircuitState
	consecutiveFail int
	consecutiveOK   int
	openedAt        time.Time
}

// NewCircuitBreaker builds a breaker with the given consecutive-failure threshold
// and open-window duration.
func NewCircuitBreaker(failureThreshold int, openDuration time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if openDuration <= 0 {
		openDuration = 5 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		openDuration:     openDuration,
		state:            StateClosed,
	}
}

// Allow reports whether a call may proceed right now, transitioning Open->HalfOpen
// once the open window has elapsed. It must be paired with a subsequent call to
// RecordSuccess or RecordFailure once the caller knows the outcome.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.openDuration {
			cb.state = StateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess records a successful call outcome.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.consecutiveOK++
		if cb.consecutiveOK >= 2 {
			cb.state = StateClosed
			cb.consecutiveFail = 0
			cb.consecutiveOK = 0
		}
	case StateClosed:
		cb.consecutiveFail = 0
	}
}

// RecordFailure records a failed call outcome, opening the breaker when the
// consecutive-failure threshold is reached (or immediately, on any probe failure
// while half-open).
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.consecutiveOK = 0
		return
	}

	cb.consecutiveFail++
	if cb.consecutiveFail >= cb.failureThreshold {
		cb.state = StateOpen
		cb.openedAt = time.Now()
	}
}

// State returns the current breaker state, for metrics and diagnostics.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// OpenSeconds returns how long the breaker has been continuously open, 0 when not
// open. Backs the cb_open_seconds{pool} gauge.
func (cb *CircuitBreaker) OpenSeconds() float64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return 0
	}
	return time.Since(cb.openedAt).Seconds()
}
