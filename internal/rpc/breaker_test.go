package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Hour)
	require.Equal(t, StateClosed, cb.State())

	cb.RecordFailure()
	cb.RecordFailure()
	require.True(t, cb.Allow(), "still closed before the threshold is reached")
	cb.RecordFailure()

	require.Equal(t, StateOpen, cb.State())
	require.False(t, cb.Allow(), "the (N+1)-th call must be rejected immediately")
}

func TestBreakerHalfOpenRequiresTwoSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	require.True(t, cb.Allow(), "probe allowed after the open window elapses")
	require.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	require.Equal(t, StateHalfOpen, cb.State(), "one success is not enough to close")

	cb.RecordSuccess()
	require.Equal(t, StateClosed, cb.State())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	require.True(t, cb.Allow())

	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())
	require.False(t, cb.Allow())
}

func TestBreakerOpenSecondsZeroWhenClosed(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Second)
	require.Equal(t, float64(0), cb.OpenSeconds())
}

func TestBreakerOpenSecondsPositiveWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	cb.RecordFailure()
	require.Greater(t, cb.OpenSeconds(), float64(0))
	require.GreaterOrEqual(t, cb.OpenSeconds(), float64(0))
}
