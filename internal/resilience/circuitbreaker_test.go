package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterFailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker("svc", CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour})
	wantErr := errors.New("boom")

	assert.Error(t, cb.Execute(context.Background(), func() error { return wantErr }))
	assert.Equal(t, CircuitClosed, cb.State())

	assert.Error(t, cb.Execute(context.Background(), func() error { return wantErr }))
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_RejectsRequestsWhileOpen(t *testing.T) {
	cb := NewCircuitBreaker("svc", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour})
	cb.Execute(context.Background(), func() error { return errors.New("boom") })
	require.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_TransitionsToHalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker("svc", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Millisecond})
	cb.Execute(context.Background(), func() error { return errors.New("boom") })
	require.Equal(t, CircuitOpen, cb.State())

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopensCircuit(t *testing.T) {
	cb := NewCircuitBreaker("svc", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond})
	cb.Execute(context.Background(), func() error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)

	cb.Execute(context.Background(), func() error { return errors.New("still broken") })
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenNeedsSuccessThresholdToClose(t *testing.T) {
	cb := NewCircuitBreaker("svc", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond})
	cb.Execute(context.Background(), func() error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_RejectsBeyondMaxConcurrent(t *testing.T) {
	cb := NewCircuitBreaker("svc", CircuitBreakerConfig{FailureThreshold: 10, SuccessThreshold: 1, Timeout: time.Hour, MaxConcurrent: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	go cb.Execute(context.Background(), func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrTooManyConcurrent)
	close(release)
}

func TestCircuitBreaker_ContextCancellationCountsAsFailure(t *testing.T) {
	cb := NewCircuitBreaker("svc", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	err := cb.Execute(ctx, func() error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	assert.Error(t, err)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, int64(1), cb.Stats().TotalTimeouts)
}

func TestExecuteWithResult_ReturnsFnResultOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("svc", DefaultCircuitBreakerConfig())
	v, err := ExecuteWithResult(cb, context.Background(), func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCircuitBreaker_ResetReturnsToClosed(t *testing.T) {
	cb := NewCircuitBreaker("svc", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour})
	cb.Execute(context.Background(), func() error { return errors.New("boom") })
	require.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerStats_FailureRate(t *testing.T) {
	stats := CircuitBreakerStats{TotalRequests: 4, TotalFailures: 1}
	assert.Equal(t, 25.0, stats.FailureRate())

	empty := CircuitBreakerStats{}
	assert.Equal(t, 0.0, empty.FailureRate())
}

func TestCircuitBreakerRegistry_GetReturnsSameInstanceForSameName(t *testing.T) {
	reg := NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig())
	a := reg.Get("llm")
	b := reg.Get("llm")
	assert.Same(t, a, b)
}

func TestCircuitBreakerRegistry_GetWithConfigUsesCustomConfigOnlyOnFirstCall(t *testing.T) {
	reg := NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig())
	custom := CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour}
	cb := reg.GetWithConfig("store", custom)

	cb.Execute(context.Background(), func() error { return errors.New("boom") })
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreakerRegistry_AllStatsReturnsOneEntryPerBreaker(t *testing.T) {
	reg := NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig())
	reg.Get("llm")
	reg.Get("store")

	stats := reg.AllStats()
	assert.Len(t, stats, 2)
}

func TestCircuitBreakerRegistry_ResetAllClosesEveryBreaker(t *testing.T) {
	reg := NewCircuitBreakerRegistry(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour})
	cb := reg.Get("llm")
	cb.Execute(context.Background(), func() error { return errors.New("boom") })
	require.Equal(t, CircuitOpen, cb.State())

	reg.ResetAll()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestRetryWithBackoff_StopsOnContextCancellation(t *testing.T) {
	r := RetryWithBackoff{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Execute(ctx, func() error { return errors.New("boom") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithBackoff_SucceedsAfterRetrying(t *testing.T) {
	r := RetryWithBackoff{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
	calls := 0
	err := r.Execute(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestExecuteWithFallback_ReturnsFallbackOnError(t *testing.T) {
	v := ExecuteWithFallback(context.Background(), func() (int, error) { return 0, errors.New("boom") }, 99)
	assert.Equal(t, 99, v)
}

func TestExecuteWithFallback_ReturnsFnResultOnSuccess(t *testing.T) {
	v := ExecuteWithFallback(context.Background(), func() (int, error) { return 5, nil }, 99)
	assert.Equal(t, 5, v)
}

func TestGracefulDegrader_SetAndGetFallback(t *testing.T) {
	d := NewGracefulDegrader()
	_, ok := d.GetFallback("missing")
	assert.False(t, ok)

	d.SetFallback("price", 100.0)
	v, ok := d.GetFallback("price")
	require.True(t, ok)
	assert.Equal(t, 100.0, v)
}

func TestServiceMonitor_TracksAvailability(t *testing.T) {
	m := NewServiceMonitor()
	assert.False(t, m.IsAvailable("llm"))
	assert.Nil(t, m.GetStatus("llm"))

	m.UpdateStatus("llm", true, 10*time.Millisecond, nil)
	assert.True(t, m.IsAvailable("llm"))
	require.NotNil(t, m.GetStatus("llm"))
	assert.Equal(t, "llm", m.GetStatus("llm").Name)

	m.UpdateStatus("llm", false, 0, errors.New("timeout"))
	assert.False(t, m.IsAvailable("llm"))
	assert.Len(t, m.AllStatuses(), 1)
}
