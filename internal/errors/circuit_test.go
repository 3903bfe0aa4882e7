package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker("primary")

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
	assert.Zero(t, cb.Cooldown())
}

func TestCircuitBreaker_OpensAtFailureThreshold(t *testing.T) {
	// Given: a breaker that tolerates two failures
	cb := NewCircuitBreaker("primary", WithMaxFailures(2), WithResetTimeout(time.Minute))

	// When: the backend fails twice
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	cb.RecordFailure()

	// Then: the circuit is open and requests are blocked
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
	assert.Positive(t, cb.Cooldown())
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("primary", WithMaxFailures(3))

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	// Two failures after the reset: still under the threshold.
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 2, cb.Failures())
}

func TestCircuitBreaker_HalfOpenAfterCooldown(t *testing.T) {
	// Given: an open circuit with a short cool-down
	cb := NewCircuitBreaker("primary", WithMaxFailures(1), WithResetTimeout(10*time.Millisecond))
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	// When: the cool-down elapses
	time.Sleep(15 * time.Millisecond)

	// Then: a probe is allowed
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.Allow())
	assert.Zero(t, cb.Cooldown())
}

func TestCircuitBreaker_Execute_BlocksWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker("primary", WithMaxFailures(1), WithResetTimeout(time.Minute))
	cb.RecordFailure()

	calls := 0
	err := cb.Execute(func() error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)
}

func TestCircuitBreaker_Execute_RecordsOutcomes(t *testing.T) {
	cb := NewCircuitBreaker("primary", WithMaxFailures(2))

	require.Error(t, cb.Execute(func() error { return errors.New("boom") }))
	assert.Equal(t, 1, cb.Failures())

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Zero(t, cb.Failures())
}

func TestCircuitDo_FailedProbeReopensCircuit(t *testing.T) {
	// Given: an open circuit whose cool-down has elapsed
	cb := NewCircuitBreaker("primary", WithMaxFailures(1), WithResetTimeout(10*time.Millisecond))
	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	// When: the probe fails
	_, err := CircuitDo(cb, func() (int, error) {
		return 0, errors.New("still down")
	})

	// Then: the circuit reopens with a fresh cool-down
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
	assert.Positive(t, cb.Cooldown())
}

func TestCircuitDo_SuccessfulProbeClosesCircuit(t *testing.T) {
	cb := NewCircuitBreaker("primary", WithMaxFailures(1), WithResetTimeout(10*time.Millisecond))
	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)

	got, err := CircuitDo(cb, func() (string, error) {
		return "recovered", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_StateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
