package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("peer-abc", WithMaxFailures(2), WithResetTimeout(50*time.Millisecond))

	failing := func() error { return errors.New("unreachable") }

	require.Error(t, cb.Execute(failing))
	assert.Equal(t, StateClosed, cb.State())

	require.Error(t, cb.Execute(failing))
	assert.Equal(t, StateOpen, cb.State())

	assert.ErrorIs(t, cb.Execute(failing), ErrCircuitOpen)
}

func TestCircuitBreakerHalfOpensAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker("peer-abc", WithMaxFailures(1), WithResetTimeout(10*time.Millisecond))

	require.Error(t, cb.Execute(func() error { return errors.New("fail") }))
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}
