package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetsSeverityAndRetryableFromKind(t *testing.T) {
	fatal := New(KindFatalStartup, "bind failed", nil)
	assert.Equal(t, SeverityFatal, fatal.Severity)
	assert.True(t, IsFatal(fatal))

	timeout := New(KindPeerTimeout, "deadline passed", nil)
	assert.Equal(t, SeverityInfo, timeout.Severity)
	assert.False(t, IsFatal(timeout))

	store := New(KindStore, "disk write failed", nil)
	assert.True(t, IsRetryable(store))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(KindStore, nil))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(KindStore, cause)
	require.NotNil(t, wrapped)
	assert.Equal(t, cause, wrapped.Unwrap())
	assert.ErrorIs(t, wrapped, cause)
}

func TestIsMatchesByKind(t *testing.T) {
	a := New(KindCodec, "bad message", nil)
	b := New(KindCodec, "different message", nil)
	c := New(KindStore, "bad message", nil)

	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	e := New(KindEmbedder, "timeout", nil).WithDetail("peer", "abc").WithSuggestion("retry later")
	assert.Equal(t, "abc", e.Details["peer"])
	assert.Equal(t, "retry later", e.Suggestion)
}

func TestGetKind(t *testing.T) {
	assert.Equal(t, KindInvalidVector, GetKind(InvalidVector("not normalized")))
	assert.Equal(t, Kind(""), GetKind(errors.New("plain")))
}
