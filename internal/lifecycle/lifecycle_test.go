package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenShutdownCancelsContext(t *testing.T) {
	tok := New(context.Background())
	defer tok.Shutdown()

	select {
	case <-tok.Done():
		t.Fatal("token cancelled before Shutdown")
	default:
	}

	tok.Shutdown()

	select {
	case <-tok.Done():
	case <-time.After(time.Second):
		t.Fatal("token not cancelled after Shutdown")
	}
	assert.ErrorIs(t, tok.Err(), context.Canceled)
}

func TestTokenShutdownIsIdempotent(t *testing.T) {
	tok := New(context.Background())
	tok.Shutdown()
	tok.Shutdown() // must not panic
}
