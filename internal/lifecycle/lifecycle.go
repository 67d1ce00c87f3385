// Package lifecycle provides the process-wide shutdown token DawnSearch's
// long-running loops poll: the UDP service, the search service's message
// loop, and any in-progress index rebuild scan. It wraps
// signal.NotifyContext on SIGINT/SIGTERM in a reusable token long-running
// services can watch without each wiring its own signal handler.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Token is a cancellable handle background loops poll for shutdown. It
// wraps a context.Context so callers that already take one need no new
// plumbing — Done() and Err() delegate directly.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc
	stop   func()

	once sync.Once
}

// New installs a SIGINT/SIGTERM handler and returns a Token cancelled when
// either signal arrives, or when Shutdown is called explicitly (e.g. from
// a "stop the server" admin command).
func New(parent context.Context) *Token {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(ctx)
	return &Token{ctx: ctx, cancel: cancel, stop: stop}
}

// Context returns the underlying context for passing to functions that
// accept one directly (fill_index_from_db scans, HTTP server Shutdown,
// net.Dial, ...).
func (t *Token) Context() context.Context { return t.ctx }

// Done reports when the token has been cancelled, mirroring
// context.Context's idiom so callers can `select` on it directly.
func (t *Token) Done() <-chan struct{} { return t.ctx.Done() }

// Err returns the context's cancellation cause, nil until cancelled.
func (t *Token) Err() error { return t.ctx.Err() }

// Shutdown cancels the token. Safe to call multiple times and from
// multiple goroutines; only the first call has effect.
func (t *Token) Shutdown() {
	t.once.Do(func() {
		t.cancel()
		t.stop()
	})
}
