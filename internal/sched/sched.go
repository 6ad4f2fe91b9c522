// Package sched holds the timing primitives used by the session state
// machines: cancellable one-shot timers, context-aware delays, a periodic
// runner and tracked task scopes.
package sched

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Timer is a cancellable single-shot task created by After.
type Timer struct {
	t *time.Timer
}

// After runs fn once, no earlier than d from now, on its own goroutine.
func After(d time.Duration, fn func()) *Timer {
	return &Timer{t: time.AfterFunc(d, fn)}
}

// Cancel prevents fn from running if it has not started yet. It reports
// whether the call stopped the timer; calling it after the timer fired, or
// twice, is harmless.
func (t *Timer) Cancel() bool {
	if t == nil || t.t == nil {
		return false
	}
	return t.t.Stop()
}

// Sleep suspends the caller for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunDelayed waits d and then runs fn, propagating its result. If ctx is
// cancelled while waiting, fn is never invoked.
func RunDelayed[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if err := Sleep(ctx, d); err != nil {
		var zero T
		return zero, err
	}
	return fn(ctx)
}

// Every runs fn immediately and then once per interval until ctx is done.
func Every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Scope is a cancellation scope that tracks every goroutine started in it.
// Cancel stops new work at the next suspension point; Wait blocks until all
// tracked goroutines have returned.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group

	mu     sync.Mutex
	closed bool
}

// NewScope derives a scope from parent.
func NewScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)
	return &Scope{ctx: gctx, cancel: cancel, g: g}
}

// Context returns the scope's context. It is done once the scope is cancelled
// or a tracked task returned an error.
func (s *Scope) Context() context.Context { return s.ctx }

// Go starts fn in the scope. It reports false, without running fn, when the
// scope has already been cancelled.
func (s *Scope) Go(fn func(ctx context.Context) error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ctx.Err() != nil {
		return false
	}
	s.g.Go(func() error { return fn(s.ctx) })
	return true
}

// Cancel cancels the scope's context. Safe to call repeatedly.
func (s *Scope) Cancel() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

// Wait blocks until every task started with Go has returned and reports the
// first non-nil error.
func (s *Scope) Wait() error { return s.g.Wait() }
