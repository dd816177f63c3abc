package async

import (
	"context"
)

// Waker resumes a task that observed a pending poll.
type Waker interface {
	Wake()
}

// WakerFunc adapts a function to Waker.
type WakerFunc func()

// Wake calls f.
func (f WakerFunc) Wake() { f() }

// WakeContext is what a poll registers with a pending computation: the
// driving task's context and the waker that resumes it.
type WakeContext struct {
	ctx   context.Context
	waker Waker
}

// NewWakeContext bundles a driver's context and waker.
func NewWakeContext(ctx context.Context, w Waker) *WakeContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &WakeContext{ctx: ctx, waker: w}
}

// Context returns the driver's context. Host computations started under this
// wake context inherit its cancellation.
func (c *WakeContext) Context() context.Context {
	return c.ctx
}

// Wake resumes the driving task.
func (c *WakeContext) Wake() {
	if c.waker != nil {
		c.waker.Wake()
	}
}

// Signal is a coalescing Waker for a single driver loop. Any number of Wake
// calls between two Waits resume the loop once.
type Signal struct {
	ch chan struct{}
}

// NewSignal creates a Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Wake marks the signal. It never blocks.
func (s *Signal) Wake() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the signal is marked or ctx is done.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
