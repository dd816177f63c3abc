package async

import (
	"context"
	"sync"

	"github.com/wippyai/wasm-bridge/errors"
)

// ContextForwarder holds the wake context of the task currently driving a
// guest call. It is shared by the outer driver and every host future created
// during one invocation, and never across invocations.
type ContextForwarder struct {
	mu     sync.Mutex
	active *WakeContext
}

// NewContextForwarder creates an empty forwarder.
func NewContextForwarder() *ContextForwarder {
	return &ContextForwarder{}
}

// Forward makes cx the active wake context until release is called. Release
// restores whatever was active before, so nested drives unwind correctly.
func (f *ContextForwarder) Forward(cx *WakeContext) (release func()) {
	f.mu.Lock()
	prev := f.active
	f.active = cx
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.active = prev
			f.mu.Unlock()
		})
	}
}

// Current returns the active wake context.
// It panics when no context is forwarded: a future polled outside a driver
// could never be woken.
func (f *ContextForwarder) Current() *WakeContext {
	f.mu.Lock()
	cx := f.active
	f.mu.Unlock()
	if cx == nil {
		panic(errors.Invariant(errors.PhaseHost, "future polled outside of a forwarded context"))
	}
	return cx
}

// Context returns the active driver's context, or context.Background when no
// driver is active.
func (f *ContextForwarder) Context() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == nil {
		return context.Background()
	}
	return f.active.ctx
}
