package async

import (
	"context"
	"sync"
)

// HostFuture is a lazily started host computation that a guest advances by
// polling. It is not restartable: once it completes, its outcome is fixed.
type HostFuture[T any] struct {
	mu      sync.Mutex
	fn      func(context.Context) (T, error)
	started bool
	done    bool
	value   T
	err     error
	waker   *WakeContext
}

// NewHostFuture wraps fn without starting it.
func NewHostFuture[T any](fn func(context.Context) (T, error)) *HostFuture[T] {
	return &HostFuture[T]{fn: fn}
}

// Poll advances the future once using the wake context active in fwd.
//
// The first call starts the computation under the wake context's
// context.Context and reports pending. Until the computation finishes every
// call reports pending and replaces the registered waker, so completion wakes
// the task that polled last.
func (f *HostFuture[T]) Poll(fwd *ContextForwarder) Poll[T] {
	cx := fwd.Current()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.done {
		return Ready(f.value, f.err)
	}

	f.waker = cx
	if !f.started {
		f.started = true
		fn := f.fn
		f.fn = nil
		go f.run(cx.Context(), fn)
	}
	return Pending[T]()
}

// Started reports whether the computation has been started by a poll.
func (f *HostFuture[T]) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *HostFuture[T]) run(ctx context.Context, fn func(context.Context) (T, error)) {
	value, err := fn(ctx)

	f.mu.Lock()
	f.value, f.err, f.done = value, err, true
	w := f.waker
	f.mu.Unlock()

	if w != nil {
		w.Wake()
	}
}
