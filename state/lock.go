package state

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// WriteLock is the write intent of one state blob. Capabilities never touch
// it directly; each takes a Holder, and only the holder that acquired intent
// can release it.
type WriteLock struct {
	sem *semaphore.Weighted
}

// NewWriteLock creates an unheld lock.
func NewWriteLock() *WriteLock {
	return &WriteLock{sem: semaphore.NewWeighted(1)}
}

// Holder returns a new claimant of l.
func (l *WriteLock) Holder() *Holder {
	return &Holder{lock: l}
}

// Holder is one capability's claim on a WriteLock.
type Holder struct {
	lock *WriteLock

	mu        sync.Mutex
	held      bool
	acquiring bool
	// gen advances on Unlock so an Acquire that was in flight gives the
	// intent straight back instead of leaking it.
	gen uint64
}

// Acquire blocks until write intent is granted or ctx is done. A holder that
// already holds intent, or is already waiting for it, gets ErrLocked instead
// of waiting on itself.
func (h *Holder) Acquire(ctx context.Context) error {
	h.mu.Lock()
	if h.held || h.acquiring {
		h.mu.Unlock()
		return ErrLocked
	}
	h.acquiring = true
	gen := h.gen
	h.mu.Unlock()

	err := h.lock.sem.Acquire(ctx, 1)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.acquiring = false
	if err != nil {
		return err
	}
	if h.gen != gen {
		h.lock.sem.Release(1)
		return ErrNotLocked
	}
	h.held = true
	return nil
}

// Held reports whether this holder has write intent.
func (h *Holder) Held() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.held
}

// Release gives up write intent. It reports ErrNotLocked if this holder does
// not have it.
func (h *Holder) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.held {
		return ErrNotLocked
	}
	h.held = false
	h.lock.sem.Release(1)
	return nil
}

// Unlock gives up any intent this holder has or is waiting for. The holder
// stays usable.
func (h *Holder) Unlock() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gen++
	if h.held {
		h.held = false
		h.lock.sem.Release(1)
	}
}

// LockSet hands out one WriteLock per application key, so every capability
// for the same application shares its write intent.
type LockSet struct {
	mu    sync.Mutex
	locks map[string]*WriteLock
}

// For returns the lock for key, creating it on first use.
func (s *LockSet) For(key string) *WriteLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*WriteLock)
	}
	l, ok := s.locks[key]
	if !ok {
		l = NewWriteLock()
		s.locks[key] = l
	}
	return l
}
