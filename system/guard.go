package system

import (
	"context"
	"sync"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/metrics"
	"github.com/wippyai/wasm-bridge/resource"
	"github.com/wippyai/wasm-bridge/state"
)

// slot is the cell shared by an API and its guard. It holds the borrowed
// storage capability for exactly as long as the guard is alive.
type slot struct {
	mu      sync.Mutex
	storage state.Storage

	// scope is canceled on release so storage calls still in flight stop.
	scope  context.Context
	cancel context.CancelFunc

	futures *resource.Table
}

func newSlot(storage state.Storage) *slot {
	scope, cancel := context.WithCancel(context.Background())
	futures := resource.NewTable()
	futures.Subscribe(resource.ObserverFunc(func(e resource.Event) {
		switch e.Type {
		case resource.EventCreated:
			metrics.HostFuturesOutstanding.Inc()
		case resource.EventDropped:
			metrics.HostFuturesOutstanding.Dec()
		}
	}))
	return &slot{
		storage: storage,
		scope:   scope,
		cancel:  cancel,
		futures: futures,
	}
}

// get takes the slot without waiting. Contention and emptiness are both
// invariant violations: the guest is single threaded, and an empty slot means
// the borrow has ended.
func (s *slot) get() state.Storage {
	if !s.mu.TryLock() {
		panic(errors.Invariant(errors.PhaseStorage, "unexpected concurrent storage access by application"))
	}
	st := s.storage
	s.mu.Unlock()
	if st == nil {
		panic(errors.Invariant(errors.PhaseStorage, "application called storage after it should have stopped"))
	}
	return st
}

// bind derives a context for one storage call that is also canceled when
// the borrow ends.
func (s *slot) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.scope, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// StorageGuard ends the storage borrow of one invocation. Releasing it
// empties the slot shared with the paired API.
type StorageGuard struct {
	slot *slot
	once sync.Once
}

// Release empties the slot, cancels storage calls in flight and drops every
// outstanding host future. If the storage is a state.Unlocker, write intent
// the invocation took and never saved is given up. It runs once; later calls
// do nothing.
//
// Release panics if another goroutine holds the slot at that moment.
func (g *StorageGuard) Release() {
	g.once.Do(func() {
		if !g.slot.mu.TryLock() {
			panic(errors.Invariant(errors.PhaseStorage, "guard released while storage is still in use"))
		}
		st := g.slot.storage
		g.slot.storage = nil
		g.slot.mu.Unlock()

		g.slot.cancel()
		_ = g.slot.futures.Close()
		if u, ok := st.(state.Unlocker); ok {
			u.Unlock()
		}
	})
}

// NewGuard returns another guard over the slot of a. Either guard ends the
// borrow for both.
func (a *API) NewGuard() *StorageGuard {
	return &StorageGuard{slot: a.slot}
}

// Released reports whether the slot has been emptied.
func (g *StorageGuard) Released() bool {
	g.slot.mu.Lock()
	defer g.slot.mu.Unlock()
	return g.slot.storage == nil
}
