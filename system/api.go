package system

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/async"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/metrics"
	"github.com/wippyai/wasm-bridge/resource"
	"github.com/wippyai/wasm-bridge/state"
)

// Future type IDs in the handle table.
const (
	TypeLoad        resource.TypeID = 1
	TypeLoadAndLock resource.TypeID = 2
)

const (
	opLoad        = "load"
	opLoadAndLock = "load_and_lock"
)

type stateFuture = *async.HostFuture[[]byte]

// API implements the state operations a guest imports from the host.
type API struct {
	forwarder *async.ContextForwarder
	slot      *slot
	loads     resource.Typed[stateFuture]
	locks     resource.Typed[stateFuture]
}

// New pairs an API with the guard that bounds its access to storage.
//
// From here on storage is reachable through the API, whose lifetime the type
// system does not tie to the borrow. The caller must keep the guard no longer
// than storage is valid and must call Release no later than the end of the
// borrow. After Release every access through the API, or any copy of it,
// panics instead of reaching storage.
func New(forwarder *async.ContextForwarder, storage state.Storage) (*API, *StorageGuard) {
	s := newSlot(storage)
	api := &API{
		forwarder: forwarder,
		slot:      s,
		loads:     resource.NewTyped[stateFuture](s.futures, TypeLoad),
		locks:     resource.NewTyped[stateFuture](s.futures, TypeLoadAndLock),
	}
	return api, &StorageGuard{slot: s}
}

// Forwarder returns the wake-context forwarder the API polls with.
func (a *API) Forwarder() *async.ContextForwarder {
	return a.forwarder
}

// Storage returns the borrowed capability. It panics with an invariant error
// if the slot is held concurrently or the guard has been released.
func (a *API) Storage() state.Storage {
	return a.slot.get()
}

// LoadNew starts reading the application state and returns a future handle.
// The read runs when the handle is first polled.
func (a *API) LoadNew() uint32 {
	return a.start(opLoad, a.loads, func(st state.Storage) func(context.Context) ([]byte, error) {
		return st.ReadState
	})
}

// LoadPoll advances a load future.
func (a *API) LoadPoll(handle uint32) (abi.Outcome, error) {
	return a.poll(opLoad, a.loads, handle)
}

// LoadDrop releases a load future handle.
func (a *API) LoadDrop(handle uint32) bool {
	_, ok := a.loads.Remove(resource.Handle(handle))
	return ok
}

// LoadAndLockNew starts reading the application state while acquiring write
// intent, and returns a future handle.
func (a *API) LoadAndLockNew() uint32 {
	return a.start(opLoadAndLock, a.locks, func(st state.Storage) func(context.Context) ([]byte, error) {
		return st.ReadAndLockState
	})
}

// LoadAndLockPoll advances a load-and-lock future.
func (a *API) LoadAndLockPoll(handle uint32) (abi.Outcome, error) {
	return a.poll(opLoadAndLock, a.locks, handle)
}

// LoadAndLockDrop releases a load-and-lock future handle.
func (a *API) LoadAndLockDrop(handle uint32) bool {
	_, ok := a.locks.Remove(resource.Handle(handle))
	return ok
}

// StoreAndUnlock commits state and releases write intent. The guest only
// learns whether it worked; the cause is logged.
func (a *API) StoreAndUnlock(ctx context.Context, blob []byte) bool {
	st := a.Storage()
	ctx, stop := a.slot.bind(ctx)
	defer stop()

	if err := st.SaveAndUnlockState(ctx, blob); err != nil {
		metrics.StorageFailures.WithLabelValues(abi.ImportStoreAndUnlock).Inc()
		Logger().Warn("store_and_unlock failed", zap.Int("bytes", len(blob)), zap.Error(errors.Storage(abi.ImportStoreAndUnlock, err)))
		return false
	}
	return true
}

func (a *API) start(op string, table resource.Typed[stateFuture], call func(state.Storage) func(context.Context) ([]byte, error)) uint32 {
	fn := call(a.Storage())
	fut := async.NewHostFuture(func(ctx context.Context) ([]byte, error) {
		ctx, stop := a.slot.bind(ctx)
		defer stop()
		return fn(ctx)
	})
	h, err := table.Insert(fut)
	if err != nil {
		panic(errors.Invariant(errors.PhaseHost, op+" future created after the storage guard was released"))
	}
	metrics.HostFutures.WithLabelValues(op).Inc()
	return uint32(h)
}

func (a *API) poll(op string, table resource.Typed[stateFuture], handle uint32) (abi.Outcome, error) {
	fut, ok := table.Get(resource.Handle(handle))
	if !ok {
		return abi.Outcome{}, errors.NotFound(errors.PhaseHost, op+" future", strconv.FormatUint(uint64(handle), 10))
	}

	p := fut.Poll(a.forwarder)
	switch {
	case p.IsPending():
		return abi.PendingOutcome(), nil
	case p.Err != nil:
		metrics.StorageFailures.WithLabelValues(op).Inc()
		Logger().Debug("storage operation failed", zap.Error(errors.Storage(op, p.Err)))
		return abi.ErrOutcome(p.Err.Error()), nil
	default:
		return abi.OkOutcome(p.Value), nil
	}
}
