package system

import (
	"context"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/async"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/state"
	"github.com/wippyai/wasm-bridge/state/avadb"
)

// blockingStorage parks every read until its context ends.
type blockingStorage struct {
	started chan struct{}
}

func (b *blockingStorage) ReadState(ctx context.Context) ([]byte, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingStorage) ReadAndLockState(ctx context.Context) ([]byte, error) {
	return b.ReadState(ctx)
}

func (b *blockingStorage) SaveAndUnlockState(context.Context, []byte) error {
	return nil
}

func newApp(t *testing.T) *avadb.Application {
	t.Helper()
	store := avadb.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	return store.Application(ids.GenerateTestID())
}

func drive(t *testing.T, fwd *async.ContextForwarder, poll func() (abi.Outcome, error)) abi.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sig := async.NewSignal()
	release := fwd.Forward(async.NewWakeContext(ctx, sig))
	defer release()

	for {
		o, err := poll()
		require.NoError(t, err)
		if !o.Pending() {
			return o
		}
		require.NoError(t, sig.Wait(ctx))
	}
}

func requireInvariant(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(*errors.Error)
		require.True(t, ok, "panic value %v is not *errors.Error", r)
		assert.Equal(t, errors.KindInvariant, err.Kind)
		assert.Contains(t, err.Detail, want)
	}()
	fn()
}

func TestAPI_StorageWhileGuardLive(t *testing.T) {
	app := newApp(t)
	api, guard := New(async.NewContextForwarder(), app)
	defer guard.Release()

	assert.Same(t, app, api.Storage())
	assert.False(t, guard.Released())
}

func TestAPI_StorageAfterReleasePanics(t *testing.T) {
	api, guard := New(async.NewContextForwarder(), newApp(t))
	guard.Release()

	assert.True(t, guard.Released())
	requireInvariant(t, "after it should have stopped", func() { api.Storage() })
	requireInvariant(t, "after it should have stopped", func() { api.LoadNew() })
	requireInvariant(t, "after it should have stopped", func() {
		api.StoreAndUnlock(context.Background(), []byte("x"))
	})
}

func TestAPI_ConcurrentAccessPanics(t *testing.T) {
	api, guard := New(async.NewContextForwarder(), newApp(t))
	defer guard.Release()

	api.slot.mu.Lock()
	defer api.slot.mu.Unlock()
	requireInvariant(t, "concurrent storage access", func() { api.Storage() })
}

func TestGuard_ReleaseWhileInUsePanics(t *testing.T) {
	api, guard := New(async.NewContextForwarder(), newApp(t))

	api.slot.mu.Lock()
	requireInvariant(t, "still in use", guard.Release)
	api.slot.mu.Unlock()

	assert.False(t, guard.Released())
}

func TestGuard_ReleaseIsIdempotent(t *testing.T) {
	_, guard := New(async.NewContextForwarder(), newApp(t))
	guard.Release()
	guard.Release()
	assert.True(t, guard.Released())
}

func TestAPI_LoadEmptyState(t *testing.T) {
	fwd := async.NewContextForwarder()
	api, guard := New(fwd, newApp(t))
	defer guard.Release()

	h := api.LoadNew()
	o := drive(t, fwd, func() (abi.Outcome, error) { return api.LoadPoll(h) })
	assert.Equal(t, abi.StatusOk, o.Status)
	assert.Empty(t, o.Data)
	assert.True(t, api.LoadDrop(h))
	assert.False(t, api.LoadDrop(h))
}

func TestAPI_LoadAndLockThenStore(t *testing.T) {
	fwd := async.NewContextForwarder()
	app := newApp(t)
	api, guard := New(fwd, app)
	defer guard.Release()

	h := api.LoadAndLockNew()
	o := drive(t, fwd, func() (abi.Outcome, error) { return api.LoadAndLockPoll(h) })
	require.Equal(t, abi.StatusOk, o.Status)
	require.True(t, api.LoadAndLockDrop(h))

	require.True(t, api.StoreAndUnlock(context.Background(), []byte("counter=1")))

	got, err := app.ReadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("counter=1"), got)
}

func TestGuard_ReleaseGivesUpUnsavedLock(t *testing.T) {
	store := avadb.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	id := ids.GenerateTestID()

	// The first invocation locks and ends without store_and_unlock, as a
	// trapped guest would.
	fwd := async.NewContextForwarder()
	api, guard := New(fwd, store.Application(id))
	h := api.LoadAndLockNew()
	o := drive(t, fwd, func() (abi.Outcome, error) { return api.LoadAndLockPoll(h) })
	require.Equal(t, abi.StatusOk, o.Status)
	guard.Release()

	fwd = async.NewContextForwarder()
	api, guard = New(fwd, store.Application(id))
	defer guard.Release()
	h = api.LoadAndLockNew()
	o = drive(t, fwd, func() (abi.Outcome, error) { return api.LoadAndLockPoll(h) })
	require.Equal(t, abi.StatusOk, o.Status)
	assert.True(t, api.StoreAndUnlock(context.Background(), []byte("next")))
}

func TestAPI_SecondLoadAndLockFailsFast(t *testing.T) {
	fwd := async.NewContextForwarder()
	api, guard := New(fwd, newApp(t))
	defer guard.Release()

	h := api.LoadAndLockNew()
	o := drive(t, fwd, func() (abi.Outcome, error) { return api.LoadAndLockPoll(h) })
	require.Equal(t, abi.StatusOk, o.Status)

	h = api.LoadAndLockNew()
	o = drive(t, fwd, func() (abi.Outcome, error) { return api.LoadAndLockPoll(h) })
	assert.Equal(t, abi.StatusErr, o.Status)
	assert.True(t, api.StoreAndUnlock(context.Background(), []byte("x")), "the first lock is still held")
}

func TestAPI_StoreWithoutLockFails(t *testing.T) {
	api, guard := New(async.NewContextForwarder(), newApp(t))
	defer guard.Release()

	assert.False(t, api.StoreAndUnlock(context.Background(), []byte("x")))
}

func TestAPI_FutureCapturesStorageAtCreation(t *testing.T) {
	fwd := async.NewContextForwarder()
	app := newApp(t)
	api, guard := New(fwd, app)
	defer guard.Release()

	h := api.LoadNew()
	fut, ok := api.loads.Get(resourceHandle(h))
	require.True(t, ok)
	assert.False(t, fut.Started(), "reads start on first poll")
}

func TestAPI_PollUnknownHandle(t *testing.T) {
	fwd := async.NewContextForwarder()
	api, guard := New(fwd, newApp(t))
	defer guard.Release()

	_, err := api.LoadPoll(42)
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindNotFound})
	assert.Contains(t, err.Error(), `load future "42" not found`)

	// Handles are typed: a load handle is not a load_and_lock handle.
	h := api.LoadNew()
	_, err = api.LoadAndLockPoll(h)
	require.Error(t, err)
}

func TestAPI_StorageErrorBecomesText(t *testing.T) {
	fwd := async.NewContextForwarder()
	store := avadb.NewMemory()
	app := store.Application(ids.GenerateTestID())
	api, guard := New(fwd, app)
	defer guard.Release()

	require.NoError(t, store.Close())

	h := api.LoadNew()
	o := drive(t, fwd, func() (abi.Outcome, error) { return api.LoadPoll(h) })
	assert.Equal(t, abi.StatusErr, o.Status)
	assert.Equal(t, state.ErrClosed.Error(), o.Text())
}

func TestGuard_ReleaseCancelsInFlightReads(t *testing.T) {
	fwd := async.NewContextForwarder()
	st := &blockingStorage{started: make(chan struct{})}
	api, guard := New(fwd, st)

	sig := async.NewSignal()
	release := fwd.Forward(async.NewWakeContext(context.Background(), sig))
	defer release()

	h := api.LoadNew()
	fut, ok := api.loads.Get(resourceHandle(h))
	require.True(t, ok)

	o, err := api.LoadPoll(h)
	require.NoError(t, err)
	require.True(t, o.Pending())
	<-st.started

	guard.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sig.Wait(ctx))

	p := fut.Poll(fwd)
	require.False(t, p.IsPending())
	assert.ErrorIs(t, p.Err, context.Canceled)

	_, err = api.LoadPoll(h)
	assert.Error(t, err, "handles are dropped on release")
}

func TestGuard_SecondGuardSharesSlot(t *testing.T) {
	api, first := New(async.NewContextForwarder(), newApp(t))
	second := api.NewGuard()

	api.slot.mu.Lock()
	requireInvariant(t, "still in use", second.Release)
	api.slot.mu.Unlock()

	first.Release()
	assert.True(t, second.Released())
	requireInvariant(t, "after it should have stopped", func() { api.Storage() })
}
