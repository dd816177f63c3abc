// Package statetest is a conformance suite for state.Storage engines.
package statetest

import (
	"context"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-bridge/state"
)

// Opener returns a capability lookup over a fresh engine. Capabilities for the
// same application ID must share state and write intent.
type Opener func(t *testing.T) func(app ids.ID) state.Storage

// Run exercises an engine against the storage contract.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, apps func(ids.ID) state.Storage)
	}{
		{"EmptyStateReadsEmpty", testEmptyState},
		{"SaveThenRead", testSaveThenRead},
		{"SaveWithoutLock", testSaveWithoutLock},
		{"LockIsExclusive", testLockIsExclusive},
		{"ApplicationsAreIsolated", testIsolation},
		{"CanceledContext", testCanceled},
		{"DoubleLockFailsFast", testDoubleLock},
		{"SaveByOtherCapability", testSaveByOther},
		{"UnlockFreesIntent", testUnlock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func testEmptyState(t *testing.T, apps func(ids.ID) state.Storage) {
	s := apps(ids.GenerateTestID())
	got, err := s.ReadState(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testSaveThenRead(t *testing.T, apps func(ids.ID) state.Storage) {
	ctx := context.Background()
	app := ids.GenerateTestID()
	s := apps(app)

	prev, err := s.ReadAndLockState(ctx)
	require.NoError(t, err)
	assert.Empty(t, prev)
	require.NoError(t, s.SaveAndUnlockState(ctx, []byte("hello")))

	got, err := s.ReadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	got, err = apps(app).ReadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got, "a second capability for the same application sees the commit")
}

func testSaveWithoutLock(t *testing.T, apps func(ids.ID) state.Storage) {
	s := apps(ids.GenerateTestID())
	err := s.SaveAndUnlockState(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, state.ErrNotLocked)
}

func testLockIsExclusive(t *testing.T, apps func(ids.ID) state.Storage) {
	ctx := context.Background()
	app := ids.GenerateTestID()
	first, second := apps(app), apps(app)

	_, err := first.ReadAndLockState(ctx)
	require.NoError(t, err)

	type result struct {
		state []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		b, err := second.ReadAndLockState(ctx)
		done <- result{b, err}
	}()

	select {
	case <-done:
		t.Fatal("second lock must wait for the first holder")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, first.SaveAndUnlockState(ctx, []byte("v1")))
	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, []byte("v1"), r.state)
	case <-time.After(5 * time.Second):
		t.Fatal("second lock was not granted after save")
	}
	require.NoError(t, second.SaveAndUnlockState(ctx, []byte("v2")))
}

func testIsolation(t *testing.T, apps func(ids.ID) state.Storage) {
	ctx := context.Background()
	a, b := apps(ids.GenerateTestID()), apps(ids.GenerateTestID())

	_, err := a.ReadAndLockState(ctx)
	require.NoError(t, err)
	_, err = b.ReadAndLockState(ctx)
	require.NoError(t, err, "locks are per application")
	require.NoError(t, a.SaveAndUnlockState(ctx, []byte("a")))
	require.NoError(t, b.SaveAndUnlockState(ctx, []byte("b")))

	got, err := a.ReadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)
}

func testCanceled(t *testing.T, apps func(ids.ID) state.Storage) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := apps(ids.GenerateTestID())

	_, err := s.ReadState(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.ReadAndLockState(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func testDoubleLock(t *testing.T, apps func(ids.ID) state.Storage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := apps(ids.GenerateTestID())

	_, err := s.ReadAndLockState(ctx)
	require.NoError(t, err)
	_, err = s.ReadAndLockState(ctx)
	assert.ErrorIs(t, err, state.ErrLocked)
	require.NoError(t, s.SaveAndUnlockState(ctx, []byte("x")))
}

func testSaveByOther(t *testing.T, apps func(ids.ID) state.Storage) {
	ctx := context.Background()
	app := ids.GenerateTestID()
	owner, other := apps(app), apps(app)

	_, err := owner.ReadAndLockState(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, other.SaveAndUnlockState(ctx, []byte("stolen")), state.ErrNotLocked)
	require.NoError(t, owner.SaveAndUnlockState(ctx, []byte("mine")))

	got, err := other.ReadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("mine"), got)
}

func testUnlock(t *testing.T, apps func(ids.ID) state.Storage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app := ids.GenerateTestID()
	first := apps(app)
	u, ok := first.(state.Unlocker)
	if !ok {
		t.Skip("engine has no Unlocker")
	}

	_, err := first.ReadAndLockState(ctx)
	require.NoError(t, err)
	u.Unlock()
	assert.ErrorIs(t, first.SaveAndUnlockState(ctx, []byte("late")), state.ErrNotLocked)

	next := apps(app)
	_, err = next.ReadAndLockState(ctx)
	require.NoError(t, err, "an abandoned lock must not block the next capability")
	require.NoError(t, next.SaveAndUnlockState(ctx, []byte("v")))
}
