package avadb

import (
	"context"
	"testing"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-bridge/state"
	"github.com/wippyai/wasm-bridge/state/statetest"
)

func TestConformance(t *testing.T) {
	statetest.Run(t, func(t *testing.T) func(ids.ID) state.Storage {
		s := NewMemory()
		t.Cleanup(func() { s.Close() })
		return func(id ids.ID) state.Storage { return s.Application(id) }
	})
}

func TestCommitReachesUnderlyingDatabase(t *testing.T) {
	ctx := context.Background()
	db := memdb.New()
	app := ids.GenerateTestID()

	a := New(db).Application(app)
	_, err := a.ReadAndLockState(ctx)
	require.NoError(t, err)
	require.NoError(t, a.SaveAndUnlockState(ctx, []byte("committed")))

	// A fresh Store over the same database sees the commit.
	got, err := New(db).Application(app).ReadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("committed"), got)
}

func TestClosed(t *testing.T) {
	s := NewMemory()
	a := s.Application(ids.GenerateTestID())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := a.ReadState(context.Background())
	assert.ErrorIs(t, err, state.ErrClosed)
}

func TestClosedSaveReleasesIntent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	a := s.Application(ids.GenerateTestID())
	_, err := a.ReadAndLockState(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, a.SaveAndUnlockState(ctx, []byte("x")), state.ErrClosed)
	assert.False(t, a.lock.Held())
}
