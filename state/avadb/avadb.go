// Package avadb stores application state in an avalanchego database.
//
// Each application's blob lives under its ID in a "state" prefix of a
// versiondb layered over the supplied database. A save writes the blob and
// commits the version layer in one step, so a failed commit never leaves a
// partial write visible.
package avadb

import (
	"context"
	"errors"
	"sync"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/database/prefixdb"
	"github.com/ava-labs/avalanchego/database/versiondb"
	"github.com/ava-labs/avalanchego/ids"

	"github.com/wippyai/wasm-bridge/state"
)

var statePrefix = []byte("state")

// Store is a state engine backed by an avalanchego database.
type Store struct {
	mu      sync.Mutex
	baseDB  *versiondb.Database
	stateDB database.Database
	locks   state.LockSet
	closed  bool
}

// New layers a Store over db.
func New(db database.Database) *Store {
	baseDB := versiondb.New(db)
	return &Store{
		baseDB:  baseDB,
		stateDB: prefixdb.New(statePrefix, baseDB),
	}
}

// NewMemory returns a Store over a fresh in-memory database.
func NewMemory() *Store {
	return New(memdb.New())
}

// Application returns the storage capability of one application.
func (s *Store) Application(id ids.ID) *Application {
	return &Application{
		store: s,
		id:    id,
		lock:  s.locks.For(id.String()).Holder(),
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.baseDB.Close()
}

func (s *Store) get(id ids.ID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, state.ErrClosed
	}

	b, err := s.stateDB.Get(id[:])
	if errors.Is(err, database.ErrNotFound) {
		return []byte{}, nil
	}
	return b, err
}

func (s *Store) put(id ids.ID, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return state.ErrClosed
	}

	if err := s.stateDB.Put(id[:], b); err != nil {
		s.baseDB.Abort()
		return err
	}
	if err := s.baseDB.Commit(); err != nil {
		s.baseDB.Abort()
		return err
	}
	return nil
}

// Application is the state.Storage of one application in a Store.
type Application struct {
	store *Store
	id    ids.ID
	lock  *state.Holder
}

var (
	_ state.Storage  = (*Application)(nil)
	_ state.Unlocker = (*Application)(nil)
)

// ID returns the application ID.
func (a *Application) ID() ids.ID { return a.id }

// ReadState returns the application's state.
func (a *Application) ReadState(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.store.get(a.id)
}

// ReadAndLockState waits for write intent and returns the application's state.
// A second call before the save fails with state.ErrLocked.
func (a *Application) ReadAndLockState(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := a.lock.Acquire(ctx); err != nil {
		return nil, err
	}
	b, err := a.store.get(a.id)
	if err != nil {
		_ = a.lock.Release()
		return nil, err
	}
	return b, nil
}

// SaveAndUnlockState commits b and releases write intent. Intent is released
// even when the commit fails.
func (a *Application) SaveAndUnlockState(_ context.Context, b []byte) error {
	if !a.lock.Held() {
		return state.ErrNotLocked
	}
	err := a.store.put(a.id, b)
	if rerr := a.lock.Release(); err == nil {
		err = rerr
	}
	return err
}

// Unlock gives up write intent held by this capability without saving.
func (a *Application) Unlock() {
	a.lock.Unlock()
}
