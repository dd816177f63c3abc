// Package boltdb stores application state in a bbolt file.
package boltdb

import (
	"context"
	"errors"
	"time"

	"github.com/ava-labs/avalanchego/ids"
	bolt "go.etcd.io/bbolt"

	"github.com/wippyai/wasm-bridge/state"
)

var stateBucket = []byte("state")

// Store is a state engine backed by a bbolt database file.
type Store struct {
	db    *bolt.DB
	locks state.LockSet
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Application returns the storage capability of one application.
func (s *Store) Application(id ids.ID) *Application {
	return &Application{
		store: s,
		id:    id,
		lock:  s.locks.For(id.String()).Holder(),
	}
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(id ids.ID) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(stateBucket).Get(id[:])
		// bbolt values are only valid inside the transaction.
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return nil, state.ErrClosed
	}
	return out, err
}

func (s *Store) put(id ids.ID, b []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stateBucket).Put(id[:], b)
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return state.ErrClosed
	}
	return err
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

// SaveAndUnlockState commits b and releases write intent.
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
