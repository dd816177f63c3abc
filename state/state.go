// Package state defines the storage capability the bridge borrows for one
// invocation, and the write-intent lock shared by its engines.
//
// A capability exposes one application's state as a single opaque blob.
// ReadAndLockState acquires write intent, which SaveAndUnlockState releases;
// while intent is held no other holder can lock. Intent belongs to the
// capability that acquired it. State that was never saved reads as an empty
// blob.
package state

import (
	"context"
	"errors"
)

var (
	// ErrNotLocked is returned by SaveAndUnlockState without prior write intent.
	ErrNotLocked = errors.New("state is not locked")
	// ErrLocked is returned by ReadAndLockState when the capability already
	// holds or awaits write intent.
	ErrLocked = errors.New("state is already locked by this capability")
	// ErrClosed is returned by engines after Close.
	ErrClosed = errors.New("state engine closed")
)

// Storage is an asynchronous read/lock/write contract over one state blob.
type Storage interface {
	// ReadState returns the current state.
	ReadState(ctx context.Context) ([]byte, error)
	// ReadAndLockState returns the current state and acquires write intent,
	// waiting for any other holder to release it.
	ReadAndLockState(ctx context.Context) ([]byte, error)
	// SaveAndUnlockState commits state and releases write intent.
	SaveAndUnlockState(ctx context.Context, state []byte) error
}

// Unlocker is implemented by capabilities that can give up write intent
// without saving. The storage guard calls it when a borrow ends, so an
// invocation that traps between lock and save does not strand the lock.
type Unlocker interface {
	// Unlock releases intent held or awaited by this capability, if any.
	Unlock()
}
