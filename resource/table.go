package resource

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("resource table closed")

// Table maps handles to values tagged with a type ID. Freed handles are
// reused, so a handle is only meaningful until it is removed.
type Table struct {
	entries   []entry
	freeList  []Handle
	observers []Observer
	mu        sync.RWMutex
	closed    bool
}

type entry struct {
	value  any
	typeID TypeID
	valid  bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 16),
		freeList: make([]Handle, 0, 4),
	}
}

// Insert stores a value and returns its handle.
func (t *Table) Insert(typeID TypeID, value any) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}

	e := entry{typeID: typeID, value: value, valid: true}
	var handle Handle
	if n := len(t.freeList); n > 0 {
		handle = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[handle-1] = e
	} else {
		t.entries = append(t.entries, e)
		handle = Handle(len(t.entries))
	}
	observers := t.observers
	t.mu.Unlock()

	notify(observers, Event{Type: EventCreated, Handle: handle, TypeID: typeID, Value: value})
	return handle, nil
}

// Get retrieves a value by handle.
func (t *Table) Get(handle Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookup(handle)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// GetTyped retrieves a value only if it was inserted with typeID.
func (t *Table) GetTyped(handle Handle, typeID TypeID) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookup(handle)
	if !ok || e.typeID != typeID {
		return nil, false
	}
	return e.value, true
}

// Remove drops a value of the given type and returns it.
func (t *Table) Remove(handle Handle, typeID TypeID) (any, bool) {
	t.mu.Lock()
	e, ok := t.lookup(handle)
	if !ok || e.typeID != typeID {
		t.mu.Unlock()
		return nil, false
	}
	t.entries[handle-1] = entry{}
	t.freeList = append(t.freeList, handle)
	observers := t.observers
	t.mu.Unlock()

	if d, ok := e.value.(Dropper); ok {
		d.Drop()
	}
	notify(observers, Event{Type: EventDropped, Handle: handle, TypeID: typeID, Value: e.value})
	return e.value, true
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	observers := make([]Observer, len(t.observers), len(t.observers)+1)
	copy(observers, t.observers)
	t.observers = append(observers, o)
}

// Len returns the number of live values.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) - len(t.freeList)
}

// Close drops every live value and rejects further inserts. Observers see an
// EventDropped for each value. Close is idempotent.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	entries := t.entries
	observers := t.observers
	t.entries = nil
	t.freeList = nil
	t.mu.Unlock()

	for i, e := range entries {
		if !e.valid {
			continue
		}
		if d, ok := e.value.(Dropper); ok {
			d.Drop()
		}
		notify(observers, Event{Type: EventDropped, Handle: Handle(i + 1), TypeID: e.typeID, Value: e.value})
	}
	return nil
}

func (t *Table) lookup(handle Handle) (entry, bool) {
	if handle == 0 || int(handle) > len(t.entries) {
		return entry{}, false
	}
	e := t.entries[handle-1]
	return e, e.valid
}

func notify(observers []Observer, e Event) {
	for _, o := range observers {
		o.OnResourceEvent(e)
	}
}
