// Package abi defines the flat boundary between the host and a guest
// application: function names, the poll record layout, payload encoding and a
// WIT description of both directions.
//
// Every asynchronous operation is a pair of core functions. "<op>_new" starts
// it and returns a future handle; "<op>_poll" advances it and yields a poll
// record:
//
//	offset 0  u32  tag   0 pending, 1 ready ok, 2 ready err
//	offset 4  u32  ptr   payload address (ok: bytes, err: UTF-8 text)
//	offset 8  u32  len   payload length
//
// Host imports receive the record address as a trailing parameter. Guest
// exports return the address of a record they own.
package abi

const (
	// SystemModule is the import module name of the host system API.
	SystemModule = "system"

	ImportLoadNew         = "load_new"
	ImportLoadPoll        = "load_poll"
	ImportLoadDrop        = "load_drop"
	ImportLoadAndLockNew  = "load_and_lock_new"
	ImportLoadAndLockPoll = "load_and_lock_poll"
	ImportLoadAndLockDrop = "load_and_lock_drop"
	ImportStoreAndUnlock  = "store_and_unlock"

	// ExportMemory is the guest's linear memory.
	ExportMemory = "memory"
	// CabiRealloc is the canonical allocator: (old_ptr, old_size, align, new_size) -> ptr.
	CabiRealloc = "cabi_realloc"
	// SimpleAlloc is the minimal allocator: (size) -> ptr.
	SimpleAlloc = "alloc"
)

// Entrypoint is a guest-exported asynchronous operation.
type Entrypoint string

const (
	ExecuteOperation Entrypoint = "execute_operation"
	ExecuteEffect    Entrypoint = "execute_effect"
	CallApplication  Entrypoint = "call_application"
	CallSession      Entrypoint = "call_session"
	QueryApplication Entrypoint = "query_application"
)

// Entrypoints lists every guest entry point in declaration order.
var Entrypoints = []Entrypoint{
	ExecuteOperation,
	ExecuteEffect,
	CallApplication,
	CallSession,
	QueryApplication,
}

// New returns the export that starts the operation.
func (e Entrypoint) New() string { return string(e) + "_new" }

// Poll returns the export that advances the operation.
func (e Entrypoint) Poll() string { return string(e) + "_poll" }
