// Package guestmod builds small guest modules for tests and demos.
//
// The fixtures speak the bridge's flat protocol directly, with the guest's
// own poll records at fixed addresses:
//
//	1024  record written by the host for the guest's last import poll
//	1040  "store failed" error record
//	1056  ok record echoing the call argument
//	2048  start of the bump heap served by alloc and cabi_realloc
package guestmod

import "github.com/wippyai/wasm-bridge/abi"

// Fixed guest addresses.
const (
	HostRecord  = 1024
	ErrRecord   = 1040
	EchoRecord  = 1056
	HeapBase    = 2048
	storeFailed = 512
)

// StoreFailedText is the error text the state guest reports when
// store_and_unlock returns false.
const StoreFailedText = "store failed"

// Type indices shared by the fixtures.
const (
	tVoidI32   uint32 = iota // () -> i32
	tI32x2Void               // (i32, i32) -> ()
	tI32Void                 // (i32) -> ()
	tI32x2I32                // (i32, i32) -> i32
	tI32I32                  // (i32) -> i32
	tI32x4I32                // (i32 x4) -> i32
	tI32x6I32                // (i32 x6) -> i32
	tI32x8I32                // (i32 x8) -> i32
)

var types = []FuncType{
	{0, 1}, {2, 0}, {1, 0}, {2, 1}, {1, 1}, {4, 1}, {6, 1}, {8, 1},
}

// Imported function indices, in abi.SystemImports order.
const (
	fnLoadNew uint32 = iota
	fnLoadPoll
	fnLoadDrop
	fnLoadAndLockNew
	fnLoadAndLockPoll
	fnLoadAndLockDrop
	fnStoreAndUnlock
	numImports
)

// Globals of the state guest.
const (
	gHeap uint32 = iota
	gHandle
	gArgPtr
	gArgLen
)

func systemImports() []Import {
	return []Import{
		{abi.SystemModule, abi.ImportLoadNew, tVoidI32},
		{abi.SystemModule, abi.ImportLoadPoll, tI32x2Void},
		{abi.SystemModule, abi.ImportLoadDrop, tI32Void},
		{abi.SystemModule, abi.ImportLoadAndLockNew, tVoidI32},
		{abi.SystemModule, abi.ImportLoadAndLockPoll, tI32x2Void},
		{abi.SystemModule, abi.ImportLoadAndLockDrop, tI32Void},
		{abi.SystemModule, abi.ImportStoreAndUnlock, tI32x2I32},
	}
}

// allocFunc bumps gHeap by size, 8-byte aligned.
func allocFunc() Func {
	return Func{Type: tI32I32, Locals: 1, Body: NewAsm().
		GlobalGet(gHeap).I32Const(7).I32Add().I32Const(-8).I32And().LocalTee(1).
		LocalGet(1).LocalGet(0).I32Add().GlobalSet(gHeap).
		End()}
}

// reallocFunc is cabi_realloc(old, old_size, align, new_size) over alloc.
// It never frees and never moves.
func reallocFunc(alloc uint32) Func {
	return Func{Type: tI32x4I32, Body: NewAsm().LocalGet(3).Call(alloc).End()}
}

// StateGuest returns a guest that treats the last executed operation as its
// whole state.
//
// execute_operation and execute_effect take the state with load_and_lock,
// store their argument with store_and_unlock and reply with the previous
// state, or with StoreFailedText if the store was refused. query_application
// loads the state and replies with it. call_application and call_session
// reply with their argument unchanged, so callers pass an encoded result.
//
// The guest exports both alloc and cabi_realloc.
func StateGuest() []byte {
	m := stateModule()
	return m.Encode()
}

// AllocOnlyGuest is StateGuest without cabi_realloc.
func AllocOnlyGuest() []byte {
	m := stateModule()
	kept := m.Exports[:0]
	for _, e := range m.Exports {
		if e.Name != abi.CabiRealloc {
			kept = append(kept, e)
		}
	}
	m.Exports = kept
	return m.Encode()
}

func stateModule() *Module {
	const (
		fnAlloc = numImports + iota
		fnRealloc
		fnOperationNew
		fnOperationPoll
		fnQueryNew
		fnQueryPoll
		fnCallApplicationNew
		fnEchoPoll
		fnCallSessionNew
	)

	funcs := []Func{
		allocFunc(),
		reallocFunc(fnAlloc),
		// execute_operation_new(ctx_ptr, ctx_len, op_ptr, op_len)
		{Type: tI32x4I32, Body: NewAsm().
			LocalGet(2).GlobalSet(gArgPtr).
			LocalGet(3).GlobalSet(gArgLen).
			Call(fnLoadAndLockNew).GlobalSet(gHandle).
			I32Const(1).
			End()},
		// execute_operation_poll(future)
		{Type: tI32I32, Body: NewAsm().
			GlobalGet(gHandle).I32Const(HostRecord).Call(fnLoadAndLockPoll).
			I32Const(HostRecord).I32Load().I32Const(int32(abi.StatusOk)).I32Ne().
			If().I32Const(HostRecord).Return().End().
			GlobalGet(gHandle).Call(fnLoadAndLockDrop).
			GlobalGet(gArgPtr).GlobalGet(gArgLen).Call(fnStoreAndUnlock).I32Eqz().
			If().
			StoreConst(ErrRecord, int32(abi.StatusErr)).
			StoreConst(ErrRecord+4, storeFailed).
			StoreConst(ErrRecord+8, int32(len(StoreFailedText))).
			I32Const(ErrRecord).Return().
			End().
			I32Const(HostRecord).
			End()},
		// query_application_new(ctx_ptr, ctx_len, arg_ptr, arg_len)
		{Type: tI32x4I32, Body: NewAsm().
			Call(fnLoadNew).GlobalSet(gHandle).
			I32Const(2).
			End()},
		// query_application_poll(future)
		{Type: tI32I32, Body: NewAsm().
			GlobalGet(gHandle).I32Const(HostRecord).Call(fnLoadPoll).
			I32Const(HostRecord).
			End()},
		// call_application_new(ctx_ptr, ctx_len, arg_ptr, arg_len, sessions_ptr, sessions_len)
		{Type: tI32x6I32, Body: NewAsm().
			LocalGet(2).GlobalSet(gArgPtr).
			LocalGet(3).GlobalSet(gArgLen).
			I32Const(3).
			End()},
		// echo poll: ok record over the saved argument
		{Type: tI32I32, Body: NewAsm().
			StoreConst(EchoRecord, int32(abi.StatusOk)).
			StoreGlobal(EchoRecord+4, gArgPtr).
			StoreGlobal(EchoRecord+8, gArgLen).
			I32Const(EchoRecord).
			End()},
		// call_session_new(ctx_ptr, ctx_len, session_ptr, session_len, arg_ptr, arg_len, sessions_ptr, sessions_len)
		{Type: tI32x8I32, Body: NewAsm().
			LocalGet(4).GlobalSet(gArgPtr).
			LocalGet(5).GlobalSet(gArgLen).
			I32Const(4).
			End()},
	}

	fn := func(name string, idx uint32) Export { return Export{Name: name, Index: idx} }
	return &Module{
		Types:   types,
		Imports: systemImports(),
		Funcs:   funcs,
		Pages:   2,
		Globals: []int32{HeapBase, 0, 0, 0},
		Exports: []Export{
			{Name: abi.ExportMemory, Memory: true},
			fn(abi.SimpleAlloc, fnAlloc),
			fn(abi.CabiRealloc, fnRealloc),
			fn(abi.ExecuteOperation.New(), fnOperationNew),
			fn(abi.ExecuteOperation.Poll(), fnOperationPoll),
			fn(abi.ExecuteEffect.New(), fnOperationNew),
			fn(abi.ExecuteEffect.Poll(), fnOperationPoll),
			fn(abi.QueryApplication.New(), fnQueryNew),
			fn(abi.QueryApplication.Poll(), fnQueryPoll),
			fn(abi.CallApplication.New(), fnCallApplicationNew),
			fn(abi.CallApplication.Poll(), fnEchoPoll),
			fn(abi.CallSession.New(), fnCallSessionNew),
			fn(abi.CallSession.Poll(), fnEchoPoll),
		},
		Data: []Data{{Offset: storeFailed, Init: []byte(StoreFailedText)}},
	}
}

// TrapGuest returns a guest whose entry points all execute unreachable.
func TrapGuest() []byte {
	return entrypointGuest(func() *Asm { return NewAsm().Unreachable().End() })
}

// SpinGuest returns a guest whose entry points never return.
func SpinGuest() []byte {
	return entrypointGuest(func() *Asm { return NewAsm().Loop().Br(0).End().Unreachable().End() })
}

func entrypointGuest(body func() *Asm) []byte {
	newTypes := map[abi.Entrypoint]uint32{
		abi.ExecuteOperation: tI32x4I32,
		abi.ExecuteEffect:    tI32x4I32,
		abi.CallApplication:  tI32x6I32,
		abi.CallSession:      tI32x8I32,
		abi.QueryApplication: tI32x4I32,
	}

	m := &Module{
		Types:   types,
		Funcs:   []Func{allocFunc()},
		Pages:   1,
		Globals: []int32{HeapBase},
		Exports: []Export{
			{Name: abi.ExportMemory, Memory: true},
			{Name: abi.SimpleAlloc, Index: 0},
		},
	}
	for _, e := range abi.Entrypoints {
		idx := uint32(len(m.Funcs))
		m.Funcs = append(m.Funcs,
			Func{Type: newTypes[e], Body: body()},
			Func{Type: tI32I32, Body: body()},
		)
		m.Exports = append(m.Exports,
			Export{Name: e.New(), Index: idx},
			Export{Name: e.Poll(), Index: idx + 1},
		)
	}
	return m.Encode()
}

// UnknownImportGuest returns a guest that imports env.abort besides
// system.load_new.
func UnknownImportGuest() []byte {
	m := &Module{
		Types: types,
		Imports: []Import{
			{abi.SystemModule, abi.ImportLoadNew, tVoidI32},
			{"env", "abort", tI32Void},
		},
		Funcs:   []Func{allocFunc()},
		Pages:   1,
		Globals: []int32{HeapBase},
		Exports: []Export{
			{Name: abi.ExportMemory, Memory: true},
			{Name: abi.SimpleAlloc, Index: 2},
		},
	}
	return m.Encode()
}

// NoMemoryGuest returns a guest that exports no memory.
func NoMemoryGuest() []byte {
	m := &Module{
		Types:   types,
		Funcs:   []Func{{Type: tI32I32, Body: NewAsm().LocalGet(0).End()}},
		Exports: []Export{{Name: abi.SimpleAlloc, Index: 0}},
	}
	return m.Encode()
}

// NoImportGuest returns a guest with memory and an allocator but no imports
// or entrypoints. With realloc it exports cabi_realloc, otherwise alloc.
func NoImportGuest(realloc bool) []byte {
	m := &Module{
		Types:   types,
		Funcs:   []Func{allocFunc(), reallocFunc(0)},
		Pages:   1,
		Globals: []int32{HeapBase},
		Exports: []Export{
			{Name: abi.ExportMemory, Memory: true},
			{Name: abi.SimpleAlloc, Index: 0},
		},
	}
	if realloc {
		m.Exports[1] = Export{Name: abi.CabiRealloc, Index: 1}
	}
	return m.Encode()
}
