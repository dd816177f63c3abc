// Package wasmbridge runs untrusted contract bytecode in a WebAssembly sandbox
// while giving it asynchronous access to one application's persistent state.
//
// The guest boundary is flat and synchronous, host storage is asynchronous, and
// the storage capability is only borrowed for one invocation. The bridge
// reconciles the three with a two-phase new/poll protocol and a storage guard.
//
// # Architecture Overview
//
//	wasmbridge/          Root package with core Memory, Allocator and Guest interfaces
//	├── runtime/         Backend abstraction, context assembly and the guest call surface
//	├── engine/wazero/   Pure Go sandboxing backend (default)
//	├── engine/wasmtime/ Wasmtime sandboxing backend (cgo)
//	├── system/          Host-side system API and storage guard
//	├── async/           Host futures and wake-context forwarding
//	├── abi/             Export/import names, poll records and payload codec
//	├── state/           Storage capability contract and reference engines
//	├── resource/        Handle table for guest-visible future handles
//	├── metrics/         Prometheus collectors
//	├── cmd/bridge/      CLI: run, describe, backends, interactive, demo-guest
//	└── errors/          Structured error types
//
// # Quick Start
//
//	backend, err := runtime.New(ctx, "wazero", runtime.Config{MemoryLimitPages: 256})
//	...
//	exec, err := backend.Prepare(ctx, bytecode, storage)
//	if err != nil {
//	    log.Fatal(err) // malformed bytecode or missing imports
//	}
//	defer exec.Close(ctx)
//
//	result, err := exec.QueryApplication(ctx, abi.QueryContext{ChainID: chain}, query)
//
// With a concrete backend the store type stays visible, and the scoped form
// ends the storage borrow together with the callback:
//
//	rt := wazero.New(ctx, wazero.Config{})
//	err := runtime.With[*wazero.Store](ctx, rt, bytecode, storage, func(rctx *runtime.WasmRuntimeContext[*wazero.Store]) error {
//	    _, err := rctx.ExecuteOperation(ctx, opCtx, operation)
//	    return err
//	})
//
// # Protocol
//
// Every guest entry point is a pair: "<name>_new" starts the computation and
// returns a future handle, "<name>_poll" advances it and returns the address
// of a poll record. The guest imports the same shape from the host for state
// access: load, load_and_lock and the synchronous store_and_unlock.
//
// A poll that returns pending means the driver must wait for a wake-up and poll
// again. Wake-ups are forwarded from the outer driver to host futures through a
// shared forwarder, so a pending storage read inside a nested guest call wakes
// the right task.
//
// # Storage Lifetime
//
// The storage capability is reachable from guest code only while the storage
// guard created with the execution context is alive. Closing the context
// releases the guard; any later access from a stale handle panics with an
// invariant error instead of touching storage.
package wasmbridge
