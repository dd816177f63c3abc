// Package runtime assembles and drives execution contexts over pluggable
// sandboxing engines.
//
// A backend implements Runtime[S], where S is its per-invocation store.
// Prepare runs the assembly sequence for one invocation:
//
//	store     := rt.NewStore
//	module    := rt.Compile(store, bytecode)        compile-phase error
//	forwarder := async.NewContextForwarder()
//	api, guard := system.New(forwarder, storage)
//	setup     := rt.Link(store, api)
//	instance  := rt.Instantiate(store, module)      instantiate-phase error
//	setup(instance)                                 link-phase error
//
// The result is a WasmRuntimeContext. Its driver methods call an entry
// point's new export once, then poll it under a forwarded wake context until
// the guest reports ready:
//
//	wctx, err := runtime.Prepare(ctx, rt, bytecode, app)
//	if err != nil {
//	    return err
//	}
//	defer wctx.Close(ctx)
//
//	out, err := wctx.QueryApplication(ctx, abi.QueryContext{ChainID: chain}, query)
//
// Close releases the storage guard. From then on storage is unreachable
// from the guest, and host futures still running see a canceled context.
//
// # Backends
//
// Backends register a Factory from init, so callers can pick one by name
// without knowing its store type:
//
//	import _ "github.com/wippyai/wasm-bridge/engine/wazero"
//
//	p, err := runtime.New(ctx, "wazero", runtime.Config{MemoryLimitPages: 256})
//	exec, err := p.Prepare(ctx, bytecode, app)
//
// # Thread Safety
//
// A WasmRuntimeContext serves one driver at a time; guest instances are not
// safe for concurrent calls. Close may be called from any goroutine.
package runtime
