package wazero

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/runtime"
)

// Instance is an instantiated guest module. Close may race with Call; the
// call then fails with a closed-module error from wazero.
type Instance struct {
	mu    sync.Mutex
	mod   api.Module
	guest *guest
	funcs map[string]api.Function
}

var _ runtime.Instance = (*Instance)(nil)

func (i *Instance) Memory() wasmbridge.Memory       { return i.guest.memory }
func (i *Instance) Allocator() wasmbridge.Allocator { return i.guest.alloc }

func (i *Instance) function(name string) (api.Function, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.mod == nil {
		return nil, errors.Closed(errors.PhaseRuntime, "instance")
	}
	if fn, ok := i.funcs[name]; ok {
		return fn, nil
	}
	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.MissingExport(errors.PhaseRuntime, name)
	}
	i.funcs[name] = fn
	return fn, nil
}

// Call invokes an exported function. Allocations the host makes while the
// call runs use ctx.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn, err := i.function(name)
	if err != nil {
		return nil, err
	}
	i.guest.alloc.setContext(ctx)
	defer i.guest.alloc.setContext(nil)
	return fn.Call(ctx, params...)
}

func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	mod := i.mod
	i.mod = nil
	i.funcs = nil
	i.mu.Unlock()
	if mod == nil {
		return nil
	}
	return mod.Close(ctx)
}
