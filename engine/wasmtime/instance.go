//go:build cgo

package wasmtime

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/bytecodealliance/wasmtime-go/v41"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/runtime"
)

// Instance is an instantiated guest. wasmtime frees instances with their
// store; Close only detaches it.
type Instance struct {
	mu     sync.Mutex
	store  *Store
	inst   *wasmtime.Instance
	guest  *guest
	funcs  map[string]*export
	closed bool
}

var _ runtime.Instance = (*Instance)(nil)

type export struct {
	fn     *wasmtime.Func
	params []wasmtime.ValKind
}

func (i *Instance) Memory() wasmbridge.Memory       { return i.guest.memory }
func (i *Instance) Allocator() wasmbridge.Allocator { return i.guest.alloc }

func (i *Instance) function(name string) (*export, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil, errors.Closed(errors.PhaseRuntime, "instance")
	}
	if e, ok := i.funcs[name]; ok {
		return e, nil
	}
	fn := i.inst.GetFunc(i.store.store, name)
	if fn == nil {
		return nil, errors.MissingExport(errors.PhaseRuntime, name)
	}
	types := fn.Type(i.store.store).Params()
	e := &export{fn: fn, params: make([]wasmtime.ValKind, len(types))}
	for n, t := range types {
		e.params[n] = t.Kind()
	}
	i.funcs[name] = e
	return e, nil
}

// Call invokes an exported function under ctx. Cancelling ctx interrupts
// the guest at its next epoch check.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	e, err := i.function(name)
	if err != nil {
		return nil, err
	}
	if len(params) != len(e.params) {
		return nil, errors.InvalidInput(errors.PhaseRuntime, fmt.Sprintf("%s takes %d params, got %d", name, len(e.params), len(params)))
	}
	args := make([]any, len(params))
	for n, p := range params {
		args[n] = toArg(e.params[n], p)
	}

	s := i.store
	s.ctx, s.failure = ctx, nil
	s.store.SetEpochDeadline(1)
	stop := context.AfterFunc(ctx, s.engine.IncrementEpoch)
	res, err := e.fn.Call(s.store, args...)
	stop()
	failure := s.failure
	s.ctx, s.failure = nil, nil

	if failure != nil {
		if ferr, ok := failure.(error); ok {
			return nil, ferr
		}
		panic(failure)
	}
	if err != nil {
		return nil, err
	}
	return fromResults(res), nil
}

func (i *Instance) Close(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	i.funcs = nil
	return nil
}

func toArg(kind wasmtime.ValKind, raw uint64) any {
	switch kind {
	case wasmtime.KindI64:
		return int64(raw)
	case wasmtime.KindF32:
		return math.Float32frombits(uint32(raw))
	case wasmtime.KindF64:
		return math.Float64frombits(raw)
	default:
		return int32(uint32(raw))
	}
}

func fromResults(res any) []uint64 {
	switch v := res.(type) {
	case nil:
		return nil
	case int32:
		return []uint64{uint64(uint32(v))}
	case int64:
		return []uint64{uint64(v)}
	case float32:
		return []uint64{uint64(math.Float32bits(v))}
	case float64:
		return []uint64{math.Float64bits(v)}
	case []wasmtime.Val:
		out := make([]uint64, len(v))
		for n, val := range v {
			out[n] = fromVal(val)
		}
		return out
	default:
		return nil
	}
}
