package system

import (
	"context"
	"fmt"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/errors"
)

// HostFunction is one system import in core form. Backends register Call
// under abi.SystemModule with the given core signature.
//
// Call follows the wazero stack convention: parameters arrive in stack and
// results are written back from stack[0].
type HostFunction struct {
	abi.Function
	Params  []abi.ValueType
	Results []abi.ValueType
	Call    func(ctx context.Context, guest wasmbridge.Guest, stack []uint64) error
}

// HostFunctions returns the system imports bound to a.
func (a *API) HostFunctions() []HostFunction {
	calls := map[string]func(context.Context, wasmbridge.Guest, []uint64) error{
		abi.ImportLoadNew: func(_ context.Context, _ wasmbridge.Guest, stack []uint64) error {
			stack[0] = uint64(a.LoadNew())
			return nil
		},
		abi.ImportLoadPoll: func(_ context.Context, guest wasmbridge.Guest, stack []uint64) error {
			return writePoll(guest, abi.ImportLoadPoll, stack, a.LoadPoll)
		},
		abi.ImportLoadDrop: func(_ context.Context, _ wasmbridge.Guest, stack []uint64) error {
			a.LoadDrop(uint32(stack[0]))
			return nil
		},
		abi.ImportLoadAndLockNew: func(_ context.Context, _ wasmbridge.Guest, stack []uint64) error {
			stack[0] = uint64(a.LoadAndLockNew())
			return nil
		},
		abi.ImportLoadAndLockPoll: func(_ context.Context, guest wasmbridge.Guest, stack []uint64) error {
			return writePoll(guest, abi.ImportLoadAndLockPoll, stack, a.LoadAndLockPoll)
		},
		abi.ImportLoadAndLockDrop: func(_ context.Context, _ wasmbridge.Guest, stack []uint64) error {
			a.LoadAndLockDrop(uint32(stack[0]))
			return nil
		},
		abi.ImportStoreAndUnlock: func(ctx context.Context, guest wasmbridge.Guest, stack []uint64) error {
			blob, err := abi.ReadBytes(guest.Memory(), uint32(stack[0]), uint32(stack[1]))
			if err != nil {
				return err
			}
			stack[0] = boolToStack(a.StoreAndUnlock(ctx, blob))
			return nil
		},
	}

	out := make([]HostFunction, 0, len(abi.SystemImports))
	for _, fn := range abi.SystemImports {
		call, ok := calls[fn.Name]
		if !ok {
			panic(fmt.Sprintf("system: no host binding for %q", fn.Name))
		}
		params, results := fn.CoreImport()
		out = append(out, HostFunction{
			Function: fn,
			Params:   params,
			Results:  results,
			Call:     call,
		})
	}
	return out
}

func writePoll(guest wasmbridge.Guest, name string, stack []uint64, poll func(uint32) (abi.Outcome, error)) error {
	handle, retptr := uint32(stack[0]), uint32(stack[1])
	o, err := poll(handle)
	if err != nil {
		return err
	}
	if err := abi.WriteOutcome(guest, retptr, o); err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindOutOfBounds, err, name)
	}
	return nil
}

func boolToStack(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
