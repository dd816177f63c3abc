package runtime

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/abi/abitest"
	"github.com/wippyai/wasm-bridge/system"
)

// fakeRuntime runs guests written in Go against the real system API glue.
// Guest memory is an abitest.Guest; host imports are called the way a wasm
// guest would call them, through system.HostFunction.Call.
type fakeRuntime struct {
	mu     sync.Mutex
	stores []*fakeStore

	imports   []Import
	trapOnNew bool
	setupErr  error
}

type fakeStore struct {
	mu     sync.Mutex
	api    *system.API
	closed bool
}

func (s *fakeStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeModule struct {
	imports []Import
}

func (m fakeModule) Imports() []Import { return m.imports }

func newFakeRuntime() *fakeRuntime {
	imports := make([]Import, 0, len(abi.SystemImports))
	for _, fn := range abi.SystemImports {
		imports = append(imports, Import{Module: abi.SystemModule, Name: fn.Name})
	}
	return &fakeRuntime{imports: imports}
}

func (r *fakeRuntime) Name() string { return "fake" }

func (r *fakeRuntime) NewStore(context.Context) (*fakeStore, error) {
	s := &fakeStore{}
	r.mu.Lock()
	r.stores = append(r.stores, s)
	r.mu.Unlock()
	return s, nil
}

func (r *fakeRuntime) lastStore() *fakeStore {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stores[len(r.stores)-1]
}

func (r *fakeRuntime) Compile(_ context.Context, _ *fakeStore, bytecode []byte) (Module, error) {
	if !bytes.HasPrefix(bytecode, []byte("fake")) {
		return nil, fmt.Errorf("invalid magic number")
	}
	return fakeModule{imports: r.imports}, nil
}

func (r *fakeRuntime) Link(_ context.Context, store *fakeStore, api *system.API) (Setup, error) {
	store.api = api
	return func(_ context.Context, inst Instance) error {
		if r.setupErr != nil {
			return r.setupErr
		}
		fi := inst.(*fakeInstance)
		for _, fn := range api.HostFunctions() {
			fi.hosts[fn.Name] = fn
		}
		return nil
	}, nil
}

func (r *fakeRuntime) Instantiate(context.Context, *fakeStore, Module) (Instance, error) {
	inst := &fakeInstance{
		Guest:     abitest.NewGuest(1<<16, 1024),
		hosts:     make(map[string]system.HostFunction),
		trapOnNew: r.trapOnNew,
	}
	inst.exports = inst.program()
	return inst, nil
}

func (r *fakeRuntime) CloseStore(_ context.Context, store *fakeStore) error {
	store.mu.Lock()
	store.closed = true
	store.mu.Unlock()
	return nil
}

const (
	hostRecord  = 16
	guestRecord = 512
)

type fakeInstance struct {
	*abitest.Guest
	hosts     map[string]system.HostFunction
	exports   map[string]func(ctx context.Context, params []uint64) ([]uint64, error)
	trapOnNew bool

	mu     sync.Mutex
	closed bool

	handle   uint64
	argPtr   uint64
	argLen   uint64
	response []byte
}

func (i *fakeInstance) Call(ctx context.Context, name string, params ...uint64) (results []uint64, err error) {
	i.mu.Lock()
	closed := i.closed
	i.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("instance closed")
	}
	fn, ok := i.exports[name]
	if !ok {
		return nil, fmt.Errorf("export %q not found", name)
	}
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("%w (recovered by fake)", e)
				return
			}
			err = fmt.Errorf("%v (recovered by fake)", r)
		}
	}()
	return fn(ctx, params)
}

func (i *fakeInstance) Close(context.Context) error {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()
	return nil
}

func (i *fakeInstance) host(ctx context.Context, name string, args ...uint64) uint64 {
	stack := make([]uint64, 2)
	copy(stack, args)
	if err := i.hosts[name].Call(ctx, i.Guest, stack); err != nil {
		panic(err)
	}
	return stack[0]
}

func (i *fakeInstance) reply(o abi.Outcome) []uint64 {
	if err := abi.WriteOutcome(i.Guest, guestRecord, o); err != nil {
		panic(err)
	}
	return []uint64{guestRecord}
}

func (i *fakeInstance) read(ptr, length uint64) []byte {
	b, err := abi.ReadBytes(i.Guest, uint32(ptr), uint32(length))
	if err != nil {
		panic(err)
	}
	return b
}

// program is a guest that keeps the last executed operation as its state.
// execute_operation replies with the previous state, query_application with
// the current one.
func (i *fakeInstance) program() map[string]func(context.Context, []uint64) ([]uint64, error) {
	return map[string]func(context.Context, []uint64) ([]uint64, error){
		"execute_operation_new": func(ctx context.Context, p []uint64) ([]uint64, error) {
			if i.trapOnNew {
				return nil, fmt.Errorf("wasm error: unreachable")
			}
			i.argPtr, i.argLen = p[2], p[3]
			i.handle = i.host(ctx, abi.ImportLoadAndLockNew)
			return []uint64{7}, nil
		},
		"execute_operation_poll": func(ctx context.Context, p []uint64) ([]uint64, error) {
			if p[0] != 7 {
				return nil, fmt.Errorf("unknown future %d", p[0])
			}
			i.host(ctx, abi.ImportLoadAndLockPoll, i.handle, hostRecord)
			o, err := abi.ReadOutcome(i.Guest, hostRecord)
			if err != nil {
				return nil, err
			}
			if o.Status != abi.StatusOk {
				return i.reply(o), nil
			}
			i.host(ctx, abi.ImportLoadAndLockDrop, i.handle)
			if i.host(ctx, abi.ImportStoreAndUnlock, i.argPtr, i.argLen) == 0 {
				return i.reply(abi.ErrOutcome("store failed")), nil
			}
			return i.reply(abi.OkOutcome(o.Data)), nil
		},
		"query_application_new": func(ctx context.Context, _ []uint64) ([]uint64, error) {
			i.handle = i.host(ctx, abi.ImportLoadNew)
			return []uint64{9}, nil
		},
		"query_application_poll": func(ctx context.Context, _ []uint64) ([]uint64, error) {
			i.host(ctx, abi.ImportLoadPoll, i.handle, hostRecord)
			o, err := abi.ReadOutcome(i.Guest, hostRecord)
			if err != nil {
				return nil, err
			}
			return i.reply(o), nil
		},
		"execute_effect_new": func(context.Context, []uint64) ([]uint64, error) {
			return []uint64{3}, nil
		},
		"execute_effect_poll": func(context.Context, []uint64) ([]uint64, error) {
			return i.reply(abi.ErrOutcome("effect rejected")), nil
		},
		"call_application_new": func(_ context.Context, p []uint64) ([]uint64, error) {
			if len(p) != 6 {
				return nil, fmt.Errorf("call_application_new takes 6 params, got %d", len(p))
			}
			var cc abi.CalleeContext
			if err := abi.Decode(i.read(p[0], p[1]), &cc); err != nil {
				return nil, err
			}
			var fwd abi.ForwardedSessions
			if err := abi.Decode(i.read(p[4], p[5]), &fwd); err != nil {
				return nil, err
			}
			res, err := abi.Encode(abi.ApplicationCallResult{
				Value:          i.read(p[2], p[3]),
				CreateSessions: []abi.NewSession{{Kind: uint64(len(fwd.Sessions)), Data: cc.ChainID[:]}},
			})
			if err != nil {
				return nil, err
			}
			i.response = res
			return []uint64{11}, nil
		},
		"call_application_poll": func(context.Context, []uint64) ([]uint64, error) {
			return i.reply(abi.OkOutcome(i.response)), nil
		},
		"call_session_new": func(_ context.Context, p []uint64) ([]uint64, error) {
			if len(p) != 8 {
				return nil, fmt.Errorf("call_session_new takes 8 params, got %d", len(p))
			}
			var session abi.SessionParam
			if err := abi.Decode(i.read(p[2], p[3]), &session); err != nil {
				return nil, err
			}
			res, err := abi.Encode(abi.SessionCallResult{
				Inner:        abi.ApplicationCallResult{Value: session.Data},
				CloseSession: true,
			})
			if err != nil {
				return nil, err
			}
			i.response = res
			return []uint64{13}, nil
		},
		"call_session_poll": func(context.Context, []uint64) ([]uint64, error) {
			return i.reply(abi.OkOutcome(i.response)), nil
		},
	}
}
