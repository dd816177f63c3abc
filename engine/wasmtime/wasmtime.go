//go:build cgo

package wasmtime

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"sync"

	"github.com/bytecodealliance/wasmtime-go/v41"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/system"
)

// Name is the backend's registry name.
const Name = "wasmtime"

const pageSize = 64 << 10

func init() {
	runtime.Register(Name, func(ctx context.Context, cfg runtime.Config) (runtime.Preparer, error) {
		return runtime.Erase[*Store](New(ctx, Config{MemoryLimitPages: cfg.MemoryLimitPages, Fuel: cfg.Fuel})), nil
	})
}

// Config holds configuration for the wasmtime backend
type Config struct {
	// MemoryLimitPages caps linear memory per store in 64KB pages. 0 means no cap.
	MemoryLimitPages uint32

	// Fuel is the instruction budget of each store. 0 disables metering.
	Fuel uint64
}

// Runtime is the wasmtime implementation of runtime.Runtime.
//
// Every store gets its own engine so that interrupting one invocation on
// context cancellation cannot reach another. Compiled modules are shared
// across engines in serialized form.
type Runtime struct {
	cfg      Config
	group    singleflight.Group
	mu       sync.RWMutex
	compiled map[[sha256.Size]byte][]byte
}

var _ runtime.Runtime[*Store] = (*Runtime)(nil)

// New creates the backend.
func New(_ context.Context, cfg Config) *Runtime {
	return &Runtime{cfg: cfg, compiled: make(map[[sha256.Size]byte][]byte)}
}

// Close drops the compiled module cache.
func (r *Runtime) Close(context.Context) error {
	r.mu.Lock()
	r.compiled = make(map[[sha256.Size]byte][]byte)
	r.mu.Unlock()
	return nil
}

func (r *Runtime) Name() string { return Name }

func (r *Runtime) newEngine() *wasmtime.Engine {
	c := wasmtime.NewConfig()
	c.SetEpochInterruption(true)
	if r.cfg.Fuel > 0 {
		c.SetConsumeFuel(true)
	}
	return wasmtime.NewEngineWithConfig(c)
}

// Store is one invocation's wasmtime store and engine.
type Store struct {
	engine *wasmtime.Engine
	store  *wasmtime.Store
	linker *wasmtime.Linker

	// state of the guest call in progress
	ctx     context.Context
	failure any
}

func (r *Runtime) NewStore(context.Context) (*Store, error) {
	engine := r.newEngine()
	store := wasmtime.NewStore(engine)
	if r.cfg.MemoryLimitPages > 0 {
		store.Limiter(int64(r.cfg.MemoryLimitPages)*pageSize, -1, -1, -1, -1)
	}
	if r.cfg.Fuel > 0 {
		if err := store.SetFuel(r.cfg.Fuel); err != nil {
			store.Close()
			engine.Close()
			return nil, errors.Wrap(errors.PhaseInstantiate, errors.KindInvalidInput, err, "set fuel")
		}
	}
	store.SetEpochDeadline(1)
	return &Store{engine: engine, store: store}, nil
}

func (r *Runtime) CloseStore(_ context.Context, s *Store) error {
	if s.linker != nil {
		s.linker.Close()
	}
	s.store.Close()
	s.engine.Close()
	return nil
}

// Module is a compiled guest.
type Module struct {
	module *wasmtime.Module
}

func (m *Module) Imports() []runtime.Import {
	imports := m.module.Imports()
	out := make([]runtime.Import, 0, len(imports))
	for _, imp := range imports {
		name := ""
		if n := imp.Name(); n != nil {
			name = *n
		}
		out = append(out, runtime.Import{Module: imp.Module(), Name: name})
	}
	return out
}

// Compile compiles bytecode once per backend and deserializes it into the
// store's engine afterwards.
func (r *Runtime) Compile(_ context.Context, s *Store, bytecode []byte) (runtime.Module, error) {
	key := sha256.Sum256(bytecode)
	v, err, shared := r.group.Do(string(key[:]), func() (any, error) {
		if b, ok := r.lookup(key); ok {
			return b, nil
		}
		m, err := wasmtime.NewModule(s.engine, bytecode)
		if err != nil {
			return nil, err
		}
		b, err := m.Serialize()
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.compiled[key] = b
		r.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, errors.Compile(err)
	}
	debugf("compile %x shared=%v", key[:4], shared)
	m, err := wasmtime.NewModuleDeserialize(s.engine, v.([]byte))
	if err != nil {
		return nil, errors.Compile(err)
	}
	return &Module{module: m}, nil
}

func (r *Runtime) lookup(key [sha256.Size]byte) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.compiled[key]
	return b, ok
}

// Link defines the "system" host functions in the store's linker.
func (r *Runtime) Link(_ context.Context, s *Store, sys *system.API) (runtime.Setup, error) {
	linker := wasmtime.NewLinker(s.engine)
	for _, fn := range sys.HostFunctions() {
		ty := wasmtime.NewFuncType(valTypes(fn.Params), valTypes(fn.Results))
		if err := linker.FuncNew(abi.SystemModule, fn.Name, ty, s.hostFunc(fn)); err != nil {
			linker.Close()
			return nil, errors.Link(err)
		}
	}
	s.linker = linker

	return func(_ context.Context, inst runtime.Instance) error {
		if _, ok := inst.(*Instance); !ok {
			return errors.InvalidInput(errors.PhaseLink, fmt.Sprintf("foreign instance %T", inst))
		}
		return nil
	}, nil
}

// hostFunc adapts a system import to wasmtime. Failures trap the guest and
// are kept on the store so the call that is executing can report them.
func (s *Store) hostFunc(fn system.HostFunction) func(*wasmtime.Caller, []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	return func(caller *wasmtime.Caller, args []wasmtime.Val) (results []wasmtime.Val, trap *wasmtime.Trap) {
		defer func() {
			if r := recover(); r != nil {
				s.fail(r)
				trap = wasmtime.NewTrap(fmt.Sprint(r))
			}
		}()

		g, err := newGuest(caller, caller.GetExport)
		if err != nil {
			s.fail(err)
			return nil, wasmtime.NewTrap(err.Error())
		}
		stack := make([]uint64, max(len(fn.Params), len(fn.Results)))
		for i, a := range args {
			stack[i] = fromVal(a)
		}
		if err := fn.Call(s.callContext(), g, stack); err != nil {
			s.fail(err)
			return nil, wasmtime.NewTrap(err.Error())
		}
		results = make([]wasmtime.Val, len(fn.Results))
		for i, t := range fn.Results {
			results[i] = toVal(t, stack[i])
		}
		return results, nil
	}
}

func (s *Store) fail(r any) {
	if s.failure == nil {
		s.failure = r
	}
}

func (s *Store) callContext() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (r *Runtime) Instantiate(_ context.Context, s *Store, module runtime.Module) (runtime.Instance, error) {
	m, ok := module.(*Module)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseInstantiate, fmt.Sprintf("foreign module %T", module))
	}
	if s.linker == nil {
		return nil, errors.Instantiation(errors.InvalidInput(errors.PhaseInstantiate, "store is not linked"))
	}
	inst, err := s.linker.Instantiate(s.store, m.module)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	g, err := newGuest(s.store, func(name string) *wasmtime.Extern { return inst.GetExport(s.store, name) })
	if err != nil {
		return nil, err
	}
	g.alloc.before = func() { s.store.SetEpochDeadline(1) }
	return &Instance{store: s, inst: inst, guest: g, funcs: make(map[string]*export)}, nil
}

func valTypes(types []abi.ValueType) []*wasmtime.ValType {
	out := make([]*wasmtime.ValType, len(types))
	for i, t := range types {
		out[i] = wasmtime.NewValType(valKind(t))
	}
	return out
}

func valKind(t abi.ValueType) wasmtime.ValKind {
	switch t {
	case abi.I64:
		return wasmtime.KindI64
	case abi.F32:
		return wasmtime.KindF32
	case abi.F64:
		return wasmtime.KindF64
	default:
		return wasmtime.KindI32
	}
}

func fromVal(v wasmtime.Val) uint64 {
	switch v.Kind() {
	case wasmtime.KindI64:
		return uint64(v.I64())
	case wasmtime.KindF32:
		return uint64(math.Float32bits(v.F32()))
	case wasmtime.KindF64:
		return math.Float64bits(v.F64())
	default:
		return uint64(uint32(v.I32()))
	}
}

func toVal(t abi.ValueType, raw uint64) wasmtime.Val {
	switch t {
	case abi.I64:
		return wasmtime.ValI64(int64(raw))
	case abi.F32:
		return wasmtime.ValF32(math.Float32frombits(uint32(raw)))
	case abi.F64:
		return wasmtime.ValF64(math.Float64frombits(raw))
	default:
		return wasmtime.ValI32(int32(uint32(raw)))
	}
}

func debugf(format string, args ...any) {
	if l := runtime.Logger(); l.Core().Enabled(zap.DebugLevel) {
		l.Sugar().Debugf(format, args...)
	}
}
