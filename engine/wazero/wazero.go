package wazero

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/system"
)

// Name is the backend's registry name.
const Name = "wazero"

func init() {
	runtime.Register(Name, func(ctx context.Context, cfg runtime.Config) (runtime.Preparer, error) {
		if cfg.Fuel > 0 {
			Logger().Warn("wazero does not meter fuel; limit ignored", zap.Uint64("fuel", cfg.Fuel))
		}
		return runtime.Erase[*Store](New(ctx, Config{MemoryLimitPages: cfg.MemoryLimitPages})), nil
	})
}

// Config holds configuration for the wazero backend
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// Interpreter selects the interpreter instead of the compiler.
	Interpreter bool

	// Cache is shared by every store. New creates one if nil.
	Cache wazero.CompilationCache
}

// Runtime is the wazero implementation of runtime.Runtime. Each store is a
// separate wazero runtime; compiled code is shared through the cache.
type Runtime struct {
	cfg       Config
	ownsCache bool
}

var _ runtime.Runtime[*Store] = (*Runtime)(nil)

// New creates the backend.
func New(_ context.Context, cfg Config) *Runtime {
	r := &Runtime{cfg: cfg}
	if r.cfg.Cache == nil {
		r.cfg.Cache = wazero.NewCompilationCache()
		r.ownsCache = true
	}
	return r
}

// Close releases the compilation cache if New created it.
func (r *Runtime) Close(ctx context.Context) error {
	if r.ownsCache {
		return r.cfg.Cache.Close(ctx)
	}
	return nil
}

func (r *Runtime) Name() string { return Name }

// Store is one invocation's wazero runtime.
type Store struct {
	runtime wazero.Runtime
	guest   *guest
}

func (r *Runtime) NewStore(ctx context.Context) (*Store, error) {
	rc := wazero.NewRuntimeConfig()
	if r.cfg.Interpreter {
		rc = wazero.NewRuntimeConfigInterpreter()
	}
	rc = rc.WithCompilationCache(r.cfg.Cache).WithCloseOnContextDone(true)
	if r.cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(r.cfg.MemoryLimitPages)
	}
	return &Store{runtime: wazero.NewRuntimeWithConfig(ctx, rc)}, nil
}

func (r *Runtime) CloseStore(ctx context.Context, s *Store) error {
	return s.runtime.Close(ctx)
}

// Module is a compiled guest.
type Module struct {
	compiled wazero.CompiledModule
}

func (m *Module) Imports() []runtime.Import {
	defs := m.compiled.ImportedFunctions()
	out := make([]runtime.Import, 0, len(defs))
	for _, def := range defs {
		module, name, _ := def.Import()
		out = append(out, runtime.Import{Module: module, Name: name})
	}
	for _, def := range m.compiled.ImportedMemories() {
		module, name, _ := def.Import()
		out = append(out, runtime.Import{Module: module, Name: name})
	}
	return out
}

func (r *Runtime) Compile(ctx context.Context, s *Store, bytecode []byte) (runtime.Module, error) {
	compiled, err := s.runtime.CompileModule(ctx, bytecode)
	if err != nil {
		return nil, errors.Compile(err)
	}
	return &Module{compiled: compiled}, nil
}

// Link instantiates the "system" host module in the store. Host functions
// reach guest memory through the guest bound by the returned Setup.
func (r *Runtime) Link(ctx context.Context, s *Store, sys *system.API) (runtime.Setup, error) {
	builder := s.runtime.NewHostModuleBuilder(abi.SystemModule)
	for _, fn := range sys.HostFunctions() {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(s.hostFunc(fn), valueTypes(fn.Params), valueTypes(fn.Results)).
			WithName(fn.Name).
			Export(fn.Name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return nil, errors.Link(err)
	}

	return func(_ context.Context, inst runtime.Instance) error {
		wi, ok := inst.(*Instance)
		if !ok {
			return errors.InvalidInput(errors.PhaseLink, fmt.Sprintf("foreign instance %T", inst))
		}
		s.guest = wi.guest
		return nil
	}, nil
}

// hostFunc adapts a system import to wazero. Errors become panics, which
// wazero recovers into an error returned from the guest call.
func (s *Store) hostFunc(fn system.HostFunction) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		g := s.guest
		if g == nil {
			var err error
			if g, err = newGuest(mod); err != nil {
				panic(err)
			}
		}
		if err := fn.Call(ctx, g, stack); err != nil {
			panic(err)
		}
	}
}

func (r *Runtime) Instantiate(ctx context.Context, s *Store, module runtime.Module) (runtime.Instance, error) {
	m, ok := module.(*Module)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseInstantiate, fmt.Sprintf("foreign module %T", module))
	}
	mod, err := s.runtime.InstantiateModule(ctx, m.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	g, err := newGuest(mod)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}
	return &Instance{mod: mod, guest: g, funcs: make(map[string]api.Function)}, nil
}

func valueTypes(types []abi.ValueType) []api.ValueType {
	out := make([]api.ValueType, len(types))
	for i, t := range types {
		switch t {
		case abi.I64:
			out[i] = api.ValueTypeI64
		case abi.F32:
			out[i] = api.ValueTypeF32
		case abi.F64:
			out[i] = api.ValueTypeF64
		default:
			out[i] = api.ValueTypeI32
		}
	}
	return out
}
