package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/state"
)

// DefaultBackend is used when no backend name is given.
const DefaultBackend = "wazero"

// ErrRuntimeNotFound is returned for a backend name nobody registered.
var ErrRuntimeNotFound = stderrors.New("runtime not found")

// Config is the backend-independent engine configuration.
type Config struct {
	// MemoryLimitPages caps guest memory in 64KiB pages. 0 means the
	// engine's default.
	MemoryLimitPages uint32

	// Fuel bounds guest execution on engines that meter it. 0 disables
	// metering.
	Fuel uint64
}

// Executor is a prepared context with its store type erased.
type Executor interface {
	Backend() string
	Application() *Application
	ExecuteOperation(ctx context.Context, oc abi.OperationContext, operation []byte) ([]byte, error)
	ExecuteEffect(ctx context.Context, ec abi.EffectContext, effect []byte) ([]byte, error)
	CallApplication(ctx context.Context, cc abi.CalleeContext, argument []byte, sessions []abi.SessionID) (abi.ApplicationCallResult, error)
	CallSession(ctx context.Context, cc abi.CalleeContext, session abi.SessionParam, argument []byte, sessions []abi.SessionID) (abi.SessionCallResult, error)
	QueryApplication(ctx context.Context, qc abi.QueryContext, argument []byte) ([]byte, error)
	Close(ctx context.Context) error
}

// Preparer prepares contexts on one backend without exposing its store type.
type Preparer interface {
	Name() string
	Prepare(ctx context.Context, bytecode []byte, storage state.Storage, opts ...Option) (Executor, error)
	// Close releases engine-wide resources such as compilation caches.
	Close(ctx context.Context) error
}

// Erase adapts a typed runtime to a Preparer.
func Erase[S any](rt Runtime[S]) Preparer {
	return erased[S]{rt: rt}
}

type erased[S any] struct {
	rt Runtime[S]
}

func (e erased[S]) Name() string { return e.rt.Name() }

func (e erased[S]) Close(ctx context.Context) error {
	if c, ok := e.rt.(interface{ Close(context.Context) error }); ok {
		return c.Close(ctx)
	}
	return nil
}

func (e erased[S]) Prepare(ctx context.Context, bytecode []byte, storage state.Storage, opts ...Option) (Executor, error) {
	wctx, err := Prepare(ctx, e.rt, bytecode, storage, opts...)
	if err != nil {
		return nil, err
	}
	return wctx, nil
}

// Factory creates a backend from configuration.
type Factory func(ctx context.Context, cfg Config) (Preparer, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a backend available by name. Backends call it from init.
// Registering a name twice panics.
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("runtime %s already registered", name))
	}
	factories[name] = factory
}

// Lookup returns the factory registered under name, or DefaultBackend when
// name is empty.
func Lookup(name string) (Factory, error) {
	if name == "" {
		name = DefaultBackend
	}
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown runtime type: %s: %w", name, ErrRuntimeNotFound)
	}
	return factory, nil
}

// New creates the named backend.
func New(ctx context.Context, name string, cfg Config) (Preparer, error) {
	factory, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return factory(ctx, cfg)
}

// Names lists the registered backends in sorted order.
func Names() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ Executor = (*WasmRuntimeContext[struct{}])(nil)
