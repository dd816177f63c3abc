package runtime

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/async"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/metrics"
	"github.com/wippyai/wasm-bridge/state"
	"github.com/wippyai/wasm-bridge/system"
)

type prepareConfig struct {
	logger   *zap.Logger
	extra    map[Import]bool
	skipScan bool
}

// Option configures Prepare.
type Option func(*prepareConfig)

// WithLogger sets the logger of the prepared context. The package logger is
// used by default.
func WithLogger(l *zap.Logger) Option {
	return func(c *prepareConfig) { c.logger = l }
}

// WithHostImports declares imports the backend provides beyond the system
// API, so the import check before instantiation accepts them.
func WithHostImports(imports ...Import) Option {
	return func(c *prepareConfig) {
		for _, imp := range imports {
			c.extra[imp] = true
		}
	}
}

// WithoutImportCheck leaves import resolution entirely to the backend.
func WithoutImportCheck() Option {
	return func(c *prepareConfig) { c.skipScan = true }
}

// Prepare assembles an execution context for one invocation: a fresh store,
// the compiled module, a context forwarder, the system API and its guard,
// the linked imports and the instantiated guest.
//
// Errors before the guest runs are fatal setup errors: compile-phase for
// rejected bytecode, instantiate-phase for unresolved imports or a failing
// start function, link-phase for a failing Setup. On error nothing stays
// open: the guard is released and the store closed.
func Prepare[S any](ctx context.Context, rt Runtime[S], bytecode []byte, storage state.Storage, opts ...Option) (*WasmRuntimeContext[S], error) {
	cfg := prepareConfig{logger: Logger(), extra: make(map[Import]bool)}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger.With(zap.String("backend", rt.Name()))

	wctx, result, err := prepare(ctx, rt, bytecode, storage, &cfg, log)
	metrics.ContextsPrepared.WithLabelValues(rt.Name(), result).Inc()
	if err != nil {
		log.Debug("prepare failed", zap.String("result", result), zap.Error(err))
		return nil, err
	}
	metrics.ContextsOpen.Inc()
	return wctx, nil
}

func prepare[S any](ctx context.Context, rt Runtime[S], bytecode []byte, storage state.Storage, cfg *prepareConfig, log *zap.Logger) (*WasmRuntimeContext[S], string, error) {
	store, err := rt.NewStore(ctx)
	if err != nil {
		return nil, "store", errors.Wrap(errors.PhaseInstantiate, errors.KindInstantiation, err, "create store")
	}

	module, err := rt.Compile(ctx, store, bytecode)
	if err != nil {
		closeStore(ctx, rt, store, log)
		return nil, "compile", asSetupError(err, errors.Compile)
	}

	forwarder := async.NewContextForwarder()
	api, guard := system.New(forwarder, storage)
	fail := func(result string, err error) (*WasmRuntimeContext[S], string, error) {
		guard.Release()
		closeStore(ctx, rt, store, log)
		return nil, result, err
	}

	setup, err := rt.Link(ctx, store, api)
	if err != nil {
		return fail("link", asSetupError(err, errors.Link))
	}

	if !cfg.skipScan {
		if missing := missingImports(module.Imports(), cfg.extra); len(missing) > 0 {
			return fail("instantiate", errors.Instantiation(errors.NewMissingImportsError(missing)))
		}
	}

	inst, err := rt.Instantiate(ctx, store, module)
	if err != nil {
		return fail("instantiate", asSetupError(err, errors.Instantiation))
	}

	if setup != nil {
		if err := setup(ctx, inst); err != nil {
			_ = inst.Close(ctx)
			return fail("link", asSetupError(err, errors.Link))
		}
	}

	return &WasmRuntimeContext[S]{
		runtime:     rt,
		forwarder:   forwarder,
		application: NewApplication(inst),
		store:       store,
		guard:       guard,
		log:         log,
	}, "ok", nil
}

// With prepares a context, runs fn with it and closes it, whatever fn
// returns.
func With[S any](ctx context.Context, rt Runtime[S], bytecode []byte, storage state.Storage, fn func(*WasmRuntimeContext[S]) error, opts ...Option) (err error) {
	wctx, err := Prepare(ctx, rt, bytecode, storage, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := wctx.Close(ctx); err == nil {
			err = cerr
		}
	}()
	return fn(wctx)
}

func closeStore[S any](ctx context.Context, rt Runtime[S], store S, log *zap.Logger) {
	if err := rt.CloseStore(ctx, store); err != nil {
		log.Warn("close store", zap.Error(err))
	}
}

// asSetupError keeps structured errors from the backend and wraps anything
// else with wrap.
func asSetupError(err error, wrap func(error) *errors.Error) error {
	if be, ok := err.(*errors.Error); ok {
		return be
	}
	return wrap(err)
}

var systemImports = func() map[string]bool {
	m := make(map[string]bool, len(abi.SystemImports))
	for _, fn := range abi.SystemImports {
		m[fn.Name] = true
	}
	return m
}()

// missingImports returns the imports neither the system API nor extra
// provide, as sorted "module#name" keys.
func missingImports(imports []Import, extra map[Import]bool) []string {
	var missing []string
	for _, imp := range imports {
		if imp.Module == abi.SystemModule && systemImports[imp.Name] {
			continue
		}
		if extra[imp] {
			continue
		}
		missing = append(missing, imp.Module+"#"+imp.Name)
	}
	sort.Strings(missing)
	return missing
}
