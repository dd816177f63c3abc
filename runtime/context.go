package runtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/async"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/metrics"
	"github.com/wippyai/wasm-bridge/system"
)

// WasmRuntimeContext is everything one invocation needs: the application
// proxy, the forwarder its host futures wake through, the backend store and
// the storage guard. It is created by Prepare and used by one driver at a
// time.
type WasmRuntimeContext[S any] struct {
	runtime     Runtime[S]
	forwarder   *async.ContextForwarder
	application *Application
	store       S
	guard       *system.StorageGuard
	log         *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Backend returns the name of the runtime the context was prepared on.
func (c *WasmRuntimeContext[S]) Backend() string { return c.runtime.Name() }

// Application returns the guest proxy.
func (c *WasmRuntimeContext[S]) Application() *Application { return c.application }

// Forwarder returns the context forwarder shared with the system API.
func (c *WasmRuntimeContext[S]) Forwarder() *async.ContextForwarder { return c.forwarder }

// Store returns the backend store.
func (c *WasmRuntimeContext[S]) Store() S { return c.store }

// Guard returns the storage guard.
func (c *WasmRuntimeContext[S]) Guard() *system.StorageGuard { return c.guard }

// Close releases the storage guard, then closes the instance and the store.
// It is safe to call more than once and from a context that is still being
// driven; outstanding host futures observe cancellation.
func (c *WasmRuntimeContext[S]) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.guard.Release()
		metrics.ContextsOpen.Dec()

		if err := c.application.inst.Close(ctx); err != nil {
			c.closeErr = err
		}
		if err := c.runtime.CloseStore(ctx, c.store); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
		c.log.Debug("context closed", zap.Error(c.closeErr))
	})
	return c.closeErr
}

// ExecuteOperation runs an operation to completion.
func (c *WasmRuntimeContext[S]) ExecuteOperation(ctx context.Context, oc abi.OperationContext, operation []byte) ([]byte, error) {
	app := c.application
	return drive(ctx, c, abi.ExecuteOperation,
		func(ctx context.Context) (GuestFuture, error) { return app.ExecuteOperationNew(ctx, oc, operation) },
		app.ExecuteOperationPoll)
}

// ExecuteEffect runs an effect to completion.
func (c *WasmRuntimeContext[S]) ExecuteEffect(ctx context.Context, ec abi.EffectContext, effect []byte) ([]byte, error) {
	app := c.application
	return drive(ctx, c, abi.ExecuteEffect,
		func(ctx context.Context) (GuestFuture, error) { return app.ExecuteEffectNew(ctx, ec, effect) },
		app.ExecuteEffectPoll)
}

// CallApplication runs a cross-application call to completion.
func (c *WasmRuntimeContext[S]) CallApplication(ctx context.Context, cc abi.CalleeContext, argument []byte, sessions []abi.SessionID) (abi.ApplicationCallResult, error) {
	app := c.application
	return drive(ctx, c, abi.CallApplication,
		func(ctx context.Context) (GuestFuture, error) {
			return app.CallApplicationNew(ctx, cc, argument, sessions)
		},
		app.CallApplicationPoll)
}

// CallSession runs a session call to completion.
func (c *WasmRuntimeContext[S]) CallSession(ctx context.Context, cc abi.CalleeContext, session abi.SessionParam, argument []byte, sessions []abi.SessionID) (abi.SessionCallResult, error) {
	app := c.application
	return drive(ctx, c, abi.CallSession,
		func(ctx context.Context) (GuestFuture, error) {
			return app.CallSessionNew(ctx, cc, session, argument, sessions)
		},
		app.CallSessionPoll)
}

// QueryApplication runs a query to completion.
func (c *WasmRuntimeContext[S]) QueryApplication(ctx context.Context, qc abi.QueryContext, argument []byte) ([]byte, error) {
	app := c.application
	return drive(ctx, c, abi.QueryApplication,
		func(ctx context.Context) (GuestFuture, error) { return app.QueryApplicationNew(ctx, qc, argument) },
		app.QueryApplicationPoll)
}

// drive calls new once and polls until the guest is ready. Between polls it
// parks on a signal that host futures wake, or returns when ctx is done.
func drive[S, T any](
	ctx context.Context,
	c *WasmRuntimeContext[S],
	e abi.Entrypoint,
	start func(context.Context) (GuestFuture, error),
	poll func(context.Context, GuestFuture) (async.Poll[T], error),
) (T, error) {
	var zero T
	began := time.Now()

	sig := async.NewSignal()
	release := c.forwarder.Forward(async.NewWakeContext(ctx, sig))
	defer release()

	fut, err := start(ctx)
	if err != nil {
		observe(e, 0, err)
		return zero, err
	}

	for polls := 1; ; polls++ {
		p, err := poll(ctx, fut)
		if err != nil {
			observe(e, polls, err)
			return zero, err
		}
		if !p.IsPending() {
			observe(e, polls, p.Err)
			c.log.Debug("guest call finished",
				zap.String("entrypoint", string(e)),
				zap.Int("polls", polls),
				zap.Duration("elapsed", time.Since(began)),
				zap.Error(p.Err))
			return p.Value, p.Err
		}
		if err := sig.Wait(ctx); err != nil {
			err = errors.Canceled(e.Poll(), err)
			observe(e, polls, err)
			return zero, err
		}
	}
}

func observe(e abi.Entrypoint, polls int, err error) {
	if polls > 0 {
		metrics.GuestPolls.WithLabelValues(string(e)).Observe(float64(polls))
	}
	metrics.GuestCalls.WithLabelValues(string(e), outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if be, ok := err.(*errors.Error); ok {
		switch be.Kind {
		case errors.KindGuest:
			return "guest_error"
		case errors.KindCanceled:
			return "canceled"
		}
	}
	return "trap"
}
