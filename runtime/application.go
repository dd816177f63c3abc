package runtime

import (
	"context"
	stderrors "errors"

	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/async"
	"github.com/wippyai/wasm-bridge/errors"
)

// GuestFuture is a future handle chosen by the guest.
type GuestFuture uint32

// Application is a typed proxy over the entry points a guest exports. Each
// entry point is a new/poll pair: New encodes the arguments into guest memory
// and starts the operation, Poll advances it once.
//
// Poll results are pending, a ready value, or a ready guest error
// (errors.KindGuest). The returned error reports boundary failures only.
type Application struct {
	inst Instance
}

// NewApplication wraps an instantiated guest.
func NewApplication(inst Instance) *Application {
	return &Application{inst: inst}
}

// Instance returns the wrapped guest.
func (a *Application) Instance() Instance {
	return a.inst
}

// ExecuteOperationNew starts executing an operation.
func (a *Application) ExecuteOperationNew(ctx context.Context, oc abi.OperationContext, operation []byte) (GuestFuture, error) {
	return a.start(ctx, abi.ExecuteOperation, oc, operation)
}

// ExecuteOperationPoll advances an operation.
func (a *Application) ExecuteOperationPoll(ctx context.Context, f GuestFuture) (async.Poll[[]byte], error) {
	return a.pollBytes(ctx, abi.ExecuteOperation, f)
}

// ExecuteEffectNew starts executing an effect.
func (a *Application) ExecuteEffectNew(ctx context.Context, ec abi.EffectContext, effect []byte) (GuestFuture, error) {
	return a.start(ctx, abi.ExecuteEffect, ec, effect)
}

// ExecuteEffectPoll advances an effect.
func (a *Application) ExecuteEffectPoll(ctx context.Context, f GuestFuture) (async.Poll[[]byte], error) {
	return a.pollBytes(ctx, abi.ExecuteEffect, f)
}

// CallApplicationNew starts a cross-application call.
func (a *Application) CallApplicationNew(ctx context.Context, cc abi.CalleeContext, argument []byte, sessions []abi.SessionID) (GuestFuture, error) {
	return a.start(ctx, abi.CallApplication, cc, argument, abi.ForwardedSessions{Sessions: sessions})
}

// CallApplicationPoll advances a cross-application call.
func (a *Application) CallApplicationPoll(ctx context.Context, f GuestFuture) (async.Poll[abi.ApplicationCallResult], error) {
	var result abi.ApplicationCallResult
	return pollDecoded(ctx, a, abi.CallApplication, f, &result)
}

// CallSessionNew starts a call into a session.
func (a *Application) CallSessionNew(ctx context.Context, cc abi.CalleeContext, session abi.SessionParam, argument []byte, sessions []abi.SessionID) (GuestFuture, error) {
	return a.start(ctx, abi.CallSession, cc, session, argument, abi.ForwardedSessions{Sessions: sessions})
}

// CallSessionPoll advances a session call.
func (a *Application) CallSessionPoll(ctx context.Context, f GuestFuture) (async.Poll[abi.SessionCallResult], error) {
	var result abi.SessionCallResult
	return pollDecoded(ctx, a, abi.CallSession, f, &result)
}

// QueryApplicationNew starts a read-only query.
func (a *Application) QueryApplicationNew(ctx context.Context, qc abi.QueryContext, argument []byte) (GuestFuture, error) {
	return a.start(ctx, abi.QueryApplication, qc, argument)
}

// QueryApplicationPoll advances a query.
func (a *Application) QueryApplicationPoll(ctx context.Context, f GuestFuture) (async.Poll[[]byte], error) {
	return a.pollBytes(ctx, abi.QueryApplication, f)
}

// start lays out args in guest memory as (ptr, len) pairs and calls the
// entry point's new export. Byte slices are passed as is; anything else is
// encoded with abi.Codec first.
func (a *Application) start(ctx context.Context, e abi.Entrypoint, args ...any) (GuestFuture, error) {
	name := e.New()
	params := make([]uint64, 0, 2*len(args))
	for _, arg := range args {
		b, ok := arg.([]byte)
		if !ok {
			var err error
			if b, err = abi.Encode(arg); err != nil {
				return 0, err
			}
		}
		ptr, length, err := abi.WriteBytes(a.inst, b)
		if err != nil {
			return 0, boundary(ctx, name, err)
		}
		params = append(params, uint64(ptr), uint64(length))
	}

	results, err := a.inst.Call(ctx, name, params...)
	if err != nil {
		return 0, boundary(ctx, name, err)
	}
	if len(results) != 1 {
		return 0, errors.New(errors.PhaseRuntime, errors.KindInvalidData).
			Path(name).
			Detail("expected 1 result, got %d", len(results)).
			Build()
	}
	debugf("%s -> future %d", name, uint32(results[0]))
	return GuestFuture(results[0]), nil
}

// poll calls the entry point's poll export and reads the record it returns.
func (a *Application) poll(ctx context.Context, e abi.Entrypoint, f GuestFuture) (abi.Outcome, error) {
	name := e.Poll()
	results, err := a.inst.Call(ctx, name, uint64(f))
	if err != nil {
		return abi.Outcome{}, boundary(ctx, name, err)
	}
	if len(results) != 1 {
		return abi.Outcome{}, errors.New(errors.PhaseRuntime, errors.KindInvalidData).
			Path(name).
			Detail("expected 1 result, got %d", len(results)).
			Build()
	}
	o, err := abi.ReadOutcome(a.inst.Memory(), uint32(results[0]))
	if err != nil {
		return abi.Outcome{}, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, name)
	}
	return o, nil
}

func (a *Application) pollBytes(ctx context.Context, e abi.Entrypoint, f GuestFuture) (async.Poll[[]byte], error) {
	o, err := a.poll(ctx, e, f)
	if err != nil {
		return async.Poll[[]byte]{}, err
	}
	switch o.Status {
	case abi.StatusPending:
		return async.Pending[[]byte](), nil
	case abi.StatusErr:
		return async.Ready[[]byte](nil, errors.Guest(e.Poll(), o.Text())), nil
	default:
		return async.Ready(o.Data, nil), nil
	}
}

func pollDecoded[T any](ctx context.Context, a *Application, e abi.Entrypoint, f GuestFuture, into *T) (async.Poll[T], error) {
	p, err := a.pollBytes(ctx, e, f)
	if err != nil {
		return async.Poll[T]{}, err
	}
	if p.IsPending() {
		return async.Pending[T](), nil
	}
	if p.Err != nil {
		var zero T
		return async.Ready(zero, p.Err), nil
	}
	if err := abi.Decode(p.Value, into); err != nil {
		return async.Poll[T]{}, err
	}
	return async.Ready(*into, nil), nil
}

// boundary classifies an error raised while calling into the guest.
// Invariant violations recovered by the backend are raised again.
func boundary(ctx context.Context, name string, err error) error {
	var be *errors.Error
	if stderrors.As(err, &be) && be.Kind == errors.KindInvariant {
		panic(be)
	}
	if ctx.Err() != nil {
		return errors.Canceled(name, ctx.Err())
	}
	if be != nil && (be.Phase == errors.PhaseEncode || be.Phase == errors.PhaseDecode || be.Kind == errors.KindAllocation) {
		return err
	}
	return errors.Trap(name, err)
}
