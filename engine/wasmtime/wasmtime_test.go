//go:build cgo

package wasmtime

import (
	"context"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/internal/guestmod"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/state/avadb"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newApp(t *testing.T) *avadb.Application {
	t.Helper()
	store := avadb.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	return store.Application(ids.GenerateTestID())
}

func prepare(t *testing.T, rt *Runtime, bytecode []byte) *runtime.WasmRuntimeContext[*Store] {
	t.Helper()
	wctx, err := runtime.Prepare[*Store](testContext(t), rt, bytecode, newApp(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = wctx.Close(context.Background()) })
	return wctx
}

func TestStateGuest_RoundTrip(t *testing.T) {
	for _, bytecode := range [][]byte{guestmod.StateGuest(), guestmod.AllocOnlyGuest()} {
		ctx := testContext(t)
		wctx := prepare(t, New(ctx, Config{}), bytecode)

		prev, err := wctx.ExecuteOperation(ctx, abi.OperationContext{Height: 3}, []byte("hello"))
		require.NoError(t, err)
		assert.Empty(t, prev)

		got, err := wctx.QueryApplication(ctx, abi.QueryContext{}, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), got)
	}
}

func TestCompileCacheShared(t *testing.T) {
	ctx := testContext(t)
	rt := New(ctx, Config{})
	prepare(t, rt, guestmod.StateGuest())
	prepare(t, rt, guestmod.StateGuest())

	rt.mu.RLock()
	defer rt.mu.RUnlock()
	assert.Len(t, rt.compiled, 1)
}

func TestCallApplication(t *testing.T) {
	ctx := testContext(t)
	wctx := prepare(t, New(ctx, Config{}), guestmod.StateGuest())

	want := abi.ApplicationCallResult{Value: []byte("v"), CreateSessions: []abi.NewSession{{Kind: 7, Data: []byte("d")}}}
	arg, err := abi.Encode(want)
	require.NoError(t, err)
	got, err := wctx.CallApplication(ctx, abi.CalleeContext{}, arg, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPrepare_SetupErrors(t *testing.T) {
	tests := []struct {
		name     string
		bytecode []byte
		target   error
	}{
		{"malformed bytecode", []byte("\x00asm garbage"), &errors.Error{Phase: errors.PhaseCompile, Kind: errors.KindInvalidBytecode}},
		{"unknown import", guestmod.UnknownImportGuest(), &errors.MissingImportsError{}},
		{"no memory", guestmod.NoMemoryGuest(), &errors.Error{Phase: errors.PhaseLink, Kind: errors.KindMissingExport}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			_, err := runtime.Prepare[*Store](ctx, New(ctx, Config{}), tt.bytecode, newApp(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestDrive_Trap(t *testing.T) {
	ctx := testContext(t)
	wctx := prepare(t, New(ctx, Config{}), guestmod.TrapGuest())

	_, err := wctx.ExecuteOperation(ctx, abi.OperationContext{}, []byte("x"))
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindTrap})
}

func TestDrive_FuelExhausted(t *testing.T) {
	ctx := testContext(t)
	wctx := prepare(t, New(ctx, Config{Fuel: 100_000}), guestmod.SpinGuest())

	_, err := wctx.ExecuteOperation(ctx, abi.OperationContext{}, []byte("x"))
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindTrap})
}

func TestDrive_DeadlineInterruptsGuest(t *testing.T) {
	wctx := prepare(t, New(context.Background(), Config{}), guestmod.SpinGuest())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := wctx.ExecuteOperation(ctx, abi.OperationContext{}, []byte("x"))
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindCanceled})
}

func TestDrive_ReleasedGuardPanics(t *testing.T) {
	ctx := testContext(t)
	wctx := prepare(t, New(ctx, Config{}), guestmod.StateGuest())
	wctx.Guard().Release()

	assert.Panics(t, func() {
		_, _ = wctx.QueryApplication(ctx, abi.QueryContext{}, nil)
	})
}

func TestRegistered(t *testing.T) {
	ctx := testContext(t)
	p, err := runtime.New(ctx, Name, runtime.Config{Fuel: 1 << 30})
	require.NoError(t, err)
	defer p.Close(ctx)

	exec, err := p.Prepare(ctx, guestmod.StateGuest(), newApp(t))
	require.NoError(t, err)
	defer exec.Close(ctx)
	assert.Equal(t, Name, exec.Backend())

	_, err = exec.ExecuteOperation(ctx, abi.OperationContext{}, []byte("metered"))
	require.NoError(t, err)
}
