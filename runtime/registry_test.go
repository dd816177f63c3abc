package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-bridge/abi"
)

func TestRegistry_Lookup(t *testing.T) {
	assert.Contains(t, Names(), "fake")

	_, err := Lookup("no-such-engine")
	assert.ErrorIs(t, err, ErrRuntimeNotFound)
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		Register("fake", func(context.Context, Config) (Preparer, error) { return nil, nil })
	})
}

func TestRegistry_ErasedPrepare(t *testing.T) {
	ctx := testContext(t)

	p, err := New(ctx, "fake", Config{})
	require.NoError(t, err)
	assert.Equal(t, "fake", p.Name())
	defer p.Close(ctx)

	exec, err := p.Prepare(ctx, fakeBytecode, newApp(t))
	require.NoError(t, err)
	defer exec.Close(ctx)

	assert.Equal(t, "fake", exec.Backend())
	_, err = exec.ExecuteOperation(ctx, abi.OperationContext{}, []byte("v1"))
	require.NoError(t, err)
	got, err := exec.QueryApplication(ctx, abi.QueryContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
}
