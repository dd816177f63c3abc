package wazero

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/internal/guestmod"
)

// instantiate runs an import-free guest without the system host module.
func instantiate(t *testing.T, bytecode []byte) api.Module {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = r.Close(ctx) })
	mod, err := r.Instantiate(ctx, bytecode)
	require.NoError(t, err)
	return mod
}

// The guest encoder emits no name section, so these guests only resolve
// through their export names.
func TestNewAllocator_ResolvesByExportName(t *testing.T) {
	tests := []struct {
		name   string
		guest  []byte
		simple bool
	}{
		{"cabi_realloc", guestmod.NoImportGuest(true), false},
		{"alloc", guestmod.NoImportGuest(false), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := instantiate(t, tt.guest)

			g, err := newGuest(mod)
			require.NoError(t, err)
			g.alloc.setContext(context.Background())
			assert.Equal(t, tt.simple, g.alloc.simple)

			ptr, err := g.alloc.Alloc(16, 8)
			require.NoError(t, err)
			assert.NotZero(t, ptr)
			assert.Zero(t, ptr%8)
		})
	}
}

func TestNewGuest_NoMemory(t *testing.T) {
	mod := instantiate(t, guestmod.NoMemoryGuest())

	_, err := newGuest(mod)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseLink, Kind: errors.KindMissingExport}))
}
