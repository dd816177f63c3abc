package guestmod

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wasm-bridge/abi"
)

func TestLEB128(t *testing.T) {
	tests := []struct {
		name string
		emit func(*writer)
		want []byte
	}{
		{"u32 zero", func(w *writer) { w.u32(0) }, []byte{0x00}},
		{"u32 624485", func(w *writer) { w.u32(624485) }, []byte{0xe5, 0x8e, 0x26}},
		{"s32 -8", func(w *writer) { w.s32(-8) }, []byte{0x78}},
		{"s32 64", func(w *writer) { w.s32(64) }, []byte{0xc0, 0x00}},
		{"s32 -123456", func(w *writer) { w.s32(-123456) }, []byte{0xc0, 0xbb, 0x78}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w writer
			tt.emit(&w)
			assert.Equal(t, tt.want, w.bytes())
		})
	}
}

func TestEncode_Header(t *testing.T) {
	got := (&Module{}).Encode()
	assert.Equal(t, []byte("\x00asm\x01\x00\x00\x00"), got)
	compile(t, got)
}

func compile(t *testing.T, bytecode []byte) wazero.CompiledModule {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = r.Close(ctx) })
	compiled, err := r.CompileModule(ctx, bytecode)
	require.NoError(t, err)
	return compiled
}

func TestStateGuest_Compiles(t *testing.T) {
	compiled := compile(t, StateGuest())

	exports := compiled.ExportedFunctions()
	for _, name := range []string{abi.SimpleAlloc, abi.CabiRealloc} {
		assert.Contains(t, exports, name)
	}
	for _, fn := range abi.ApplicationExports {
		def, ok := exports[fn.Name]
		require.True(t, ok, "missing export %s", fn.Name)
		params, results := fn.CoreExport()
		assert.Len(t, def.ParamTypes(), len(params), fn.Name)
		assert.Len(t, def.ResultTypes(), len(results), fn.Name)
	}
	assert.Contains(t, compiled.ExportedMemories(), abi.ExportMemory)

	imports := compiled.ImportedFunctions()
	require.Len(t, imports, len(abi.SystemImports))
	for i, def := range imports {
		module, name, ok := def.Import()
		require.True(t, ok)
		assert.Equal(t, abi.SystemModule, module)
		assert.Equal(t, abi.SystemImports[i].Name, name)

		params, results := abi.SystemImports[i].CoreImport()
		assert.Len(t, def.ParamTypes(), len(params), name)
		assert.Len(t, def.ResultTypes(), len(results), name)
	}
}

func TestFixtures_Compile(t *testing.T) {
	fixtures := map[string][]byte{
		"alloc only":     AllocOnlyGuest(),
		"trap":           TrapGuest(),
		"spin":           SpinGuest(),
		"unknown import": UnknownImportGuest(),
		"no memory":      NoMemoryGuest(),
		"no import":      NoImportGuest(true),
	}
	for name, bytecode := range fixtures {
		t.Run(name, func(t *testing.T) {
			compile(t, bytecode)
		})
	}
}

func TestAllocOnlyGuest_HasNoRealloc(t *testing.T) {
	exports := compile(t, AllocOnlyGuest()).ExportedFunctions()
	assert.Contains(t, exports, abi.SimpleAlloc)
	assert.NotContains(t, exports, abi.CabiRealloc)
}
