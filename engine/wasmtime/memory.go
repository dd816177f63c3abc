//go:build cgo

package wasmtime

import (
	"fmt"

	"github.com/bytecodealliance/wasmtime-go/v41"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/errors"
)

// Memory is a view of guest memory through a store or a host call's caller.
// The backing slice moves when memory grows, so it is fetched per access.
type Memory struct {
	mem   *wasmtime.Memory
	store wasmtime.Storelike
}

func (m *Memory) data() []byte {
	return m.mem.UnsafeData(m.store)
}

func (m *Memory) span(offset, length uint32) ([]byte, bool) {
	data := m.data()
	end := uint64(offset) + uint64(length)
	if end > uint64(len(data)) {
		return nil, false
	}
	return data[offset:end], true
}

func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	b, ok := m.span(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseRuntime, offset, length)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	b, ok := m.span(offset, uint32(len(data)))
	if !ok {
		return errors.OutOfBounds(errors.PhaseRuntime, offset, uint32(len(data)))
	}
	copy(b, data)
	return nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	b, ok := m.span(offset, 4)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseRuntime, offset, 4)
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	b, ok := m.span(offset, 4)
	if !ok {
		return errors.OutOfBounds(errors.PhaseRuntime, offset, 4)
	}
	b[0], b[1], b[2], b[3] = byte(value), byte(value>>8), byte(value>>16), byte(value>>24)
	return nil
}

func (m *Memory) Size() uint32 {
	return uint32(m.mem.DataSize(m.store))
}

// allocator calls the guest's cabi_realloc, or alloc(size) when that is all
// the guest exports.
type allocator struct {
	fn     *wasmtime.Func
	simple bool
	store  wasmtime.Storelike
	before func()
}

func (a *allocator) Alloc(size, align uint32) (uint32, error) {
	var (
		res any
		err error
	)
	if a.before != nil {
		a.before()
	}
	if a.simple {
		res, err = a.fn.Call(a.store, int32(size))
	} else {
		res, err = a.fn.Call(a.store, int32(0), int32(0), int32(align), int32(size))
	}
	if err != nil {
		return 0, errors.New(errors.PhaseEncode, errors.KindAllocation).
			Detail("failed to allocate %d bytes (align %d)", size, align).
			Cause(err).
			Build()
	}
	ptr, ok := res.(int32)
	if !ok {
		return 0, errors.InvalidData(errors.PhaseEncode, []string{"alloc"}, fmt.Sprintf("allocator returned %T", res))
	}
	if ptr == 0 && size > 0 {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, align)
	}
	return uint32(ptr), nil
}

// guest is the wasmbridge.Guest view of an instance under one store context.
type guest struct {
	memory *Memory
	alloc  *allocator
}

type exporter func(name string) *wasmtime.Extern

func newGuest(store wasmtime.Storelike, export exporter) (*guest, error) {
	ext := export(abi.ExportMemory)
	if ext == nil || ext.Memory() == nil {
		return nil, errors.MissingExport(errors.PhaseLink, abi.ExportMemory)
	}
	a := &allocator{store: store}
	if ext := export(abi.CabiRealloc); ext != nil && ext.Func() != nil {
		a.fn = ext.Func()
	} else if ext := export(abi.SimpleAlloc); ext != nil && ext.Func() != nil {
		a.fn, a.simple = ext.Func(), true
	} else {
		return nil, errors.MissingExport(errors.PhaseLink, fmt.Sprintf("%s or %s", abi.CabiRealloc, abi.SimpleAlloc))
	}
	return &guest{memory: &Memory{mem: ext.Memory(), store: store}, alloc: a}, nil
}

func (g *guest) Memory() wasmbridge.Memory       { return g.memory }
func (g *guest) Allocator() wasmbridge.Allocator { return g.alloc }

var (
	_ wasmbridge.Memory      = (*Memory)(nil)
	_ wasmbridge.MemorySizer = (*Memory)(nil)
	_ wasmbridge.Allocator   = (*allocator)(nil)
	_ wasmbridge.Guest       = (*guest)(nil)
)
