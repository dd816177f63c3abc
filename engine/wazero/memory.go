package wazero

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/errors"
)

// Memory wraps wazero memory to implement wasmbridge.Memory
type Memory struct {
	mem api.Memory
}

func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseRuntime, offset, length)
	}
	return data, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseRuntime, offset, uint32(len(data)))
	}
	return nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseRuntime, offset, 4)
	}
	return val, nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseRuntime, offset, 4)
	}
	return nil
}

func (m *Memory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// allocator calls the guest's exported allocator. cabi_realloc is preferred;
// a plain alloc(size) is accepted.
type allocator struct {
	fn       api.Function
	simple   bool
	mu       sync.Mutex
	stackBuf [4]uint64
	ctx      context.Context
}

// newAllocator resolves the allocator by export name. Definition names come
// from the optional name section and cannot be used for lookup.
func newAllocator(mod api.Module) *allocator {
	for _, name := range []string{abi.CabiRealloc, abi.SimpleAlloc} {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			continue
		}
		return &allocator{
			fn:     fn,
			simple: len(fn.Definition().ParamTypes()) < 4,
		}
	}
	return nil
}

// setContext sets the context allocations run under. Calls made from a host
// function must use the context of the guest call that is executing.
func (a *allocator) setContext(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx = ctx
}

func (a *allocator) Alloc(size, align uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx := a.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	stack := a.stackBuf[:]
	if a.simple {
		stack[0] = uint64(size)
		stack = stack[:1]
	} else {
		stack[0], stack[1], stack[2], stack[3] = 0, 0, uint64(align), uint64(size)
	}
	if err := a.fn.CallWithStack(ctx, stack); err != nil {
		return 0, errors.New(errors.PhaseEncode, errors.KindAllocation).
			Detail("failed to allocate %d bytes (align %d)", size, align).
			Cause(err).
			Build()
	}
	ptr := uint32(stack[0])
	if ptr == 0 && size > 0 {
		return 0, errors.AllocationFailed(errors.PhaseEncode, size, align)
	}
	debugf("alloc size=%d align=%d -> %d", size, align, ptr)
	return ptr, nil
}

// guest is the wasmbridge.Guest view of a module instance.
type guest struct {
	memory *Memory
	alloc  *allocator
}

func newGuest(mod api.Module) (*guest, error) {
	// Module.Memory wraps a nil instance in a non-nil interface for modules
	// without memory; the export lookup returns a plain nil.
	mem := mod.ExportedMemory(abi.ExportMemory)
	if mem == nil {
		return nil, errors.MissingExport(errors.PhaseLink, abi.ExportMemory)
	}
	alloc := newAllocator(mod)
	if alloc == nil {
		return nil, errors.MissingExport(errors.PhaseLink, fmt.Sprintf("%s or %s", abi.CabiRealloc, abi.SimpleAlloc))
	}
	return &guest{memory: &Memory{mem: mem}, alloc: alloc}, nil
}

func (g *guest) Memory() wasmbridge.Memory       { return g.memory }
func (g *guest) Allocator() wasmbridge.Allocator { return g.alloc }

var (
	_ wasmbridge.Memory      = (*Memory)(nil)
	_ wasmbridge.MemorySizer = (*Memory)(nil)
	_ wasmbridge.Allocator   = (*allocator)(nil)
	_ wasmbridge.Guest       = (*guest)(nil)
)
