// Package abitest provides an in-memory guest for boundary tests.
package abitest

import (
	"encoding/binary"
	"fmt"
	"sync"

	wasmbridge "github.com/wippyai/wasm-bridge"
)

// Guest is a flat byte slice with a bump allocator. It satisfies
// wasmbridge.Guest, wasmbridge.Memory and wasmbridge.Allocator.
type Guest struct {
	mu   sync.Mutex
	mem  []byte
	next uint32

	// FailAlloc makes every allocation fail.
	FailAlloc bool
}

var (
	_ wasmbridge.Guest     = (*Guest)(nil)
	_ wasmbridge.Memory    = (*Guest)(nil)
	_ wasmbridge.Allocator = (*Guest)(nil)
)

// NewGuest creates a guest with size bytes of memory. Allocations start at
// base, leaving the low addresses free for fixed records.
func NewGuest(size, base uint32) *Guest {
	return &Guest{mem: make([]byte, size), next: base}
}

func (g *Guest) Memory() wasmbridge.Memory       { return g }
func (g *Guest) Allocator() wasmbridge.Allocator { return g }

// Size returns the memory size in bytes.
func (g *Guest) Size() uint32 { return uint32(len(g.mem)) }

func (g *Guest) Alloc(size, align uint32) (uint32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailAlloc {
		return 0, fmt.Errorf("allocation of %d bytes refused", size)
	}
	if align > 1 {
		g.next = (g.next + align - 1) &^ (align - 1)
	}
	if uint64(g.next)+uint64(size) > uint64(len(g.mem)) {
		return 0, fmt.Errorf("out of memory allocating %d bytes", size)
	}
	ptr := g.next
	g.next += size
	return ptr, nil
}

func (g *Guest) Read(offset, length uint32) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if uint64(offset)+uint64(length) > uint64(len(g.mem)) {
		return nil, fmt.Errorf("read %d bytes at %d out of range", length, offset)
	}
	return g.mem[offset : offset+length], nil
}

func (g *Guest) Write(offset uint32, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if uint64(offset)+uint64(len(data)) > uint64(len(g.mem)) {
		return fmt.Errorf("write %d bytes at %d out of range", len(data), offset)
	}
	copy(g.mem[offset:], data)
	return nil
}

func (g *Guest) ReadU32(offset uint32) (uint32, error) {
	b, err := g.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (g *Guest) WriteU32(offset uint32, value uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], value)
	return g.Write(offset, b[:])
}
