package runtime

import (
	"context"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/system"
)

// Import is one function a compiled module imports.
type Import struct {
	Module string
	Name   string
}

// Module is a compiled guest module.
type Module interface {
	// Imports lists the functions the module imports.
	Imports() []Import
}

// Instance is an instantiated guest.
type Instance interface {
	wasmbridge.Guest

	// Call invokes an exported function with flat core arguments.
	Call(ctx context.Context, name string, params ...uint64) ([]uint64, error)

	// Close releases the instance.
	Close(ctx context.Context) error
}

// Setup is the second phase of host registration, run once the guest is
// instantiated. Backends use it to bind guest memory and allocator to the
// host functions registered by Link.
type Setup func(ctx context.Context, inst Instance) error

// Runtime is a sandboxing engine. S is the engine's execution store, created
// once per invocation and passed to every other method.
type Runtime[S any] interface {
	// Name identifies the backend.
	Name() string

	// NewStore creates a fresh execution store.
	NewStore(ctx context.Context) (S, error)

	// Compile validates and compiles bytecode.
	Compile(ctx context.Context, store S, bytecode []byte) (Module, error)

	// Link registers the system API as the guest's "system" imports.
	Link(ctx context.Context, store S, api *system.API) (Setup, error)

	// Instantiate creates the guest from a compiled module, resolving its
	// imports against what Link registered.
	Instantiate(ctx context.Context, store S, module Module) (Instance, error)

	// CloseStore releases the store and everything created in it.
	CloseStore(ctx context.Context, store S) error
}
