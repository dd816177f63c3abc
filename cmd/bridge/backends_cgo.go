//go:build cgo

package main

import (
	_ "github.com/wippyai/wasm-bridge/engine/wasmtime"
)
