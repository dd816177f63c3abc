// Package errors provides structured error types for the wasm bridge.
//
// Errors are categorized by Phase (where in an invocation the error occurred) and
// Kind (error category). Four families matter to callers:
//
//	setup       Compile, Instantiation, MissingExport, MissingImportsError
//	boundary    Trap, Canceled (the backend's native error is the Cause)
//	storage     Storage; rendered to text before reaching the guest
//	invariant   Invariant; raised with panic, never returned
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindInvalidData).
//		Path("query_application_poll").
//		Detail("poll tag %d", tag).
//		Build()
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind, so a template error works as a target:
//
//	if errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseCompile, Kind: bridgeerrors.KindInvalidBytecode}) {
//		// malformed bytecode
//	}
package errors
