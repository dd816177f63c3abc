package errors

import (
	"fmt"
	"sort"
	"strings"
)

// Phase indicates where in an invocation the error occurred
type Phase string

const (
	PhaseCompile     Phase = "compile"     // bytecode compilation
	PhaseInstantiate Phase = "instantiate" // import wiring and instantiation
	PhaseLink        Phase = "link"        // post-instantiation setup
	PhaseRuntime     Phase = "runtime"     // guest boundary calls
	PhaseStorage     Phase = "storage"     // storage capability access
	PhaseHost        Phase = "host"        // host function execution
	PhaseEncode      Phase = "encode"      // Go to guest memory
	PhaseDecode      Phase = "decode"      // guest memory to Go
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidBytecode Kind = "invalid_bytecode"
	KindInstantiation   Kind = "instantiation"
	KindMissingImport   Kind = "missing_import"
	KindMissingExport   Kind = "missing_export"
	KindTrap            Kind = "trap"
	KindCanceled        Kind = "canceled"
	KindInvariant       Kind = "invariant"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindAllocation      Kind = "allocation"
	KindInvalidData     Kind = "invalid_data"
	KindNotFound        Kind = "not_found"
	KindInvalidInput    Kind = "invalid_input"
	KindClosed          Kind = "closed"
	KindGuest           Kind = "guest"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Fatal reports whether the error aborts the invocation it was raised in.
// Only guest-reported errors leave the host driver in a usable state.
func (e *Error) Fatal() bool {
	return e.Kind != KindGuest
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path, for example an export name
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Setup errors

// Compile creates a fatal bytecode compilation error
func Compile(cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindInvalidBytecode,
		Detail: "compile module",
		Cause:  cause,
	}
}

// Instantiation creates a fatal instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Link creates a fatal error for post-instantiation setup
func Link(cause error) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindInstantiation,
		Detail: "set up instance",
		Cause:  cause,
	}
}

// MissingExport creates an error for a guest export the bridge requires
func MissingExport(phase Phase, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMissingExport,
		Path:   []string{name},
		Detail: fmt.Sprintf("guest does not export %q", name),
	}
}

// Boundary errors

// Trap wraps a backend error raised while a guest export was executing
func Trap(export string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTrap,
		Path:   []string{export},
		Detail: "guest call failed",
		Cause:  cause,
	}
}

// Canceled creates an error for a drive loop stopped by its context
func Canceled(export string, cause error) *Error {
	return &Error{
		Phase: PhaseRuntime,
		Kind:  KindCanceled,
		Path:  []string{export},
		Cause: cause,
	}
}

// Guest creates an error carrying the diagnostic text a guest returned.
// It is the only non-fatal kind: the invocation completed and reported a failure.
func Guest(export, text string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindGuest,
		Path:   []string{export},
		Detail: text,
	}
}

// Invariant creates an invariant violation. Callers panic with it.
func Invariant(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvariant,
		Detail: detail,
	}
}

// Storage wraps a storage capability failure
func Storage(op string, cause error) *Error {
	return &Error{
		Phase:  PhaseStorage,
		Kind:   KindInvalidData,
		Path:   []string{op},
		Detail: "storage operation failed",
		Cause:  cause,
	}
}

// Memory errors

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// OutOfBounds creates an out of bounds memory access error
func OutOfBounds(phase Phase, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("access of %d bytes at offset %d out of bounds", length, offset),
		Value:  offset,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Generic constructors

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed creates an error for use of a released resource
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Module string // e.g., "system"
	Name   string // e.g., "load_new"
}

// MissingImportsError is returned when a guest imports functions the host does not provide
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "module#name" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		mod, name := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Module: mod,
			Name:   name,
		})
	}
	return result
}

func parseImportKey(key string) (module, name string) {
	mod, name, found := strings.Cut(key, "#")
	if found {
		return mod, name
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[instantiate] missing_import: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d host function(s):\n", len(e.Imports)))

	byModule := make(map[string][]string)
	for _, imp := range e.Imports {
		byModule[imp.Module] = append(byModule[imp.Module], imp.Name)
	}
	modules := make([]string, 0, len(byModule))
	for mod := range byModule {
		modules = append(modules, mod)
	}
	sort.Strings(modules)

	for _, mod := range modules {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, name := range byModule[mod] {
			b.WriteString("    - ")
			b.WriteString(name)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}
