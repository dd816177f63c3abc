package abi

import (
	"fmt"
	"strings"

	"go.bytecodealliance.org/wit"
)

// MaxFlatResults is the number of core results a function may return
// directly; larger results go through a return pointer.
const MaxFlatResults = 1

// ValueType is a core WebAssembly value type.
type ValueType byte

const (
	I32 ValueType = 0x7f
	I64 ValueType = 0x7e
	F32 ValueType = 0x7d
	F64 ValueType = 0x7c
)

func (v ValueType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return fmt.Sprintf("valtype(0x%x)", byte(v))
	}
}

// Param is a named function parameter.
type Param struct {
	Type wit.Type
	Name string
}

// Function describes one boundary function by its WIT signature.
type Function struct {
	Name    string
	Params  []Param
	Results []wit.Type
}

// UsesRetptr reports whether the results are returned through memory.
func (f Function) UsesRetptr() bool {
	n := 0
	for _, r := range f.Results {
		n += flatCount(r)
	}
	return n > MaxFlatResults
}

// CoreImport returns the core signature of f lowered as a host import:
// oversized results become a trailing return-pointer parameter.
func (f Function) CoreImport() (params, results []ValueType) {
	params = f.flatParams()
	if f.UsesRetptr() {
		return append(params, I32), nil
	}
	return params, f.flatResults()
}

// CoreExport returns the core signature of f lifted from a guest export:
// oversized results are returned as a pointer.
func (f Function) CoreExport() (params, results []ValueType) {
	params = f.flatParams()
	if f.UsesRetptr() {
		return params, []ValueType{I32}
	}
	return params, f.flatResults()
}

// ParamNames returns the core parameter names, expanding lists into
// ptr/len pairs.
func (f Function) ParamNames() []string {
	var names []string
	for _, p := range f.Params {
		if n := flatCount(p.Type); n == 2 {
			names = append(names, p.Name+"_ptr", p.Name+"_len")
		} else {
			for i := 0; i < n; i++ {
				names = append(names, p.Name)
			}
		}
	}
	return names
}

// WIT renders the function as a WIT declaration.
func (f Function) WIT() string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(f.Name, "_", "-"))
	b.WriteString(": func(")
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteString(": ")
		b.WriteString(TypeName(p.Type))
	}
	b.WriteByte(')')
	if len(f.Results) == 1 {
		b.WriteString(" -> ")
		b.WriteString(TypeName(f.Results[0]))
	}
	return b.String()
}

func (f Function) flatParams() []ValueType {
	var out []ValueType
	for _, p := range f.Params {
		out = append(out, flatten(p.Type)...)
	}
	return out
}

func (f Function) flatResults() []ValueType {
	var out []ValueType
	for _, r := range f.Results {
		out = append(out, flatten(r)...)
	}
	return out
}

func flatCount(t wit.Type) int {
	return len(flatten(t))
}

func flatten(t wit.Type) []ValueType {
	switch v := t.(type) {
	case nil:
		return nil
	case wit.U64, wit.S64:
		return []ValueType{I64}
	case wit.F32:
		return []ValueType{F32}
	case wit.F64:
		return []ValueType{F64}
	case wit.String:
		return []ValueType{I32, I32}
	case *wit.TypeDef:
		switch k := v.Kind.(type) {
		case *wit.List:
			return []ValueType{I32, I32}
		case *wit.Record:
			var out []ValueType
			for _, f := range k.Fields {
				out = append(out, flatten(f.Type)...)
			}
			return out
		case *wit.Tuple:
			var out []ValueType
			for _, t := range k.Types {
				out = append(out, flatten(t)...)
			}
			return out
		case *wit.Option:
			return append([]ValueType{I32}, flatten(k.Type)...)
		case *wit.Result:
			return append([]ValueType{I32}, widest(flatten(k.OK), flatten(k.Err))...)
		case *wit.Variant:
			var payload []ValueType
			for _, c := range k.Cases {
				payload = widest(payload, flatten(c.Type))
			}
			return append([]ValueType{I32}, payload...)
		default:
			return []ValueType{I32}
		}
	default:
		return []ValueType{I32}
	}
}

// widest joins two case payloads. Mixed 32/64-bit slots widen to i64.
func widest(a, b []ValueType) []ValueType {
	if len(b) > len(a) {
		a, b = b, a
	}
	out := append([]ValueType(nil), a...)
	for i, t := range b {
		if out[i] != t {
			out[i] = I64
		}
	}
	return out
}

// TypeName renders a WIT type reference.
func TypeName(t wit.Type) string {
	switch v := t.(type) {
	case nil:
		return "_"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.U32:
		return "u32"
	case wit.U64:
		return "u64"
	case wit.S32:
		return "s32"
	case wit.S64:
		return "s64"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		switch k := v.Kind.(type) {
		case *wit.List:
			return "list<" + TypeName(k.Type) + ">"
		case *wit.Option:
			return "option<" + TypeName(k.Type) + ">"
		case *wit.Result:
			return "result<" + TypeName(k.OK) + ", " + TypeName(k.Err) + ">"
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}
