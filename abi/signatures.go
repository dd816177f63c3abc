package abi

import (
	"go.bytecodealliance.org/wit"
)

func named(name string, kind wit.TypeDefKind) *wit.TypeDef {
	return &wit.TypeDef{Name: &name, Kind: kind}
}

var (
	bytesType  = &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}
	futureType = wit.U32{}

	// pollType is the record every poll function yields:
	// variant { pending, ready(result<list<u8>, string>) }
	pollType = named("poll", &wit.Variant{
		Cases: []wit.Case{
			{Name: "pending"},
			{Name: "ready", Type: &wit.TypeDef{Kind: &wit.Result{OK: bytesType, Err: wit.String{}}}},
		},
	})
)

// SystemImports describes the functions the host provides in SystemModule.
var SystemImports = []Function{
	{Name: ImportLoadNew, Results: []wit.Type{futureType}},
	{Name: ImportLoadPoll, Params: []Param{{Name: "future", Type: futureType}}, Results: []wit.Type{pollType}},
	{Name: ImportLoadDrop, Params: []Param{{Name: "future", Type: futureType}}},
	{Name: ImportLoadAndLockNew, Results: []wit.Type{futureType}},
	{Name: ImportLoadAndLockPoll, Params: []Param{{Name: "future", Type: futureType}}, Results: []wit.Type{pollType}},
	{Name: ImportLoadAndLockDrop, Params: []Param{{Name: "future", Type: futureType}}},
	{Name: ImportStoreAndUnlock, Params: []Param{{Name: "state", Type: bytesType}}, Results: []wit.Type{wit.Bool{}}},
}

// ApplicationExports describes the entry points a guest application exports.
var ApplicationExports = buildExports()

func buildExports() []Function {
	ctx := Param{Name: "context", Type: bytesType}
	arg := Param{Name: "argument", Type: bytesType}
	sessions := Param{Name: "forwarded_sessions", Type: bytesType}
	session := Param{Name: "session", Type: bytesType}

	params := map[Entrypoint][]Param{
		ExecuteOperation: {ctx, {Name: "operation", Type: bytesType}},
		ExecuteEffect:    {ctx, {Name: "effect", Type: bytesType}},
		CallApplication:  {ctx, arg, sessions},
		CallSession:      {ctx, session, arg, sessions},
		QueryApplication: {ctx, arg},
	}

	out := make([]Function, 0, 2*len(Entrypoints))
	for _, e := range Entrypoints {
		out = append(out,
			Function{Name: e.New(), Params: params[e], Results: []wit.Type{futureType}},
			Function{Name: e.Poll(), Params: []Param{{Name: "future", Type: futureType}}, Results: []wit.Type{pollType}},
		)
	}
	return out
}

// Lookup finds a function by name in fns.
func Lookup(fns []Function, name string) (Function, bool) {
	for _, f := range fns {
		if f.Name == name {
			return f, true
		}
	}
	return Function{}, false
}
