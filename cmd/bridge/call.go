package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/spf13/pflag"

	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/runtime"
)

// callOptions fill the call contexts the entry points receive.
type callOptions struct {
	Chain       string
	Height      uint64
	SessionKind uint64
	SessionData string
	Hex         bool
}

func (o *callOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Chain, "chain", "", "chain ID (cb58, empty = zero ID)")
	fs.Uint64Var(&o.Height, "height", 0, "block height of operations and effects")
	fs.Uint64Var(&o.SessionKind, "session-kind", 0, "session kind for call_session")
	fs.StringVar(&o.SessionData, "session-data", "", "session state for call_session")
	fs.BoolVar(&o.Hex, "hex", false, "argument is hex encoded")
}

func (o *callOptions) argument(s string) ([]byte, error) {
	if o.Hex {
		return hex.DecodeString(s)
	}
	return []byte(s), nil
}

func (o *callOptions) chainID() (ids.ID, error) {
	if o.Chain == "" {
		return ids.Empty, nil
	}
	return ids.FromString(o.Chain)
}

func parseEntrypoint(name string) (abi.Entrypoint, error) {
	for _, e := range abi.Entrypoints {
		if string(e) == name {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown entry point %q", name)
}

// invoke drives one entry point to completion and renders its result.
func invoke(ctx context.Context, exec runtime.Executor, entry abi.Entrypoint, arg []byte, o *callOptions) (string, error) {
	chain, err := o.chainID()
	if err != nil {
		return "", fmt.Errorf("parse --chain: %w", err)
	}

	switch entry {
	case abi.ExecuteOperation:
		out, err := exec.ExecuteOperation(ctx, abi.OperationContext{ChainID: chain, Height: o.Height}, arg)
		return formatBytes(out), err
	case abi.ExecuteEffect:
		out, err := exec.ExecuteEffect(ctx, abi.EffectContext{ChainID: chain, Height: o.Height}, arg)
		return formatBytes(out), err
	case abi.QueryApplication:
		out, err := exec.QueryApplication(ctx, abi.QueryContext{ChainID: chain}, arg)
		return formatBytes(out), err
	case abi.CallApplication:
		res, err := exec.CallApplication(ctx, abi.CalleeContext{ChainID: chain}, arg, nil)
		if err != nil {
			return "", err
		}
		return formatJSON(res)
	case abi.CallSession:
		session := abi.SessionParam{Kind: o.SessionKind, Data: []byte(o.SessionData)}
		res, err := exec.CallSession(ctx, abi.CalleeContext{ChainID: chain}, session, arg, nil)
		if err != nil {
			return "", err
		}
		return formatJSON(res)
	default:
		return "", fmt.Errorf("unknown entry point %q", entry)
	}
}

func formatBytes(b []byte) string {
	return strconv.Quote(string(b))
}

func formatJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
