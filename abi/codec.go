package abi

import (
	"github.com/ava-labs/avalanchego/codec"
	"github.com/ava-labs/avalanchego/codec/linearcodec"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/wrappers"

	"github.com/wippyai/wasm-bridge/errors"
)

const (
	// CodecVersion is the current payload codec version.
	CodecVersion = 0

	maxPayloadSize = 4 << 20
)

// Codec encodes call contexts, session lists and structured results.
var Codec codec.Manager

func init() {
	c := linearcodec.NewDefault()
	Codec = codec.NewManager(maxPayloadSize)

	errs := wrappers.Errs{}
	errs.Add(
		Codec.RegisterCodec(CodecVersion, c),
	)
	if errs.Errored() {
		panic(errs.Err)
	}
}

// OperationContext describes the block position of an operation.
// A zero AuthenticatedSigner means the operation is unsigned.
type OperationContext struct {
	ChainID             ids.ID      `serialize:"true" json:"chainID"`
	Height              uint64      `serialize:"true" json:"height"`
	Index               uint32      `serialize:"true" json:"index"`
	AuthenticatedSigner ids.ShortID `serialize:"true" json:"authenticatedSigner"`
}

// EffectID identifies the operation that emitted an effect.
type EffectID struct {
	ChainID ids.ID `serialize:"true" json:"chainID"`
	Height  uint64 `serialize:"true" json:"height"`
	Index   uint32 `serialize:"true" json:"index"`
}

// EffectContext describes where an effect is executed and where it came from.
type EffectContext struct {
	ChainID  ids.ID   `serialize:"true" json:"chainID"`
	Height   uint64   `serialize:"true" json:"height"`
	EffectID EffectID `serialize:"true" json:"effectID"`
}

// CalleeContext describes a cross-application call.
// A zero AuthenticatedCallerID means the caller is not authenticated.
type CalleeContext struct {
	ChainID               ids.ID `serialize:"true" json:"chainID"`
	AuthenticatedCallerID ids.ID `serialize:"true" json:"authenticatedCallerID"`
}

// QueryContext describes a read-only query.
type QueryContext struct {
	ChainID ids.ID `serialize:"true" json:"chainID"`
}

// SessionID identifies a session owned by an application.
type SessionID struct {
	ApplicationID ids.ID `serialize:"true" json:"applicationID"`
	Kind          uint64 `serialize:"true" json:"kind"`
	Index         uint64 `serialize:"true" json:"index"`
}

// SessionParam is the state of the session a call_session targets.
type SessionParam struct {
	Kind uint64 `serialize:"true" json:"kind"`
	Data []byte `serialize:"true" json:"data"`
}

// NewSession is a session created by an application call.
type NewSession struct {
	Kind uint64 `serialize:"true" json:"kind"`
	Data []byte `serialize:"true" json:"data"`
}

// ApplicationCallResult is the ready payload of call_application.
type ApplicationCallResult struct {
	Value          []byte       `serialize:"true" json:"value"`
	CreateSessions []NewSession `serialize:"true" json:"createSessions"`
}

// SessionCallResult is the ready payload of call_session.
type SessionCallResult struct {
	Inner        ApplicationCallResult `serialize:"true" json:"inner"`
	CloseSession bool                  `serialize:"true" json:"closeSession"`
}

// ForwardedSessions is the session list passed to call_application and
// call_session.
type ForwardedSessions struct {
	Sessions []SessionID `serialize:"true" json:"sessions"`
}

// Encode marshals v with the current codec version.
func Encode(v any) ([]byte, error) {
	b, err := Codec.Marshal(CodecVersion, v)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "encode payload")
	}
	return b, nil
}

// Decode unmarshals b into v and rejects unknown codec versions.
func Decode(b []byte, v any) error {
	version, err := Codec.Unmarshal(b, v)
	if err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode payload")
	}
	if version != CodecVersion {
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Detail("unsupported codec version %d", version).
			Value(version).
			Build()
	}
	return nil
}
