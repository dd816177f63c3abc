package abi

import (
	"testing"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-bridge/abi/abitest"
	"github.com/wippyai/wasm-bridge/errors"
)

func TestEntrypointNames(t *testing.T) {
	assert.Equal(t, "call_session_new", CallSession.New())
	assert.Equal(t, "call_session_poll", CallSession.Poll())
	assert.Len(t, Entrypoints, 5)
}

func TestOutcomeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
	}{
		{"pending", PendingOutcome()},
		{"ok", OkOutcome([]byte("hello"))},
		{"ok empty", OkOutcome(nil)},
		{"err", ErrOutcome("state is not locked")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := abitest.NewGuest(4096, 1024)
			require.NoError(t, WriteOutcome(g, 16, tt.outcome))

			got, err := ReadOutcome(g, 16)
			require.NoError(t, err)
			assert.Equal(t, tt.outcome.Status, got.Status)
			assert.Equal(t, string(tt.outcome.Data), string(got.Data))
		})
	}
}

func TestReadOutcome_Errors(t *testing.T) {
	g := abitest.NewGuest(64, 32)

	rec := EncodeRecord(Status(9), 0, 0)
	require.NoError(t, g.Write(0, rec[:]))
	_, err := ReadOutcome(g, 0)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindInvalidData})

	rec = EncodeRecord(StatusOk, 60, 100)
	require.NoError(t, g.Write(0, rec[:]))
	_, err = ReadOutcome(g, 0)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindOutOfBounds})

	_, err = ReadOutcome(g, 60)
	assert.Error(t, err)
}

func TestWriteOutcome_AllocationFailure(t *testing.T) {
	g := abitest.NewGuest(64, 32)
	g.FailAlloc = true
	assert.Error(t, WriteOutcome(g, 0, OkOutcome([]byte("x"))))
	assert.NoError(t, WriteOutcome(g, 0, PendingOutcome()), "pending records carry no payload")
}

func TestReadBytesCopies(t *testing.T) {
	g := abitest.NewGuest(64, 32)
	require.NoError(t, g.Write(8, []byte("abc")))

	b, err := ReadBytes(g, 8, 3)
	require.NoError(t, err)
	require.NoError(t, g.Write(8, []byte("xyz")))
	assert.Equal(t, []byte("abc"), b)
}

func TestCodecRoundTrip(t *testing.T) {
	app := ids.GenerateTestID()
	in := SessionCallResult{
		Inner: ApplicationCallResult{
			Value:          []byte("value"),
			CreateSessions: []NewSession{{Kind: 1, Data: []byte("s1")}, {Kind: 2, Data: []byte("s2")}},
		},
		CloseSession: true,
	}
	b, err := Encode(&in)
	require.NoError(t, err)

	var out SessionCallResult
	require.NoError(t, Decode(b, &out))
	assert.Equal(t, in, out)

	sessions := ForwardedSessions{Sessions: []SessionID{{ApplicationID: app, Kind: 3, Index: 4}}}
	b, err = Encode(&sessions)
	require.NoError(t, err)
	var gotSessions ForwardedSessions
	require.NoError(t, Decode(b, &gotSessions))
	assert.Equal(t, sessions, gotSessions)
}

func TestDecode_RejectsGarbage(t *testing.T) {
	var ctx QueryContext
	err := Decode([]byte{0xff}, &ctx)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindInvalidData})
}

func TestSystemImportSignatures(t *testing.T) {
	tests := []struct {
		name    string
		params  []ValueType
		results []ValueType
	}{
		{ImportLoadNew, nil, []ValueType{I32}},
		{ImportLoadPoll, []ValueType{I32, I32}, nil},
		{ImportLoadDrop, []ValueType{I32}, nil},
		{ImportLoadAndLockNew, nil, []ValueType{I32}},
		{ImportLoadAndLockPoll, []ValueType{I32, I32}, nil},
		{ImportStoreAndUnlock, []ValueType{I32, I32}, []ValueType{I32}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, ok := Lookup(SystemImports, tt.name)
			require.True(t, ok)
			params, results := fn.CoreImport()
			assert.Equal(t, tt.params, params)
			assert.Equal(t, tt.results, results)
		})
	}
}

func TestApplicationExportSignatures(t *testing.T) {
	tests := []struct {
		name   string
		params int
	}{
		{ExecuteOperation.New(), 4},
		{ExecuteEffect.New(), 4},
		{CallApplication.New(), 6},
		{CallSession.New(), 8},
		{QueryApplication.New(), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, ok := Lookup(ApplicationExports, tt.name)
			require.True(t, ok)
			params, results := fn.CoreExport()
			assert.Len(t, params, tt.params)
			assert.Equal(t, []ValueType{I32}, results)
			assert.Len(t, fn.ParamNames(), tt.params)
		})
	}

	poll, ok := Lookup(ApplicationExports, QueryApplication.Poll())
	require.True(t, ok)
	params, results := poll.CoreExport()
	assert.Equal(t, []ValueType{I32}, params)
	assert.Equal(t, []ValueType{I32}, results, "poll records are returned by pointer")
}

func TestWIT(t *testing.T) {
	fn, _ := Lookup(SystemImports, ImportStoreAndUnlock)
	assert.Equal(t, "store-and-unlock: func(state: list<u8>) -> bool", fn.WIT())

	fn, _ = Lookup(SystemImports, ImportLoadPoll)
	assert.Equal(t, "load-poll: func(future: u32) -> poll", fn.WIT())
}
