package abi

import (
	"encoding/binary"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// RecordSize is the size in bytes of a poll record.
const RecordSize = 12

// Status is the tag of a poll record.
type Status uint32

const (
	StatusPending Status = 0
	StatusOk      Status = 1
	StatusErr     Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusOk:
		return "ok"
	case StatusErr:
		return "err"
	default:
		return "invalid"
	}
}

// Outcome is one poll result as it crosses the boundary.
type Outcome struct {
	Data   []byte
	Status Status
}

// PendingOutcome reports an unfinished computation.
func PendingOutcome() Outcome { return Outcome{Status: StatusPending} }

// OkOutcome reports success with a payload.
func OkOutcome(data []byte) Outcome { return Outcome{Status: StatusOk, Data: data} }

// ErrOutcome reports failure as diagnostic text.
func ErrOutcome(text string) Outcome { return Outcome{Status: StatusErr, Data: []byte(text)} }

// Pending reports whether the outcome is pending.
func (o Outcome) Pending() bool { return o.Status == StatusPending }

// Text returns the payload as a string, for error outcomes.
func (o Outcome) Text() string { return string(o.Data) }

// EncodeRecord lays out a record for a payload already placed at ptr.
func EncodeRecord(status Status, ptr, length uint32) [RecordSize]byte {
	var rec [RecordSize]byte
	binary.LittleEndian.PutUint32(rec[0:], uint32(status))
	binary.LittleEndian.PutUint32(rec[4:], ptr)
	binary.LittleEndian.PutUint32(rec[8:], length)
	return rec
}

// WriteOutcome copies the payload into guest memory through the guest's
// allocator and writes the record at retptr.
func WriteOutcome(guest wasmbridge.Guest, retptr uint32, o Outcome) error {
	var ptr, length uint32
	if o.Status != StatusPending {
		var err error
		ptr, length, err = WriteBytes(guest, o.Data)
		if err != nil {
			return err
		}
	}
	rec := EncodeRecord(o.Status, ptr, length)
	if err := guest.Memory().Write(retptr, rec[:]); err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write poll record")
	}
	return nil
}

// ReadOutcome reads the record at ptr and copies its payload out of guest
// memory.
func ReadOutcome(mem wasmbridge.Memory, ptr uint32) (Outcome, error) {
	raw, err := mem.Read(ptr, RecordSize)
	if err != nil {
		return Outcome{}, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "read poll record")
	}
	status := Status(binary.LittleEndian.Uint32(raw[0:]))
	dataPtr := binary.LittleEndian.Uint32(raw[4:])
	dataLen := binary.LittleEndian.Uint32(raw[8:])

	switch status {
	case StatusPending:
		return PendingOutcome(), nil
	case StatusOk, StatusErr:
		data, err := ReadBytes(mem, dataPtr, dataLen)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: status, Data: data}, nil
	default:
		return Outcome{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Detail("unknown poll tag %d", uint32(status)).
			Value(uint32(status)).
			Build()
	}
}

// WriteBytes allocates len(data) bytes in the guest and copies data there.
// Empty payloads are not allocated and are reported at address 0.
func WriteBytes(guest wasmbridge.Guest, data []byte) (ptr, length uint32, err error) {
	if len(data) == 0 {
		return 0, 0, nil
	}
	length = uint32(len(data))
	ptr, err = guest.Allocator().Alloc(length, 1)
	if err != nil {
		return 0, 0, err
	}
	if err := guest.Memory().Write(ptr, data); err != nil {
		return 0, 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write payload")
	}
	return ptr, length, nil
}

// ReadBytes copies length bytes at ptr out of guest memory.
func ReadBytes(mem wasmbridge.Memory, ptr, length uint32) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	raw, err := mem.Read(ptr, length)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "read payload")
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}
