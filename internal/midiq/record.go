package midiq

import (
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// MaxData is the largest message a record carries.
const MaxData = 4

var (
	// ErrEmpty is returned for a zero-length message.
	ErrEmpty = errors.New("midiq: empty message")
	// ErrUnsupported is returned for messages that do not fit a record,
	// such as system exclusive.
	ErrUnsupported = errors.New("midiq: unsupported message")
)

// Record is one timestamped short MIDI message.
type Record struct {
	Data   [MaxData]byte
	Size   uint8
	Offset uint32 // frame offset within the block the event arrived in
}

// Bytes returns the message bytes.
func (r Record) Bytes() []byte { return r.Data[:r.Size] }

// Message returns the record as a MIDI message.
func (r Record) Message() midi.Message { return midi.Message(r.Bytes()) }

func (r Record) String() string {
	return fmt.Sprintf("%s @%d", r.Message(), r.Offset)
}

// Normalize turns raw message bytes, which carry no timing beyond the block
// they arrived in, into a record at the given frame offset.
func Normalize(raw []byte, offset uint32) (Record, error) {
	if len(raw) == 0 {
		return Record{}, ErrEmpty
	}
	msg := midi.Message(raw)
	if msg.Is(midi.SysExMsg) || len(raw) > MaxData {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrUnsupported, len(raw))
	}
	if msg.Type() == midi.UnknownMsg {
		return Record{}, fmt.Errorf("%w: % X", ErrUnsupported, raw)
	}
	rec := Record{Size: uint8(len(raw)), Offset: offset}
	copy(rec.Data[:], raw)
	return rec, nil
}

func (r Record) pack() (data, size, offset uint32) {
	data = uint32(r.Data[0]) | uint32(r.Data[1])<<8 | uint32(r.Data[2])<<16 | uint32(r.Data[3])<<24
	return data, uint32(r.Size), r.Offset
}

func unpack(data, size, offset uint32) Record {
	if size > MaxData {
		size = MaxData
	}
	return Record{
		Data:   [MaxData]byte{byte(data), byte(data >> 8), byte(data >> 16), byte(data >> 24)},
		Size:   uint8(size),
		Offset: offset,
	}
}
