package segment

import "fmt"

// Memory layout constants. Offsets are relative to the start of an instance
// slice; every register is a naturally aligned 64-bit word.
const (
	// Magic identifies an initialized instance slice.
	Magic = "JBRIDGE\x00"

	// Version is bumped whenever an offset below changes.
	Version = uint32(1)

	offMagic           = 0x000
	offVersion         = 0x008
	offSliceSize       = 0x010
	offGroups          = 0x018
	offChannels        = 0x020
	offMidiPorts       = 0x028
	offRingCapacity    = 0x080
	offNumberOfAnchors = 0x100
	offZeroHostTime    = 0x108
	offActivationSeed  = 0x110
	offSyncMode        = 0x118
	offAnchorFrame     = 0x120
	offDriverStatus    = 0x128
	offAnchorSequence  = 0x130
	offAnchorPeriod    = 0x138
	offFrameNumbers    = 0x180 // readFrameNumber[g], writeFrameNumber[g]
	offRingHeaders     = 0x400
	offMidiQueues      = 0x1000

	frameNumberStride = 0x10
	ringHeaderSize    = 0x40

	// SampleSize is the size in bytes of one float32 sample.
	SampleSize = 4

	// MidiQueueCapacity is the number of records per MIDI queue.
	MidiQueueCapacity = 512
	// MidiRecordSize is the encoded size of one MIDI record.
	MidiRecordSize = 16
	// MidiQueueHeaderSize is the size of the index block preceding the records.
	MidiQueueHeaderSize = 64

	// sliceAlign keeps instance slices and ring bases mappable at their offsets.
	sliceAlign = 0x10000

	MaxGroups    = 8
	MaxChannels  = 16
	MaxMidiPorts = 16
	MaxCapacity  = 1 << 20
)

// Direction names one half of a channel group's duplex pair.
type Direction int

const (
	// ToClient carries frames from the driver to the audio-graph client.
	ToClient Direction = iota
	// ToDriver carries frames from the audio-graph client to the driver.
	ToDriver
)

func (d Direction) String() string {
	switch d {
	case ToClient:
		return "to-client"
	case ToDriver:
		return "to-driver"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Layout describes the shape of one instance slice. Both peers must be built
// with the same Layout; it is never renegotiated at runtime.
type Layout struct {
	Groups           int // channel groups
	ChannelsPerGroup int // interleaved channels per group
	CapacityFrames   int // ring capacity in frames
	MidiPorts        int // bridged MIDI ports (one queue pair each)
}

// DefaultLayout matches the classic two stereo groups with 4K-frame rings.
func DefaultLayout() Layout {
	return Layout{
		Groups:           2,
		ChannelsPerGroup: 2,
		CapacityFrames:   4096,
		MidiPorts:        2,
	}
}

// Validate checks that the layout fits the fixed register map.
func (l Layout) Validate() error {
	if l.Groups < 1 || l.Groups > MaxGroups {
		return fmt.Errorf("%w: groups %d out of range [1,%d]", ErrInvalidLayout, l.Groups, MaxGroups)
	}
	if l.ChannelsPerGroup < 1 || l.ChannelsPerGroup > MaxChannels {
		return fmt.Errorf("%w: channels per group %d out of range [1,%d]", ErrInvalidLayout, l.ChannelsPerGroup, MaxChannels)
	}
	if l.CapacityFrames < 1 || l.CapacityFrames > MaxCapacity {
		return fmt.Errorf("%w: capacity %d out of range [1,%d]", ErrInvalidLayout, l.CapacityFrames, MaxCapacity)
	}
	if l.MidiPorts < 0 || l.MidiPorts > MaxMidiPorts {
		return fmt.Errorf("%w: midi ports %d out of range [0,%d]", ErrInvalidLayout, l.MidiPorts, MaxMidiPorts)
	}
	return nil
}

// RingBytes returns the size of one ring's sample area.
func (l Layout) RingBytes() int {
	return l.CapacityFrames * l.ChannelsPerGroup * SampleSize
}

// QueueStride returns the size of one MIDI queue including its header.
func (l Layout) QueueStride() int {
	return MidiQueueHeaderSize + MidiQueueCapacity*MidiRecordSize
}

// RingBase returns the offset of the first ring's sample area.
func (l Layout) RingBase() int {
	return alignUp(offMidiQueues+l.MidiPorts*2*l.QueueStride(), sliceAlign)
}

// Stride returns the size of one instance slice. Instance i lives at i*Stride().
func (l Layout) Stride() int {
	return alignUp(l.RingBase()+l.Groups*2*l.RingBytes(), sliceAlign)
}

// ringOffset returns the offset of the sample area for (group, dir).
func (l Layout) ringOffset(group int, dir Direction) int {
	return l.RingBase() + (group*2+int(dir))*l.RingBytes()
}

func (l Layout) ringHeaderOffset(group int, dir Direction) int {
	return offRingHeaders + (group*2+int(dir))*ringHeaderSize
}

func (l Layout) queueOffset(port int, dir Direction) int {
	return offMidiQueues + (port*2+int(dir))*l.QueueStride()
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
