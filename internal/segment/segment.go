// Package segment implements the control segment shared by the audio-graph
// client and the platform driver: a fixed-size memory region holding the
// synchronization registers, the per-group sample rings and the MIDI queues
// of one bridge instance.
//
// Every register is a 64-bit word read and written with sync/atomic. Each
// word has exactly one writing process; the peer only loads it.
package segment

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Mapping is the memory backing a Segment. The shared memory implementation
// maps a slice of a file under /dev/shm; the in-memory implementation is a
// heap buffer used by tests and by single-process loopback runs.
type Mapping interface {
	// Bytes returns the mapped instance slice. The slice must be 8-byte aligned.
	Bytes() []byte
	// Close releases the mapping. Bytes must not be used afterwards.
	Close() error
}

// Segment is an attached instance slice. It is the handle passed to every
// transport operation; there is no package-level instance.
type Segment struct {
	name     string
	instance int
	layout   Layout
	mem      []byte
	mapping  Mapping
}

func newSegment(name string, instance int, layout Layout, m Mapping) (*Segment, error) {
	mem := m.Bytes()
	if len(mem) < layout.Stride() {
		return nil, fmt.Errorf("%w: mapped %d bytes, layout needs %d", ErrSizeMismatch, len(mem), layout.Stride())
	}
	if uintptr(unsafe.Pointer(&mem[0]))%8 != 0 {
		return nil, fmt.Errorf("%w: mapping is not 8-byte aligned", ErrMapFailed)
	}
	return &Segment{
		name:     name,
		instance: instance,
		layout:   layout,
		mem:      mem[:layout.Stride()],
		mapping:  m,
	}, nil
}

// Name returns the backing object name ("" for in-memory segments).
func (s *Segment) Name() string { return s.name }

// Instance returns the instance id this slice was attached for.
func (s *Segment) Instance() int { return s.instance }

// Layout returns the layout the segment was attached with.
func (s *Segment) Layout() Layout { return s.layout }

// Close detaches the segment. The shared object itself persists.
func (s *Segment) Close() error {
	if s.mapping == nil {
		return nil
	}
	err := s.mapping.Close()
	s.mapping = nil
	s.mem = nil
	return err
}

func (s *Segment) word(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&s.mem[off]))
}

func (s *Segment) load(off int) uint64 {
	return atomic.LoadUint64(s.word(off))
}

func (s *Segment) store(off int, v uint64) {
	atomic.StoreUint64(s.word(off), v)
}

// initHeader zero-initializes all registers and MIDI queues and writes the
// fingerprint.
// The magic is written last so a concurrent Attach never sees a half-written header.
func (s *Segment) initHeader() {
	clear(s.mem[:offMidiQueues])
	for p := 0; p < s.layout.MidiPorts; p++ {
		for _, d := range []Direction{ToClient, ToDriver} {
			off := s.layout.queueOffset(p, d)
			clear(s.mem[off : off+s.layout.QueueStride()])
		}
	}
	s.store(offVersion, uint64(Version))
	s.store(offSliceSize, uint64(s.layout.Stride()))
	s.store(offGroups, uint64(s.layout.Groups))
	s.store(offChannels, uint64(s.layout.ChannelsPerGroup))
	s.store(offMidiPorts, uint64(s.layout.MidiPorts))
	s.store(offRingCapacity, uint64(s.layout.CapacityFrames))
	s.store(offAnchorPeriod, uint64(s.layout.CapacityFrames))
	s.store(offMagic, magicWord())
}

// verifyHeader checks magic, version and the layout fingerprint.
func (s *Segment) verifyHeader() error {
	if s.load(offMagic) != magicWord() || uint32(s.load(offVersion)) != Version {
		return fmt.Errorf("%w: instance %d", ErrBadMagic, s.instance)
	}
	checks := []struct {
		name string
		off  int
		want int
	}{
		{"slice size", offSliceSize, s.layout.Stride()},
		{"channel groups", offGroups, s.layout.Groups},
		{"channels per group", offChannels, s.layout.ChannelsPerGroup},
		{"midi ports", offMidiPorts, s.layout.MidiPorts},
		{"ring capacity", offRingCapacity, s.layout.CapacityFrames},
	}
	for _, c := range checks {
		if got := s.load(c.off); got != uint64(c.want) {
			return fmt.Errorf("%w: %s is %d, expected %d", ErrFingerprintMismatch, c.name, got, c.want)
		}
	}
	return nil
}

func magicWord() uint64 {
	var w uint64
	for i := 0; i < 8; i++ {
		w |= uint64(Magic[i]) << (8 * i)
	}
	return w
}

// Register accessors.

// SyncMode reports whether the client publishes clock anchors.
func (s *Segment) SyncMode() bool { return s.load(offSyncMode) != 0 }

// SetSyncMode sets the sync mode flag.
func (s *Segment) SetSyncMode(on bool) {
	var v uint64
	if on {
		v = 1
	}
	s.store(offSyncMode, v)
}

// ActivationSeed returns the seed bumped once per activation.
func (s *Segment) ActivationSeed() uint64 { return s.load(offActivationSeed) }

// IncrementActivationSeed bumps the seed and returns the new value.
func (s *Segment) IncrementActivationSeed() uint64 {
	return atomic.AddUint64(s.word(offActivationSeed), 1)
}

// ZeroHostTime returns the host time of the most recent anchor.
func (s *Segment) ZeroHostTime() uint64 { return s.load(offZeroHostTime) }

// SetZeroHostTime stores the host time of a new anchor.
func (s *Segment) SetZeroHostTime(v uint64) { s.store(offZeroHostTime, v) }

// NumberOfAnchors returns the anchor sequence counter.
func (s *Segment) NumberOfAnchors() uint64 { return s.load(offNumberOfAnchors) }

// SetNumberOfAnchors stores the anchor sequence counter.
func (s *Segment) SetNumberOfAnchors(v uint64) { s.store(offNumberOfAnchors, v) }

// AnchorFrame returns the frame position of the most recent anchor.
func (s *Segment) AnchorFrame() uint64 { return s.load(offAnchorFrame) }

// SetAnchorFrame stores the frame position of a new anchor.
func (s *Segment) SetAnchorFrame(v uint64) { s.store(offAnchorFrame, v) }

// AnchorSequence returns the seqlock version guarding the anchor triad.
// It is odd while a write is in progress.
func (s *Segment) AnchorSequence() uint64 { return s.load(offAnchorSequence) }

// BumpAnchorSequence increments the anchor seqlock version.
func (s *Segment) BumpAnchorSequence() uint64 {
	return atomic.AddUint64(s.word(offAnchorSequence), 1)
}

// AnchorPeriod returns framesPerAnchorPeriod.
func (s *Segment) AnchorPeriod() uint64 { return s.load(offAnchorPeriod) }

// SetAnchorPeriod stores framesPerAnchorPeriod.
func (s *Segment) SetAnchorPeriod(v uint64) { s.store(offAnchorPeriod, v) }

// RingCapacityFrames returns the ring capacity recorded at creation.
func (s *Segment) RingCapacityFrames() uint64 { return s.load(offRingCapacity) }

// DriverStatus returns the raw driver status word.
func (s *Segment) DriverStatus() uint64 { return s.load(offDriverStatus) }

// SetDriverStatus stores the raw driver status word.
func (s *Segment) SetDriverStatus(v uint64) { s.store(offDriverStatus, v) }

// CompareAndSwapDriverStatus swaps the status word if it still holds old.
func (s *Segment) CompareAndSwapDriverStatus(old, new uint64) bool {
	return atomic.CompareAndSwapUint64(s.word(offDriverStatus), old, new)
}

// ReadFrameNumber returns the diagnostic read progress of a group.
func (s *Segment) ReadFrameNumber(group int) uint64 {
	return s.load(offFrameNumbers + group*frameNumberStride)
}

// SetReadFrameNumber stores the diagnostic read progress of a group.
func (s *Segment) SetReadFrameNumber(group int, v uint64) {
	s.store(offFrameNumbers+group*frameNumberStride, v)
}

// WriteFrameNumber returns the diagnostic write progress of a group.
func (s *Segment) WriteFrameNumber(group int) uint64 {
	return s.load(offFrameNumbers + group*frameNumberStride + 8)
}

// SetWriteFrameNumber stores the diagnostic write progress of a group.
func (s *Segment) SetWriteFrameNumber(group int, v uint64) {
	s.store(offFrameNumbers+group*frameNumberStride+8, v)
}
