// Package ring moves interleaved audio frames across the process boundary
// through the sample rings of a control segment.
//
// Two addressing strategies implement the same Ring interface:
//
//   - Implicit: the position is the writer's monotonic frame counter modulo
//     capacity. The reader has no cursor; it reads the last count frames the
//     writer published and zero-fills them. Both sides must run the same
//     nominal callback cadence.
//   - Explicit: the reader owns its own cursor. Reads underrun when less
//     than count frames are buffered and jump forward when the backlog
//     exceeds the latency ceiling.
//
// Neither strategy blocks or allocates on the data path. Steady-state
// conditions (underrun, backlog discard, writer lapping the reader) are
// counted in Stats, never returned as errors.
package ring

import (
	"fmt"
	"sync/atomic"

	"github.com/famish99/jackbridge/internal/segment"
)

// Variant selects the addressing strategy.
type Variant string

const (
	// Implicit derives ring positions from the writer's frame counter.
	Implicit Variant = "implicit"
	// Explicit keeps independent write and read cursors.
	Explicit Variant = "explicit"
)

// ParseVariant validates a configured variant name.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case Implicit, Explicit:
		return Variant(s), nil
	default:
		return "", fmt.Errorf("unknown ring variant %q (want %q or %q)", s, Implicit, Explicit)
	}
}

// DefaultMaxDelay is the backlog ceiling in frames for the explicit variant.
const DefaultMaxDelay = 1024

// Ring is one direction of one channel group.
type Ring interface {
	// WriteFrames copies count interleaved frames from samples into the ring
	// and publishes them. It returns the number of frames accepted, which is
	// count clamped to what samples holds.
	WriteFrames(samples []float32, count int) int
	// ReadFrames copies count interleaved frames into out. It returns 0 and
	// leaves out untouched when the frames are not available.
	ReadFrames(out []float32, count int) int
	// Channels returns the interleaved channel count.
	Channels() int
	// Capacity returns the ring capacity in frames.
	Capacity() int
	// Indices returns the shared write and read frame counters.
	Indices() (w, r uint64)
	// Restart rewinds the write counter to frame zero. Only the producer
	// calls it, when it starts a new timeline.
	Restart()
	// Seek moves the read counter to frame r. Only the consumer calls it.
	Seek(r uint64)
	// Stats returns a snapshot of the ring's counters.
	Stats() Stats
}

// Stats counts progress and degraded conditions of one ring endpoint.
type Stats struct {
	FramesWritten   uint64 // frames accepted by WriteFrames
	FramesRead      uint64 // frames delivered by ReadFrames
	Underruns       uint64 // reads that found fewer than count frames
	Discards        uint64 // reads that skipped a backlog above the ceiling
	DiscardedFrames uint64 // frames skipped by those reads
	Overruns        uint64 // writes that lapped unread data
	Clamped         uint64 // calls whose count exceeded ring capacity or buffer size
}

type counters struct {
	written, read, underruns, discards, discarded, overruns, clamped atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		FramesWritten:   c.written.Load(),
		FramesRead:      c.read.Load(),
		Underruns:       c.underruns.Load(),
		Discards:        c.discards.Load(),
		DiscardedFrames: c.discarded.Load(),
		Overruns:        c.overruns.Load(),
		Clamped:         c.clamped.Load(),
	}
}

// New returns the ring for (group, dir) of seg using the given strategy.
// maxDelay only applies to the explicit variant; values outside
// (0, capacity) fall back to min(DefaultMaxDelay, capacity/2).
func New(seg *segment.Segment, group int, dir segment.Direction, v Variant, maxDelay int) (Ring, error) {
	l := seg.Layout()
	b := base{
		hdr:      seg.RingHeader(group, dir),
		buf:      seg.Samples(group, dir),
		channels: l.ChannelsPerGroup,
		capacity: l.CapacityFrames,
	}
	switch v {
	case Implicit:
		return &offsetRing{base: b}, nil
	case Explicit:
		if maxDelay <= 0 || maxDelay >= l.CapacityFrames {
			maxDelay = min(DefaultMaxDelay, l.CapacityFrames/2)
		}
		return &pointerRing{base: b, maxDelay: uint64(maxDelay)}, nil
	default:
		return nil, fmt.Errorf("unknown ring variant %q", v)
	}
}

// base holds what both strategies share: the index block, the sample
// area and the copy helpers that wrap mid-copy.
type base struct {
	hdr      *segment.RingHeader
	buf      []float32
	channels int
	capacity int
	stats    counters
}

func (b *base) Channels() int { return b.channels }
func (b *base) Capacity() int { return b.capacity }
func (b *base) Stats() Stats  { return b.stats.snapshot() }

func (b *base) Indices() (w, r uint64) {
	return b.hdr.WriteIndex(), b.hdr.ReadIndex()
}

func (b *base) Restart()      { b.hdr.SetWriteIndex(0) }
func (b *base) Seek(r uint64) { b.hdr.SetReadIndex(r) }

// clamp bounds count by the frames the caller's buffer holds.
func (b *base) clamp(count, bufLen int) int {
	if count < 0 {
		return 0
	}
	if limit := bufLen / b.channels; count > limit {
		b.stats.clamped.Add(1)
		return limit
	}
	return count
}

// copyIn writes src starting at frame position pos, wrapping at capacity.
// len(src) must not exceed the ring size.
func (b *base) copyIn(pos uint64, src []float32) {
	off := int(pos%uint64(b.capacity)) * b.channels
	n := copy(b.buf[off:], src)
	if n < len(src) {
		copy(b.buf, src[n:])
	}
}

// copyOut reads len(dst) samples starting at frame position pos.
func (b *base) copyOut(pos uint64, dst []float32) {
	off := int(pos%uint64(b.capacity)) * b.channels
	n := copy(dst, b.buf[off:])
	if n < len(dst) {
		copy(dst[n:], b.buf)
	}
}

// zero clears n samples starting at frame position pos.
func (b *base) zero(pos uint64, n int) {
	off := int(pos%uint64(b.capacity)) * b.channels
	end := off + n
	if end <= len(b.buf) {
		clear(b.buf[off:end])
		return
	}
	clear(b.buf[off:])
	clear(b.buf[:end-len(b.buf)])
}

// write is the producer path shared by both strategies. Only the trailing
// capacity frames of an oversized block survive; the counter still advances
// by the full count so the timeline stays intact.
func (b *base) write(samples []float32, count int) (start uint64, n int) {
	n = b.clamp(count, len(samples))
	w := b.hdr.WriteIndex()
	src := samples[:n*b.channels]
	pos := w
	if n > b.capacity {
		b.stats.clamped.Add(1)
		skip := n - b.capacity
		src = src[skip*b.channels:]
		pos += uint64(skip)
	}
	b.copyIn(pos, src)
	b.hdr.SetWriteIndex(w + uint64(n))
	b.stats.written.Add(uint64(n))
	return w, n
}

// Pull reads count frames from r into out and silences out when the ring
// has nothing to deliver. It returns the frames actually read.
func Pull(r Ring, out []float32, count int) int {
	n := r.ReadFrames(out, count)
	if n == 0 {
		end := min(count*r.Channels(), len(out))
		if end > 0 {
			clear(out[:end])
		}
	}
	return n
}
