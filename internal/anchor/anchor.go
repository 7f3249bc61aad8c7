// Package anchor relates the client's sample clock to the host clock.
//
// The client periodically publishes an anchor: a frame number and the host
// time at which that frame is played. The triad (host time, frame, count)
// is guarded by a sequence word that is odd while a write is in progress,
// so the driver either sees a consistent anchor or retries.
package anchor

import (
	"errors"
	"math"

	"github.com/famish99/jackbridge/internal/segment"
)

var (
	// ErrNoAnchor is returned before the first anchor of a session.
	ErrNoAnchor = errors.New("anchor: no anchor published")
	// ErrTornRead is returned when every retry overlapped a write. Callers
	// keep using their previous anchor.
	ErrTornRead = errors.New("anchor: torn read")
)

// readRetries bounds the seqlock loop on the realtime path.
const readRetries = 8

// Anchor pairs a frame number with the host time it is played at.
type Anchor struct {
	SampleTime uint64 // frame number on the client timeline
	HostTime   uint64 // host clock ticks
	Seed       uint64 // activation seed, bumped when the timeline restarts
	Count      uint64 // anchors published this activation
}

// Converter maps between frames and host ticks around an anchor.
type Converter struct {
	ticksPerFrame float64
}

// NewConverter returns a converter for a host clock running at freq ticks
// per second and the given sample rate.
func NewConverter(freq uint64, sampleRate float64) Converter {
	return Converter{ticksPerFrame: float64(freq) / sampleRate}
}

// TicksPerFrame returns the host ticks spanned by one frame.
func (c Converter) TicksPerFrame() float64 { return c.ticksPerFrame }

// HostTime returns the host time at which sampleTime is played.
func (c Converter) HostTime(a Anchor, sampleTime uint64) uint64 {
	d := float64(int64(sampleTime-a.SampleTime)) * c.ticksPerFrame
	return a.HostTime + uint64(int64(math.Round(d)))
}

// SampleTime returns the frame played at hostTime.
func (c Converter) SampleTime(a Anchor, hostTime uint64) uint64 {
	d := float64(int64(hostTime-a.HostTime)) / c.ticksPerFrame
	return a.SampleTime + uint64(int64(math.Round(d)))
}

// Writer publishes anchors from the client's realtime callback.
type Writer struct {
	seg    *segment.Segment
	clock  Clock
	conv   Converter
	period uint64
	sync   bool
	pos    uint64
}

// NewWriter returns a writer that publishes one anchor per period frames.
func NewWriter(seg *segment.Segment, clock Clock, sampleRate float64, period int) *Writer {
	if period <= 0 {
		period = seg.Layout().CapacityFrames
	}
	return &Writer{
		seg:    seg,
		clock:  clock,
		conv:   NewConverter(clock.Frequency(), sampleRate),
		period: uint64(period),
	}
}

// Activate starts a new timeline: the seed is bumped, the frame position
// returns to zero and the sync mode is published. It returns the new seed.
func (w *Writer) Activate(syncMode bool) uint64 {
	w.pos = 0
	w.sync = syncMode
	w.seg.SetAnchorPeriod(w.period)
	w.seg.SetSyncMode(syncMode)
	w.seg.BumpAnchorSequence()
	w.seg.SetNumberOfAnchors(0)
	w.seg.BumpAnchorSequence()
	return w.seg.IncrementActivationSeed()
}

// Position returns the frame number at the start of the next block.
func (w *Writer) Position() uint64 { return w.pos }

// TicksPerFrame returns the host ticks spanned by one frame.
func (w *Writer) TicksPerFrame() float64 { return w.conv.ticksPerFrame }

// Tick accounts for a block of n frames starting now. If the block crosses
// period boundaries an anchor is published for the last of them, with its
// host time extrapolated from the block start. It reports whether it
// published.
func (w *Writer) Tick(n int) bool {
	if n <= 0 {
		return false
	}
	start := w.pos
	w.pos += uint64(n)
	if !w.sync {
		return false
	}
	boundary := (w.pos - 1) / w.period * w.period
	if boundary < start {
		return false
	}
	host := w.clock.Now() + uint64(math.Round(float64(boundary-start)*w.conv.ticksPerFrame))
	w.publish(boundary, host)
	return true
}

func (w *Writer) publish(frame, host uint64) {
	w.seg.BumpAnchorSequence()
	w.seg.SetAnchorFrame(frame)
	w.seg.SetZeroHostTime(host)
	w.seg.SetNumberOfAnchors(w.seg.NumberOfAnchors() + 1)
	w.seg.BumpAnchorSequence()
}

// Reader fetches anchors on the driver side.
type Reader struct {
	seg *segment.Segment
}

// NewReader returns a reader over seg.
func NewReader(seg *segment.Segment) *Reader {
	return &Reader{seg: seg}
}

// SyncMode reports whether the client publishes anchors.
func (r *Reader) SyncMode() bool { return r.seg.SyncMode() }

// Period returns frames per anchor period.
func (r *Reader) Period() uint64 { return r.seg.AnchorPeriod() }

// ZeroTimestamp returns the most recent consistent anchor.
func (r *Reader) ZeroTimestamp() (Anchor, error) {
	for i := 0; i < readRetries; i++ {
		s1 := r.seg.AnchorSequence()
		if s1&1 != 0 {
			continue
		}
		a := Anchor{
			SampleTime: r.seg.AnchorFrame(),
			HostTime:   r.seg.ZeroHostTime(),
			Count:      r.seg.NumberOfAnchors(),
			Seed:       r.seg.ActivationSeed(),
		}
		if r.seg.AnchorSequence() != s1 {
			continue
		}
		if a.Count == 0 {
			return a, ErrNoAnchor
		}
		return a, nil
	}
	return Anchor{}, ErrTornRead
}
