package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/famish99/jackbridge/internal/status"
)

// Report is the outcome of one monitor check.
type Report struct {
	Status     status.State
	Diff       int64  // driver write position minus client position, in frames
	IdleFrames uint64 // frames elapsed since the client's last callback
	MissSync   bool
	Underruns  uint64 // new since the previous check, both directions
	Discards   uint64
	Overruns   uint64
	MidiDrops  uint64
}

// Monitor watches a client's progress against the driver from outside the
// realtime path. It warns once when the two sides drift by half a ring or
// the client stops being called, and again only after recovery.
type Monitor struct {
	client   *Client
	interval time.Duration
	log      *slog.Logger

	notify func(subsystem string)

	warned bool
	seed   uint64
	prev   ClientStats
}

// Subsystems reported to a monitor's notify callback
const (
	SubsystemSession = "session"
	SubsystemSync    = "sync"
	SubsystemMidi    = "midi"
)

// NewMonitor creates a monitor checking c every interval.
func NewMonitor(c *Client, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &Monitor{client: c, interval: interval, log: c.log}
}

// SetNotifySubsystem registers fn to be called when a check observes a
// session start, a change of synchronization or dropped MIDI events.
// Call it before Run.
func (m *Monitor) SetNotifySubsystem(fn func(subsystem string)) {
	m.notify = fn
}

func (m *Monitor) changed(subsystem string) {
	if m.notify != nil {
		m.notify(subsystem)
	}
}

// Check compares the client's position with the driver's and logs changes.
func (m *Monitor) Check() Report {
	c := m.client
	st := c.Stats()
	r := Report{Status: c.Status()}

	for _, g := range st.Groups {
		r.Underruns += g.In.Underruns
		r.Discards += g.In.Discards
		r.Overruns += g.Out.Overruns
	}
	for _, q := range st.MidiUp {
		r.MidiDrops += q.Dropped
	}
	for _, q := range st.MidiDown {
		r.MidiDrops += q.Dropped
	}
	var prevUnder, prevDisc, prevOver, prevDrops uint64
	for _, g := range m.prev.Groups {
		prevUnder += g.In.Underruns
		prevDisc += g.In.Discards
		prevOver += g.Out.Overruns
	}
	for _, q := range m.prev.MidiUp {
		prevDrops += q.Dropped
	}
	for _, q := range m.prev.MidiDown {
		prevDrops += q.Dropped
	}
	r.Underruns -= min(prevUnder, r.Underruns)
	r.Discards -= min(prevDisc, r.Discards)
	r.Overruns -= min(prevOver, r.Overruns)
	r.MidiDrops -= min(prevDrops, r.MidiDrops)
	m.prev = st

	if st.Seed != 0 && st.Seed != m.seed {
		m.seed = st.Seed
		m.log.Info("Session started", "session", st.Session, "seed", st.Seed)
		m.changed(SubsystemSession)
	}
	if r.Status != status.Started {
		return r
	}

	capacity := uint64(c.seg.Layout().CapacityFrames)
	r.Diff = int64(c.seg.WriteFrameNumber(0) - st.Position)
	if st.LastCycle != 0 {
		now := c.opts.Clock.Now()
		if now > st.LastCycle {
			r.IdleFrames = uint64(float64(now-st.LastCycle) / c.anchor.TicksPerFrame())
		}
	}
	absDiff := uint64(r.Diff)
	if r.Diff < 0 {
		absDiff = uint64(-r.Diff)
	}
	r.MissSync = absDiff >= capacity/2 || (st.BlockFrames > 0 && r.IdleFrames >= 2*st.BlockFrames)

	switch {
	case r.MissSync && !m.warned:
		m.warned = true
		m.log.Warn("Miss synchronization detected",
			"frame", st.Position, "diff", r.Diff, "idle_frames", r.IdleFrames)
		m.changed(SubsystemSync)
	case !r.MissSync && m.warned:
		m.warned = false
		m.log.Info("Synchronization recovered", "frame", st.Position, "diff", r.Diff)
		m.changed(SubsystemSync)
	}
	if r.Underruns > 0 || r.Discards > 0 || r.Overruns > 0 {
		m.log.Debug("Ring conditions",
			"underruns", r.Underruns, "discards", r.Discards, "overruns", r.Overruns)
	}
	if r.MidiDrops > 0 {
		m.log.Warn("MIDI events dropped", "count", r.MidiDrops)
		m.changed(SubsystemMidi)
	}
	return r
}

// Run checks every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check()
		}
	}
}
