package bridge

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/famish99/jackbridge/internal/anchor"
	"github.com/famish99/jackbridge/internal/host"
	"github.com/famish99/jackbridge/internal/ports"
	"github.com/famish99/jackbridge/internal/segment"
	"github.com/famish99/jackbridge/internal/status"
)

// Driver is the platform device endpoint of a bridge instance. Its cycle's
// AudioIn buffers carry what applications play into the device, and its
// AudioOut buffers receive what applications record from it.
type Driver struct {
	seg    *segment.Segment
	name   string
	opts   Options
	status *status.Machine
	reader *anchor.Reader
	conv   anchor.Converter
	log    *slog.Logger

	groups  []groupIO
	scratch []float32

	running atomic.Bool

	// IO-thread state.
	pos        uint64
	seed       uint64
	startHost  uint64
	last       anchor.Anchor
	haveAnchor bool

	startFailures atomic.Uint64
	staleAnchors  atomic.Uint64
	cycles        atomic.Uint64
}

// NewDriver creates the driver endpoint for seg. The device's channels are
// laid out like the host ports of plan.
func NewDriver(seg *segment.Segment, plan ports.Plan, opts Options) (*Driver, error) {
	opts = opts.withDefaults()
	l := seg.Layout()
	inPorts := make([][]int, l.Groups)
	outPorts := make([][]int, l.Groups)
	for g := 0; g < l.Groups; g++ {
		inPorts[g] = ports.GroupPorts(plan.AudioOut, g)
		outPorts[g] = ports.GroupPorts(plan.AudioIn, g)
	}
	groups, err := newGroups(seg, segment.ToClient, segment.ToDriver, inPorts, outPorts, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create rings: %w", err)
	}
	return &Driver{
		seg:     seg,
		name:    plan.Bridge,
		opts:    opts,
		status:  status.New(seg),
		reader:  anchor.NewReader(seg),
		conv:    anchor.NewConverter(opts.Clock.Frequency(), opts.SampleRate),
		log:     opts.Logger.With("instance", seg.Instance(), "bridge", plan.Bridge),
		groups:  groups,
		scratch: make([]float32, l.CapacityFrames*l.ChannelsPerGroup),
	}, nil
}

// StartIO marks the device IO path ready. Status moves to STARTED on the
// next cycle that finds it ACTIVE. Call it before the device starts
// invoking Process.
func (d *Driver) StartIO() {
	d.pos = 0
	d.startHost = d.opts.Clock.Now()
	d.haveAnchor = false
	d.running.Store(true)
	d.log.Info("Driver IO started")
}

// StopIO stops the IO path and forces status back to INIT so the client
// restarts its timeline when IO resumes.
func (d *Driver) StopIO() {
	if !d.running.Swap(false) {
		return
	}
	d.status.Reset()
	d.log.Info("Driver IO stopped", "frames", d.pos)
}

// Instance returns the segment instance the driver is attached to.
func (d *Driver) Instance() int { return d.seg.Instance() }

// Name returns the bridge name.
func (d *Driver) Name() string { return d.name }

// Running reports whether IO is started.
func (d *Driver) Running() bool { return d.running.Load() }

// Process runs one device IO cycle.
func (d *Driver) Process(cy host.Cycle) {
	frames := cy.Frames()
	n := min(frames, d.seg.Layout().CapacityFrames)
	d.cycles.Add(1)
	if !d.running.Load() || !d.tryStart() {
		for g := range d.groups {
			d.groups[g].silence(cy)
		}
		return
	}
	if seed := d.seg.ActivationSeed(); seed != d.seed {
		// The client started a new timeline and rewound its write counters.
		d.seed = seed
		for g := range d.groups {
			d.groups[g].in.Seek(0)
		}
	}
	for g := range d.groups {
		gr := &d.groups[g]
		gr.transfer(cy, d.scratch, n)
		if n < frames {
			gr.clearTail(cy, n)
		}
		w, _ := gr.out.Indices()
		_, r := gr.in.Indices()
		d.seg.SetWriteFrameNumber(g, w)
		d.seg.SetReadFrameNumber(g, r)
	}
	d.pos += uint64(n)
}

func (d *Driver) tryStart() bool {
	switch d.status.Get() {
	case status.Started:
		return true
	case status.Init:
		d.startFailures.Add(1)
		return false
	}
	d.rebase()
	if err := d.status.Start(); err != nil {
		d.startFailures.Add(1)
		return false
	}
	return true
}

// rebase restarts the driver's side of the timeline. It runs before the
// CAS to STARTED, so the client never sees the previous run's counters.
// Whatever the client wrote before is skipped.
func (d *Driver) rebase() {
	d.seed = d.seg.ActivationSeed()
	for g := range d.groups {
		gr := &d.groups[g]
		gr.out.Restart()
		w, _ := gr.in.Indices()
		gr.in.Seek(w)
		d.seg.SetWriteFrameNumber(g, 0)
		d.seg.SetReadFrameNumber(g, 0)
	}
}

// ZeroTimestamp returns the anchor the device reports to its host. In sync
// mode it is the client's latest anchor; a torn or missing read falls back
// to the previous anchor. Without sync mode the device free-runs on its own
// clock from StartIO. Call it from the IO thread.
func (d *Driver) ZeroTimestamp() anchor.Anchor {
	if d.reader.SyncMode() {
		a, err := d.reader.ZeroTimestamp()
		if err == nil {
			d.last, d.haveAnchor = a, true
			return a
		}
		if d.haveAnchor {
			d.staleAnchors.Add(1)
			return d.last
		}
	}
	period := d.reader.Period()
	if period == 0 {
		period = uint64(d.seg.Layout().CapacityFrames)
	}
	frame := d.pos / period * period
	return anchor.Anchor{
		SampleTime: frame,
		HostTime:   d.startHost + uint64(math.Round(float64(frame)*d.conv.TicksPerFrame())),
		Seed:       d.seg.ActivationSeed(),
		Count:      frame/period + 1,
	}
}

// Converter returns the sample/host time converter of the device.
func (d *Driver) Converter() anchor.Converter { return d.conv }

// DriverStats is a snapshot of a driver's counters.
type DriverStats struct {
	Running       bool
	Status        status.State
	Cycles        uint64
	StartFailures uint64 // cycles that found status not yet ACTIVE
	StaleAnchors  uint64 // anchor reads that fell back to the previous anchor
	Groups        []RingStats
}

// Stats returns the driver's counters.
func (d *Driver) Stats() DriverStats {
	return DriverStats{
		Running:       d.running.Load(),
		Status:        d.status.Get(),
		Cycles:        d.cycles.Load(),
		StartFailures: d.startFailures.Load(),
		StaleAnchors:  d.staleAnchors.Load(),
		Groups:        groupStats(d.groups),
	}
}
