package bridge

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/famish99/jackbridge/internal/anchor"
	"github.com/famish99/jackbridge/internal/host"
	"github.com/famish99/jackbridge/internal/midiq"
	"github.com/famish99/jackbridge/internal/ports"
	"github.com/famish99/jackbridge/internal/segment"
	"github.com/famish99/jackbridge/internal/status"
)

// Client is the audio graph endpoint of a bridge instance.
type Client struct {
	seg    *segment.Segment
	plan   ports.Plan
	opts   Options
	status *status.Machine
	anchor *anchor.Writer
	log    *slog.Logger

	groups   []groupIO
	midiUp   []*midiq.Queue // audio graph to driver
	midiDown []*midiq.Queue // driver to audio graph
	scratch  []float32
	midiBuf  [midiq.MaxData]byte

	// Realtime-thread state.
	started bool

	// Published for the monitor.
	pos          atomic.Uint64
	seed         atomic.Uint64
	block        atomic.Uint64
	lastCycle    atomic.Uint64
	cycles       atomic.Uint64
	midiRejected atomic.Uint64
	midiLost     atomic.Uint64

	mu      sync.Mutex
	session uuid.UUID
	active  bool
}

// NewClient creates the client endpoint for seg with host ports laid out
// by plan.
func NewClient(seg *segment.Segment, plan ports.Plan, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	l := seg.Layout()
	inPorts := make([][]int, l.Groups)
	outPorts := make([][]int, l.Groups)
	for g := 0; g < l.Groups; g++ {
		inPorts[g] = ports.GroupPorts(plan.AudioIn, g)
		outPorts[g] = ports.GroupPorts(plan.AudioOut, g)
	}
	groups, err := newGroups(seg, segment.ToDriver, segment.ToClient, inPorts, outPorts, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create rings: %w", err)
	}
	c := &Client{
		seg:     seg,
		plan:    plan,
		opts:    opts,
		status:  status.New(seg),
		anchor:  anchor.NewWriter(seg, opts.Clock, opts.SampleRate, opts.AnchorPeriod),
		log:     opts.Logger.With("instance", seg.Instance(), "bridge", plan.Bridge),
		groups:  groups,
		scratch: make([]float32, l.CapacityFrames*l.ChannelsPerGroup),
	}
	for p := 0; p < min(len(plan.MidiIn), l.MidiPorts); p++ {
		c.midiUp = append(c.midiUp, midiq.New(seg, p, segment.ToDriver, opts.Clock))
	}
	for p := 0; p < min(len(plan.MidiOut), l.MidiPorts); p++ {
		c.midiDown = append(c.midiDown, midiq.New(seg, p, segment.ToClient, opts.Clock))
	}
	return c, nil
}

// Activate begins a session by forcing status back to INIT; the memory
// itself persists. The client's ring counters restart with its timeline
// and the driver rebases its own. Call it before the host starts invoking
// Process.
func (c *Client) Activate() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Reset()
	c.started = false
	c.pos.Store(0)
	c.session = uuid.New()
	c.active = true
	c.log.Info("Session activated", "session", c.session, "variant", c.opts.Variant, "sync_mode", c.opts.SyncMode)
	return c.session
}

// Deactivate ends the session and forces status back to INIT. Call it
// after the host has stopped invoking Process.
func (c *Client) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.status.Reset()
	c.active = false
	c.log.Info("Session deactivated", "session", c.session, "frames", c.pos.Load())
}

// Process runs one audio graph callback.
func (c *Client) Process(cy host.Cycle) {
	frames := cy.Frames()
	n := min(frames, c.seg.Layout().CapacityFrames)
	c.lastCycle.Store(c.opts.Clock.Now())
	c.block.Store(uint64(frames))
	c.cycles.Add(1)

	c.processMidi(cy, n)

	st := c.status.Get()
	if st == status.Init {
		// The first callback after attach opens the session for the driver.
		_ = c.status.Activate()
	}
	if st != status.Started {
		c.started = false
		for g := range c.groups {
			c.groups[g].silence(cy)
		}
		return
	}
	if !c.started {
		// Counters restart before the seed bump that tells the driver.
		for g := range c.groups {
			c.groups[g].out.Restart()
			c.groups[g].in.Seek(0)
		}
		c.seed.Store(c.anchor.Activate(c.opts.SyncMode))
		c.started = true
	}
	c.anchor.Tick(n)
	for g := range c.groups {
		c.groups[g].transfer(cy, c.scratch, n)
		if n < frames {
			c.groups[g].clearTail(cy, n)
		}
	}
	c.pos.Store(c.anchor.Position())
}

func (c *Client) processMidi(cy host.Cycle, n int) {
	for p, q := range c.midiUp {
		for _, ev := range cy.MidiIn(p) {
			rec, err := midiq.Normalize(ev.Data, ev.Offset)
			if err != nil {
				c.midiRejected.Add(1)
				continue
			}
			q.Enqueue(rec)
		}
	}
	for p, q := range c.midiDown {
		var last uint32
		for {
			rec, ok := q.Dequeue()
			if !ok {
				break
			}
			// Offsets belong to the producer's block; keep them inside this
			// block and non-decreasing.
			off := max(last, min(rec.Offset, uint32(max(n-1, 0))))
			last = off
			c.midiBuf = rec.Data
			if !cy.WriteMidi(p, host.Event{Offset: off, Data: c.midiBuf[:rec.Size]}) {
				c.midiLost.Add(1)
			}
		}
	}
}

// Instance returns the segment instance the client is attached to.
func (c *Client) Instance() int { return c.seg.Instance() }

// Name returns the bridge name.
func (c *Client) Name() string { return c.plan.Bridge }

// Position returns the frame number at the start of the next block.
func (c *Client) Position() uint64 { return c.pos.Load() }

// SessionID returns the id of the current session.
func (c *Client) SessionID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Status returns the driver status seen by the client.
func (c *Client) Status() status.State { return c.status.Get() }

// ClientStats is a snapshot of a client's counters.
type ClientStats struct {
	Session      uuid.UUID
	Seed         uint64
	Position     uint64
	Cycles       uint64
	BlockFrames  uint64
	LastCycle    uint64 // host time of the most recent callback
	Groups       []RingStats
	MidiUp       []midiq.Stats
	MidiDown     []midiq.Stats
	MidiRejected uint64 // input events that could not be normalized
	MidiLost     uint64 // output events the host refused
}

// Stats returns the client's counters.
func (c *Client) Stats() ClientStats {
	st := ClientStats{
		Session:      c.SessionID(),
		Seed:         c.seed.Load(),
		Position:     c.pos.Load(),
		Cycles:       c.cycles.Load(),
		BlockFrames:  c.block.Load(),
		LastCycle:    c.lastCycle.Load(),
		Groups:       groupStats(c.groups),
		MidiRejected: c.midiRejected.Load(),
		MidiLost:     c.midiLost.Load(),
	}
	for _, q := range c.midiUp {
		st.MidiUp = append(st.MidiUp, q.Stats())
	}
	for _, q := range c.midiDown {
		st.MidiDown = append(st.MidiDown, q.Stats())
	}
	return st
}
