package host

import (
	"context"
	"sync"
	"time"

	"github.com/famish99/jackbridge/internal/ports"
)

// Source fills the input buffers of a simulated cycle. pos is the frame
// number of the block start.
type Source func(pos uint64, in [][]float32)

// Sink receives the output buffers and MIDI of a simulated cycle
type Sink func(pos uint64, out [][]float32, midi [][]Event)

// SimOptions configures a simulated host
type SimOptions struct {
	SampleRate   float64
	BufferFrames int
	Source       Source
	Sink         Sink
	// Paced makes Run wait for each block's wall-clock duration. Unpaced
	// hosts run as fast as the processor allows.
	Paced bool
}

// Sim is a host with no audio hardware. It preallocates every buffer in
// Open so Process calls never allocate.
type Sim struct {
	name string
	opts SimOptions

	mu      sync.Mutex
	pending [][]Event // injected MIDI, swapped in at block start

	plan    ports.Plan
	in, out [][]float32
	midiIn  [][]Event
	midiOut [][]Event
	pos     uint64
	opened  bool
	closed  bool
}

// NewSim creates a simulated host
func NewSim(name string, opts SimOptions) *Sim {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 48000
	}
	if opts.BufferFrames <= 0 {
		opts.BufferFrames = 256
	}
	return &Sim{name: name, opts: opts}
}

// SimFactory returns a Factory producing simulated hosts
func SimFactory(opts SimOptions) Factory {
	return func(name string, sampleRate float64, blockFrames int) (Host, error) {
		o := opts
		if sampleRate > 0 {
			o.SampleRate = sampleRate
		}
		if blockFrames > 0 {
			o.BufferFrames = blockFrames
		}
		return NewSim(name, o), nil
	}
}

func (s *Sim) Name() string        { return s.name }
func (s *Sim) SampleRate() float64 { return s.opts.SampleRate }
func (s *Sim) BufferFrames() int   { return s.opts.BufferFrames }
func (s *Sim) Position() uint64    { return s.pos }

func (s *Sim) Open(plan ports.Plan) error {
	if s.closed {
		return ErrClosed
	}
	n := s.opts.BufferFrames
	s.plan = plan
	s.in = makeBuffers(len(plan.AudioIn), n)
	s.out = makeBuffers(len(plan.AudioOut), n)
	s.midiIn = make([][]Event, len(plan.MidiIn))
	s.midiOut = make([][]Event, len(plan.MidiOut))
	for i := range s.midiOut {
		s.midiOut[i] = make([]Event, 0, 64)
	}
	s.pending = make([][]Event, len(plan.MidiIn))
	s.opened = true
	return nil
}

// Inject queues a MIDI event for input port i in the next block
func (s *Sim) Inject(i int, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= 0 && i < len(s.pending) {
		s.pending[i] = append(s.pending[i], ev)
	}
}

// Step runs one block synchronously
func (s *Sim) Step(p Processor) {
	n := s.opts.BufferFrames
	if s.opts.Source != nil {
		s.opts.Source(s.pos, s.in)
	}
	for _, buf := range s.out {
		clear(buf)
	}
	s.mu.Lock()
	for i := range s.pending {
		s.midiIn[i], s.pending[i] = s.pending[i], s.midiIn[i][:0]
	}
	s.mu.Unlock()
	for i := range s.midiOut {
		s.midiOut[i] = s.midiOut[i][:0]
	}

	p.Process(simCycle{s})

	if s.opts.Sink != nil {
		s.opts.Sink(s.pos, s.out, s.midiOut)
	}
	s.pos += uint64(n)
}

func (s *Sim) Run(ctx context.Context, p Processor) error {
	if s.closed {
		return ErrClosed
	}
	if !s.opened {
		if err := s.Open(ports.Plan{}); err != nil {
			return err
		}
	}
	if !s.opts.Paced {
		for ctx.Err() == nil {
			s.Step(p)
		}
		return nil
	}
	period := time.Duration(float64(s.opts.BufferFrames) / s.opts.SampleRate * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Step(p)
		}
	}
}

func (s *Sim) Close() error {
	s.closed = true
	return nil
}

type simCycle struct{ s *Sim }

func (c simCycle) Frames() int              { return c.s.opts.BufferFrames }
func (c simCycle) AudioIn(i int) []float32  { return c.s.in[i] }
func (c simCycle) AudioOut(i int) []float32 { return c.s.out[i] }
func (c simCycle) MidiIn(i int) []Event     { return c.s.midiIn[i] }

func (c simCycle) WriteMidi(i int, ev Event) bool {
	if len(c.s.midiOut[i]) == cap(c.s.midiOut[i]) {
		return false
	}
	ev.Data = append([]byte(nil), ev.Data...)
	c.s.midiOut[i] = append(c.s.midiOut[i], ev)
	return true
}

func makeBuffers(n, frames int) [][]float32 {
	bufs := make([][]float32, n)
	for i := range bufs {
		bufs[i] = make([]float32, frames)
	}
	return bufs
}
