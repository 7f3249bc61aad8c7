//go:build jack

package host

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/xthexder/go-jack"

	"github.com/famish99/jackbridge/internal/ports"
)

// maxMidiEvents bounds the events gathered per MIDI input port and block
const maxMidiEvents = 256

// Jack is a host backed by a JACK client
type Jack struct {
	name   string
	client *jack.Client

	audioIn, audioOut []*jack.Port
	midiIn, midiOut   []*jack.Port

	// Per-cycle views, reused across callbacks.
	frames  uint32
	inBuf   [][]float32
	outBuf  [][]float32
	events  [][]Event
	midiMsg jack.MidiData

	mu     sync.Mutex
	closed bool
}

// NewJack opens a JACK client without starting a server
func NewJack(name string) (Host, error) {
	client, status := jack.ClientOpen(name, jack.NoStartServer)
	if status != 0 || client == nil {
		return nil, fmt.Errorf("failed to open JACK client %q: %w", name, jack.StrError(status))
	}
	return &Jack{name: client.GetName(), client: client}, nil
}

func (j *Jack) Name() string        { return j.name }
func (j *Jack) SampleRate() float64 { return float64(j.client.GetSampleRate()) }
func (j *Jack) BufferFrames() int   { return int(j.client.GetBufferSize()) }

func (j *Jack) Open(plan ports.Plan) error {
	register := func(p ports.Port) (*jack.Port, error) {
		typ := jack.DEFAULT_AUDIO_TYPE
		if p.Kind == ports.Midi {
			typ = jack.DEFAULT_MIDI_TYPE
		}
		flags := uint64(jack.PortIsOutput)
		if p.Input {
			flags = uint64(jack.PortIsInput)
		}
		port := j.client.PortRegister(p.Name, typ, flags, 0)
		if port == nil {
			return nil, fmt.Errorf("failed to register port %s", p.Name)
		}
		return port, nil
	}
	for _, group := range []struct {
		dst  *[]*jack.Port
		list []ports.Port
	}{
		{&j.audioIn, plan.AudioIn},
		{&j.audioOut, plan.AudioOut},
		{&j.midiIn, plan.MidiIn},
		{&j.midiOut, plan.MidiOut},
	} {
		for _, p := range group.list {
			port, err := register(p)
			if err != nil {
				return err
			}
			*group.dst = append(*group.dst, port)
		}
	}
	j.inBuf = make([][]float32, len(j.audioIn))
	j.outBuf = make([][]float32, len(j.audioOut))
	j.events = make([][]Event, len(j.midiIn))
	for i := range j.events {
		j.events[i] = make([]Event, 0, maxMidiEvents)
	}
	return nil
}

func (j *Jack) Run(ctx context.Context, p Processor) error {
	if code := j.client.SetProcessCallback(func(nframes uint32) int {
		j.process(nframes, p)
		return 0
	}); code != 0 {
		return fmt.Errorf("failed to set process callback: %w", jack.StrError(code))
	}
	shutdown := make(chan struct{})
	var once sync.Once
	j.client.OnShutdown(func() { once.Do(func() { close(shutdown) }) })
	if code := j.client.Activate(); code != 0 {
		return fmt.Errorf("failed to activate JACK client: %w", jack.StrError(code))
	}
	select {
	case <-ctx.Done():
		return nil
	case <-shutdown:
		return fmt.Errorf("JACK server shut down")
	}
}

func (j *Jack) process(nframes uint32, p Processor) {
	j.frames = nframes
	for i, port := range j.audioIn {
		j.inBuf[i] = samples(port.GetBuffer(nframes))
	}
	for i, port := range j.audioOut {
		j.outBuf[i] = samples(port.GetBuffer(nframes))
	}
	for i, port := range j.midiIn {
		evs := j.events[i][:0]
		for _, ev := range port.GetMidiEvents(nframes) {
			if len(evs) == cap(evs) {
				break
			}
			evs = append(evs, Event{Offset: ev.Time, Data: ev.Buffer})
		}
		j.events[i] = evs
	}
	for _, port := range j.midiOut {
		port.MidiClearBuffer(nframes)
	}
	p.Process(jackCycle{j})
}

func (j *Jack) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if code := j.client.Close(); code != 0 {
		return fmt.Errorf("failed to close JACK client: %w", jack.StrError(code))
	}
	return nil
}

// samples views a JACK buffer as float32 without copying
func samples(buf []jack.AudioSample) []float32 {
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&buf[0])), len(buf))
}

type jackCycle struct{ j *Jack }

func (c jackCycle) Frames() int              { return int(c.j.frames) }
func (c jackCycle) AudioIn(i int) []float32  { return c.j.inBuf[i] }
func (c jackCycle) AudioOut(i int) []float32 { return c.j.outBuf[i] }
func (c jackCycle) MidiIn(i int) []Event     { return c.j.events[i] }

func (c jackCycle) WriteMidi(i int, ev Event) bool {
	c.j.midiMsg.Time = ev.Offset
	c.j.midiMsg.Buffer = ev.Data
	return c.j.midiOut[i].MidiEventWrite(&c.j.midiMsg, c.j.frames) == 0
}
