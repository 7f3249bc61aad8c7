package host

import (
	"context"
	"testing"
	"time"

	"github.com/famish99/jackbridge/internal/ports"
	"github.com/famish99/jackbridge/internal/segment"
)

func TestSimStep(t *testing.T) {
	var got [][]float32
	var gotMidi []Event
	sim := NewSim("test", SimOptions{
		BufferFrames: 4,
		Source: func(pos uint64, in [][]float32) {
			for _, buf := range in {
				for i := range buf {
					buf[i] = float32(pos) + float32(i)
				}
			}
		},
		Sink: func(_ uint64, out [][]float32, midi [][]Event) {
			got = out
			gotMidi = append(gotMidi, midi[0]...)
		},
	})
	if err := sim.Open(ports.NewPlan("b", segment.Layout{Groups: 1, ChannelsPerGroup: 2, CapacityFrames: 64, MidiPorts: 1})); err != nil {
		t.Fatalf("Open: %v", err)
	}
	sim.Inject(0, Event{Offset: 1, Data: []byte{0x90, 60, 1}})

	var seen int
	copyThrough := ProcessorFunc(func(c Cycle) {
		seen += len(c.MidiIn(0))
		for _, ev := range c.MidiIn(0) {
			c.WriteMidi(0, ev)
		}
		copy(c.AudioOut(1), c.AudioIn(0))
	})
	sim.Step(copyThrough)
	sim.Step(copyThrough)

	if seen != 1 || len(gotMidi) != 1 || gotMidi[0].Offset != 1 {
		t.Fatalf("midi seen=%d out=%v", seen, gotMidi)
	}
	if got[1][3] != 7 || got[0][3] != 0 {
		t.Fatalf("outputs = %v", got)
	}
	if sim.Position() != 8 {
		t.Fatalf("position = %d", sim.Position())
	}
}

func TestSimRunStopsOnCancel(t *testing.T) {
	h, err := SimFactory(SimOptions{Paced: true})("test", 48000, 64)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if h.BufferFrames() != 64 || h.SampleRate() != 48000 {
		t.Fatalf("host = %d frames at %v Hz", h.BufferFrames(), h.SampleRate())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	calls := 0
	if err := h.Run(ctx, ProcessorFunc(func(Cycle) { calls++ })); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls == 0 {
		t.Fatal("processor never called")
	}
	h.Close()
	if err := h.Run(context.Background(), ProcessorFunc(func(Cycle) {})); err != ErrClosed {
		t.Fatalf("Run after Close = %v", err)
	}
}
