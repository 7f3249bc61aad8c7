package ports

import (
	"fmt"

	"github.com/famish99/jackbridge/internal/segment"
)

// Kind distinguishes audio from MIDI ports
type Kind int

const (
	Audio Kind = iota
	Midi
)

func (k Kind) String() string {
	if k == Midi {
		return "midi"
	}
	return "audio"
}

// Port describes one host graph port and where its data lives in the segment
type Port struct {
	Name  string
	Kind  Kind
	Input bool // data flows from the host graph into the bridge

	// Audio ports map onto one channel of a channel group.
	Group   int
	Channel int

	// MIDI ports map onto one queue pair.
	Index int
}

// Plan is the ordered set of ports one bridge instance registers
type Plan struct {
	Bridge   string
	AudioIn  []Port
	AudioOut []Port
	MidiIn   []Port
	MidiOut  []Port
}

// NewPlan lays out ports for a segment layout. Audio ports are numbered
// from zero and fill channel groups in order; MIDI ports are numbered
// from one.
func NewPlan(bridge string, l segment.Layout) Plan {
	p := Plan{Bridge: bridge}
	n := l.Groups * l.ChannelsPerGroup
	for i := 0; i < n; i++ {
		g, c := i/l.ChannelsPerGroup, i%l.ChannelsPerGroup
		p.AudioIn = append(p.AudioIn, Port{Name: fmt.Sprintf("input_%d", i), Kind: Audio, Input: true, Group: g, Channel: c})
		p.AudioOut = append(p.AudioOut, Port{Name: fmt.Sprintf("output_%d", i), Kind: Audio, Group: g, Channel: c})
	}
	for i := 0; i < l.MidiPorts; i++ {
		p.MidiIn = append(p.MidiIn, Port{Name: fmt.Sprintf("event_in_%d", i+1), Kind: Midi, Input: true, Index: i})
		p.MidiOut = append(p.MidiOut, Port{Name: fmt.Sprintf("event_out_%d", i+1), Kind: Midi, Index: i})
	}
	return p
}

// All returns every port in registration order
func (p Plan) All() []Port {
	all := make([]Port, 0, len(p.AudioIn)+len(p.AudioOut)+len(p.MidiIn)+len(p.MidiOut))
	all = append(all, p.AudioIn...)
	all = append(all, p.AudioOut...)
	all = append(all, p.MidiIn...)
	return append(all, p.MidiOut...)
}

// Lookup finds a port by name
func (p Plan) Lookup(name string) (Port, error) {
	for _, port := range p.All() {
		if port.Name == name {
			return port, nil
		}
	}
	return Port{}, fmt.Errorf("port not found: %s", name)
}

// GroupPorts returns the indices into ports that belong to group, ordered by channel
func GroupPorts(ports []Port, group int) []int {
	var idx []int
	for i, port := range ports {
		if port.Kind == Audio && port.Group == group {
			idx = append(idx, i)
		}
	}
	return idx
}

// VirtualName returns the name of the n-th virtual MIDI endpoint exposed
// on the driver side, numbered from zero
func (p Plan) VirtualName(n int) string {
	return fmt.Sprintf("%s %d", p.Bridge, n+1)
}
