package host

import (
	"context"
	"errors"

	"github.com/famish99/jackbridge/internal/ports"
)

// ErrClosed is returned when a host is used after Close
var ErrClosed = errors.New("host: closed")

// Event is one raw MIDI message at a frame offset within the current block
type Event struct {
	Offset uint32
	Data   []byte
}

// Cycle exposes the port buffers of one process callback. Buffers are only
// valid until the callback returns.
type Cycle interface {
	Frames() int
	AudioIn(i int) []float32
	AudioOut(i int) []float32
	MidiIn(i int) []Event
	WriteMidi(i int, ev Event) bool
}

// Processor is driven once per block on the host's realtime thread
type Processor interface {
	Process(c Cycle)
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(c Cycle)

func (f ProcessorFunc) Process(c Cycle) { f(c) }

// Host defines the interface that audio graph adapters must implement
type Host interface {
	// Host information
	Name() string
	SampleRate() float64
	BufferFrames() int

	// Open registers the ports of plan with the audio graph.
	Open(plan ports.Plan) error

	// Run drives p once per block until ctx is cancelled.
	Run(ctx context.Context, p Processor) error

	// Close releases the graph connection.
	Close() error
}

// Factory creates a new host instance for a named client. Hosts that
// follow an external graph ignore the requested rate and block size.
type Factory func(name string, sampleRate float64, blockFrames int) (Host, error)
