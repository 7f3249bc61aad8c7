package segment

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot is a point-in-time copy of an instance's registers, used by the
// diagnostic tooling. Fields are loaded one at a time and may be mutually
// inconsistent while peers are running.
type Snapshot struct {
	Instance        int            `msgpack:"instance"`
	SliceSize       uint64         `msgpack:"slice_size"`
	RingCapacity    uint64         `msgpack:"ring_capacity_frames"`
	SyncMode        bool           `msgpack:"sync_mode"`
	ActivationSeed  uint64         `msgpack:"activation_seed"`
	ZeroHostTime    uint64         `msgpack:"zero_host_time"`
	NumberOfAnchors uint64         `msgpack:"number_of_anchors"`
	AnchorFrame     uint64         `msgpack:"anchor_frame"`
	AnchorPeriod    uint64         `msgpack:"anchor_period"`
	DriverStatus    uint64         `msgpack:"driver_status"`
	Groups          []GroupState   `msgpack:"groups"`
	Queues          []QueueState   `msgpack:"queues"`
}

// GroupState holds the counters of one channel group.
type GroupState struct {
	ReadFrameNumber  uint64 `msgpack:"read_frame_number"`
	WriteFrameNumber uint64 `msgpack:"write_frame_number"`
	ToClientWrite    uint64 `msgpack:"to_client_write"`
	ToClientRead     uint64 `msgpack:"to_client_read"`
	ToDriverWrite    uint64 `msgpack:"to_driver_write"`
	ToDriverRead     uint64 `msgpack:"to_driver_read"`
}

// QueueState holds the counters of one MIDI queue.
type QueueState struct {
	Port      int    `msgpack:"port"`
	Direction string `msgpack:"direction"`
	Written   uint64 `msgpack:"written"`
	Read      uint64 `msgpack:"read"`
	Dropped   uint64 `msgpack:"dropped"`
	LastDrop  uint64 `msgpack:"last_drop"`
}

// Snapshot copies the current register values.
func (s *Segment) Snapshot() Snapshot {
	snap := Snapshot{
		Instance:        s.instance,
		SliceSize:       s.load(offSliceSize),
		RingCapacity:    s.RingCapacityFrames(),
		SyncMode:        s.SyncMode(),
		ActivationSeed:  s.ActivationSeed(),
		ZeroHostTime:    s.ZeroHostTime(),
		NumberOfAnchors: s.NumberOfAnchors(),
		AnchorFrame:     s.AnchorFrame(),
		AnchorPeriod:    s.AnchorPeriod(),
		DriverStatus:    s.DriverStatus(),
	}
	for g := 0; g < s.layout.Groups; g++ {
		up, down := s.RingHeader(g, ToClient), s.RingHeader(g, ToDriver)
		snap.Groups = append(snap.Groups, GroupState{
			ReadFrameNumber:  s.ReadFrameNumber(g),
			WriteFrameNumber: s.WriteFrameNumber(g),
			ToClientWrite:    up.WriteIndex(),
			ToClientRead:     up.ReadIndex(),
			ToDriverWrite:    down.WriteIndex(),
			ToDriverRead:     down.ReadIndex(),
		})
	}
	for p := 0; p < s.layout.MidiPorts; p++ {
		for _, d := range []Direction{ToClient, ToDriver} {
			q := s.QueueHeader(p, d)
			snap.Queues = append(snap.Queues, QueueState{
				Port:      p,
				Direction: d.String(),
				Written:   q.WriteIndex(),
				Read:      q.ReadIndex(),
				Dropped:   q.Dropped(),
				LastDrop:  q.LastDrop(),
			})
		}
	}
	return snap
}

// EncodeSnapshot writes snap to w as msgpack.
func EncodeSnapshot(w io.Writer, snap Snapshot) error {
	if err := msgpack.NewEncoder(w).Encode(&snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// DecodeSnapshot reads a msgpack snapshot from r.
func DecodeSnapshot(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}
