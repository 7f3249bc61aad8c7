package segment

import (
	"bytes"
	"errors"
	"testing"
	"unsafe"
)

func TestViewSizes(t *testing.T) {
	if got := unsafe.Sizeof(RingHeader{}); got != 0x40 {
		t.Errorf("RingHeader is %d bytes, want 64", got)
	}
	if got := unsafe.Sizeof(QueueHeader{}); got != MidiQueueHeaderSize {
		t.Errorf("QueueHeader is %d bytes, want %d", got, MidiQueueHeaderSize)
	}
	if got := unsafe.Sizeof(QueueSlot{}); got != MidiRecordSize {
		t.Errorf("QueueSlot is %d bytes, want %d", got, MidiRecordSize)
	}
}

func TestDefaultLayoutOffsets(t *testing.T) {
	l := DefaultLayout()
	if err := l.Validate(); err != nil {
		t.Fatalf("default layout invalid: %v", err)
	}
	if got := l.RingBase(); got != 0x10000 {
		t.Errorf("RingBase = %#x, want 0x10000", got)
	}
	if got := l.RingBytes(); got != 0x8000 {
		t.Errorf("RingBytes = %#x, want 0x8000", got)
	}
	if got := l.Stride(); got != 0x30000 {
		t.Errorf("Stride = %#x, want 0x30000", got)
	}
	if got := l.ringOffset(1, ToDriver); got != 0x28000 {
		t.Errorf("ringOffset(1, ToDriver) = %#x, want 0x28000", got)
	}
	if end := l.queueOffset(l.MidiPorts-1, ToDriver) + l.QueueStride(); end > l.RingBase() {
		t.Errorf("midi queues end at %#x, past ring base %#x", end, l.RingBase())
	}
}

func TestLayoutValidate(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
	}{
		{"zero groups", Layout{Groups: 0, ChannelsPerGroup: 2, CapacityFrames: 64}},
		{"too many groups", Layout{Groups: MaxGroups + 1, ChannelsPerGroup: 2, CapacityFrames: 64}},
		{"zero channels", Layout{Groups: 1, ChannelsPerGroup: 0, CapacityFrames: 64}},
		{"zero capacity", Layout{Groups: 1, ChannelsPerGroup: 2, CapacityFrames: 0}},
		{"negative ports", Layout{Groups: 1, ChannelsPerGroup: 2, CapacityFrames: 64, MidiPorts: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.layout.Validate(); !errors.Is(err, ErrInvalidLayout) {
				t.Fatalf("Validate() = %v, want ErrInvalidLayout", err)
			}
		})
	}
}

func TestInMemoryHeader(t *testing.T) {
	seg, err := NewInMemory(DefaultLayout())
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	defer seg.Close()

	if err := seg.verifyHeader(); err != nil {
		t.Fatalf("fresh header does not verify: %v", err)
	}
	if got := seg.RingCapacityFrames(); got != 4096 {
		t.Errorf("RingCapacityFrames = %d, want 4096", got)
	}
	if seg.DriverStatus() != 0 || seg.ActivationSeed() != 0 || seg.SyncMode() {
		t.Errorf("registers not zeroed: status=%d seed=%d sync=%v",
			seg.DriverStatus(), seg.ActivationSeed(), seg.SyncMode())
	}
	if got := len(seg.Samples(1, ToClient)); got != 4096*2 {
		t.Errorf("len(Samples) = %d, want %d", got, 4096*2)
	}
	if got := len(seg.QueueSlots(1, ToDriver)); got != MidiQueueCapacity {
		t.Errorf("len(QueueSlots) = %d", got)
	}
}

func TestSnapshotEncoding(t *testing.T) {
	seg, err := NewInMemory(DefaultLayout())
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	seg.SetSyncMode(true)
	seg.IncrementActivationSeed()
	seg.SetWriteFrameNumber(0, 1024)
	seg.QueueHeader(1, ToClient).AddDropped(3)

	var buf bytes.Buffer
	if err := EncodeSnapshot(&buf, seg.Snapshot()); err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	snap, err := DecodeSnapshot(&buf)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if !snap.SyncMode || snap.ActivationSeed != 1 {
		t.Errorf("snapshot registers = sync %v seed %d", snap.SyncMode, snap.ActivationSeed)
	}
	if len(snap.Groups) != 2 || snap.Groups[0].WriteFrameNumber != 1024 {
		t.Errorf("snapshot groups = %+v", snap.Groups)
	}
	if len(snap.Queues) != 4 || snap.Queues[2].Dropped != 3 || snap.Queues[2].Direction != "to-client" {
		t.Errorf("snapshot queues = %+v", snap.Queues)
	}
}
