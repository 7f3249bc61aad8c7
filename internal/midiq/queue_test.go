package midiq

import (
	"errors"
	"sync"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/famish99/jackbridge/internal/anchor"
	"github.com/famish99/jackbridge/internal/segment"
)

func newQueue(t *testing.T) (*Queue, *anchor.ManualClock) {
	t.Helper()
	seg, err := segment.NewInMemory(segment.Layout{Groups: 1, ChannelsPerGroup: 2, CapacityFrames: 256, MidiPorts: 1})
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	clock := anchor.NewManualClock(42, 1_000_000_000)
	return New(seg, 0, segment.ToClient, clock), clock
}

// seqRecord encodes i into a note-on whose bytes are derivable from the offset.
func seqRecord(i int) Record {
	return Record{
		Data:   [MaxData]byte{0x90, byte(i % 128), byte(i / 128 % 128)},
		Size:   3,
		Offset: uint32(i),
	}
}

func checkRecord(t *testing.T, rec Record) int {
	t.Helper()
	i := int(rec.Offset)
	if rec != seqRecord(i) {
		t.Fatalf("torn record %+v, want %+v", rec, seqRecord(i))
	}
	return i
}

func TestInterleavedOrder(t *testing.T) {
	q, _ := newQueue(t)
	a, _ := Normalize(midi.NoteOn(0, 60, 100), 0)
	b, _ := Normalize(midi.NoteOn(0, 64, 100), 10)
	c, _ := Normalize(midi.NoteOff(0, 60), 20)

	q.Enqueue(a)
	got, ok := q.Dequeue()
	if !ok || got != a {
		t.Fatalf("Dequeue = %v, %v; want A", got, ok)
	}
	q.Enqueue(b)
	q.Enqueue(c)
	for _, want := range []Record{b, c} {
		got, ok := q.Dequeue()
		if !ok || got != want {
			t.Fatalf("Dequeue = %v, %v; want %v", got, ok, want)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("Dequeue on drained queue returned a record")
	}
}

func TestEmpty(t *testing.T) {
	q, _ := newQueue(t)
	if _, ok := q.Dequeue(); ok {
		t.Fatal("Dequeue on empty queue returned a record")
	}
	if q.Len() != 0 {
		t.Fatalf("Len = %d", q.Len())
	}
}

func TestSaturationIsObservable(t *testing.T) {
	q, clock := newQueue(t)
	for i := 0; i < Capacity; i++ {
		if q.Enqueue(seqRecord(i)) {
			t.Fatalf("record %d reported a drop below capacity", i)
		}
	}
	clock.Set(1000)
	for i := Capacity; i < Capacity+10; i++ {
		if !q.Enqueue(seqRecord(i)) {
			t.Fatalf("record %d overwrote without reporting", i)
		}
	}
	st := q.Stats()
	if st.Dropped != 10 || st.LastDrop != 1000 || st.Pending != Capacity {
		t.Fatalf("stats = %+v", st)
	}

	next := 10
	for {
		rec, ok := q.Dequeue()
		if !ok {
			break
		}
		if i := checkRecord(t, rec); i != next {
			t.Fatalf("dequeued %d, want %d", i, next)
		}
		next++
	}
	if next != Capacity+10 {
		t.Fatalf("drained up to %d", next)
	}
	if st := q.Stats(); st.Skipped != 10 || st.Pending != 0 {
		t.Fatalf("stats after drain = %+v", st)
	}
}

func TestNormalize(t *testing.T) {
	rec, err := Normalize(midi.NoteOn(2, 60, 99), 17)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	var ch, key, vel uint8
	if !rec.Message().GetNoteStart(&ch, &key, &vel) || ch != 2 || key != 60 || vel != 99 {
		t.Fatalf("round trip = %v", rec)
	}
	if rec.Offset != 17 || rec.Size != 3 {
		t.Fatalf("record = %+v", rec)
	}

	if rec, err := Normalize([]byte{0xF8}, 0); err != nil || rec.Size != 1 {
		t.Fatalf("clock message = %+v, %v", rec, err)
	}
	if rec, err := Normalize(midi.ControlChange(0, 7, 127), 0); err != nil || len(rec.Bytes()) != 3 {
		t.Fatalf("control change = %+v, %v", rec, err)
	}

	for name, raw := range map[string][]byte{
		"sysex":     {0xF0, 0x7E, 0x01, 0xF7},
		"oversized": {0x90, 0x3C, 0x40, 0x00, 0x00},
	} {
		if _, err := Normalize(raw, 0); !errors.Is(err, ErrUnsupported) {
			t.Errorf("%s: err = %v, want ErrUnsupported", name, err)
		}
	}
	if _, err := Normalize(nil, 0); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty: err = %v, want ErrEmpty", err)
	}
}

func TestConcurrentNoLoss(t *testing.T) {
	const total = 100000
	q, _ := newQueue(t)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if q.Len() >= Capacity {
				time.Sleep(time.Microsecond)
				continue
			}
			q.Enqueue(seqRecord(i))
			i++
		}
	}()

	deadline := time.Now().Add(10 * time.Second)
	for next := 0; next < total; {
		if time.Now().After(deadline) {
			t.Fatalf("stalled at record %d", next)
		}
		rec, ok := q.Dequeue()
		if !ok {
			continue
		}
		if i := checkRecord(t, rec); i != next {
			t.Fatalf("dequeued %d, want %d", i, next)
		}
		next++
	}
	wg.Wait()
	if st := q.Stats(); st.Dropped != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestConcurrentLappingNeverTears(t *testing.T) {
	const total = 200000
	q, _ := newQueue(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			q.Enqueue(seqRecord(i))
		}
	}()

	last := -1
	for {
		select {
		case <-done:
			for {
				rec, ok := q.Dequeue()
				if !ok {
					return
				}
				if i := checkRecord(t, rec); i <= last {
					t.Fatalf("record %d after %d", i, last)
				} else {
					last = i
				}
			}
		default:
		}
		rec, ok := q.Dequeue()
		if !ok {
			continue
		}
		if i := checkRecord(t, rec); i <= last {
			t.Fatalf("record %d after %d", i, last)
		} else {
			last = i
		}
	}
}
