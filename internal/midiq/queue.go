// Package midiq implements the fixed-capacity MIDI event queues of a
// control segment.
//
// Each queue has one producer and one consumer. Enqueue never blocks and
// never fails: once the queue holds Capacity unread records the oldest is
// overwritten, and the loss is recorded in the queue header as a drop
// count and the host time of the last drop.
package midiq

import (
	"sync/atomic"

	"github.com/famish99/jackbridge/internal/anchor"
	"github.com/famish99/jackbridge/internal/segment"
)

// Capacity is the number of records a queue holds.
const Capacity = segment.MidiQueueCapacity

// dequeueRetries bounds the resync loop when the producer laps the consumer
// mid-read.
const dequeueRetries = 4

// Stats describes one queue endpoint.
type Stats struct {
	Pending  uint64 // records enqueued but not yet dequeued, at most Capacity
	Dropped  uint64 // records overwritten before being read
	LastDrop uint64 // host time of the most recent overwrite, zero if none
	Skipped  uint64 // records this consumer skipped after being lapped
}

// Queue is one direction of one MIDI port.
type Queue struct {
	hdr     *segment.QueueHeader
	slots   []segment.QueueSlot
	clock   anchor.Clock
	skipped atomic.Uint64
}

// New returns the queue for (port, dir) of seg. clock timestamps drops.
func New(seg *segment.Segment, port int, dir segment.Direction, clock anchor.Clock) *Queue {
	return &Queue{
		hdr:   seg.QueueHeader(port, dir),
		slots: seg.QueueSlots(port, dir),
		clock: clock,
	}
}

// Enqueue appends rec. It reports whether an unread record was overwritten.
func (q *Queue) Enqueue(rec Record) (dropped bool) {
	w := q.hdr.WriteIndex()
	if w-q.hdr.ReadIndex() >= Capacity {
		dropped = true
		q.hdr.AddDropped(1)
		q.hdr.SetLastDrop(q.clock.Now())
	}
	slot := &q.slots[w%Capacity]
	slot.SetStamp(0)
	slot.Store(rec.pack())
	slot.SetStamp(stamp(w))
	q.hdr.SetWriteIndex(w + 1)
	return dropped
}

// Dequeue removes the oldest unread record. It returns false when the
// queue is empty.
func (q *Queue) Dequeue() (Record, bool) {
	for i := 0; i < dequeueRetries; i++ {
		w := q.hdr.WriteIndex()
		r := q.hdr.ReadIndex()
		if r == w {
			return Record{}, false
		}
		if r > w || w-r > Capacity {
			r = q.resync(r, w)
		}
		slot := &q.slots[r%Capacity]
		if slot.Stamp() != stamp(r) {
			q.resync(r, q.hdr.WriteIndex())
			continue
		}
		rec := unpack(slot.Load())
		if slot.Stamp() != stamp(r) {
			q.resync(r, q.hdr.WriteIndex())
			continue
		}
		q.hdr.SetReadIndex(r + 1)
		return rec, true
	}
	return Record{}, false
}

// resync moves the read index past records that were overwritten and
// returns it.
func (q *Queue) resync(r, w uint64) uint64 {
	next := r
	switch {
	case r > w:
		next = w
	case w-r > Capacity:
		next = w - Capacity
	default:
		next = r + 1
	}
	if next > r {
		q.skipped.Add(next - r)
	}
	q.hdr.SetReadIndex(next)
	return next
}

// Len returns the number of unread records.
func (q *Queue) Len() int {
	w, r := q.hdr.WriteIndex(), q.hdr.ReadIndex()
	if r >= w {
		return 0
	}
	return int(min(w-r, Capacity))
}

// Stats returns the queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Pending:  uint64(q.Len()),
		Dropped:  q.hdr.Dropped(),
		LastDrop: q.hdr.LastDrop(),
		Skipped:  q.skipped.Load(),
	}
}

func stamp(i uint64) uint32 { return uint32(i) + 1 }
