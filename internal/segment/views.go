package segment

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// RingHeader holds the two indices of one ring. Both are monotonic frame
// counts. The writing side owns widx, the reading side owns ridx.
type RingHeader struct {
	widx     uint64    // 0x00: frames written since session start
	ridx     uint64    // 0x08: frames consumed since session start (explicit variant)
	reserved [6]uint64 // 0x10-0x3F
}

// WriteIndex returns the producer's frame counter.
func (h *RingHeader) WriteIndex() uint64 { return atomic.LoadUint64(&h.widx) }

// SetWriteIndex publishes the producer's frame counter.
func (h *RingHeader) SetWriteIndex(v uint64) { atomic.StoreUint64(&h.widx, v) }

// ReadIndex returns the consumer's frame counter.
func (h *RingHeader) ReadIndex() uint64 { return atomic.LoadUint64(&h.ridx) }

// SetReadIndex publishes the consumer's frame counter.
func (h *RingHeader) SetReadIndex(v uint64) { atomic.StoreUint64(&h.ridx, v) }

// QueueHeader holds the indices and saturation counters of one MIDI queue.
type QueueHeader struct {
	widx     uint64    // 0x00: records enqueued (producer)
	ridx     uint64    // 0x08: records dequeued (consumer)
	dropped  uint64    // 0x10: records overwritten before being read (producer)
	lastDrop uint64    // 0x18: host time of the most recent overwrite (producer)
	reserved [4]uint64 // 0x20-0x3F
}

// WriteIndex returns the producer's record counter.
func (h *QueueHeader) WriteIndex() uint64 { return atomic.LoadUint64(&h.widx) }

// SetWriteIndex publishes the producer's record counter.
func (h *QueueHeader) SetWriteIndex(v uint64) { atomic.StoreUint64(&h.widx, v) }

// ReadIndex returns the consumer's record counter.
func (h *QueueHeader) ReadIndex() uint64 { return atomic.LoadUint64(&h.ridx) }

// SetReadIndex publishes the consumer's record counter.
func (h *QueueHeader) SetReadIndex(v uint64) { atomic.StoreUint64(&h.ridx, v) }

// Dropped returns the number of records lost to saturation.
func (h *QueueHeader) Dropped() uint64 { return atomic.LoadUint64(&h.dropped) }

// AddDropped increments the drop counter.
func (h *QueueHeader) AddDropped(n uint64) uint64 { return atomic.AddUint64(&h.dropped, n) }

// LastDrop returns the host time of the last overwrite.
func (h *QueueHeader) LastDrop() uint64 { return atomic.LoadUint64(&h.lastDrop) }

// SetLastDrop records the host time of an overwrite.
func (h *QueueHeader) SetLastDrop(v uint64) { atomic.StoreUint64(&h.lastDrop, v) }

// QueueSlot is one MIDI record. Every word is accessed atomically; the
// stamp holds the low 32 bits of the record's index plus one, or zero while
// the producer is rewriting the slot.
type QueueSlot struct {
	data   uint32 // 0x0: up to four message bytes, first byte lowest
	size   uint32 // 0x4
	offset uint32 // 0x8: frame offset within the producer's block
	stamp  uint32 // 0xC
}

// Load returns the slot contents.
func (q *QueueSlot) Load() (data, size, offset uint32) {
	return atomic.LoadUint32(&q.data), atomic.LoadUint32(&q.size), atomic.LoadUint32(&q.offset)
}

// Store writes the slot contents.
func (q *QueueSlot) Store(data, size, offset uint32) {
	atomic.StoreUint32(&q.data, data)
	atomic.StoreUint32(&q.size, size)
	atomic.StoreUint32(&q.offset, offset)
}

// Stamp returns the slot's sequence stamp.
func (q *QueueSlot) Stamp() uint32 { return atomic.LoadUint32(&q.stamp) }

// SetStamp publishes the slot's sequence stamp.
func (q *QueueSlot) SetStamp(v uint32) { atomic.StoreUint32(&q.stamp, v) }

// RingHeader returns the index block of the ring for (group, dir).
func (s *Segment) RingHeader(group int, dir Direction) *RingHeader {
	s.checkGroup(group)
	return (*RingHeader)(unsafe.Pointer(&s.mem[s.layout.ringHeaderOffset(group, dir)]))
}

// Samples returns the interleaved sample area of the ring for (group, dir).
// Its length is CapacityFrames*ChannelsPerGroup.
func (s *Segment) Samples(group int, dir Direction) []float32 {
	s.checkGroup(group)
	off := s.layout.ringOffset(group, dir)
	n := s.layout.CapacityFrames * s.layout.ChannelsPerGroup
	return unsafe.Slice((*float32)(unsafe.Pointer(&s.mem[off])), n)
}

// QueueHeader returns the index block of the MIDI queue for (port, dir).
func (s *Segment) QueueHeader(port int, dir Direction) *QueueHeader {
	s.checkPort(port)
	return (*QueueHeader)(unsafe.Pointer(&s.mem[s.layout.queueOffset(port, dir)]))
}

// QueueSlots returns the record slots of the MIDI queue for (port, dir).
func (s *Segment) QueueSlots(port int, dir Direction) []QueueSlot {
	s.checkPort(port)
	off := s.layout.queueOffset(port, dir) + MidiQueueHeaderSize
	return unsafe.Slice((*QueueSlot)(unsafe.Pointer(&s.mem[off])), MidiQueueCapacity)
}

func (s *Segment) checkGroup(group int) {
	if group < 0 || group >= s.layout.Groups {
		panic(fmt.Sprintf("segment: channel group %d out of range [0,%d)", group, s.layout.Groups))
	}
}

func (s *Segment) checkPort(port int) {
	if port < 0 || port >= s.layout.MidiPorts {
		panic(fmt.Sprintf("segment: midi port %d out of range [0,%d)", port, s.layout.MidiPorts))
	}
}
