package segment

import "unsafe"

// memMapping is a heap-backed Mapping. The buffer is allocated as []uint64 so
// the byte view is 8-byte aligned like a real mapping.
type memMapping struct {
	words []uint64
}

func (m *memMapping) Bytes() []byte {
	if len(m.words) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&m.words[0])), len(m.words)*8)
}

func (m *memMapping) Close() error {
	m.words = nil
	return nil
}

// NewInMemory returns an initialized segment backed by process memory. Two
// endpoints sharing the returned *Segment behave like two processes sharing
// a mapped slice.
func NewInMemory(layout Layout) (*Segment, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	m := &memMapping{words: make([]uint64, layout.Stride()/8)}
	s, err := newSegment("", 0, layout, m)
	if err != nil {
		return nil, err
	}
	s.initHeader()
	return s, nil
}
