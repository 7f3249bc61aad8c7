package bridge

import (
	"github.com/famish99/jackbridge/internal/ring"
	"github.com/famish99/jackbridge/internal/segment"
)

// groupIO moves one direction pair of a channel group between host port
// buffers and the rings. Views are rebuilt each cycle without allocating.
type groupIO struct {
	out      ring.Ring // ring this endpoint writes
	in       ring.Ring // ring this endpoint reads
	inPorts  []int     // host input ports feeding out, by channel
	outPorts []int     // host output ports fed from in, by channel
	inViews  [][]float32
	outViews [][]float32
}

func newGroups(seg *segment.Segment, write, read segment.Direction, inPorts, outPorts [][]int, opts Options) ([]groupIO, error) {
	l := seg.Layout()
	groups := make([]groupIO, l.Groups)
	for g := range groups {
		w, err := ring.New(seg, g, write, opts.Variant, opts.MaxDelay)
		if err != nil {
			return nil, err
		}
		r, err := ring.New(seg, g, read, opts.Variant, opts.MaxDelay)
		if err != nil {
			return nil, err
		}
		groups[g] = groupIO{
			out:      w,
			in:       r,
			inPorts:  inPorts[g],
			outPorts: outPorts[g],
			inViews:  make([][]float32, l.ChannelsPerGroup),
			outViews: make([][]float32, l.ChannelsPerGroup),
		}
	}
	return groups, nil
}

type buffers interface {
	AudioIn(i int) []float32
	AudioOut(i int) []float32
}

// transfer writes n frames of host input into the outgoing ring and fills
// host output from the incoming ring, using scratch for interleaving.
func (g *groupIO) transfer(c buffers, scratch []float32, n int) {
	ch := g.out.Channels()
	for i := range g.inViews {
		g.inViews[i] = nil
		if i < len(g.inPorts) {
			g.inViews[i] = c.AudioIn(g.inPorts[i])
		}
	}
	ring.Interleave(scratch, g.inViews, ch, n)
	g.out.WriteFrames(scratch, n)

	ring.Pull(g.in, scratch, n)
	for i := range g.outViews {
		g.outViews[i] = nil
		if i < len(g.outPorts) {
			g.outViews[i] = c.AudioOut(g.outPorts[i])
		}
	}
	ring.Deinterleave(g.outViews, scratch, ch, n)
}

// silence clears every host output port of the group.
func (g *groupIO) silence(c buffers) {
	for _, p := range g.outPorts {
		clear(c.AudioOut(p))
	}
}

// clearTail clears host output beyond the first n frames.
func (g *groupIO) clearTail(c buffers, n int) {
	for _, p := range g.outPorts {
		if buf := c.AudioOut(p); len(buf) > n {
			clear(buf[n:])
		}
	}
}

// RingStats holds the counters of both rings of one group endpoint.
type RingStats struct {
	Out ring.Stats
	In  ring.Stats
}

func groupStats(groups []groupIO) []RingStats {
	st := make([]RingStats, len(groups))
	for g := range groups {
		st[g] = RingStats{Out: groups[g].out.Stats(), In: groups[g].in.Stats()}
	}
	return st
}
