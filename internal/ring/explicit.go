package ring

// pointerRing keeps a write cursor owned by the producer and a read cursor
// owned by the consumer. Both are monotonic frame counts; positions are
// taken modulo capacity only when touching sample memory.
type pointerRing struct {
	base
	maxDelay uint64
}

func (r *pointerRing) WriteFrames(samples []float32, count int) int {
	w, n := r.write(samples, count)
	if rd := r.hdr.ReadIndex(); rd <= w && w+uint64(n)-rd > uint64(r.capacity) {
		r.stats.overruns.Add(1)
	}
	return n
}

// ReadFrames delivers count frames from the read cursor. It returns 0 when
// fewer than count frames are buffered. When the backlog exceeds the
// latency ceiling, or the writer has lapped the cursor, the cursor jumps to
// the newest count frames and the skipped frames are counted as discarded.
func (r *pointerRing) ReadFrames(out []float32, count int) int {
	n := r.clamp(count, len(out))
	if n > r.capacity {
		r.stats.clamped.Add(1)
		n = r.capacity
	}
	if n == 0 {
		return 0
	}
	w := r.hdr.WriteIndex()
	rd := r.hdr.ReadIndex()
	if rd > w {
		// The writer restarted its timeline; never treat the gap as negative.
		rd = w
	}
	gap := w - rd
	want := uint64(n)
	if gap < want {
		if rd != r.hdr.ReadIndex() {
			r.hdr.SetReadIndex(rd)
		}
		r.stats.underruns.Add(1)
		return 0
	}
	if gap > want && (gap > r.maxDelay || gap > uint64(r.capacity)) {
		r.stats.discards.Add(1)
		r.stats.discarded.Add(gap - want)
		rd = w - want
	}
	r.copyOut(rd, out[:n*r.channels])
	r.hdr.SetReadIndex(rd + want)
	r.stats.read.Add(want)
	return n
}
