package ring

// offsetRing addresses the ring by the writer's frame counter alone.
type offsetRing struct {
	base
}

func (r *offsetRing) WriteFrames(samples []float32, count int) int {
	_, n := r.write(samples, count)
	return n
}

// ReadFrames returns the last count frames the writer published, then
// zero-fills them so a late or repeated read yields silence.
func (r *offsetRing) ReadFrames(out []float32, count int) int {
	n := r.clamp(count, len(out))
	if n > r.capacity {
		r.stats.clamped.Add(1)
		n = r.capacity
	}
	if n == 0 {
		return 0
	}
	w := r.hdr.WriteIndex()
	if w < uint64(n) {
		r.stats.underruns.Add(1)
		return 0
	}
	start := w - uint64(n)
	samples := n * r.channels
	r.copyOut(start, out[:samples])
	r.zero(start, samples)
	r.hdr.SetReadIndex(w)
	r.stats.read.Add(uint64(n))
	return n
}
