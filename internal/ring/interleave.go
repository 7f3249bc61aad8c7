package ring

// Interleave packs n frames from per-channel buffers into dst. Channels
// missing from src, or shorter than n, contribute silence.
func Interleave(dst []float32, src [][]float32, channels, n int) {
	for c := 0; c < channels; c++ {
		var ch []float32
		if c < len(src) {
			ch = src[c]
		}
		for i := 0; i < n; i++ {
			var v float32
			if i < len(ch) {
				v = ch[i]
			}
			dst[i*channels+c] = v
		}
	}
}

// Deinterleave unpacks n frames from src into per-channel buffers.
func Deinterleave(dst [][]float32, src []float32, channels, n int) {
	for c := 0; c < channels && c < len(dst); c++ {
		ch := dst[c]
		for i := 0; i < n && i < len(ch); i++ {
			ch[i] = src[i*channels+c]
		}
	}
}
