package ring

import (
	"math/rand"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/famish99/jackbridge/internal/segment"
)

var variants = []Variant{Implicit, Explicit}

// pair returns independent producer and consumer endpoints of one ring.
func pair(t *testing.T, v Variant, capacity, maxDelay int) (w, r Ring, seg *segment.Segment) {
	t.Helper()
	seg, err := segment.NewInMemory(segment.Layout{Groups: 1, ChannelsPerGroup: 2, CapacityFrames: capacity, MidiPorts: 0})
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	if w, err = New(seg, 0, segment.ToDriver, v, maxDelay); err != nil {
		t.Fatalf("New writer: %v", err)
	}
	if r, err = New(seg, 0, segment.ToDriver, v, maxDelay); err != nil {
		t.Fatalf("New reader: %v", err)
	}
	return w, r, seg
}

// frames returns n stereo frames numbered from start; channel 1 carries the
// negated frame number so channel swaps are caught too.
func frames(start, n int) []float32 {
	out := make([]float32, 2*n)
	for i := 0; i < n; i++ {
		out[2*i] = float32(start + i + 1)
		out[2*i+1] = -float32(start + i + 1)
	}
	return out
}

func checkFrames(t *testing.T, got []float32, start, n int) {
	t.Helper()
	want := frames(start, n)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d (frame %d) = %v, want %v", i, start+i/2, got[i], want[i])
		}
	}
}

func TestParseVariant(t *testing.T) {
	for _, s := range []string{"implicit", "explicit"} {
		if v, err := ParseVariant(s); err != nil || string(v) != s {
			t.Errorf("ParseVariant(%q) = %q, %v", s, v, err)
		}
	}
	if _, err := ParseVariant("pointer"); err == nil {
		t.Error("ParseVariant accepted unknown name")
	}
}

func TestLockstepDeliversInOrder(t *testing.T) {
	for _, v := range variants {
		t.Run(string(v), func(t *testing.T) {
			const capacity = 256
			w, r, _ := pair(t, v, capacity, capacity-1)
			rng := rand.New(rand.NewSource(1))
			out := make([]float32, 2*capacity)
			next := 0
			for step := 0; step < 500; step++ {
				n := 1 + rng.Intn(capacity)
				if got := w.WriteFrames(frames(next, n), n); got != n {
					t.Fatalf("step %d: WriteFrames = %d, want %d", step, got, n)
				}
				if got := r.ReadFrames(out, n); got != n {
					t.Fatalf("step %d: ReadFrames = %d, want %d", step, got, n)
				}
				checkFrames(t, out, next, n)
				next += n
			}
			st := r.Stats()
			if st.FramesRead != uint64(next) || st.Underruns != 0 || st.Discards != 0 {
				t.Fatalf("reader stats = %+v", st)
			}
		})
	}
}

func TestWrapMidCopy(t *testing.T) {
	for _, v := range variants {
		t.Run(string(v), func(t *testing.T) {
			w, r, _ := pair(t, v, 8, 7)
			out := make([]float32, 10)
			for i := 0; i < 4; i++ {
				w.WriteFrames(frames(5*i, 5), 5)
				if n := r.ReadFrames(out, 5); n != 5 {
					t.Fatalf("block %d: read %d frames", i, n)
				}
				checkFrames(t, out, 5*i, 5)
			}
		})
	}
}

func TestCountClampedToCapacity(t *testing.T) {
	for _, v := range variants {
		t.Run(string(v), func(t *testing.T) {
			const capacity = 16
			w, r, seg := pair(t, v, capacity, 0)
			if n := w.WriteFrames(frames(0, 3*capacity), 3*capacity); n != 3*capacity {
				t.Fatalf("WriteFrames = %d, want %d", n, 3*capacity)
			}
			if got := seg.RingHeader(0, segment.ToDriver).WriteIndex(); got != 3*capacity {
				t.Fatalf("write index = %d, want %d", got, 3*capacity)
			}
			out := make([]float32, 2*3*capacity)
			if n := r.ReadFrames(out, 3*capacity); n != capacity {
				t.Fatalf("ReadFrames = %d, want %d", n, capacity)
			}
			checkFrames(t, out, 2*capacity, capacity)
			if w.Stats().Clamped == 0 || r.Stats().Clamped == 0 {
				t.Fatal("clamping not counted")
			}
		})
	}
}

func TestCountClampedToBuffer(t *testing.T) {
	for _, v := range variants {
		t.Run(string(v), func(t *testing.T) {
			w, _, _ := pair(t, v, 64, 0)
			if n := w.WriteFrames(frames(0, 4), 10); n != 4 {
				t.Fatalf("WriteFrames = %d, want 4", n)
			}
			if n := w.WriteFrames(nil, -3); n != 0 {
				t.Fatalf("negative count wrote %d frames", n)
			}
		})
	}
}

func TestUnderrun(t *testing.T) {
	for _, v := range variants {
		t.Run(string(v), func(t *testing.T) {
			w, r, _ := pair(t, v, 64, 0)
			out := []float32{7, 7, 7, 7}
			if n := r.ReadFrames(out, 2); n != 0 {
				t.Fatalf("ReadFrames on empty ring = %d", n)
			}
			for i, s := range out {
				if s != 7 {
					t.Fatalf("sample %d touched on underrun: %v", i, s)
				}
			}
			if n := Pull(r, out, 2); n != 0 {
				t.Fatalf("Pull on empty ring = %d", n)
			}
			for i, s := range out {
				if s != 0 {
					t.Fatalf("Pull left sample %d = %v, want silence", i, s)
				}
			}
			if r.Stats().Underruns != 2 {
				t.Fatalf("underruns = %d, want 2", r.Stats().Underruns)
			}

			w.WriteFrames(frames(0, 2), 2)
			if n := Pull(r, out, 2); n != 2 {
				t.Fatalf("Pull = %d, want 2", n)
			}
			checkFrames(t, out, 0, 2)
		})
	}
}

func TestImplicitRepeatedReadIsSilent(t *testing.T) {
	w, r, _ := pair(t, Implicit, 64, 0)
	w.WriteFrames(frames(0, 4), 4)
	out := make([]float32, 8)
	r.ReadFrames(out, 4)
	checkFrames(t, out, 0, 4)
	if n := r.ReadFrames(out, 4); n != 4 {
		t.Fatalf("repeated read = %d frames", n)
	}
	for i, s := range out {
		if s != 0 {
			t.Fatalf("repeated read sample %d = %v, want silence", i, s)
		}
	}
}

func TestImplicitLateReadGetsNewestBlock(t *testing.T) {
	w, r, _ := pair(t, Implicit, 64, 0)
	w.WriteFrames(frames(0, 8), 8)
	w.WriteFrames(frames(8, 8), 8)
	out := make([]float32, 16)
	r.ReadFrames(out, 8)
	checkFrames(t, out, 8, 8)
}

func TestExplicitDecoupledBlockSizes(t *testing.T) {
	const capacity = 256
	w, r, seg := pair(t, Explicit, capacity, capacity-1)
	hdr := seg.RingHeader(0, segment.ToDriver)
	rng := rand.New(rand.NewSource(7))
	out := make([]float32, 2*capacity)
	written, read := 0, 0
	for written < 50000 {
		n := 1 + rng.Intn(96)
		if backlog := int(hdr.WriteIndex() - hdr.ReadIndex()); backlog+n <= capacity-1 {
			w.WriteFrames(frames(written, n), n)
			written += n
		}
		m := 1 + rng.Intn(96)
		if got := r.ReadFrames(out, m); got > 0 {
			checkFrames(t, out, read, got)
			read += got
		}
	}
	st := r.Stats()
	if st.Discards != 0 {
		t.Fatalf("discarded %d frames below the ceiling", st.DiscardedFrames)
	}
	if st.Underruns == 0 {
		t.Fatal("expected some underruns with random block sizes")
	}
	if w.Stats().Overruns != 0 {
		t.Fatalf("overruns = %d", w.Stats().Overruns)
	}
}

func TestExplicitCatchUpBoundsLatency(t *testing.T) {
	w, r, seg := pair(t, Explicit, 4096, 0)
	for i := 0; i < 3000; i += 100 {
		w.WriteFrames(frames(i, 100), 100)
	}
	out := make([]float32, 512)
	if n := r.ReadFrames(out, 256); n != 256 {
		t.Fatalf("ReadFrames = %d, want 256", n)
	}
	checkFrames(t, out, 2744, 256)
	st := r.Stats()
	if st.Discards != 1 || st.DiscardedFrames != 2744 {
		t.Fatalf("stats = %+v, want one discard of 2744 frames", st)
	}
	hdr := seg.RingHeader(0, segment.ToDriver)
	if backlog := hdr.WriteIndex() - hdr.ReadIndex(); backlog != 0 {
		t.Fatalf("backlog after catch-up = %d", backlog)
	}
}

func TestExplicitBacklogUnderCeilingIsKept(t *testing.T) {
	w, r, _ := pair(t, Explicit, 4096, 0)
	w.WriteFrames(frames(0, 1024), 1024)
	out := make([]float32, 512)
	r.ReadFrames(out, 256)
	checkFrames(t, out, 0, 256)
	if r.Stats().Discards != 0 {
		t.Fatal("backlog at the ceiling was discarded")
	}
}

func TestExplicitStalledReaderOverrun(t *testing.T) {
	const capacity = 64
	w, r, _ := pair(t, Explicit, capacity, 32)
	for i := 0; i < 5; i++ {
		w.WriteFrames(frames(16*i, 16), 16)
	}
	if w.Stats().Overruns == 0 {
		t.Fatal("writer lapping a stalled reader was not counted")
	}
	out := make([]float32, 32)
	if n := r.ReadFrames(out, 16); n != 16 {
		t.Fatalf("ReadFrames = %d", n)
	}
	checkFrames(t, out, 64, 16)
}

func TestExplicitReadCursorAheadOfWriter(t *testing.T) {
	w, r, seg := pair(t, Explicit, 64, 0)
	hdr := seg.RingHeader(0, segment.ToDriver)
	hdr.SetReadIndex(100)
	out := make([]float32, 8)
	if n := r.ReadFrames(out, 4); n != 0 {
		t.Fatalf("ReadFrames = %d, want underrun", n)
	}
	if hdr.ReadIndex() != 0 {
		t.Fatalf("read cursor = %d, want clamped to writer", hdr.ReadIndex())
	}
	w.WriteFrames(frames(0, 4), 4)
	if n := r.ReadFrames(out, 4); n != 4 {
		t.Fatalf("ReadFrames = %d", n)
	}
	checkFrames(t, out, 0, 4)
}

func TestExplicitRestartedWriter(t *testing.T) {
	w, r, _ := pair(t, Explicit, 64, 0)
	out := make([]float32, 32)
	for i := 0; i < 10; i++ {
		w.WriteFrames(frames(i*16, 16), 16)
		r.ReadFrames(out, 16)
	}

	// The producer starts over at frame zero, the consumer follows.
	w.Restart()
	r.Seek(0)
	w.WriteFrames(frames(1000, 16), 16)
	if n := r.ReadFrames(out, 16); n != 16 {
		t.Fatalf("ReadFrames = %d", n)
	}
	checkFrames(t, out, 1000, 16)
	if wi, ri := r.Indices(); wi != 16 || ri != 16 {
		t.Fatalf("indices = %d/%d, want 16/16", wi, ri)
	}
	st := w.Stats()
	if st.Overruns != 0 {
		t.Fatalf("writer stats = %+v", st)
	}
	if st := r.Stats(); st.Underruns != 0 || st.Discards != 0 {
		t.Fatalf("reader stats = %+v", st)
	}
}

func TestExplicitConcurrent(t *testing.T) {
	const (
		capacity = 256
		block    = 32
		total    = 200000
	)
	w, r, seg := pair(t, Explicit, capacity, capacity-1)
	hdr := seg.RingHeader(0, segment.ToDriver)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for written := 0; written < total; {
			if hdr.WriteIndex()-hdr.ReadIndex()+block > capacity-1 {
				runtime.Gosched()
				continue
			}
			w.WriteFrames(frames(written, block), block)
			written += block
		}
	}()

	out := make([]float32, 2*block)
	deadline := time.Now().Add(10 * time.Second)
	for read := 0; read < total; {
		if time.Now().After(deadline) {
			t.Fatalf("stalled after %d frames", read)
		}
		if n := r.ReadFrames(out, block); n == 0 {
			runtime.Gosched()
			continue
		}
		checkFrames(t, out, read, block)
		read += block
	}
	wg.Wait()
	if st := r.Stats(); st.Discards != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestInterleave(t *testing.T) {
	l := []float32{1, 2, 3}
	rt := []float32{-1, -2}
	dst := make([]float32, 6)
	Interleave(dst, [][]float32{l, rt}, 2, 3)
	want := []float32{1, -1, 2, -2, 3, 0}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("Interleave = %v, want %v", dst, want)
		}
	}
	back := [][]float32{make([]float32, 3), make([]float32, 3)}
	Deinterleave(back, dst, 2, 3)
	if back[0][2] != 3 || back[1][1] != -2 || back[1][2] != 0 {
		t.Fatalf("Deinterleave = %v", back)
	}
}

func TestIndices(t *testing.T) {
	for _, v := range variants {
		t.Run(string(v), func(t *testing.T) {
			w, r, _ := pair(t, v, 64, 0)
			w.WriteFrames(frames(0, 10), 10)
			out := make([]float32, 8)
			r.ReadFrames(out, 4)
			wi, ri := r.Indices()
			wantR := uint64(4)
			if v == Implicit {
				wantR = 10
			}
			if wi != 10 || ri != wantR {
				t.Fatalf("Indices = %d, %d; want 10, %d", wi, ri, wantR)
			}
		})
	}
}
