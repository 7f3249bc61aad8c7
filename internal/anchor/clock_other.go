//go:build !(linux || darwin || freebsd)

package anchor

import "time"

var epoch = time.Now()

// MonotonicClock reads the process monotonic clock in nanoseconds. It is
// not shared across processes on this platform.
type MonotonicClock struct{}

func (MonotonicClock) Now() uint64 { return uint64(time.Since(epoch)) }

func (MonotonicClock) Frequency() uint64 { return 1_000_000_000 }
