//go:build linux || darwin || freebsd

package anchor

import "golang.org/x/sys/unix"

// MonotonicClock reads CLOCK_MONOTONIC in nanoseconds. Both processes on
// one machine observe the same timeline.
type MonotonicClock struct{}

func (MonotonicClock) Now() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint64(ts.Nano())
}

func (MonotonicClock) Frequency() uint64 { return 1_000_000_000 }
