// Package bridge runs the two endpoints of a bridge instance over a
// control segment.
//
// The Client runs in the audio graph's process callback. It owns the
// session: it resets the segment when it activates, moves status from INIT
// to ACTIVE, and publishes clock anchors once the driver has started. The
// Driver runs in the platform device's IO callback and moves status from
// ACTIVE to STARTED when its IO path is ready. While status is not STARTED
// both sides output silence.
//
// Process methods never block, allocate or log. Degraded conditions are
// counted and reported by a Monitor goroutine.
package bridge

import (
	"log/slog"

	"github.com/famish99/jackbridge/internal/anchor"
	"github.com/famish99/jackbridge/internal/ring"
)

// Options configures either endpoint of a bridge.
type Options struct {
	Variant      ring.Variant
	MaxDelay     int // backlog ceiling for the explicit variant, in frames
	SyncMode     bool
	AnchorPeriod int // frames per anchor, zero for the ring capacity
	SampleRate   float64
	Clock        anchor.Clock
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Variant == "" {
		o.Variant = ring.Explicit
	}
	if o.SampleRate <= 0 {
		o.SampleRate = 48000
	}
	if o.Clock == nil {
		o.Clock = anchor.MonotonicClock{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
