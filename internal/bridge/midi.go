package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/famish99/jackbridge/internal/anchor"
	"github.com/famish99/jackbridge/internal/midiport"
	"github.com/famish99/jackbridge/internal/midiq"
	"github.com/famish99/jackbridge/internal/ports"
	"github.com/famish99/jackbridge/internal/segment"
)

// MidiPump connects the driver side of the MIDI queues to MIDI endpoints.
// Records the client enqueued are sent to the endpoint; messages arriving
// from the endpoint are enqueued for the client.
type MidiPump struct {
	log       *slog.Logger
	endpoints []midiport.Endpoint
	toApps    []*midiq.Queue
	fromApps  []*midiq.Queue
	stops     []func()

	sent       atomic.Uint64
	received   atomic.Uint64
	rejected   atomic.Uint64
	sendErrors atomic.Uint64
}

// NewMidiPump opens one endpoint per MIDI port of seg, named after plan.
func NewMidiPump(seg *segment.Segment, plan ports.Plan, open midiport.Opener, clock anchor.Clock, logger *slog.Logger) (*MidiPump, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MidiPump{log: logger.With("instance", seg.Instance(), "bridge", plan.Bridge)}
	for p := 0; p < seg.Layout().MidiPorts; p++ {
		name := plan.VirtualName(p)
		ep, err := open(name)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to open MIDI endpoint %q: %w", name, err)
		}
		m.endpoints = append(m.endpoints, ep)
		m.toApps = append(m.toApps, midiq.New(seg, p, segment.ToDriver, clock))
		from := midiq.New(seg, p, segment.ToClient, clock)
		m.fromApps = append(m.fromApps, from)

		stop, err := ep.Listen(func(msg []byte) {
			rec, err := midiq.Normalize(msg, 0)
			if err != nil {
				m.rejected.Add(1)
				return
			}
			from.Enqueue(rec)
			m.received.Add(1)
		})
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to listen on MIDI endpoint %q: %w", name, err)
		}
		m.stops = append(m.stops, stop)
		m.log.Info("MIDI endpoint opened", "port", p, "name", name)
	}
	return m, nil
}

// Flush sends every pending record to its endpoint and returns how many
// were sent.
func (m *MidiPump) Flush() int {
	sent := 0
	for p, q := range m.toApps {
		for {
			rec, ok := q.Dequeue()
			if !ok {
				break
			}
			if err := m.endpoints[p].Send(rec.Bytes()); err != nil {
				if m.sendErrors.Add(1) == 1 {
					m.log.Warn("MIDI send failed", "port", p, "err", err)
				}
				continue
			}
			sent++
		}
	}
	m.sent.Add(uint64(sent))
	return sent
}

// Run flushes every interval until ctx is cancelled.
func (m *MidiPump) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Flush()
			return
		case <-ticker.C:
			m.Flush()
		}
	}
}

// MidiPumpStats is a snapshot of a pump's counters.
type MidiPumpStats struct {
	Sent       uint64
	Received   uint64
	Rejected   uint64
	SendErrors uint64
}

// Stats returns the pump's counters.
func (m *MidiPump) Stats() MidiPumpStats {
	return MidiPumpStats{
		Sent:       m.sent.Load(),
		Received:   m.received.Load(),
		Rejected:   m.rejected.Load(),
		SendErrors: m.sendErrors.Load(),
	}
}

// Close stops listening and closes every endpoint.
func (m *MidiPump) Close() error {
	for _, stop := range m.stops {
		stop()
	}
	m.stops = nil
	var errs []error
	for _, ep := range m.endpoints {
		if err := ep.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.endpoints = nil
	return errors.Join(errs...)
}
