// Package status implements the tri-state driver status flag that orders
// startup between the audio-graph client and the platform driver.
//
// The flag lives in the control segment. It moves INIT -> ACTIVE -> STARTED
// during a session and is forced back to INIT when the client restarts.
package status

import (
	"errors"
	"fmt"
)

// State is the driver status.
type State uint64

const (
	// Init means no session is active.
	Init State = iota
	// Active means a session attached and its callback ran, but rings and
	// anchors are not yet guaranteed consistent.
	Active
	// Started means both sides are ready; data in the rings is meaningful.
	Started
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case Active:
		return "ACTIVE"
	case Started:
		return "STARTED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint64(s))
	}
}

// ErrInvalidTransition is returned when a transition would skip a state or
// the flag is not in the expected source state.
var ErrInvalidTransition = errors.New("status: invalid transition")

// Register is the shared word backing the state machine.
// *segment.Segment satisfies it.
type Register interface {
	DriverStatus() uint64
	SetDriverStatus(v uint64)
	CompareAndSwapDriverStatus(old, new uint64) bool
}

// Machine applies the allowed transitions to a Register.
type Machine struct {
	reg Register
}

// New returns a Machine over reg.
func New(reg Register) *Machine {
	return &Machine{reg: reg}
}

// Get returns the current state. Unknown values read as Init so a corrupt
// word never lets data through.
func (m *Machine) Get() State {
	s := State(m.reg.DriverStatus())
	if s > Started {
		return Init
	}
	return s
}

// IsStarted reports whether data exchange is meaningful.
func (m *Machine) IsStarted() bool {
	return m.Get() == Started
}

// Activate moves INIT to ACTIVE. It is a no-op when already ACTIVE.
func (m *Machine) Activate() error {
	return m.transition(Init, Active)
}

// Start moves ACTIVE to STARTED. It is a no-op when already STARTED.
func (m *Machine) Start() error {
	return m.transition(Active, Started)
}

// Reset forces the flag back to INIT from any state.
func (m *Machine) Reset() {
	m.reg.SetDriverStatus(uint64(Init))
}

func (m *Machine) transition(from, to State) error {
	if m.reg.CompareAndSwapDriverStatus(uint64(from), uint64(to)) {
		return nil
	}
	cur := m.Get()
	if cur == to {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s while %s", ErrInvalidTransition, from, to, cur)
}
