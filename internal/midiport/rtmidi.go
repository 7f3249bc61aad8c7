//go:build rtmidi

package midiport

import (
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Virtual is a pair of virtual MIDI ports created through rtmidi.
type Virtual struct {
	name string
	in   drivers.In
	out  drivers.Out
}

var (
	drvOnce sync.Once
	drv     *rtmididrv.Driver
	drvErr  error
)

// OpenVirtual creates virtual in and out ports named name.
func OpenVirtual(name string) (Endpoint, error) {
	drvOnce.Do(func() { drv, drvErr = rtmididrv.New() })
	if drvErr != nil {
		return nil, fmt.Errorf("failed to initialize rtmidi: %w", drvErr)
	}
	out, err := drv.OpenVirtualOut(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open virtual output %q: %w", name, err)
	}
	in, err := drv.OpenVirtualIn(name)
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("failed to open virtual input %q: %w", name, err)
	}
	return &Virtual{name: name, in: in, out: out}, nil
}

// DefaultOpener opens rtmidi virtual ports.
func DefaultOpener() Opener { return OpenVirtual }

func (v *Virtual) Name() string { return v.name }

func (v *Virtual) Send(msg []byte) error { return v.out.Send(msg) }

func (v *Virtual) Listen(fn func([]byte)) (func(), error) {
	return midi.ListenTo(v.in, func(msg midi.Message, _ int32) {
		fn(msg)
	})
}

func (v *Virtual) Close() error {
	errIn := v.in.Close()
	errOut := v.out.Close()
	if errIn != nil {
		return errIn
	}
	return errOut
}
