//go:build !rtmidi

package midiport

// DefaultOpener opens loopback endpoints; build with -tags rtmidi for
// virtual system ports.
func DefaultOpener() Opener { return LoopbackOpener(false) }
