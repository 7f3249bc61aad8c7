// Package midiport exposes bridged MIDI queues as MIDI endpoints on the
// driver side of a bridge.
package midiport

import (
	"errors"
	"sync"
)

// ErrClosed is returned by endpoints used after Close.
var ErrClosed = errors.New("midiport: closed")

// Endpoint is a pair of MIDI ports visible to applications: Send delivers
// messages to them, Listen receives what they send.
type Endpoint interface {
	Name() string
	Send(msg []byte) error
	// Listen registers fn for incoming messages. fn is called from a single
	// goroutine at a time.
	Listen(fn func(msg []byte)) (stop func(), err error)
	Close() error
}

// Opener creates the endpoint for a port name.
type Opener func(name string) (Endpoint, error)

// Loopback is an in-process endpoint. Messages passed to Send are handed to
// the listener, and Deliver simulates an application sending to the bridge.
type Loopback struct {
	name string

	mu       sync.Mutex
	sent     [][]byte
	listener func([]byte)
	echo     bool
	closed   bool
}

// NewLoopback returns a loopback endpoint. With echo set, sent messages are
// fed back to the listener.
func NewLoopback(name string, echo bool) *Loopback {
	return &Loopback{name: name, echo: echo}
}

// LoopbackOpener opens loopback endpoints.
func LoopbackOpener(echo bool) Opener {
	return func(name string) (Endpoint, error) {
		return NewLoopback(name, echo), nil
	}
}

func (l *Loopback) Name() string { return l.name }

func (l *Loopback) Send(msg []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	cp := append([]byte(nil), msg...)
	l.sent = append(l.sent, cp)
	if l.echo && l.listener != nil {
		l.listener(cp)
	}
	return nil
}

// Sent returns and clears the messages passed to Send.
func (l *Loopback) Sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.sent
	l.sent = nil
	return out
}

// Deliver hands msg to the listener as if an application had sent it.
func (l *Loopback) Deliver(msg []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil && !l.closed {
		l.listener(msg)
	}
}

func (l *Loopback) Listen(fn func([]byte)) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	l.listener = fn
	return func() {
		l.mu.Lock()
		l.listener = nil
		l.mu.Unlock()
	}, nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.listener = nil
	return nil
}
