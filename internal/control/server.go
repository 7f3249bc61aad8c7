// Package control serves a line-oriented status protocol for a running
// bridge daemon. Responses end in "OK" or "ACK [code] {command} message"
// and clients may wait for changes with idle.
package control

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/famish99/jackbridge/internal/bridge"
)

// Bridges is the set of endpoints the server reports on
type Bridges interface {
	Clients() []*bridge.Client
	Drivers() []*bridge.Driver
}

// Server implements the control protocol server
type Server struct {
	mu       sync.Mutex
	listener net.Listener
	bridges  Bridges
	addr     string
	running  bool
	log      *slog.Logger

	// Idle connection management
	idleMu    sync.RWMutex
	idleConns map[*idleConnection]bool
}

// NewServer creates a new control server for addr
func NewServer(addr string, b Bridges, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:      addr,
		bridges:   b,
		log:       logger.With("component", "control"),
		idleConns: make(map[*idleConnection]bool),
	}
}

// Start starts listening
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start control server: %w", err)
	}

	s.listener = listener
	s.running = true

	s.log.Info("Control server listening", "addr", listener.Addr().String())

	go s.acceptLoop()

	return nil
}

// Addr returns the listening address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops the server and releases idle connections
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	s.cancelIdle()
	return s.listener.Close()
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running {
				return
			}
			s.log.Warn("Accept error", "err", err)
			continue
		}

		go s.handleConnection(conn)
	}
}
