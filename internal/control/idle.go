package control

import "sync"

// idleConnection represents a connection waiting in idle mode
type idleConnection struct {
	subsystems map[string]bool // Subsystems to watch (empty = all)
	notify     chan string     // Channel to send subsystem changes
	cancel     chan struct{}   // Channel to cancel idle wait
	once       sync.Once
}

func (i *idleConnection) stop() {
	i.once.Do(func() { close(i.cancel) })
}

func newIdleConnection(subsystems []string) *idleConnection {
	idle := &idleConnection{
		subsystems: make(map[string]bool),
		notify:     make(chan string, 10),
		cancel:     make(chan struct{}),
	}
	for _, sub := range subsystems {
		idle.subsystems[sub] = true
	}
	return idle
}

// registerIdle registers an idle connection to receive notifications
func (s *Server) registerIdle(idle *idleConnection) {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	s.idleConns[idle] = true
	s.log.Debug("Registered idle connection", "total", len(s.idleConns))
}

// unregisterIdle removes an idle connection from notifications
func (s *Server) unregisterIdle(idle *idleConnection) {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	delete(s.idleConns, idle)
}

// cancelIdle releases every waiting idle connection
func (s *Server) cancelIdle() {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	for idle := range s.idleConns {
		idle.stop()
		delete(s.idleConns, idle)
	}
}

// NotifySubsystemChange notifies all idle connections about a subsystem change.
// It never blocks, so it may be called from a monitor goroutine.
func (s *Server) NotifySubsystemChange(subsystem string) {
	s.idleMu.RLock()
	defer s.idleMu.RUnlock()

	for idle := range s.idleConns {
		if len(idle.subsystems) == 0 || idle.subsystems[subsystem] {
			select {
			case idle.notify <- subsystem:
			default:
				s.log.Warn("Idle notification channel full", "subsystem", subsystem)
			}
		}
	}
}
