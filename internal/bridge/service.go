package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/famish99/jackbridge/internal/config"
	"github.com/famish99/jackbridge/internal/host"
	"github.com/famish99/jackbridge/internal/midiport"
	"github.com/famish99/jackbridge/internal/ports"
	"github.com/famish99/jackbridge/internal/ring"
	"github.com/famish99/jackbridge/internal/segment"
)

// Role selects which endpoint a Service runs
type Role int

const (
	RoleClient Role = iota
	RoleDriver
)

func (r Role) String() string {
	if r == RoleDriver {
		return "driver"
	}
	return "client"
}

// Service runs the configured bridge instances of one side
type Service struct {
	cfg   *config.Config
	role  Role
	hosts host.Factory
	midi  midiport.Opener
	log   *slog.Logger

	notify func(subsystem string)

	mu        sync.Mutex
	instances []*instance
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	errs      chan error
}

type instance struct {
	cfg     config.BridgeConfig
	seg     *segment.Segment
	host    host.Host
	client  *Client
	driver  *Driver
	monitor *Monitor
	pump    *MidiPump
}

// NewService creates a service for role. midi is only used by the driver role.
func NewService(cfg *config.Config, role Role, hosts host.Factory, midi midiport.Opener, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:   cfg,
		role:  role,
		hosts: hosts,
		midi:  midi,
		log:   logger.With("role", role.String()),
	}
}

// SetNotifySubsystem registers fn to receive client monitor changes. Call
// it before Start.
func (s *Service) SetNotifySubsystem(fn func(subsystem string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// Role returns the side this service runs
func (s *Service) Role() Role { return s.role }

// Start attaches every configured instance, or only the given one when
// only is not negative, and starts driving them. Attach failures are
// returned and nothing is left running.
func (s *Service) Start(ctx context.Context, only int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("service already started")
	}

	var insts []*instance
	for _, b := range s.cfg.Bridges {
		if only >= 0 && b.Instance != only {
			continue
		}
		inst, err := s.open(b)
		if err != nil {
			for _, in := range insts {
				in.close()
			}
			return fmt.Errorf("instance %d: %w", b.Instance, err)
		}
		insts = append(insts, inst)
	}
	if len(insts) == 0 {
		return fmt.Errorf("no bridge configured for instance %d", only)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.instances = insts
	s.errs = make(chan error, len(insts))
	for _, inst := range insts {
		s.run(ctx, inst)
	}
	return nil
}

func (s *Service) open(b config.BridgeConfig) (*instance, error) {
	opts := s.cfg.ShmOptions(b.Instance)
	var seg *segment.Segment
	var err error
	if s.role == RoleClient {
		seg, err = segment.Create(opts)
	} else {
		seg, err = segment.Attach(opts)
	}
	if err != nil {
		return nil, err
	}
	inst := &instance{cfg: b, seg: seg}

	plan := ports.NewPlan(b.Name, seg.Layout())
	inst.host, err = s.hosts(b.Name, b.SampleRate, b.BlockFrames)
	if err != nil {
		inst.close()
		return nil, fmt.Errorf("failed to create host: %w", err)
	}
	if err := inst.host.Open(plan); err != nil {
		inst.close()
		return nil, fmt.Errorf("failed to register ports: %w", err)
	}

	bo := Options{
		Variant:      ring.Variant(b.Variant),
		MaxDelay:     b.MaxDelayFrames,
		SyncMode:     b.Sync(),
		AnchorPeriod: b.AnchorPeriodFrames,
		SampleRate:   inst.host.SampleRate(),
		Logger:       s.log,
	}
	if s.role == RoleClient {
		if inst.client, err = NewClient(seg, plan, bo); err != nil {
			inst.close()
			return nil, err
		}
		inst.monitor = NewMonitor(inst.client, b.MonitorInterval)
		inst.monitor.SetNotifySubsystem(s.notify)
	} else {
		if inst.driver, err = NewDriver(seg, plan, bo); err != nil {
			inst.close()
			return nil, err
		}
		if s.midi != nil && seg.Layout().MidiPorts > 0 {
			if inst.pump, err = NewMidiPump(seg, plan, s.midi, bo.withDefaults().Clock, s.log); err != nil {
				inst.close()
				return nil, err
			}
		}
	}
	s.log.Info("Attached segment", "instance", b.Instance, "name", seg.Name(),
		"host", inst.host.Name(), "sample_rate", inst.host.SampleRate(), "block_frames", inst.host.BufferFrames())
	return inst, nil
}

func (s *Service) run(ctx context.Context, inst *instance) {
	var proc host.Processor
	if inst.client != nil {
		inst.client.Activate()
		proc = inst.client
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			inst.monitor.Run(ctx)
		}()
	} else {
		inst.driver.StartIO()
		proc = inst.driver
		if inst.pump != nil {
			period := time.Duration(float64(inst.host.BufferFrames()) / inst.host.SampleRate() * float64(time.Second))
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				inst.pump.Run(ctx, max(period, time.Millisecond))
			}()
		}
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := inst.host.Run(ctx, proc); err != nil {
			s.log.Error("Host stopped", "instance", inst.cfg.Instance, "err", err)
			s.errs <- fmt.Errorf("instance %d: %w", inst.cfg.Instance, err)
		}
	}()
}

// Errors delivers host failures after Start
func (s *Service) Errors() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs
}

// Clients returns the client endpoints of running instances
func (s *Service) Clients() []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Client
	for _, inst := range s.instances {
		if inst.client != nil {
			out = append(out, inst.client)
		}
	}
	return out
}

// Drivers returns the driver endpoints of running instances
func (s *Service) Drivers() []*Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Driver
	for _, inst := range s.instances {
		if inst.driver != nil {
			out = append(out, inst.driver)
		}
	}
	return out
}

// Stop halts every instance and detaches from the segment
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil

	var errs []error
	for _, inst := range s.instances {
		if inst.client != nil {
			inst.client.Deactivate()
		}
		if inst.driver != nil {
			inst.driver.StopIO()
		}
		if err := inst.close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.instances = nil
	return errors.Join(errs...)
}

func (inst *instance) close() error {
	var errs []error
	if inst.pump != nil {
		errs = append(errs, inst.pump.Close())
	}
	if inst.host != nil {
		errs = append(errs, inst.host.Close())
	}
	if inst.seg != nil {
		errs = append(errs, inst.seg.Close())
	}
	return errors.Join(errs...)
}
