package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/famish99/jackbridge/internal/ring"
	"github.com/famish99/jackbridge/internal/segment"
)

// ErrInvalid is returned when a configuration fails validation
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	// Shared memory backing object and its layout
	Shm ShmConfig `yaml:"shm"`

	// Bridge instances, one per slice of the backing object
	Bridges []BridgeConfig `yaml:"bridges"`

	// Control socket of the daemon
	Control ControlConfig `yaml:"control"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`
}

// ShmConfig describes the backing object. Both sides must agree on it.
type ShmConfig struct {
	Name               string `yaml:"name"`
	Dir                string `yaml:"dir,omitempty"`
	Instances          int    `yaml:"instances"`
	RingCapacityFrames int    `yaml:"ring_capacity_frames"`
	ChannelGroups      int    `yaml:"channel_groups"`
	ChannelsPerGroup   int    `yaml:"channels_per_group"`
	MidiPorts          int    `yaml:"midi_ports"`
}

// BridgeConfig represents one bridge instance
type BridgeConfig struct {
	Instance           int           `yaml:"instance"`
	Name               string        `yaml:"name,omitempty"`
	Variant            string        `yaml:"variant,omitempty"`   // implicit or explicit
	SyncMode           *bool         `yaml:"sync_mode,omitempty"` // default true
	MaxDelayFrames     int           `yaml:"max_delay_frames,omitempty"`
	AnchorPeriodFrames int           `yaml:"anchor_period_frames,omitempty"` // default: ring capacity
	SampleRate         float64       `yaml:"sample_rate,omitempty"`
	BlockFrames        int           `yaml:"block_frames,omitempty"`
	MonitorInterval    time.Duration `yaml:"monitor_interval,omitempty"`
}

// ControlConfig represents the daemon's status socket. An empty address
// disables it.
type ControlConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	l := segment.DefaultLayout()
	return &Config{
		Shm: ShmConfig{
			Name:               segment.DefaultName,
			Dir:                segment.DefaultDir,
			Instances:          1,
			RingCapacityFrames: l.CapacityFrames,
			ChannelGroups:      l.Groups,
			ChannelsPerGroup:   l.ChannelsPerGroup,
			MidiPorts:          l.MidiPorts,
		},
		Bridges: []BridgeConfig{DefaultBridge(0)},
		Control: ControlConfig{
			Addr: "localhost:6610",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultBridge returns default settings for an instance
func DefaultBridge(instance int) BridgeConfig {
	b := BridgeConfig{Instance: instance}
	b.applyDefaults()
	return b
}

func (b *BridgeConfig) applyDefaults() {
	if b.Name == "" {
		b.Name = fmt.Sprintf("JackBridge #%d", b.Instance)
	}
	if b.Variant == "" {
		b.Variant = string(ring.Explicit)
	}
	if b.SyncMode == nil {
		on := true
		b.SyncMode = &on
	}
	if b.MaxDelayFrames == 0 {
		b.MaxDelayFrames = ring.DefaultMaxDelay
	}
	if b.SampleRate == 0 {
		b.SampleRate = 48000
	}
	if b.BlockFrames == 0 {
		b.BlockFrames = 256
	}
	if b.MonitorInterval == 0 {
		b.MonitorInterval = time.Second
	}
}

// Sync reports whether the bridge publishes clock anchors
func (b BridgeConfig) Sync() bool {
	return b.SyncMode == nil || *b.SyncMode
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, return default config
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML on top of the defaults and validates the result
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Bridges = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if len(cfg.Bridges) == 0 {
		for i := 0; i < cfg.Shm.Instances; i++ {
			cfg.Bridges = append(cfg.Bridges, DefaultBridge(i))
		}
	}
	for i := range cfg.Bridges {
		cfg.Bridges[i].applyDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves configuration to file
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Layout returns the segment layout described by the shm section
func (c *Config) Layout() segment.Layout {
	return segment.Layout{
		Groups:           c.Shm.ChannelGroups,
		ChannelsPerGroup: c.Shm.ChannelsPerGroup,
		CapacityFrames:   c.Shm.RingCapacityFrames,
		MidiPorts:        c.Shm.MidiPorts,
	}
}

// ShmOptions returns the options to open one instance of the backing object
func (c *Config) ShmOptions(instance int) segment.Options {
	return segment.Options{
		Name:      c.Shm.Name,
		Dir:       c.Shm.Dir,
		Instance:  instance,
		Instances: c.Shm.Instances,
		Layout:    c.Layout(),
	}
}

// GetBridge returns a bridge by instance number
func (c *Config) GetBridge(instance int) *BridgeConfig {
	for i := range c.Bridges {
		if c.Bridges[i].Instance == instance {
			return &c.Bridges[i]
		}
	}
	return nil
}

// AddBridge adds a bridge, growing the instance count when needed
func (c *Config) AddBridge(b BridgeConfig) error {
	if c.GetBridge(b.Instance) != nil {
		return fmt.Errorf("%w: instance %d already configured", ErrInvalid, b.Instance)
	}
	b.applyDefaults()
	c.Bridges = append(c.Bridges, b)
	if b.Instance >= c.Shm.Instances {
		c.Shm.Instances = b.Instance + 1
	}
	return nil
}

// Validate checks the configuration for values neither side could attach with
func (c *Config) Validate() error {
	l := c.Layout()
	if err := l.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Shm.Name == "" {
		return fmt.Errorf("%w: shm name is empty", ErrInvalid)
	}
	if c.Shm.Instances < 1 {
		return fmt.Errorf("%w: shm instances must be at least 1", ErrInvalid)
	}
	seen := make(map[int]bool)
	for _, b := range c.Bridges {
		if b.Instance < 0 || b.Instance >= c.Shm.Instances {
			return fmt.Errorf("%w: bridge instance %d out of range [0,%d)", ErrInvalid, b.Instance, c.Shm.Instances)
		}
		if seen[b.Instance] {
			return fmt.Errorf("%w: bridge instance %d configured twice", ErrInvalid, b.Instance)
		}
		seen[b.Instance] = true
		if _, err := ring.ParseVariant(b.Variant); err != nil {
			return fmt.Errorf("%w: bridge %d: %w", ErrInvalid, b.Instance, err)
		}
		if b.MaxDelayFrames < 0 || b.MaxDelayFrames >= l.CapacityFrames {
			return fmt.Errorf("%w: bridge %d: max_delay_frames %d must be below ring capacity %d",
				ErrInvalid, b.Instance, b.MaxDelayFrames, l.CapacityFrames)
		}
		if b.AnchorPeriodFrames < 0 {
			return fmt.Errorf("%w: bridge %d: negative anchor_period_frames", ErrInvalid, b.Instance)
		}
		if b.SampleRate <= 0 {
			return fmt.Errorf("%w: bridge %d: sample_rate must be positive", ErrInvalid, b.Instance)
		}
		if b.BlockFrames <= 0 || b.BlockFrames > l.CapacityFrames {
			return fmt.Errorf("%w: bridge %d: block_frames %d out of range (0,%d]",
				ErrInvalid, b.Instance, b.BlockFrames, l.CapacityFrames)
		}
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: logging format %q (want text or json)", ErrInvalid, c.Logging.Format)
	}
	return nil
}

// ParseLevel parses a slog level name
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
