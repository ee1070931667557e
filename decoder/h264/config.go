package h264

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ugparu/twig/hw/regs"
)

// HeaderMode selects how slice headers are read.
type HeaderMode string

const (
	// HeaderHardware reads slice headers through the engine's bit reader.
	HeaderHardware HeaderMode = "hardware"
	// HeaderSoftware parses slice headers on the CPU and moves the engine's
	// bit reader to the start of the slice data.
	HeaderSoftware HeaderMode = "software"
)

// Config holds the decoder tunables.
type Config struct {
	PollTimeout     time.Duration `yaml:"poll_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollMaxInterval time.Duration `yaml:"poll_max_interval"`
	DecodeTimeout   time.Duration `yaml:"decode_timeout"`

	PoolSize    int        `yaml:"pool_size"`    // Frame pool capacity, at most MaxFramePoolSize.
	StagingSize int        `yaml:"staging_size"` // Bitstream staging buffer for DecodeBytes.
	HeaderMode  HeaderMode `yaml:"header_mode"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		PollTimeout:     regs.DefaultPollConfig.Timeout,
		PollInterval:    regs.DefaultPollConfig.Interval,
		PollMaxInterval: regs.DefaultPollConfig.MaxInterval,
		DecodeTimeout:   time.Second,
		PoolSize:        MaxFramePoolSize,
		StagingSize:     1 << 20,
		HeaderMode:      HeaderHardware,
	}
}

// LoadConfig reads a YAML configuration. Missing fields keep their defaults and
// unknown fields are rejected.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decoder config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every field holds a usable value.
func (c *Config) Validate() error {
	switch {
	case c.PollTimeout <= 0:
		return fmt.Errorf("decoder config: poll_timeout must be positive, got %v", c.PollTimeout)
	case c.PollInterval < 0 || c.PollMaxInterval < 0:
		return errors.New("decoder config: poll intervals must not be negative")
	case c.DecodeTimeout <= 0:
		return fmt.Errorf("decoder config: decode_timeout must be positive, got %v", c.DecodeTimeout)
	case c.PoolSize < 1 || c.PoolSize > MaxFramePoolSize:
		return fmt.Errorf("decoder config: pool_size must be in 1..%d, got %d", MaxFramePoolSize, c.PoolSize)
	case c.StagingSize <= 0:
		return fmt.Errorf("decoder config: staging_size must be positive, got %d", c.StagingSize)
	case c.HeaderMode != HeaderHardware && c.HeaderMode != HeaderSoftware:
		return fmt.Errorf("decoder config: unknown header_mode %q", c.HeaderMode)
	}
	return nil
}

func (c *Config) poll() regs.PollConfig {
	return regs.PollConfig{Timeout: c.PollTimeout, Interval: c.PollInterval, MaxInterval: c.PollMaxInterval}
}
