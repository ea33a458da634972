// Package config holds the application configuration: the desk address,
// connection policy and move tuning, loadable from a YAML file with
// struct-tag defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/deskctl/internal/desk"
)

// Config holds application configuration
type Config struct {
	// Address of the already-paired desk.
	Address        string        `yaml:"address"`
	LogLevel       string        `yaml:"log_level" default:"info"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
	Move      MoveConfig      `yaml:"move"`
}

// ReconnectConfig tunes the backoff schedule after unexpected link loss.
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay" default:"1s"`
	MaxDelay     time.Duration `yaml:"max_delay" default:"30s"`
}

// MoveConfig tunes the move state machine.
type MoveConfig struct {
	ToleranceMM       float64       `yaml:"tolerance_mm" default:"2"`
	NoiseMM           float64       `yaml:"noise_mm" default:"0.5"`
	StallTimeout      time.Duration `yaml:"stall_timeout" default:"5s"`
	ZeroSpeedDebounce time.Duration `yaml:"zero_speed_debounce" default:"300ms"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval" default:"500ms"`
	FlipWindow        time.Duration `yaml:"flip_window" default:"2s"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads the YAML config file at path, layered over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values that cannot be expressed by types alone.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.Reconnect.InitialDelay <= 0 {
		return fmt.Errorf("reconnect.initial_delay must be positive")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("reconnect.max_delay must be >= reconnect.initial_delay")
	}
	if c.Move.ToleranceMM <= 0 {
		return fmt.Errorf("move.tolerance_mm must be positive")
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// DriverOptions maps the configuration onto driver options.
func (c *Config) DriverOptions(logger *logrus.Logger) desk.Options {
	return desk.Options{
		Address:        c.Address,
		ConnectTimeout: c.ConnectTimeout,
		Backoff: desk.Backoff{
			Initial: c.Reconnect.InitialDelay,
			Max:     c.Reconnect.MaxDelay,
		},
		Controller: desk.ControllerConfig{
			ToleranceMM:       c.Move.ToleranceMM,
			NoiseMM:           c.Move.NoiseMM,
			StallTimeout:      c.Move.StallTimeout,
			ZeroSpeedDebounce: c.Move.ZeroSpeedDebounce,
			KeepaliveInterval: c.Move.KeepaliveInterval,
			FlipWindow:        c.Move.FlipWindow,
		},
		Logger: logger,
	}
}
