// Package config provides configuration loading and management for mailpilot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/csheth/mailpilot/internal/session"
)

// Config represents the complete mailpilot configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Timing  TimingConfig  `yaml:"timing"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	UI      UIConfig      `yaml:"ui"`
	Resume  ResumeConfig  `yaml:"resume"`
}

// ServerConfig configures the remote workflow service
type ServerConfig struct {
	// Endpoint is the base URL hosting /api/ai-agent/* (default: http://localhost:8080)
	Endpoint string `yaml:"endpoint"`
	// Timeout bounds every individual remote call
	Timeout time.Duration `yaml:"timeout"`
}

// TimingConfig configures the poll, autosave and burst schedule
type TimingConfig struct {
	PollInterval     time.Duration   `yaml:"poll_interval"`
	AutosaveInterval time.Duration   `yaml:"autosave_interval"`
	MinSavingVisible time.Duration   `yaml:"min_saving_visible"`
	Burst            []time.Duration `yaml:"burst"`
}

// LogConfig configures the log file. The TUI owns the terminal, so logs never go to stdout.
type LogConfig struct {
	// File is the log destination (empty = logging disabled)
	File string `yaml:"file"`
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
}

// MetricsConfig configures the prometheus listener
type MetricsConfig struct {
	// Addr is the listen address for /metrics (empty = disabled)
	Addr string `yaml:"addr"`
}

// UIConfig configures terminal behaviour
type UIConfig struct {
	NoAltScreen bool `yaml:"no_alt_screen"`
}

// ResumeConfig configures how the active workflow id survives restarts
type ResumeConfig struct {
	Disabled bool   `yaml:"disabled"`
	Path     string `yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	timing := session.DefaultTiming()
	return &Config{
		Server: ServerConfig{
			Endpoint: "http://localhost:8080",
			Timeout:  15 * time.Second,
		},
		Timing: TimingConfig{
			PollInterval:     timing.PollInterval,
			AutosaveInterval: timing.AutosaveInterval,
			MinSavingVisible: timing.MinSavingVisible,
			Burst:            timing.Burst,
		},
		Log: LogConfig{
			File:  "",
			Level: "info",
		},
	}
}

// SessionTiming converts the timing section into the session schedule
func (c *Config) SessionTiming() session.Timing {
	return session.Timing{
		PollInterval:     c.Timing.PollInterval,
		AutosaveInterval: c.Timing.AutosaveInterval,
		MinSavingVisible: c.Timing.MinSavingVisible,
		Burst:            append([]time.Duration(nil), c.Timing.Burst...),
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Endpoint) == "" {
		return fmt.Errorf("server.endpoint is required")
	}
	if c.Server.Timeout < 0 {
		return fmt.Errorf("server.timeout cannot be negative")
	}
	if err := c.SessionTiming().Validate(); err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error (got %q)", c.Log.Level)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	if other.Server.Endpoint != "" {
		c.Server.Endpoint = other.Server.Endpoint
	}
	if other.Server.Timeout != 0 {
		c.Server.Timeout = other.Server.Timeout
	}

	// Timing
	if other.Timing.PollInterval != 0 {
		c.Timing.PollInterval = other.Timing.PollInterval
	}
	if other.Timing.AutosaveInterval != 0 {
		c.Timing.AutosaveInterval = other.Timing.AutosaveInterval
	}
	if other.Timing.MinSavingVisible != 0 {
		c.Timing.MinSavingVisible = other.Timing.MinSavingVisible
	}
	if len(other.Timing.Burst) > 0 {
		c.Timing.Burst = append([]time.Duration(nil), other.Timing.Burst...)
	}

	// Log
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}

	// Metrics
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}

	// UI
	if other.UI.NoAltScreen {
		c.UI.NoAltScreen = true
	}

	// Resume
	if other.Resume.Disabled {
		c.Resume.Disabled = true
	}
	if other.Resume.Path != "" {
		c.Resume.Path = other.Resume.Path
	}
}
