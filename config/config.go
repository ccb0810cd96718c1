// Package config loads and validates gstd's process configuration: IPC
// bind addresses/ports, worker-pool sizes, and optional eventbus wiring.
// A YAML file supplies defaults, CLI flags parsed with
// github.com/spf13/cobra override them, and Validate() clamps the
// historical "-1 means unlimited" worker-pool sizes to a bounded default.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cfsbhawkins/gstd-1.x/worker"
)

// HTTPConfig configures the HTTP/JSON REST server.
type HTTPConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Address    string `yaml:"address"`
	Port       int    `yaml:"port"`
	MaxThreads int    `yaml:"max_threads"`
}

// TCPConfig configures the line-oriented TCP server.
type TCPConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Address    string `yaml:"address"`
	Port       int    `yaml:"port"`
	MaxThreads int    `yaml:"max_threads"`
}

// EventBusConfig configures the optional NATS fan-out of pipeline lifecycle
// and bus events. Disabled and best-effort by default: an unreachable NATS
// server never blocks or fails a CRUD request.
type EventBusConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject_prefix"`
}

// LogConfig configures the process-wide slog logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// RateLimitConfig configures the optional per-remote-address token-bucket
// limiter in front of the HTTP worker-pool handoff. Disabled by default.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Config is the complete process configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	TCP       TCPConfig       `yaml:"tcp"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Default returns the stock configuration: both IPC servers off, 16-worker
// pools, text logging at info level.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Enabled:    false,
			Address:    "127.0.0.1",
			Port:       5001,
			MaxThreads: 16,
		},
		TCP: TCPConfig{
			Enabled:    false,
			Address:    "127.0.0.1",
			Port:       5000,
			MaxThreads: 16,
		},
		EventBus: EventBusConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
			Subject: "gstd",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 50,
			Burst:             100,
		},
	}
}

// Load reads a YAML file at path into a Default()-seeded Config. A missing
// path is not an error — the daemon runs on defaults plus whatever flags
// override them.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// Validate clamps non-positive (including the historical "-1 unlimited")
// thread-pool sizes to worker.UnlimitedClamp and rejects an invalid port or
// log level. Called once after flags are layered over the file.
func (c *Config) Validate() error {
	c.HTTP.MaxThreads = worker.ClampSize(c.HTTP.MaxThreads)
	c.TCP.MaxThreads = worker.ClampSize(c.TCP.MaxThreads)

	if c.HTTP.Enabled && (c.HTTP.Port <= 0 || c.HTTP.Port > 65535) {
		return fmt.Errorf("config: invalid http.port %d", c.HTTP.Port)
	}
	if c.TCP.Enabled && (c.TCP.Port <= 0 || c.TCP.Port > 65535) {
		return fmt.Errorf("config: invalid tcp.port %d", c.TCP.Port)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: invalid log.format %q", c.Log.Format)
	}
	return nil
}
