// Package config provides configuration loading and management for the
// feed sync agent.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseURL is the default base URL of the feed application server
	DefaultBaseURL = "http://localhost:3000"

	// DefaultLogPath is the default location of the JSONL sync event log
	DefaultLogPath = "./logs/sync-cron.jsonl"

	// DefaultSchedule fires twice daily, early morning and afternoon
	DefaultSchedule = "0 2,14 * * *"

	// DefaultPollInterval is the delay between status poll attempts
	DefaultPollInterval = 2 * time.Second

	// DefaultMaxPollAttempts bounds one run to roughly two minutes of polling
	DefaultMaxPollAttempts = 60

	// DefaultRequestTimeout is the per-request HTTP timeout
	DefaultRequestTimeout = 10 * time.Second
)

// Environment variable names. These predate this implementation and are
// shared with the deployment tooling, so they keep their exact spelling.
const (
	// EnvBaseURL is the base URL of the application server
	EnvBaseURL = "NEXT_PUBLIC_BASE_URL"

	// EnvLogPath is the sync event log file path
	EnvLogPath = "SYNC_LOG_PATH"

	// EnvAutoSync enables scheduled sync runs when set to "true"
	EnvAutoSync = "ENABLE_AUTO_SYNC"

	// EnvSchedule is the cron expression for scheduled runs
	EnvSchedule = "SYNC_CRON_SCHEDULE"

	// EnvTimezone is the IANA timezone name used for schedule evaluation
	EnvTimezone = "SYNC_TIMEZONE"
)

// Config is the root configuration for the sync agent. All knobs are
// explicit; nothing reads the environment after construction.
type Config struct {
	// BaseURL is the base URL of the feed application server
	BaseURL string `yaml:"baseURL,omitempty"`

	// LogPath is the path of the append-only JSONL sync event log
	LogPath string `yaml:"logPath,omitempty"`

	// AutoSyncEnabled controls whether scheduled sync runs happen at all
	AutoSyncEnabled bool `yaml:"autoSyncEnabled"`

	// Schedule is the cron expression driving scheduled runs
	Schedule string `yaml:"schedule,omitempty"`

	// Timezone is the IANA timezone name for schedule evaluation and
	// trigger-label derivation; empty means the process-local zone
	Timezone string `yaml:"timezone,omitempty"`

	// Poll tunes the status polling loop
	Poll *PollConfig `yaml:"poll,omitempty"`

	// Telemetry configures the agent's operational metrics endpoint
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// PollConfig tunes the status polling loop. Defaults preserve the
// 2-second / 60-attempt contract of the sync workflow.
type PollConfig struct {
	// Interval is the fixed delay between status poll attempts (e.g. "2s")
	Interval string `yaml:"interval,omitempty"`

	// MaxAttempts caps the number of poll attempts before a run times out
	MaxAttempts int `yaml:"maxAttempts,omitempty"`

	// RequestTimeout is the per-request HTTP timeout (e.g. "10s")
	RequestTimeout string `yaml:"requestTimeout,omitempty"`
}

// TelemetryConfig configures the agent's metrics/health listener.
type TelemetryConfig struct {
	// Enabled controls whether metrics are collected at all
	Enabled bool `yaml:"enabled"`

	// Address is the listen address for /healthz and /metrics,
	// e.g. ":9090"; empty disables the listener
	Address string `yaml:"address,omitempty"`
}

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}
		cfg.path = path
		return nil
	}
}

// Load builds a Config from an optional YAML file and the environment.
// Precedence: environment variables override file values, file values
// override defaults. The result is validated.
func Load(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	config := &Config{}
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnv overlays the well-known environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvLogPath); v != "" {
		c.LogPath = v
	}
	if v := os.Getenv(EnvAutoSync); v != "" {
		c.AutoSyncEnabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv(EnvSchedule); v != "" {
		c.Schedule = v
	}
	if v := os.Getenv(EnvTimezone); v != "" {
		c.Timezone = v
	}
}

// GetBaseURL returns the application base URL, using the default if not
// specified. A trailing slash is trimmed so path joining stays uniform.
func (c *Config) GetBaseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

// GetLogPath returns the sync log path, using the default if not specified
func (c *Config) GetLogPath() string {
	if c.LogPath == "" {
		return DefaultLogPath
	}
	return c.LogPath
}

// GetSchedule returns the cron schedule, using the default if not specified
func (c *Config) GetSchedule() string {
	if c.Schedule == "" {
		return DefaultSchedule
	}
	return c.Schedule
}

// GetPollInterval returns the poll interval, using the default if not
// specified or unparseable
func (c *Config) GetPollInterval() time.Duration {
	if c.Poll == nil || c.Poll.Interval == "" {
		return DefaultPollInterval
	}
	d, err := time.ParseDuration(c.Poll.Interval)
	if err != nil || d <= 0 {
		slog.Warn("Invalid poll interval, using default",
			"interval", c.Poll.Interval,
			"default", DefaultPollInterval)
		return DefaultPollInterval
	}
	return d
}

// GetMaxPollAttempts returns the poll attempt cap, using the default if
// not specified
func (c *Config) GetMaxPollAttempts() int {
	if c.Poll == nil || c.Poll.MaxAttempts <= 0 {
		return DefaultMaxPollAttempts
	}
	return c.Poll.MaxAttempts
}

// GetRequestTimeout returns the per-request HTTP timeout, using the
// default if not specified or unparseable
func (c *Config) GetRequestTimeout() time.Duration {
	if c.Poll == nil || c.Poll.RequestTimeout == "" {
		return DefaultRequestTimeout
	}
	d, err := time.ParseDuration(c.Poll.RequestTimeout)
	if err != nil || d <= 0 {
		slog.Warn("Invalid request timeout, using default",
			"timeout", c.Poll.RequestTimeout,
			"default", DefaultRequestTimeout)
		return DefaultRequestTimeout
	}
	return d
}

// Location resolves the configured timezone. An empty timezone means the
// process-local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	parsed, err := url.Parse(c.GetBaseURL())
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", c.GetBaseURL(), err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base URL %q must use http or https", c.GetBaseURL())
	}
	if parsed.Host == "" {
		return fmt.Errorf("base URL %q has no host", c.GetBaseURL())
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	return nil
}
