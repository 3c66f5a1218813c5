// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Supported state backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the ops HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// ClubTag is the club being watched.
	ClubTag string `koanf:"club_tag"`

	// Upstream API access.
	APIBaseURL    string  `koanf:"api_base_url"`
	APIToken      string  `koanf:"api_token"`
	APITimeoutMS  int     `koanf:"api_timeout_ms"`
	APIRatePerSec float64 `koanf:"api_rate_per_sec"`
	APIBurst      int     `koanf:"api_burst"`

	// Poll intervals, measured from the end of the previous cycle.
	RosterPollSeconds int `koanf:"roster_poll_seconds"`
	StatsPollSeconds  int `koanf:"stats_poll_seconds"`

	// State persistence.
	StateBackend string `koanf:"state_backend"`
	StatePath    string `koanf:"state_path"`
	StateDSN     string `koanf:"state_dsn"`

	// Milestone rules. An empty MilestoneThresholds uses the built-in list.
	DimensionCap        int   `koanf:"dimension_cap"`
	ResetDropThreshold  int   `koanf:"reset_drop_threshold"`
	MilestoneThresholds []int `koanf:"milestone_thresholds"`

	// Event delivery.
	QueueSize           int    `koanf:"queue_size"`
	WorkerCount         int    `koanf:"worker_count"`
	DeliveryMaxAttempts int    `koanf:"delivery_max_attempts"`
	Redeliveries        int    `koanf:"delivery_redeliveries"` // requeues after an incomplete fan-out
	DedupeSize          int    `koanf:"dedupe_size"`
	WebhookURL          string `koanf:"webhook_url"`
	NATSURL             string `koanf:"nats_url"`
	NATSSubjectPrefix   string `koanf:"nats_subject_prefix"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		APIBaseURL:          "https://api.brawlstars.com/v1/",
		APITimeoutMS:        10_000,
		APIRatePerSec:       10,
		APIBurst:            5,
		RosterPollSeconds:   180,
		StatsPollSeconds:    600,
		StateBackend:        BackendFile,
		StatePath:           "clubwatch-state.json",
		DimensionCap:        1000,
		ResetDropThreshold:  5000,
		QueueSize:           1024,
		WorkerCount:         1,
		DeliveryMaxAttempts: 3,
		Redeliveries:        2,
		DedupeSize:          10_000,
		NATSSubjectPrefix:   "clubwatch.events",
	}
}

// RosterInterval returns the roster poll interval.
func (c *Config) RosterInterval() time.Duration {
	return time.Duration(c.RosterPollSeconds) * time.Second
}

// StatsInterval returns the stats poll interval.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsPollSeconds) * time.Second
}

// APITimeout returns the upstream request timeout.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutMS) * time.Millisecond
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.ClubTag) == "":
		return fmt.Errorf("%w: club_tag is required", ErrInvalidConfig)
	case c.RosterPollSeconds <= 0:
		return fmt.Errorf("%w: roster_poll_seconds must be positive", ErrInvalidConfig)
	case c.StatsPollSeconds <= 0:
		return fmt.Errorf("%w: stats_poll_seconds must be positive", ErrInvalidConfig)
	case c.DimensionCap <= 0:
		return fmt.Errorf("%w: dimension_cap must be positive", ErrInvalidConfig)
	case c.ResetDropThreshold <= 0:
		return fmt.Errorf("%w: reset_drop_threshold must be positive", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	}

	switch strings.ToLower(c.StateBackend) {
	case BackendFile, BackendSQLite:
		if strings.TrimSpace(c.StatePath) == "" {
			return fmt.Errorf("%w: state_path is required for the %s backend", ErrInvalidConfig, c.StateBackend)
		}
	case BackendPostgres:
		if strings.TrimSpace(c.StateDSN) == "" {
			return fmt.Errorf("%w: state_dsn is required for the postgres backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown state_backend %q", ErrInvalidConfig, c.StateBackend)
	}
	return nil
}
