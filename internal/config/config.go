// Package config provides configuration loading for contextlog.
//
// Values come from built-in defaults, then an optional YAML file, then
// CONTEXTLOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the complete contextlog configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Store         StoreConfig         `koanf:"store"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	Scheduler     SchedulerConfig     `koanf:"scheduler"`
	Events        EventsConfig        `koanf:"events"`
	Temporal      TemporalConfig      `koanf:"temporal"`
	Engine        EngineConfig        `koanf:"engine"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`

	// RateLimit is requests per second per user; 0 disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// StoreConfig holds the SQLite store configuration.
type StoreConfig struct {
	Path        string   `koanf:"path"`
	BusyTimeout Duration `koanf:"busy_timeout"`
}

// LoggingConfig selects the zap logger shape.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	Sampling bool   `koanf:"sampling"`
	OTEL     bool   `koanf:"otel"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	OTLPEndpoint    string  `koanf:"otlp_endpoint"`
	OTLPProtocol    string  `koanf:"otlp_protocol"`
	OTLPInsecure    bool    `koanf:"otlp_insecure"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// SchedulerConfig controls the background notification sweep.
type SchedulerConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Interval Duration `koanf:"interval"`
}

// EventsConfig controls NATS event publishing. An empty URL disables it.
type EventsConfig struct {
	URL           Secret `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// TemporalConfig controls the optional weekly reflection worker.
type TemporalConfig struct {
	Enabled   bool   `koanf:"enabled"`
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// EngineConfig tunes the analysis engines.
type EngineConfig struct {
	DeadZoneWindowDays int `koanf:"deadzone_window_days"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("rate limit cannot be negative")
	}

	if strings.TrimSpace(c.Store.Path) == "" {
		return errors.New("store path is required")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level %q", c.Logging.Level)
	}

	if c.Observability.EnableTelemetry {
		if c.Observability.ServiceName == "" {
			return errors.New("service name required when telemetry is enabled")
		}
		if c.Observability.OTLPProtocol != "grpc" && c.Observability.OTLPProtocol != "http" {
			return fmt.Errorf("otlp protocol must be 'grpc' or 'http', got %q", c.Observability.OTLPProtocol)
		}
		if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
			return fmt.Errorf("sample rate must be between 0 and 1, got %v", c.Observability.SampleRate)
		}
	}

	if c.Scheduler.Enabled && c.Scheduler.Interval.Duration() < time.Second {
		return errors.New("scheduler interval must be at least 1s")
	}

	if c.Temporal.Enabled {
		if c.Temporal.HostPort == "" {
			return errors.New("temporal host_port required when temporal is enabled")
		}
		if c.Temporal.TaskQueue == "" {
			return errors.New("temporal task_queue required when temporal is enabled")
		}
	}

	if c.Engine.DeadZoneWindowDays < 1 {
		return fmt.Errorf("deadzone window must be at least 1 day, got %d", c.Engine.DeadZoneWindowDays)
	}

	return nil
}
