// Package logging builds the zap logger used across contextlog.
//
// The stdout core redacts journal free text by field name, so a debug line
// that carries a receipt's assumptions or a moment's note never prints them.
// Errors are never sampled.
package logging

import (
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/contextlog/internal/config"
)

// Config holds logging configuration.
type Config struct {
	Level     zapcore.Level
	Format    string
	OTEL      bool
	Sampling  SamplingConfig
	Fields    map[string]string
	Redaction RedactionConfig
}

// SamplingConfig controls log volume reduction below error level.
type SamplingConfig struct {
	Enabled    bool
	Tick       config.Duration
	Initial    int
	Thereafter int
}

// RedactionConfig controls sensitive data redaction.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
}

// JournalTextFields are the entry fields that hold a user's own words.
var JournalTextFields = []string{
	"context", "assumptions", "constraints", "change_mind",
	"note", "why_mattered", "user_notes", "assumption_delta",
}

// NewDefaultConfig returns config with production defaults.
func NewDefaultConfig() *Config {
	fields := append([]string{"password", "token", "authorization"}, JournalTextFields...)
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       config.Duration(time.Second),
			Initial:    100,
			Thereafter: 10,
		},
		Fields: map[string]string{
			"service": "contextlog",
		},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields:  fields,
			Patterns: []string{
				// credentials embedded in broker URLs
				`[a-z]+://[^:/\s]+:[^@\s]+@`,
			},
		},
	}
}

// FromConfig maps the application's logging section onto a logger config.
func FromConfig(c config.LoggingConfig, service string) (*Config, error) {
	cfg := NewDefaultConfig()
	level, err := LevelFromString(c.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	cfg.Level = level
	if c.Format != "" {
		cfg.Format = c.Format
	}
	cfg.Sampling.Enabled = c.Sampling
	cfg.OTEL = c.OTEL
	if service != "" {
		cfg.Fields["service"] = service
	}
	return cfg, cfg.Validate()
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if c.Sampling.Enabled && c.Sampling.Tick.Duration() <= 0 {
		return fmt.Errorf("sampling tick must be > 0 when sampling enabled")
	}
	if c.Redaction.Enabled {
		for _, pattern := range c.Redaction.Patterns {
			if len(pattern) > 200 {
				return fmt.Errorf("redaction pattern too long (max 200 chars): %q", pattern)
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("invalid redaction pattern %q: %w", pattern, err)
			}
		}
	}
	for k, v := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}
	return nil
}
