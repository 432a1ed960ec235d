package runner

import (
	"fmt"
	"time"
)

// Config holds the per-invocation parameters. Immutable for the duration
// of a run; a snapshot is embedded in every persisted report.
type Config struct {
	BaseURL         string `json:"base_url"`
	Iterations      int    `json:"iterations"`
	Concurrency     int    `json:"concurrency"`
	Technique       string `json:"technique,omitempty"`
	OutputDir       string `json:"output_dir,omitempty"`
	TimeoutSec      int    `json:"timeout_sec"`
	IncludeFailures bool   `json:"include_failures_in_stats"`

	// PacingMs separates consecutive sequential-phase probes so one
	// response draining cannot bleed into the next measurement.
	PacingMs int `json:"pacing_ms"`
}

const (
	DefaultIterations  = 3
	DefaultConcurrency = 10
	DefaultTimeoutSec  = 30
	DefaultPacingMs    = 100
)

// Validate rejects configurations before any probing starts.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be > 0, got %d", c.Iterations)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0, got %d", c.Concurrency)
	}
	return nil
}

func (c Config) Timeout() time.Duration {
	sec := c.TimeoutSec
	if sec <= 0 {
		sec = DefaultTimeoutSec
	}
	return time.Duration(sec) * time.Second
}

func (c Config) Pacing() time.Duration {
	ms := c.PacingMs
	if ms <= 0 {
		ms = DefaultPacingMs
	}
	return time.Duration(ms) * time.Millisecond
}
