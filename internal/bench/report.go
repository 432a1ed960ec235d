package bench

import (
	"time"

	"apibench/internal/runner"
	"apibench/internal/stats"
)

// VariantResult carries one variant's raw measurements and their summary.
type VariantResult struct {
	runner.PhaseResult
	Summary stats.Summary `json:"summary"`
}

// Report is the full record of one technique's benchmark: config snapshot,
// raw data per variant, and the derived comparison. Written once by the
// report sink and never mutated afterwards.
type Report struct {
	Technique  string            `json:"technique"`
	Config     runner.Config     `json:"config"`
	Timestamp  time.Time         `json:"timestamp"`
	Baseline   *VariantResult    `json:"baseline,omitempty"`
	Optimized  *VariantResult    `json:"optimized,omitempty"`
	Comparison *stats.Comparison `json:"comparison,omitempty"`

	// Err records a fatal driver failure for this technique. Other
	// techniques in the same run are unaffected.
	Err string `json:"error,omitempty"`
}

// RunResult is everything one orchestrator invocation produced.
type RunResult struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Reports   []Report      `json:"reports"`
}

// Failed counts techniques whose driver failed outright.
func (r *RunResult) Failed() int {
	n := 0
	for _, rep := range r.Reports {
		if rep.Err != "" {
			n++
		}
	}
	return n
}
