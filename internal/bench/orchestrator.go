package bench

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"apibench/internal/probe"
	"apibench/internal/runner"
	"apibench/internal/stats"
	"apibench/internal/technique"
)

// Snapshot is pushed over the updates channel as probes complete.
type Snapshot struct {
	Technique      string
	Variant        probe.Variant
	TechniqueIndex int
	TechniqueCount int

	// Probe counts within the current technique.
	Completed uint64
	Total     uint64

	// Aggregates across the whole run.
	Requests uint64
	Failures uint64
	P50Ms    float64
	P99Ms    float64
}

// UpdateChan carries progress snapshots to the UI.
type UpdateChan chan Snapshot

// Orchestrator iterates the selected techniques, drives the baseline and
// optimized scenarios for each, and assembles the reports.
type Orchestrator struct {
	cfg      runner.Config
	selected []technique.Technique
	prober   *probe.Prober
	log      zerolog.Logger

	Updates UpdateChan

	hist               *stats.SafeHistogram
	requests, failures uint64

	// Set between variant runs, read by the probe observer.
	curTechnique string
	curVariant   probe.Variant
	curIndex     int
	curCompleted uint64
}

// New validates the configuration and resolves the technique filter. An
// unknown technique name fails here, before any network traffic.
func New(cfg runner.Config, log zerolog.Logger, updates UpdateChan) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	selected := technique.All()
	if cfg.Technique != "" {
		t, err := technique.Lookup(cfg.Technique)
		if err != nil {
			return nil, err
		}
		selected = []technique.Technique{t}
	}

	if updates == nil {
		// Avoid nil panics if no UI is attached
		updates = make(UpdateChan, 10)
	}

	return &Orchestrator{
		cfg:      cfg,
		selected: selected,
		prober:   probe.NewProber(cfg.BaseURL, cfg.Timeout()),
		log:      log,
		Updates:  updates,
		hist:     stats.NewSafeHistogram(),
	}, nil
}

// Techniques returns the resolved selection for this run.
func (o *Orchestrator) Techniques() []technique.Technique {
	return o.selected
}

// ProbesPerTechnique is the number of measurements one technique produces:
// both variants, both phases.
func (o *Orchestrator) ProbesPerTechnique() int {
	return 2 * (o.cfg.Iterations + o.cfg.Concurrency)
}

// CheckTarget verifies the target answers at all before the run starts.
func (o *Orchestrator) CheckTarget(ctx context.Context) error {
	return o.prober.CheckReachable(ctx)
}

// Run executes every selected technique and returns all reports. A fatal
// failure in one technique is recorded on its report and the remaining
// techniques still run; only context cancellation stops the whole loop.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{
		RunID:     uuid.New().String(),
		StartedAt: start,
	}

	for i, t := range o.selected {
		o.curIndex = i

		rep := o.runTechnique(ctx, t)
		result.Reports = append(result.Reports, rep)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	result.Elapsed = time.Since(start)
	o.log.Info().
		Int("techniques", len(result.Reports)).
		Int("failed", result.Failed()).
		Dur("elapsed", result.Elapsed).
		Msg("benchmark run complete")

	return result, nil
}

func (o *Orchestrator) runTechnique(ctx context.Context, t technique.Technique) (rep Report) {
	rep = Report{
		Technique: string(t.Name),
		Config:    o.cfg,
		Timestamp: time.Now().UTC(),
	}

	// One misbehaving technique must not void the rest of the run.
	defer func() {
		if r := recover(); r != nil {
			rep.Err = fmt.Sprintf("panic: %v", r)
			o.log.Error().Str("technique", rep.Technique).Interface("panic", r).Msg("technique panicked")
		}
	}()

	o.curTechnique = string(t.Name)
	atomic.StoreUint64(&o.curCompleted, 0)

	o.log.Info().Str("technique", rep.Technique).Msg("benchmarking")

	d := runner.NewDriver(o.prober, o.cfg, o.log)
	d.Observe = o.observe

	baseline, err := o.runVariant(ctx, d, t, probe.VariantBaseline)
	if err != nil {
		rep.Err = err.Error()
		o.log.Error().Err(err).Str("technique", rep.Technique).Msg("technique failed")
		return rep
	}
	rep.Baseline = baseline

	optimized, err := o.runVariant(ctx, d, t, probe.VariantOptimized)
	if err != nil {
		rep.Err = err.Error()
		o.log.Error().Err(err).Str("technique", rep.Technique).Msg("technique failed")
		return rep
	}
	rep.Optimized = optimized

	cmp := stats.Compare(baseline.Summary, optimized.Summary)
	rep.Comparison = &cmp

	if baseline.Summary.SampleSize == 0 || optimized.Summary.SampleSize == 0 {
		o.log.Warn().Str("technique", rep.Technique).Msg("no samples survived reduction; summary is degenerate")
	}

	return rep
}

func (o *Orchestrator) runVariant(ctx context.Context, d *runner.Driver, t technique.Technique, v probe.Variant) (*VariantResult, error) {
	o.curVariant = v

	phases, err := d.Run(ctx, t, v)
	if err != nil {
		return nil, err
	}

	samples := phases.All()
	if !o.cfg.IncludeFailures {
		samples = stats.Successes(samples)
	}

	return &VariantResult{
		PhaseResult: phases,
		Summary:     stats.Reduce(samples),
	}, nil
}

func (o *Orchestrator) observe(m probe.Measurement) {
	atomic.AddUint64(&o.requests, 1)
	if !m.Success {
		atomic.AddUint64(&o.failures, 1)
	}
	o.hist.RecordMs(m.ElapsedMs)
	completed := atomic.AddUint64(&o.curCompleted, 1)

	s := Snapshot{
		Technique:      o.curTechnique,
		Variant:        o.curVariant,
		TechniqueIndex: o.curIndex,
		TechniqueCount: len(o.selected),
		Completed:      completed,
		Total:          uint64(o.ProbesPerTechnique()),
		Requests:       atomic.LoadUint64(&o.requests),
		Failures:       atomic.LoadUint64(&o.failures),
		P50Ms:          o.hist.QuantileMs(50),
		P99Ms:          o.hist.QuantileMs(99),
	}

	// Non-blocking send; a slow UI drops updates, never stalls a probe.
	select {
	case o.Updates <- s:
	default:
	}
}
