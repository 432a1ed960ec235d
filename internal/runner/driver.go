package runner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"apibench/internal/probe"
	"apibench/internal/technique"
)

// PhaseResult holds one variant's measurements split by phase. Sequential
// order matches issuance order; concurrent order is completion-arbitrary
// and callers must not rely on it.
type PhaseResult struct {
	Sequential []probe.Measurement `json:"sequential"`
	Concurrent []probe.Measurement `json:"concurrent"`
}

// All returns both phases as one list for reduction.
func (p PhaseResult) All() []probe.Measurement {
	out := make([]probe.Measurement, 0, len(p.Sequential)+len(p.Concurrent))
	out = append(out, p.Sequential...)
	out = append(out, p.Concurrent...)
	return out
}

// Driver runs the two-phase scenario for any technique/variant pair. It is
// technique-agnostic: the request shape comes entirely from the registry.
type Driver struct {
	Prober *probe.Prober
	Cfg    Config
	Log    zerolog.Logger

	// Observe, when set, is called once per completed probe. The concurrent
	// phase calls it from multiple goroutines, so it must be safe to share.
	Observe func(probe.Measurement)
}

func NewDriver(p *probe.Prober, cfg Config, log zerolog.Logger) *Driver {
	return &Driver{Prober: p, Cfg: cfg, Log: log}
}

// Run produces exactly Iterations sequential and Concurrency concurrent
// measurements for one variant. Transport failures become failed
// measurements with status 0; only context cancellation aborts early.
func (d *Driver) Run(ctx context.Context, t technique.Technique, v probe.Variant) (PhaseResult, error) {
	req := t.Request(v)

	seq, err := d.sequential(ctx, req)
	if err != nil {
		return PhaseResult{}, err
	}

	conc, err := d.concurrent(ctx, req)
	if err != nil {
		return PhaseResult{}, err
	}

	d.Log.Debug().
		Str("technique", string(t.Name)).
		Str("variant", string(v)).
		Int("sequential", len(seq)).
		Int("concurrent", len(conc)).
		Msg("variant scenario complete")

	return PhaseResult{Sequential: seq, Concurrent: conc}, nil
}

func (d *Driver) sequential(ctx context.Context, req probe.Request) ([]probe.Measurement, error) {
	results := make([]probe.Measurement, 0, d.Cfg.Iterations)
	pacing := d.Cfg.Pacing()

	for i := 0; i < d.Cfg.Iterations; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pacing):
			}
		}

		m, err := d.Prober.Do(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Timed out or refused: keep the slot as a failed measurement.
			d.Log.Warn().Err(err).Int("probe", i).Msg("sequential probe failed")
		}
		results = append(results, m)
		d.observe(m)
	}

	return results, nil
}

func (d *Driver) concurrent(ctx context.Context, req probe.Request) ([]probe.Measurement, error) {
	results := make([]probe.Measurement, d.Cfg.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < d.Cfg.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			m, err := d.Prober.Do(ctx, req)
			if err != nil && ctx.Err() == nil {
				d.Log.Warn().Err(err).Int("slot", slot).Msg("burst probe failed")
			}
			results[slot] = m
			d.observe(m)
		}(i)
	}
	// Join barrier: every slot reports, failures included.
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (d *Driver) observe(m probe.Measurement) {
	if d.Observe != nil {
		d.Observe(m)
	}
}
