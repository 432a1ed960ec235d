package stats

import (
	"math"
	"sort"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"apibench/internal/probe"
)

// Summary is the reduction of one variant's measurements. All fields are 0
// for an empty input; an all-failed variant is a degenerate case, not a
// fault, so a report can still be emitted for it.
type Summary struct {
	AvgResponseTimeMs    float64 `json:"avg_response_time_ms"`
	MinResponseTimeMs    float64 `json:"min_response_time_ms"`
	MaxResponseTimeMs    float64 `json:"max_response_time_ms"`
	MedianResponseTimeMs float64 `json:"median_response_time_ms"`
	StdevResponseTimeMs  float64 `json:"stdev_response_time_ms"`
	P95ResponseTimeMs    float64 `json:"p95_response_time_ms"`
	P99ResponseTimeMs    float64 `json:"p99_response_time_ms"`
	SampleSize           int     `json:"sample_size"`
	RequestsPerSecond    float64 `json:"requests_per_second"`
}

// Comparison pairs the two variant summaries for one technique.
// ImprovementFactor is baseline avg over optimized avg, 0 when the
// optimized avg is 0 so a degenerate run never divides by zero.
type Comparison struct {
	Baseline          Summary `json:"baseline"`
	Optimized         Summary `json:"optimized"`
	ImprovementFactor float64 `json:"improvement_factor"`
}

// Reduce folds measurements into a Summary. Pure and order-independent:
// the input slice is not mutated and identical inputs yield identical
// summaries.
func Reduce(ms []probe.Measurement) Summary {
	if len(ms) == 0 {
		return Summary{}
	}

	times := make([]float64, len(ms))
	for i, m := range ms {
		times[i] = m.ElapsedMs
	}
	sort.Float64s(times)

	var sum float64
	// 1us to 10min at 3 significant figures, recorded in microseconds.
	// Outliers past the bound are clamped so they still count toward the
	// percentiles instead of vanishing from them.
	hist := hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
	for _, t := range times {
		sum += t
		v := int64(t * 1000)
		if v > hist.HighestTrackableValue() {
			v = hist.HighestTrackableValue()
		}
		hist.RecordValue(v)
	}

	n := len(times)
	s := Summary{
		AvgResponseTimeMs:    sum / float64(n),
		MinResponseTimeMs:    times[0],
		MaxResponseTimeMs:    times[n-1],
		MedianResponseTimeMs: median(times),
		P95ResponseTimeMs:    float64(hist.ValueAtQuantile(95)) / 1000.0,
		P99ResponseTimeMs:    float64(hist.ValueAtQuantile(99)) / 1000.0,
		SampleSize:           n,
	}

	if n > 1 {
		var sq float64
		for _, t := range times {
			d := t - s.AvgResponseTimeMs
			sq += d * d
		}
		s.StdevResponseTimeMs = math.Sqrt(sq / float64(n-1))
	}

	if s.AvgResponseTimeMs > 0 {
		s.RequestsPerSecond = 1000.0 / s.AvgResponseTimeMs
	}

	return s
}

// Compare derives the improvement factor from a baseline/optimized pair.
func Compare(baseline, optimized Summary) Comparison {
	c := Comparison{Baseline: baseline, Optimized: optimized}
	if optimized.AvgResponseTimeMs > 0 {
		c.ImprovementFactor = baseline.AvgResponseTimeMs / optimized.AvgResponseTimeMs
	}
	return c
}

// Successes filters to measurements that completed with a 2xx status.
func Successes(ms []probe.Measurement) []probe.Measurement {
	out := make([]probe.Measurement, 0, len(ms))
	for _, m := range ms {
		if m.Success {
			out = append(out, m)
		}
	}
	return out
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
