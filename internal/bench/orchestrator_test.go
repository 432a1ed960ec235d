package bench

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apibench/internal/observability"
	"apibench/internal/runner"
)

// fastTarget emulates every technique endpoint: quick when the variant
// toggle is true, slower otherwise.
func fastTarget(requests *uint64) http.Handler {
	toggles := []string{"cache", "pooled", "optimized", "paginated", "compressed", "async_logging"}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			atomic.AddUint64(requests, 1)
		}
		fast := false
		for _, k := range toggles {
			if r.URL.Query().Get(k) == "true" {
				fast = true
				break
			}
		}
		if fast {
			time.Sleep(time.Millisecond)
		} else {
			time.Sleep(10 * time.Millisecond)
		}
		w.Header().Set("x-execution-time", "1.0")
		w.WriteHeader(http.StatusOK)
	})
}

func testConfig(url string) runner.Config {
	return runner.Config{
		BaseURL:     url,
		Iterations:  2,
		Concurrency: 3,
		TimeoutSec:  5,
		PacingMs:    1,
	}
}

func TestUnknownTechniqueFailsBeforeAnyRequest(t *testing.T) {
	var requests uint64
	srv := httptest.NewServer(fastTarget(&requests))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Technique = "nonexistent"

	_, err := New(cfg, observability.Nop(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent")
	assert.Equal(t, uint64(0), atomic.LoadUint64(&requests), "configuration errors precede probing")
}

func TestInvalidCountsFailBeforeAnyRequest(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.Iterations = 0

	_, err := New(cfg, observability.Nop(), nil)
	require.Error(t, err)

	cfg = testConfig("http://localhost:1")
	cfg.Concurrency = -1
	_, err = New(cfg, observability.Nop(), nil)
	require.Error(t, err)
}

func TestRunSingleTechnique(t *testing.T) {
	srv := httptest.NewServer(fastTarget(nil))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Technique = "caching"

	orch, err := New(cfg, observability.Nop(), nil)
	require.NoError(t, err)
	require.Len(t, orch.Techniques(), 1)

	result, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Reports, 1)

	rep := result.Reports[0]
	assert.Equal(t, "caching", rep.Technique)
	assert.Empty(t, rep.Err)

	require.NotNil(t, rep.Baseline)
	require.NotNil(t, rep.Optimized)
	assert.Len(t, rep.Baseline.Sequential, 2)
	assert.Len(t, rep.Baseline.Concurrent, 3)
	assert.Len(t, rep.Optimized.Sequential, 2)
	assert.Len(t, rep.Optimized.Concurrent, 3)

	require.NotNil(t, rep.Comparison)
	assert.Equal(t, 5, rep.Comparison.Baseline.SampleSize)
	assert.Equal(t, 5, rep.Comparison.Optimized.SampleSize)
	assert.Greater(t, rep.Comparison.ImprovementFactor, 1.0,
		"baseline is an order of magnitude slower in this fixture")

	assert.NotEmpty(t, result.RunID)
}

func TestRunAllTechniques(t *testing.T) {
	srv := httptest.NewServer(fastTarget(nil))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Iterations = 1
	cfg.Concurrency = 2

	orch, err := New(cfg, observability.Nop(), nil)
	require.NoError(t, err)
	require.Len(t, orch.Techniques(), 7)

	result, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Reports, 7)
	assert.Equal(t, 0, result.Failed())

	names := map[string]bool{}
	for _, rep := range result.Reports {
		names[rep.Technique] = true
		assert.Empty(t, rep.Err)
		require.NotNil(t, rep.Comparison, "technique %s", rep.Technique)
	}
	assert.Len(t, names, 7)
}

func TestFailingEndpointDoesNotAbortOthers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "caching") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Iterations = 1
	cfg.Concurrency = 2

	orch, err := New(cfg, observability.Nop(), nil)
	require.NoError(t, err)

	result, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Reports, 7)

	for _, rep := range result.Reports {
		require.NotNil(t, rep.Comparison, "technique %s still reported", rep.Technique)
		if rep.Technique == "caching" {
			// All probes failed, so the filtered reduction is degenerate.
			assert.Equal(t, 0, rep.Comparison.Baseline.SampleSize)
			assert.Equal(t, 0.0, rep.Comparison.ImprovementFactor)
		} else {
			assert.Greater(t, rep.Comparison.Baseline.SampleSize, 0)
		}
	}
}

func TestIncludeFailuresFlagAppliedConsistently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	run := func(include bool) *RunResult {
		cfg := testConfig(srv.URL)
		cfg.Iterations = 1
		cfg.Concurrency = 2
		cfg.IncludeFailures = include

		orch, err := New(cfg, observability.Nop(), nil)
		require.NoError(t, err)
		result, err := orch.Run(context.Background())
		require.NoError(t, err)
		return result
	}

	excluded := run(false)
	for _, rep := range excluded.Reports {
		assert.Equal(t, 0, rep.Comparison.Baseline.SampleSize, "technique %s", rep.Technique)
		assert.Equal(t, 0, rep.Comparison.Optimized.SampleSize, "technique %s", rep.Technique)
	}

	included := run(true)
	for _, rep := range included.Reports {
		assert.Equal(t, 3, rep.Comparison.Baseline.SampleSize, "technique %s", rep.Technique)
		assert.Equal(t, 3, rep.Comparison.Optimized.SampleSize, "technique %s", rep.Technique)
	}
}

func TestSnapshotsEmitted(t *testing.T) {
	srv := httptest.NewServer(fastTarget(nil))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Technique = "pagination"

	updates := make(UpdateChan, 100)
	orch, err := New(cfg, observability.Nop(), updates)
	require.NoError(t, err)

	_, err = orch.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, updates)
	s := <-updates
	assert.Equal(t, "pagination", s.Technique)
	assert.Equal(t, uint64(2*(cfg.Iterations+cfg.Concurrency)), s.Total)
}

func TestCheckTarget(t *testing.T) {
	srv := httptest.NewServer(fastTarget(nil))

	cfg := testConfig(srv.URL)
	orch, err := New(cfg, observability.Nop(), nil)
	require.NoError(t, err)
	assert.NoError(t, orch.CheckTarget(context.Background()))

	srv.Close()
	assert.Error(t, orch.CheckTarget(context.Background()))
}
