package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apibench/internal/observability"
	"apibench/internal/probe"
	"apibench/internal/technique"
)

func testConfig(url string, iterations, concurrency int) Config {
	return Config{
		BaseURL:     url,
		Iterations:  iterations,
		Concurrency: concurrency,
		TimeoutSec:  5,
		PacingMs:    1,
	}
}

func mustLookup(t *testing.T, name string) technique.Technique {
	t.Helper()
	tech, err := technique.Lookup(name)
	require.NoError(t, err)
	return tech
}

func TestRunPhaseLengths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, 4, 7)
	d := NewDriver(probe.NewProber(srv.URL, cfg.Timeout()), cfg, observability.Nop())

	res, err := d.Run(context.Background(), mustLookup(t, "caching"), probe.VariantBaseline)
	require.NoError(t, err)

	assert.Len(t, res.Sequential, 4)
	assert.Len(t, res.Concurrent, 7)
	assert.Len(t, res.All(), 11)
}

func TestSequentialOrderMatchesIssuance(t *testing.T) {
	var seq uint64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddUint64(&seq, 1)
		w.Header().Set("x-execution-time", strconv.FormatUint(n, 10))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, 5, 1)
	d := NewDriver(probe.NewProber(srv.URL, cfg.Timeout()), cfg, observability.Nop())

	res, err := d.Run(context.Background(), mustLookup(t, "caching"), probe.VariantOptimized)
	require.NoError(t, err)

	for i, m := range res.Sequential {
		assert.Equal(t, strconv.Itoa(i+1), m.Headers["x-execution-time"])
	}
}

func TestBurstCollectsEverySlotIncludingFailures(t *testing.T) {
	var count uint64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddUint64(&count, 1)
		if n > 1 && n%3 == 0 {
			// Outlast the client timeout to force a transport failure.
			time.Sleep(3 * time.Second)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, 1, 10)
	cfg.TimeoutSec = 1
	d := NewDriver(probe.NewProber(srv.URL, cfg.Timeout()), cfg, observability.Nop())

	res, err := d.Run(context.Background(), mustLookup(t, "connection-pool"), probe.VariantBaseline)
	require.NoError(t, err)
	require.Len(t, res.Concurrent, 10, "join barrier keeps every slot, failures included")

	failed := 0
	for _, m := range res.Concurrent {
		if !m.Success {
			failed++
			assert.Equal(t, 0, m.StatusCode)
		}
	}
	assert.Greater(t, failed, 0)
}

func TestNon2xxCountsAsFailedMeasurementNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, 2, 2)
	d := NewDriver(probe.NewProber(srv.URL, cfg.Timeout()), cfg, observability.Nop())

	res, err := d.Run(context.Background(), mustLookup(t, "pagination"), probe.VariantBaseline)
	require.NoError(t, err)

	for _, m := range res.All() {
		assert.False(t, m.Success)
		assert.Equal(t, 502, m.StatusCode)
	}
}

func TestSequentialPacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, 3, 1)
	cfg.PacingMs = 30
	d := NewDriver(probe.NewProber(srv.URL, cfg.Timeout()), cfg, observability.Nop())

	start := time.Now()
	_, err := d.Run(context.Background(), mustLookup(t, "caching"), probe.VariantBaseline)
	require.NoError(t, err)

	// Two gaps between three sequential probes.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRunAbortsOnCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, 50, 2)
	cfg.PacingMs = 20
	d := NewDriver(probe.NewProber(srv.URL, cfg.Timeout()), cfg, observability.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := d.Run(ctx, mustLookup(t, "caching"), probe.VariantBaseline)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestObserveSeesEveryProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, 3, 5)
	d := NewDriver(probe.NewProber(srv.URL, cfg.Timeout()), cfg, observability.Nop())

	var seen uint64
	d.Observe = func(probe.Measurement) { atomic.AddUint64(&seen, 1) }

	_, err := d.Run(context.Background(), mustLookup(t, "json-serialization"), probe.VariantOptimized)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), atomic.LoadUint64(&seen))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{BaseURL: "http://x", Iterations: 1, Concurrency: 1}.Validate())
	assert.Error(t, Config{Iterations: 1, Concurrency: 1}.Validate())
	assert.Error(t, Config{BaseURL: "http://x", Iterations: 0, Concurrency: 1}.Validate())
	assert.Error(t, Config{BaseURL: "http://x", Iterations: 1, Concurrency: -2}.Validate())
}
