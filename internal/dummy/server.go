package dummy

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

type ServerConfig struct {
	Port int
}

// Handler serves synthetic versions of the seven technique endpoints so
// the harness can be exercised without the real API. Each endpoint reads
// its variant toggle and answers slow on the baseline path, fast on the
// optimized one, with the same diagnostic headers the real service sets.
func Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/techniques/caching", func(w http.ResponseWriter, r *http.Request) {
		fast := r.URL.Query().Get("cache") == "true"
		elapsed := simulate(fast, 2, 150)
		w.Header().Set("x-cache-hit", strconv.FormatBool(fast))
		respond(w, elapsed, 20)
	})

	mux.HandleFunc("/techniques/connection-pool", func(w http.ResponseWriter, r *http.Request) {
		fast := r.URL.Query().Get("pooled") == "true"
		elapsed := simulate(fast, 5, 80)
		w.Header().Set("x-pool-used", strconv.FormatBool(fast))
		respond(w, elapsed, 20)
	})

	mux.HandleFunc("/techniques/avoid-n-plus-1", func(w http.ResponseWriter, r *http.Request) {
		fast := r.URL.Query().Get("optimized") == "true"
		elapsed := simulate(fast, 10, 300)
		queries := "51"
		if fast {
			queries = "1"
		}
		w.Header().Set("x-query-count", queries)
		respond(w, elapsed, 50)
	})

	mux.HandleFunc("/techniques/pagination", func(w http.ResponseWriter, r *http.Request) {
		fast := r.URL.Query().Get("paginated") == "true"
		elapsed := simulate(fast, 5, 200)
		items := 1000
		if fast {
			if ps, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && ps > 0 {
				items = ps
			} else {
				items = 50
			}
		}
		w.Header().Set("x-items-count", strconv.Itoa(items))
		respond(w, elapsed, items)
	})

	mux.HandleFunc("/techniques/json-serialization", func(w http.ResponseWriter, r *http.Request) {
		fast := r.URL.Query().Get("optimized") == "true"
		elapsed := simulate(fast, 3, 60)
		serializer := "stdlib"
		if fast {
			serializer = "optimized"
		}
		w.Header().Set("x-serializer", serializer)
		respond(w, elapsed, 100)
	})

	mux.HandleFunc("/techniques/compression", func(w http.ResponseWriter, r *http.Request) {
		fast := r.URL.Query().Get("compressed") == "true"
		elapsed := simulate(fast, 8, 40)
		if fast {
			w.Header().Set("x-original-size", "65536")
			w.Header().Set("x-compressed-size", "8192")
			w.Header().Set("x-compression-ratio", "8.0")
		}
		respond(w, elapsed, 100)
	})

	mux.HandleFunc("/techniques/async-logging", func(w http.ResponseWriter, r *http.Request) {
		fast := r.URL.Query().Get("async_logging") == "true"
		elapsed := simulate(fast, 2, 100)
		respond(w, elapsed, 10)
	})

	return mux
}

// simulate sleeps for the variant's synthetic latency and reports it in ms.
func simulate(fast bool, fastMs, slowMs int) float64 {
	base := slowMs
	if fast {
		base = fastMs
	}
	d := time.Duration(base+rand.Intn(base+1)) * time.Millisecond
	time.Sleep(d)
	return float64(d) / float64(time.Millisecond)
}

func respond(w http.ResponseWriter, elapsedMs float64, items int) {
	w.Header().Set("x-execution-time", fmt.Sprintf("%.2f", elapsedMs))
	w.Header().Set("Content-Type", "application/json")

	data := make([]map[string]any, 0, items)
	for i := 0; i < items; i++ {
		data = append(data, map[string]any{"id": i + 1, "title": fmt.Sprintf("post %d", i+1)})
	}
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

// Start runs the dummy server in the background on the configured port.
func Start(cfg ServerConfig) {
	addr := fmt.Sprintf(":%d", cfg.Port)
	fmt.Printf("👻 Dummy API running on http://localhost%s\n", addr)
	fmt.Println("   Endpoints: /techniques/{caching,connection-pool,avoid-n-plus-1,pagination,json-serialization,compression,async-logging}")

	server := &http.Server{
		Addr:    addr,
		Handler: Handler(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Server failed: %v\n", err)
		}
	}()
}
