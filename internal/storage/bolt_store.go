package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"apibench/internal/bench"
	"apibench/internal/runner"
)

const (
	BucketRuns = "runs"

	// Keep at most this many runs in the history.
	maxHistory = 100
)

// HistoryItem is the condensed record of one run kept across invocations.
type HistoryItem struct {
	ID         string             `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	Config     runner.Config      `json:"config"`
	Techniques []TechniqueSummary `json:"techniques"`
}

// TechniqueSummary keeps only the headline numbers per technique.
type TechniqueSummary struct {
	Technique         string  `json:"technique"`
	BaselineAvgMs     float64 `json:"baseline_avg_ms"`
	OptimizedAvgMs    float64 `json:"optimized_avg_ms"`
	ImprovementFactor float64 `json:"improvement_factor"`
	Err               string  `json:"error,omitempty"`
}

// Store persists run history in a bolt database under the user's home.
type Store struct {
	db *bbolt.DB
}

func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(home, ".apibench")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(filepath.Join(dir, "history.db"), 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewStoreAt opens a store at an explicit path. Used by tests.
func NewStoreAt(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save records one finished run, pruning the oldest entries past the cap.
func (s *Store) Save(item HistoryItem) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))

		data, err := json.Marshal(item)
		if err != nil {
			return err
		}

		// Keys sort by timestamp so the cursor walks runs in order.
		key := []byte(item.Timestamp.UTC().Format(time.RFC3339Nano) + "_" + item.ID)
		if err := b.Put(key, data); err != nil {
			return err
		}

		n := 0
		b.ForEach(func(_, _ []byte) error {
			n++
			return nil
		})

		c := b.Cursor()
		for k, _ := c.First(); k != nil && n > maxHistory; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
			n--
		}
		return nil
	})
}

// List returns saved runs, newest first.
func (s *Store) List() []HistoryItem {
	var items []HistoryItem

	s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))
		c := b.Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var item HistoryItem
			if err := json.Unmarshal(v, &item); err == nil {
				items = append(items, item)
			}
		}
		return nil
	})

	return items
}

// Get looks a run up by its ID.
func (s *Store) Get(id string) (*HistoryItem, error) {
	var item HistoryItem
	found := false

	s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))
		return b.ForEach(func(_, v []byte) error {
			var candidate HistoryItem
			if err := json.Unmarshal(v, &candidate); err == nil && candidate.ID == id {
				item = candidate
				found = true
			}
			return nil
		})
	})

	if !found {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return &item, nil
}

// FromRun condenses a run result into its history record.
func FromRun(result *bench.RunResult, cfg runner.Config) HistoryItem {
	item := HistoryItem{
		ID:        result.RunID,
		Timestamp: result.StartedAt,
		Config:    cfg,
	}
	for _, rep := range result.Reports {
		ts := TechniqueSummary{Technique: rep.Technique, Err: rep.Err}
		if rep.Comparison != nil {
			ts.BaselineAvgMs = rep.Comparison.Baseline.AvgResponseTimeMs
			ts.OptimizedAvgMs = rep.Comparison.Optimized.AvgResponseTimeMs
			ts.ImprovementFactor = rep.Comparison.ImprovementFactor
		}
		item.Techniques = append(item.Techniques, ts)
	}
	return item
}
