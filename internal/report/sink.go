package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"apibench/internal/bench"
)

// Sink persists run results as JSON documents under a timestamped
// directory, so repeated runs never silently overwrite earlier results.
type Sink struct {
	dir string
}

// NewSink creates <outputDir>/benchmark_run_<YYYYMMDD_HHMMSS>/ and fails
// up front when the location is not writable.
func NewSink(outputDir string, now time.Time) (*Sink, error) {
	dir := filepath.Join(outputDir, fmt.Sprintf("benchmark_run_%s", now.Format("20060102_150405")))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create report directory %s: %w", dir, err)
	}
	return &Sink{dir: dir}, nil
}

func (s *Sink) Dir() string {
	return s.dir
}

// Write saves one <technique>_results.json per report plus a combined
// all_results.json. A write failure is the run's terminal error: a
// finished benchmark with no saved result must be visible to the operator.
func (s *Sink) Write(result *bench.RunResult) error {
	for _, rep := range result.Reports {
		name := strings.ReplaceAll(rep.Technique, "-", "_")
		if err := s.writeJSON(name+"_results.json", rep); err != nil {
			return err
		}
	}
	return s.writeJSON("all_results.json", result)
}

func (s *Sink) writeJSON(filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filename, err)
	}
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
