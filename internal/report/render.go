package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"apibench/internal/bench"
)

const timePrecision = 10 * time.Millisecond

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00"))
	subtle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Render builds the styled terminal summary table for a finished run.
func Render(result *bench.RunResult) string {
	var b strings.Builder

	b.WriteString("\n" + titleStyle.Render("📊 BENCHMARK RESULTS") + "\n")
	b.WriteString(subtle.Render(strings.Repeat("─", 78)) + "\n")
	b.WriteString(fmt.Sprintf("%-20s %14s %14s %12s %12s\n",
		"TECHNIQUE", "BASELINE (ms)", "OPTIMIZED (ms)", "FACTOR", "RPS"))

	for _, rep := range result.Reports {
		if rep.Err != "" {
			b.WriteString(fmt.Sprintf("%-20s %s\n", rep.Technique, badStyle.Render("ERROR: "+rep.Err)))
			continue
		}

		cmp := rep.Comparison
		factor := fmt.Sprintf("%.2fx", cmp.ImprovementFactor)
		switch {
		case cmp.ImprovementFactor >= 1.0:
			factor = goodStyle.Render(factor)
		case cmp.ImprovementFactor == 0:
			factor = warnStyle.Render("n/a")
		default:
			factor = badStyle.Render(factor)
		}

		b.WriteString(fmt.Sprintf("%-20s %14.2f %14.2f %12s %12.2f\n",
			rep.Technique,
			cmp.Baseline.AvgResponseTimeMs,
			cmp.Optimized.AvgResponseTimeMs,
			factor,
			cmp.Optimized.RequestsPerSecond,
		))
	}

	b.WriteString(subtle.Render(strings.Repeat("─", 78)) + "\n")
	b.WriteString(fmt.Sprintf("Run %s completed in %s (%d techniques, %d failed)\n",
		result.RunID, result.Elapsed.Round(timePrecision), len(result.Reports), result.Failed()))

	return b.String()
}

// Summary returns the plain-text run summary for logs and non-TTY output.
func Summary(result *bench.RunResult) string {
	var b strings.Builder
	for _, rep := range result.Reports {
		if rep.Err != "" {
			b.WriteString(fmt.Sprintf("%s: ERROR - %s\n", rep.Technique, rep.Err))
			continue
		}
		cmp := rep.Comparison
		b.WriteString(fmt.Sprintf("%s:\n", rep.Technique))
		b.WriteString(fmt.Sprintf("  - Average response time: %.2f ms\n", cmp.Optimized.AvgResponseTimeMs))
		b.WriteString(fmt.Sprintf("  - Requests per second: %.2f\n", cmp.Optimized.RequestsPerSecond))
		b.WriteString(fmt.Sprintf("  - Improvement factor: %.2fx\n", cmp.ImprovementFactor))
	}
	return b.String()
}
