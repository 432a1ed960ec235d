package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"apibench/internal/bench"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	statStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	subtle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type snapshotMsg bench.Snapshot

// RunDoneMsg ends the progress view; the caller sends it when the
// orchestrator returns.
type RunDoneMsg struct {
	Err error
}

// Model is the live progress view shown while a benchmark runs.
type Model struct {
	Updates  bench.UpdateChan
	Progress progress.Model
	Spinner  spinner.Model

	// Cancel aborts the run when the operator quits mid-flight.
	Cancel func()

	Snap      bench.Snapshot
	StartTime time.Time
	Done      bool
	Err       error
	Width     int
}

func NewModel(updates bench.UpdateChan, cancel func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	return Model{
		Updates:   updates,
		Progress:  progress.New(progress.WithDefaultGradient()),
		Spinner:   sp,
		Cancel:    cancel,
		StartTime: time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.Spinner.Tick, waitForUpdate(m.Updates))
}

func waitForUpdate(ch bench.UpdateChan) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(s)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Progress.Width = msg.Width - 4
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if m.Cancel != nil {
				m.Cancel()
			}
			return m, tea.Quit
		}

	case snapshotMsg:
		m.Snap = bench.Snapshot(msg)
		cmd := m.Progress.SetPercent(m.overallPct())
		return m, tea.Batch(cmd, waitForUpdate(m.Updates))

	case RunDoneMsg:
		m.Done = true
		m.Err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m Model) overallPct() float64 {
	s := m.Snap
	if s.TechniqueCount == 0 || s.Total == 0 {
		return 0
	}
	total := float64(s.TechniqueCount) * float64(s.Total)
	done := float64(s.TechniqueIndex)*float64(s.Total) + float64(s.Completed)
	pct := done / total
	if pct > 1.0 {
		pct = 1.0
	}
	return pct
}

func (m Model) View() string {
	if m.Done {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n" + titleStyle.Render("🚀 APIBENCH") + "\n\n")

	s := m.Snap
	if s.Technique == "" {
		b.WriteString(m.Spinner.View() + " warming up...\n")
	} else {
		b.WriteString(fmt.Sprintf("%s %s (%s) | technique %d/%d\n",
			m.Spinner.View(), s.Technique, s.Variant, s.TechniqueIndex+1, s.TechniqueCount))
	}

	b.WriteString("\n" + m.Progress.View() + "\n\n")

	failures := ""
	if s.Failures > 0 {
		failures = errStyle.Render(fmt.Sprintf("  Err: %d", s.Failures))
	}
	b.WriteString(statStyle.Render(fmt.Sprintf("Probes: %d", s.Requests)) + failures)
	b.WriteString(subtle.Render(fmt.Sprintf("  P50: %.1fms  P99: %.1fms  %s",
		s.P50Ms, s.P99Ms, time.Since(m.StartTime).Round(time.Second))))
	b.WriteString("\n\n" + subtle.Render("q to abort") + "\n")

	return b.String()
}
