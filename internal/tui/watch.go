// Package tui provides the live signal view behind `farmreg watch`.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tturner/farmreg/internal/dispatch"
	"github.com/tturner/farmreg/internal/ui"
)

// ReadFunc performs one batch read.
type ReadFunc func(ctx context.Context, names []string) dispatch.Results

type readMsg struct {
	results dispatch.Results
	at      time.Time
	elapsed time.Duration
}

type tickMsg time.Time

// WatchModel re-reads a set of signals every interval and shows the latest
// values.
type WatchModel struct {
	title    string
	names    []string
	read     ReadFunc
	interval time.Duration
	timeout  time.Duration

	results dispatch.Results
	lastAt  time.Time
	elapsed time.Duration
	reads   int
	failed  int
	paused  bool
	reading bool
	width   int
}

// NewWatchModel creates a model reading names with read. Each read is
// bounded by timeout.
func NewWatchModel(title string, names []string, read ReadFunc, interval, timeout time.Duration) *WatchModel {
	return &WatchModel{
		title:    title,
		names:    names,
		read:     read,
		interval: interval,
		timeout:  timeout,
	}
}

// Init starts the first read.
func (m *WatchModel) Init() tea.Cmd {
	m.reading = true
	return m.readCmd()
}

func (m *WatchModel) readCmd() tea.Cmd {
	names, read, timeout := m.names, m.read, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		start := time.Now()
		results := read(ctx, names)
		return readMsg{results: results, at: time.Now(), elapsed: time.Since(start)}
	}
}

func (m *WatchModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles reads, ticks and keys: q quits, r reads now, p pauses.
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case readMsg:
		m.reading = false
		m.results = msg.results
		m.lastAt = msg.at
		m.elapsed = msg.elapsed
		m.reads++
		if len(msg.results.Failed()) > 0 {
			m.failed++
		}
		return m, m.tickCmd()

	case tickMsg:
		if m.paused || m.reading {
			return m, nil
		}
		m.reading = true
		return m, m.readCmd()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			if m.reading {
				return m, nil
			}
			m.reading = true
			return m, m.readCmd()
		case "p":
			m.paused = !m.paused
			if !m.paused && !m.reading {
				m.reading = true
				return m, m.readCmd()
			}
			return m, nil
		}
	}
	return m, nil
}

var footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

// View renders the latest values.
func (m *WatchModel) View() string {
	var b strings.Builder
	b.WriteString(ui.Title(m.title))
	b.WriteString("\n\n")

	if m.results == nil {
		b.WriteString("reading...")
	} else {
		b.WriteString(ui.RenderValues(m.names, m.results))
	}

	status := fmt.Sprintf("%d read(s), %d with failures", m.reads, m.failed)
	if !m.lastAt.IsZero() {
		status += fmt.Sprintf(" | last %s (%s)", m.lastAt.Format("15:04:05"), m.elapsed.Round(time.Millisecond))
	}
	if m.paused {
		status += " | paused"
	}
	b.WriteString("\n\n")
	b.WriteString(footerStyle.Render(status))
	b.WriteString("\n")
	b.WriteString(footerStyle.Render("q quit  r refresh  p pause"))
	b.WriteString("\n")
	return b.String()
}

// RunWatch runs the model full-screen until the user quits.
func RunWatch(m *WatchModel) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
