// Package monitor is a live terminal view of running scenarios. Director
// events are forwarded into a Bubble Tea program which draws one row per
// scenario: its phase, step position and last outcome.
package monitor

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/teranos/longtake"
)

// EventMsg carries a director event into the program.
type EventMsg longtake.Event

type row struct {
	name    string
	phase   longtake.Phase
	step    int
	total   int
	bad     longtake.Outcome // last non-success step outcome
	badStep int
	started time.Time
	elapsed time.Duration
	seen    bool
	done    bool
	success bool
}

// Model is the monitor's Bubble Tea model.
type Model struct {
	rows    []row
	index   map[string]int
	width   int
	aborted bool
	closed  bool
}

// New builds a model with one pending row per scenario name.
func New(names []string) Model {
	m := Model{index: make(map[string]int, len(names))}
	for _, name := range names {
		m.index[name] = len(m.rows)
		m.rows = append(m.rows, row{name: name, step: -1})
	}
	return m
}

// Observer forwards director events to a running program.
func Observer(p *tea.Program) longtake.Observer {
	return func(e longtake.Event) {
		p.Send(EventMsg(e))
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case EventMsg:
		m = m.apply(longtake.Event(msg))
		if m.Done() {
			m.closed = true
			return m, tea.Quit
		}
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.aborted = true
			m.closed = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	}
	return m, nil
}

func (m Model) apply(e longtake.Event) Model {
	i, ok := m.index[e.Scenario]
	if !ok {
		return m
	}
	rows := append([]row(nil), m.rows...)
	r := rows[i]
	if !r.seen {
		r.seen = true
		r.started = e.Time
	}
	r.phase = e.Phase
	r.step = e.Step
	r.total = e.Total
	if e.Outcome != "" && e.Outcome != longtake.OutcomeSuccess {
		r.bad = e.Outcome
		r.badStep = e.Step
	}
	if e.Done {
		r.done = true
		r.success = e.Success
		r.elapsed = e.Time.Sub(r.started)
	}
	rows[i] = r
	m.rows = rows
	return m
}

// Done reports whether every scenario has finished.
func (m Model) Done() bool {
	for _, r := range m.rows {
		if !r.done {
			return false
		}
	}
	return true
}

// Aborted reports whether the user quit before all scenarios finished.
func (m Model) Aborted() bool {
	return m.aborted
}

// Counts returns the number of passed, failed and unfinished scenarios.
func (m Model) Counts() (passed, failed, pending int) {
	for _, r := range m.rows {
		switch {
		case !r.done:
			pending++
		case r.success:
			passed++
		default:
			failed++
		}
	}
	return passed, failed, pending
}

func (m Model) View() string {
	var b strings.Builder

	passed, failed, pending := m.Counts()
	b.WriteString(titleStyle.Render("longtake"))
	b.WriteString(detailStyle.Render(fmt.Sprintf("  %d passed  %d failed  %d running", passed, failed, pending)))
	b.WriteString("\n\n")

	nameWidth := 0
	for _, r := range m.rows {
		nameWidth = max(nameWidth, lipgloss.Width(r.name))
	}
	if m.width > 0 {
		nameWidth = min(nameWidth, max(m.width/2, 10))
	}

	for _, r := range m.rows {
		b.WriteString(m.renderRow(r, nameWidth))
		b.WriteString("\n")
	}

	if !m.closed {
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("q: quit"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderRow(r row, nameWidth int) string {
	name := r.name
	if lipgloss.Width(name) > nameWidth {
		runes := []rune(name)
		name = string(runes[:min(len(runes), max(nameWidth-1, 0))]) + "…"
	}
	name = fmt.Sprintf("%-*s", nameWidth, name)

	switch {
	case !r.seen:
		return pendingStyle.Render(glyphPending + " " + name)
	case r.done && r.success:
		return passedStyle.Render(glyphPassed+" "+name) +
			detailStyle.Render(fmt.Sprintf("  %s  %s", r.phase, r.elapsed.Round(time.Millisecond)))
	case r.done:
		detail := fmt.Sprintf("  %s", r.phase)
		if r.bad != "" {
			detail += fmt.Sprintf(" at step %d/%d: %s", r.badStep+1, r.total, r.bad)
		}
		return failedStyle.Render(glyphFailed+" "+name) + detailStyle.Render(detail)
	case r.phase.IsTerminal():
		return runningStyle.Render(glyphRunning+" "+name) +
			detailStyle.Render(fmt.Sprintf("  %s  taking final frame", r.phase))
	default:
		return runningStyle.Render(glyphRunning+" "+name) +
			detailStyle.Render(fmt.Sprintf("  %s  step %d/%d", r.phase, r.step+1, r.total))
	}
}
