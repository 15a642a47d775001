package monitor

import "github.com/charmbracelet/lipgloss"

// Row glyphs carry the state without relying on color alone.
const (
	glyphPending = "○"
	glyphRunning = "▸"
	glyphPassed  = "✓"
	glyphFailed  = "✗"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			Padding(0, 1)

	pendingStyle = lipgloss.NewStyle().Faint(true)
	runningStyle = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	passedStyle  = lipgloss.NewStyle().Foreground(colorGreen)
	failedStyle  = lipgloss.NewStyle().Foreground(colorRed)

	detailStyle = lipgloss.NewStyle().Foreground(colorDim)
	helpStyle   = lipgloss.NewStyle().Foreground(colorDim).Italic(true)
)
