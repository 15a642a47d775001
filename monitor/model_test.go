package monitor

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/longtake"
)

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestModel_TracksRuns(t *testing.T) {
	start := time.Now()
	m := New([]string{"start game", "shop button"})
	assert.Contains(t, m.View(), "○ start game")

	m, cmd := send(t, m, EventMsg{Scenario: "start game", Phase: longtake.PhaseNavigating, Step: 0, Total: 3, Time: start})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "▸ start game")
	assert.Contains(t, m.View(), "Navigating  step 1/3")

	m, _ = send(t, m, EventMsg{Scenario: "start game", Phase: longtake.PhaseWaiting, Step: 1, Total: 3, Outcome: longtake.OutcomeTimeout, Time: start})
	m, cmd = send(t, m, EventMsg{Scenario: "start game", Phase: longtake.PhaseFailed, Step: 2, Total: 3, Done: true, Time: start.Add(time.Second)})
	assert.Nil(t, cmd, "other scenarios are still running")
	assert.Contains(t, m.View(), "✗ start game")
	assert.Contains(t, m.View(), "at step 2/3: timeout")

	passed, failed, pending := m.Counts()
	assert.Equal(t, [3]int{0, 1, 1}, [3]int{passed, failed, pending})

	m, cmd = send(t, m, EventMsg{Scenario: "shop button", Phase: longtake.PhaseCompleted, Step: 0, Total: 1, Done: true, Success: true, Time: start})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.Done())
	assert.False(t, m.Aborted())
	assert.Contains(t, m.View(), "✓ shop button")
	assert.NotContains(t, m.View(), "q: quit")
}

func TestModel_FinalFrameInProgress(t *testing.T) {
	m := New([]string{"gifts"})
	m, cmd := send(t, m, EventMsg{Scenario: "gifts", Phase: longtake.PhaseCompleted, Step: 1, Total: 2, Time: time.Now()})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "▸ gifts")
	assert.Contains(t, m.View(), "Completed  taking final frame")
	assert.False(t, m.Done())
}

func TestModel_IgnoresUnknownScenarios(t *testing.T) {
	m := New([]string{"a"})
	m, cmd := send(t, m, EventMsg{Scenario: "b", Done: true})
	assert.Nil(t, cmd)
	assert.False(t, m.Done())
}

func TestModel_Quit(t *testing.T) {
	m := New([]string{"a"})
	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, m.Aborted())

	m = New([]string{"a"})
	m, _ = send(t, m, tea.WindowSizeMsg{Width: 30, Height: 10})
	assert.Equal(t, 30, m.width)
}

func TestModel_TruncatesLongNames(t *testing.T) {
	m := New([]string{"a scenario with a very long descriptive name"})
	m, _ = send(t, m, tea.WindowSizeMsg{Width: 24, Height: 10})
	assert.Contains(t, m.View(), "○ a scenario …")
}
