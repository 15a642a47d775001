package longtake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/longtake/trip"
)

func TestEnsemble_IsolatedSessions(t *testing.T) {
	opener := &fakeOpener{build: func(int) *fakePage {
		return newFakePage(node("h1", "heading", "Gifts", "Gifts"))
	}}
	config := testConfig(t)
	config.Parallel = 3

	scenarios := []Scenario{
		NewScenario("gifts heading", AssertVisible{Target: ByRole("heading", "Gifts"), Text: "Gifts"}),
		NewScenario("shop heading", WaitFor{Condition: ElementVisible(ByRole("heading", "Shop")).WithTimeout(150 * time.Millisecond)}),
		NewScenario("gifts again", AssertVisible{Target: ByRole("heading", "Gifts")}),
	}

	results := NewEnsemble(opener, config).WithLogger(zaptest.NewLogger(t)).Run(context.Background(), scenarios)

	require.Len(t, results, 3)
	assert.Equal(t, "gifts heading", results[0].Scenario, "results keep input order")
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success, "the failing scenario fails alone")
	assert.True(t, results[2].Success)
	assert.True(t, Failed(results))

	assert.Equal(t, 3, opener.opened)
	assert.Equal(t, 3, opener.closed)
	for _, r := range results {
		assert.NotNil(t, r.Evidence)
	}
}

func TestEnsemble_RespectsParallelLimit(t *testing.T) {
	opener := &fakeOpener{build: func(int) *fakePage { return newFakePage() }}
	config := testConfig(t)
	config.Parallel = 2

	var scenarios []Scenario
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		scenarios = append(scenarios, NewScenario(name,
			WaitFor{Condition: TextPresent("never").WithTimeout(40 * time.Millisecond)}))
	}

	results := NewEnsemble(opener, config).Run(context.Background(), scenarios)

	require.Len(t, results, 5)
	assert.LessOrEqual(t, opener.maxUsed, 2)
	assert.Equal(t, 5, opener.closed)
}

func TestEnsemble_OpenFailure(t *testing.T) {
	opener := &fakeOpener{
		build:  func(int) *fakePage { return newFakePage(node("ok", "", "", "ok")) },
		failOn: map[int]bool{0: true},
	}
	config := testConfig(t)
	config.Parallel = 1

	results := NewEnsemble(opener, config).Run(context.Background(), []Scenario{
		NewScenario("no browser", AssertVisible{Target: ByText("ok")}),
		NewScenario("has browser", AssertVisible{Target: ByText("ok")}),
	})

	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Equal(t, PhaseFailed, results[0].Final)
	assert.Equal(t, OutcomeSkipped, results[0].Steps[0].Outcome)
	assert.Equal(t, trip.KindAction, trip.KindOf(results[0].Error))
	assert.True(t, results[1].Success)
}

func TestFailed(t *testing.T) {
	assert.False(t, Failed(nil))
	assert.False(t, Failed([]*RunResult{{Success: true}}))
	assert.True(t, Failed([]*RunResult{{Success: true}, {Success: false}}))
}

func TestEnsemble_OpenFailureAnnouncesDone(t *testing.T) {
	opener := &fakeOpener{
		build:  func(int) *fakePage { return newFakePage(node("ok", "", "", "ok")) },
		failOn: map[int]bool{0: true},
	}
	config := testConfig(t)
	config.Parallel = 1

	var mu sync.Mutex
	done := map[string]bool{}
	observer := func(e Event) {
		if !e.Done {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done[e.Scenario] = e.Success
	}

	NewEnsemble(opener, config).WithObserver(observer).Run(context.Background(), []Scenario{
		NewScenario("no browser", AssertVisible{Target: ByText("ok")}),
		NewScenario("has browser", AssertVisible{Target: ByText("ok")}),
	})

	assert.Equal(t, map[string]bool{"no browser": false, "has browser": true}, done)
}
