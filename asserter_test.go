package longtake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/longtake/trip"
)

func newTestAsserter(t *testing.T, page Page) *Asserter {
	logger := zaptest.NewLogger(t)
	return NewAsserter(page, NewResolver(page, logger), testConfig(t), logger)
}

func TestAsserter_Visible(t *testing.T) {
	page := newFakePage(
		node("h1", "heading", "Gifts", "  Gifts\n"),
		node("score", "", "", "Your Score: 120"),
		node("modal", "dialog", "Quests", "").hidden(),
	)
	a := newTestAsserter(t, page)
	ctx := context.Background()

	tests := []struct {
		name     string
		spec     LocatorSpec
		text     string
		contains bool
		kind     string
		reason   string
	}{
		{name: "present", spec: ByRole("heading", "Gifts")},
		{name: "exact text normalized", spec: ByRole("heading", "Gifts"), text: "Gifts"},
		{name: "contains", spec: ByContains("Your Score:"), text: "Score", contains: true},
		{name: "missing", spec: ByRole("heading", "Shop"), kind: trip.KindResolution, reason: ReasonNotFound},
		{name: "hidden", spec: ByRole("dialog", "Quests"), kind: trip.KindAssertion, reason: ReasonNotVisible},
		{name: "text mismatch", spec: ByRole("heading", "Gifts"), text: "Shop", kind: trip.KindAssertion, reason: ReasonTextMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.Visible(ctx, tt.spec, tt.text, tt.contains)
			if tt.kind == "" {
				assert.NoError(t, err)
				return
			}
			tr, ok := trip.As(err)
			require.True(t, ok, "failures are structured trips: %v", err)
			assert.Equal(t, tt.kind, tr.Kind)
			assert.Equal(t, tt.reason, tr.Reason)
		})
	}
}

func TestAsserter_TextMismatchCarriesBothSides(t *testing.T) {
	page := newFakePage(node("h1", "heading", "Title", "Shop"))
	a := newTestAsserter(t, page)

	err := a.Visible(context.Background(), ByRole("heading", "Title"), "Gifts", false)
	tr, ok := trip.As(err)
	require.True(t, ok)
	expected, _ := tr.GetContext("expected")
	actual, _ := tr.GetContext("actual")
	assert.Equal(t, "Gifts", expected)
	assert.Equal(t, "Shop", actual)
}

func TestAsserter_URL(t *testing.T) {
	page := newFakePage()
	page.url = "http://game.test/shop"
	a := newTestAsserter(t, page)

	assert.NoError(t, a.URL(context.Background(), "/shop"))

	err := a.URL(context.Background(), "/gifts")
	tr, ok := trip.As(err)
	require.True(t, ok)
	assert.Equal(t, trip.KindAssertion, tr.Kind)
	assert.Equal(t, ReasonURLMismatch, tr.Reason)
}
