package script

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/longtake"
)

const matchmakingFeature = `@game
Feature: Matchmaking

  Background:
    Given I open "/"

  @smoke
  Scenario: Start game shows searching
    When I click the button "Start Game"
    Then I wait up to 10 seconds for "Searching for opponent..."

  Scenario Outline: Headings
    When I go to "<path>"
    Then the heading "<title>" shows "<title>"

    Examples:
      | path   | title |
      | /gifts | Gifts |
      | /shop  | Shop  |

  Rule: Overlays

    Background:
      Given I click "Quests"

    @slow
    Scenario: Quest overlay
      Then I wait for the dialog "Quests"
      And I take a screenshot of the dialog "Quests" as "quests.png"
`

func TestParseFeature(t *testing.T) {
	scenarios, issues := ParseFeature(strings.NewReader(matchmakingFeature), "matchmaking.feature")
	require.Empty(t, issues)
	require.Len(t, scenarios, 4)

	start := scenarios[0]
	assert.Equal(t, "Start game shows searching", start.Name())
	assert.Equal(t, []string{"@game", "@smoke"}, start.Tags())
	assert.Equal(t, "matchmaking.feature", start.Source())
	steps := start.Steps()
	require.Len(t, steps, 3, "background step is prepended")
	assert.Equal(t, longtake.Navigate{URL: "/"}, steps[0])
	assert.Equal(t, longtake.Click{Target: longtake.ByRole("button", "Start Game")}, steps[1])
	wait := steps[2].(longtake.WaitFor)
	assert.Equal(t, 10*time.Second, wait.Condition.Timeout)
	assert.Equal(t, textTarget("Searching for opponent..."), wait.Condition.Target)

	assert.Equal(t, "Headings", scenarios[1].Name())
	assert.Equal(t, "Headings #2", scenarios[2].Name(), "outline rows get distinct names")
	assert.Equal(t, longtake.Navigate{URL: "/shop"}, scenarios[2].Steps()[1])
	assert.Equal(t, longtake.AssertVisible{Target: longtake.ByRole("heading", "Shop"), Text: "Shop"}, scenarios[2].Steps()[2])

	quest := scenarios[3]
	assert.Equal(t, []string{"@game", "@slow"}, quest.Tags())
	steps = quest.Steps()
	require.Len(t, steps, 4, "feature and rule backgrounds both apply")
	assert.Equal(t, longtake.Click{Target: textTarget("Quests")}, steps[1])
	shot := steps[3].(longtake.Screenshot)
	assert.Equal(t, "quests.png", shot.Path)
}

func TestParseFeature_ScenariosAfterRuleBelongToIt(t *testing.T) {
	feature := `Feature: Overlays
  Background:
    Given I open "/"

  Rule: Quests
    Background:
      Given I click "Quests"

    Scenario: Dialog
      Then I should see the dialog "Quests"

  Scenario: Still in the rule
    Then I should see "Claim"
`
	scenarios, issues := ParseFeature(strings.NewReader(feature), "overlays.feature")
	require.Empty(t, issues)
	require.Len(t, scenarios, 2)

	steps := scenarios[1].Steps()
	require.Len(t, steps, 3, "indentation does not end a rule")
	assert.Equal(t, longtake.Click{Target: textTarget("Quests")}, steps[1])
}

func TestParseFeature_UnknownPhrase(t *testing.T) {
	feature := `Feature: Broken
  Scenario: Dance
    Given I open "/"
    When I dance wildly
`
	scenarios, issues := ParseFeature(strings.NewReader(feature), "broken.feature")
	assert.Nil(t, scenarios)
	require.Len(t, issues, 1)
	assert.Equal(t, PhaseDomain, issues[0].Phase)
	assert.Equal(t, "line 4", issues[0].Path)
	assert.Contains(t, issues[0].Message, "I dance wildly")
}

func TestParseFeature_SyntaxError(t *testing.T) {
	_, issues := ParseFeature(strings.NewReader("Scenario without a feature\n  Given nothing"), "bad.feature")
	require.Len(t, issues, 1)
	assert.Equal(t, PhaseStructural, issues[0].Phase)
}

func TestMatchPhrase(t *testing.T) {
	tests := []struct {
		text string
		want longtake.Step
	}{
		{`I navigate to "https://game.test/gifts"`, longtake.Navigate{URL: "https://game.test/gifts"}},
		{`I wait for the URL "/shop"`, longtake.WaitFor{Condition: longtake.URLEquals("/shop")}},
		{`I wait for the button "Shop"`, longtake.WaitFor{Condition: longtake.ElementVisible(longtake.ByRole("button", "Shop"))}},
		{`I wait for the text "Opponent found!"`, longtake.WaitFor{Condition: longtake.ElementVisible(textTarget("Opponent found!"))}},
		{`I wait until "Searching for opponent..." disappears`, longtake.WaitFor{Condition: longtake.ElementHidden(textTarget("Searching for opponent..."))}},
		{`I wait until the dialog "Quests" is hidden`, longtake.WaitFor{Condition: longtake.ElementHidden(longtake.ByRole("dialog", "Quests"))}},
		{`I wait for 3 listitem "Gift"`, longtake.WaitFor{Condition: longtake.ElementCount(longtake.ByRole("listitem", "Gift"), 3)}},
		{"I wait until `has(\"Gifts\") && count(\"li\") > 2`", longtake.WaitFor{Condition: longtake.Expression(`has("Gifts") && count("li") > 2`)}},
		{`I click on "Shop"`, longtake.Click{Target: textTarget("Shop")}},
		{`I should see the heading "Shop"`, longtake.AssertVisible{Target: longtake.ByRole("heading", "Shop")}},
		{`I should see "Welcome"`, longtake.AssertVisible{Target: textTarget("Welcome")}},
		{`the button "Rock" contains "Rock"`, longtake.AssertVisible{Target: longtake.ByRole("button", "Rock"), Text: "Rock", Contains: true}},
		{`".value" beside "Your Score:" shows "120"`, longtake.AssertVisible{
			Target: longtake.ByCSS(".value").Beside(textTarget("Your Score:")),
			Text:   "120",
		}},
		{`the URL should be "/shop"`, longtake.AssertURL{URL: "/shop"}},
		{`I take a screenshot as "final-shop.png"`, longtake.Screenshot{Path: "final-shop.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := MatchPhrase(tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := MatchPhrase("I juggle")
	assert.False(t, ok)
}
