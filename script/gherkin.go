package script

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"

	"github.com/teranos/longtake"
)

// phrase maps one Gherkin step sentence onto a step. Groups are the
// regexp's submatches, without the full match.
type phrase struct {
	pattern *regexp.Regexp
	build   func(groups []string) longtake.Step
}

const (
	quoted  = `"([^"]*)"`
	role    = `(?:the )?([a-z]+) `
	waitFor = `^(?:I )?wait(?: up to (\d+(?:\.\d+)?) seconds?)? `
)

// Ordered: the first matching phrase wins, so specific forms come first.
var phrases = []phrase{
	{regexp.MustCompile(`^(?:I )?(?:open|navigate to|go to|visit) ` + quoted + `$`), func(g []string) longtake.Step {
		return longtake.Navigate{URL: g[0]}
	}},
	{regexp.MustCompile(waitFor + `for the (?:URL|url) ` + quoted + `$`), func(g []string) longtake.Step {
		return wait(g[0], longtake.URLEquals(g[1]))
	}},
	{regexp.MustCompile(waitFor + "until `([^`]+)`$"), func(g []string) longtake.Step {
		return wait(g[0], longtake.Expression(g[1]))
	}},
	{regexp.MustCompile(waitFor + `until ` + role + quoted + ` (?:disappears|is hidden)$`), func(g []string) longtake.Step {
		return wait(g[0], longtake.ElementHidden(longtake.ByRole(g[1], g[2])))
	}},
	{regexp.MustCompile(waitFor + `until ` + quoted + ` (?:disappears|is hidden)$`), func(g []string) longtake.Step {
		return wait(g[0], longtake.ElementHidden(textTarget(g[1])))
	}},
	{regexp.MustCompile(waitFor + `for (\d+) ` + role + quoted + `$`), func(g []string) longtake.Step {
		n, _ := strconv.Atoi(g[1])
		return wait(g[0], longtake.ElementCount(longtake.ByRole(g[2], g[3]), n))
	}},
	{regexp.MustCompile(waitFor + `for (?:the text )?` + quoted + `$`), func(g []string) longtake.Step {
		return wait(g[0], longtake.ElementVisible(textTarget(g[1])))
	}},
	{regexp.MustCompile(waitFor + `for ` + role + quoted + `$`), func(g []string) longtake.Step {
		return wait(g[0], longtake.ElementVisible(longtake.ByRole(g[1], g[2])))
	}},
	{regexp.MustCompile(`^(?:I )?click (?:on )?` + quoted + `$`), func(g []string) longtake.Step {
		return longtake.Click{Target: textTarget(g[0])}
	}},
	{regexp.MustCompile(`^(?:I )?click ` + role + quoted + `$`), func(g []string) longtake.Step {
		return longtake.Click{Target: longtake.ByRole(g[0], g[1])}
	}},
	{regexp.MustCompile(`^` + role + quoted + ` (shows|contains) ` + quoted + `$`), func(g []string) longtake.Step {
		return longtake.AssertVisible{Target: longtake.ByRole(g[0], g[1]), Text: g[3], Contains: g[2] == "contains"}
	}},
	{regexp.MustCompile(`^` + quoted + ` beside ` + quoted + ` (shows|contains) ` + quoted + `$`), func(g []string) longtake.Step {
		target := longtake.ByCSS(g[0]).Beside(textTarget(g[1]))
		return longtake.AssertVisible{Target: target, Text: g[3], Contains: g[2] == "contains"}
	}},
	{regexp.MustCompile(`^(?:I )?should see ` + role + quoted + `$`), func(g []string) longtake.Step {
		return longtake.AssertVisible{Target: longtake.ByRole(g[0], g[1])}
	}},
	{regexp.MustCompile(`^(?:I )?should see ` + quoted + `$`), func(g []string) longtake.Step {
		return longtake.AssertVisible{Target: textTarget(g[0])}
	}},
	{regexp.MustCompile(`^the (?:URL|url) (?:is|should be) ` + quoted + `$`), func(g []string) longtake.Step {
		return longtake.AssertURL{URL: g[0]}
	}},
	{regexp.MustCompile(`^(?:I )?(?:take a )?screenshot of ` + role + quoted + ` as ` + quoted + `$`), func(g []string) longtake.Step {
		target := longtake.ByRole(g[0], g[1])
		return longtake.Screenshot{Path: g[2], Target: &target}
	}},
	{regexp.MustCompile(`^(?:I )?(?:take a )?screenshot as ` + quoted + `$`), func(g []string) longtake.Step {
		return longtake.Screenshot{Path: g[0]}
	}},
}

// textTarget prefers an exact text match and falls back to a substring.
func textTarget(text string) longtake.LocatorSpec {
	return longtake.ByText(text).Or(longtake.ByContains(text))
}

func wait(seconds string, c longtake.Condition) longtake.Step {
	if seconds != "" {
		if s, err := strconv.ParseFloat(seconds, 64); err == nil {
			c = c.WithTimeout(time.Duration(s * float64(time.Second)))
		}
	}
	return longtake.WaitFor{Condition: c}
}

// MatchPhrase maps a Gherkin step sentence to a step.
func MatchPhrase(text string) (longtake.Step, bool) {
	text = strings.TrimSpace(text)
	for _, p := range phrases {
		if m := p.pattern.FindStringSubmatch(text); m != nil {
			return p.build(m[1:]), true
		}
	}
	return nil, false
}

// ParseFeature reads a feature file into scenarios. Background steps are
// prepended, rules are walked and outlines expanded, one scenario per
// example row. Sentences without a phrase are reported with their line.
func ParseFeature(r io.Reader, source string) ([]longtake.Scenario, []*ValidationError) {
	newID := (&messages.Incrementing{}).NewId
	doc, err := gherkin.ParseGherkinDocument(r, newID)
	if err != nil {
		return nil, []*ValidationError{{Phase: PhaseStructural, Message: err.Error(), Severity: "error"}}
	}
	if doc.Feature == nil {
		return nil, nil
	}
	doc.Uri = source

	lines := stepLines(doc.Feature)
	seen := make(map[string]int)
	var (
		out  []longtake.Scenario
		errs []*ValidationError
	)
	for _, pickle := range gherkin.Pickles(*doc, source, newID) {
		steps := make([]longtake.Step, 0, len(pickle.Steps))
		for _, ps := range pickle.Steps {
			step, ok := MatchPhrase(ps.Text)
			if !ok {
				errs = append(errs, &ValidationError{
					Phase:    PhaseDomain,
					Path:     lineOf(lines, ps.AstNodeIds),
					Message:  fmt.Sprintf("no step matches %q", ps.Text),
					Severity: "error",
				})
				continue
			}
			steps = append(steps, step)
		}
		tags := make([]string, 0, len(pickle.Tags))
		for _, t := range pickle.Tags {
			tags = append(tags, t.Name)
		}
		// Outline rows share a name; number the repeats so evidence folders differ.
		name := pickle.Name
		if seen[name]++; seen[name] > 1 {
			name = fmt.Sprintf("%s #%d", name, seen[name])
		}
		out = append(out, longtake.NewScenario(name, steps...).
			WithTags(tags...).
			WithSource(source))
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// stepLines indexes every step of the feature by AST node id.
func stepLines(feature *messages.Feature) map[string]int64 {
	lines := make(map[string]int64)
	addSteps := func(steps []*messages.Step) {
		for _, s := range steps {
			if s.Location != nil {
				lines[s.Id] = s.Location.Line
			}
		}
	}
	for _, child := range feature.Children {
		switch {
		case child.Background != nil:
			addSteps(child.Background.Steps)
		case child.Scenario != nil:
			addSteps(child.Scenario.Steps)
		case child.Rule != nil:
			for _, rc := range child.Rule.Children {
				if rc.Background != nil {
					addSteps(rc.Background.Steps)
				}
				if rc.Scenario != nil {
					addSteps(rc.Scenario.Steps)
				}
			}
		}
	}
	return lines
}

func lineOf(lines map[string]int64, ids []string) string {
	for _, id := range ids {
		if line, ok := lines[id]; ok {
			return fmt.Sprintf("line %d", line)
		}
	}
	return ""
}
