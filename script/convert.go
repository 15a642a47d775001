package script

import (
	"strings"
	"time"

	"github.com/teranos/longtake"
)

// Build converts a validated document. source is recorded on each
// scenario for reports.
func (d *FileDoc) Build(source string) []longtake.Scenario {
	out := make([]longtake.Scenario, 0, len(d.Scenarios))
	for _, sc := range d.Scenarios {
		steps := make([]longtake.Step, 0, len(sc.Steps))
		for _, st := range sc.Steps {
			steps = append(steps, st.step())
		}
		out = append(out, longtake.NewScenario(sc.Name, steps...).
			WithTags(normalizeTags(sc.Tags)...).
			WithEvidence(sc.Evidence).
			WithSource(source))
	}
	return out
}

// normalizeTags writes tags the way Gherkin does, with a leading "@".
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "@") {
			t = "@" + t
		}
		out = append(out, t)
	}
	return out
}

func (s StepDoc) step() longtake.Step {
	switch {
	case s.Navigate != "":
		return longtake.Navigate{URL: s.Navigate}
	case s.WaitFor != nil:
		return longtake.WaitFor{Condition: s.WaitFor.condition()}
	case s.Click != nil:
		return longtake.Click{Target: s.Click.Spec()}
	case s.AssertVisible != nil:
		return longtake.AssertVisible{
			Target:   s.AssertVisible.Locator.Spec(),
			Text:     s.AssertVisible.Text,
			Contains: s.AssertVisible.Contains,
		}
	case s.AssertURL != "":
		return longtake.AssertURL{URL: s.AssertURL}
	default:
		shot := longtake.Screenshot{Path: s.Screenshot.Path}
		if s.Screenshot.Locator != nil {
			spec := s.Screenshot.Locator.Spec()
			shot.Target = &spec
		}
		return shot
	}
}

func (w *WaitDoc) condition() longtake.Condition {
	var c longtake.Condition
	switch {
	case w.Visible != nil:
		c = longtake.ElementVisible(w.Visible.Spec())
	case w.Hidden != nil:
		c = longtake.ElementHidden(w.Hidden.Spec())
	case w.Count != nil:
		c = longtake.ElementCount(w.Count.Locator.Spec(), w.Count.Equals)
	case w.Text != "":
		c = longtake.TextPresent(w.Text)
	case w.URL != "":
		c = longtake.URLEquals(w.URL)
	default:
		c = longtake.Expression(w.Expr)
	}
	// Durations were checked during validation; zero falls back to config.
	if d, err := time.ParseDuration(w.Timeout); err == nil {
		c = c.WithTimeout(d)
	}
	if d, err := time.ParseDuration(w.Poll); err == nil {
		c = c.WithPollInterval(d)
	}
	return c
}

// Spec builds the locator's fallback chain.
func (l LocatorDoc) Spec() longtake.LocatorSpec {
	var spec longtake.LocatorSpec
	if l.hasMatcher() {
		spec = longtake.Find(longtake.Locator{
			Role:     l.Role,
			Name:     l.Name,
			Text:     l.Text,
			Contains: l.Contains,
			CSS:      l.CSS,
		})
	}
	for _, alt := range l.Any {
		spec = spec.Or(alt.Spec())
	}
	switch {
	case l.Within != nil:
		spec = spec.Inside(l.Within.Spec())
	case l.Beside != nil:
		spec = spec.Beside(l.Beside.Spec())
	}
	return spec
}
