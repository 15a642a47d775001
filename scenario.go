package longtake

import (
	"strings"
	"unicode"
)

// DefaultEvidencePath is the final frame's name inside the scenario folder.
const DefaultEvidencePath = "final.png"

// Scenario is a named, ordered list of steps. It is immutable once built;
// the With* methods return copies.
type Scenario struct {
	name     string
	steps    []Step
	tags     []string
	evidence string
	source   string
}

// NewScenario builds a scenario from steps in execution order.
func NewScenario(name string, steps ...Step) Scenario {
	return Scenario{
		name:     name,
		steps:    append([]Step(nil), steps...),
		evidence: DefaultEvidencePath,
	}
}

// Name returns the scenario name.
func (s Scenario) Name() string { return s.name }

// Steps returns a copy of the step list.
func (s Scenario) Steps() []Step { return append([]Step(nil), s.steps...) }

// Tags returns a copy of the scenario tags.
func (s Scenario) Tags() []string { return append([]string(nil), s.tags...) }

// EvidencePath returns the final frame's path relative to the scenario folder.
func (s Scenario) EvidencePath() string { return s.evidence }

// Source returns the file the scenario was loaded from, if any.
func (s Scenario) Source() string { return s.source }

// Slug returns the scenario's folder name.
func (s Scenario) Slug() string { return Slug(s.name) }

// WithEvidence returns a copy whose final frame is written to path.
func (s Scenario) WithEvidence(path string) Scenario {
	if path == "" {
		path = DefaultEvidencePath
	}
	s.evidence = path
	return s
}

// WithTags returns a copy carrying tags.
func (s Scenario) WithTags(tags ...string) Scenario {
	s.tags = append([]string(nil), tags...)
	return s
}

// WithSource returns a copy remembering the file it came from.
func (s Scenario) WithSource(path string) Scenario {
	s.source = path
	return s
}

// Slug turns a name into a lowercase, dash-separated folder name.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "scenario"
	}
	return slug
}
