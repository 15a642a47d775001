package longtake

import (
	"fmt"
	"strings"
)

// Locator is one candidate description of a UI element.
//
// A locator describes what a user perceives (role, accessible name, text)
// rather than how the DOM happens to be built. CSS is accepted as a last
// resort candidate at the end of a chain.
type Locator struct {
	Role     string
	Name     string // accessible name, exact after whitespace normalization
	Text     string // exact visible text
	Contains string // visible text substring
	CSS      string

	Axis   Axis
	Anchor *LocatorSpec
}

// Match returns the page-level query for this candidate, without its relation.
func (l Locator) Match() Match {
	return Match{
		Role:     l.Role,
		Name:     l.Name,
		Text:     l.Text,
		Contains: l.Contains,
		CSS:      l.CSS,
	}
}

// Inside returns a single-candidate spec for l restricted to anchor's subtree.
func (l Locator) Inside(anchor LocatorSpec) LocatorSpec {
	l.Axis = AxisDescendant
	l.Anchor = &anchor
	return Find(l)
}

// Beside returns a single-candidate spec for l restricted to anchor's siblings.
func (l Locator) Beside(anchor LocatorSpec) LocatorSpec {
	l.Axis = AxisSibling
	l.Anchor = &anchor
	return Find(l)
}

func (l Locator) String() string {
	var parts []string
	if l.Role != "" {
		parts = append(parts, "role="+l.Role)
	}
	if l.Name != "" {
		parts = append(parts, fmt.Sprintf("name=%q", l.Name))
	}
	if l.Text != "" {
		parts = append(parts, fmt.Sprintf("text=%q", l.Text))
	}
	if l.Contains != "" {
		parts = append(parts, fmt.Sprintf("contains=%q", l.Contains))
	}
	if l.CSS != "" {
		parts = append(parts, fmt.Sprintf("css=%q", l.CSS))
	}
	s := strings.Join(parts, " ")
	if l.Anchor != nil && l.Axis != AxisDocument {
		s += fmt.Sprintf(" %s(%s)", l.Axis, l.Anchor)
	}
	return s
}

// LocatorSpec is an ordered fallback chain of candidates. It is immutable:
// every builder returns a new spec.
type LocatorSpec struct {
	candidates []Locator
}

// Find builds a spec from candidates in priority order.
func Find(candidates ...Locator) LocatorSpec {
	return LocatorSpec{candidates: append([]Locator(nil), candidates...)}
}

// ByRole matches an element by ARIA role and accessible name.
func ByRole(role, name string) LocatorSpec {
	return Find(Locator{Role: role, Name: name})
}

// ByText matches an element whose visible text equals text.
func ByText(text string) LocatorSpec {
	return Find(Locator{Text: text})
}

// ByContains matches an element whose visible text contains sub.
func ByContains(sub string) LocatorSpec {
	return Find(Locator{Contains: sub})
}

// ByCSS matches by raw CSS selector.
func ByCSS(selector string) LocatorSpec {
	return Find(Locator{CSS: selector})
}

// Or appends the candidates of each fallback after the receiver's own.
func (s LocatorSpec) Or(fallbacks ...LocatorSpec) LocatorSpec {
	out := append([]Locator(nil), s.candidates...)
	for _, f := range fallbacks {
		out = append(out, f.candidates...)
	}
	return LocatorSpec{candidates: out}
}

// Inside restricts every candidate of s to anchor's subtree.
func (s LocatorSpec) Inside(anchor LocatorSpec) LocatorSpec {
	return s.relate(AxisDescendant, anchor)
}

// Beside restricts every candidate of s to anchor's siblings.
func (s LocatorSpec) Beside(anchor LocatorSpec) LocatorSpec {
	return s.relate(AxisSibling, anchor)
}

func (s LocatorSpec) relate(axis Axis, anchor LocatorSpec) LocatorSpec {
	out := make([]Locator, len(s.candidates))
	for i, c := range s.candidates {
		c.Axis = axis
		c.Anchor = &anchor
		out[i] = c
	}
	return LocatorSpec{candidates: out}
}

// Candidates returns a copy of the fallback chain.
func (s LocatorSpec) Candidates() []Locator {
	return append([]Locator(nil), s.candidates...)
}

// Primary returns the first candidate.
func (s LocatorSpec) Primary() (Locator, bool) {
	if len(s.candidates) == 0 {
		return Locator{}, false
	}
	return s.candidates[0], true
}

// IsZero reports whether the spec has no candidates.
func (s LocatorSpec) IsZero() bool {
	return len(s.candidates) == 0
}

func (s LocatorSpec) String() string {
	parts := make([]string, len(s.candidates))
	for i, c := range s.candidates {
		parts[i] = c.String()
	}
	return strings.Join(parts, " | ")
}
