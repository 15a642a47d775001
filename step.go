package longtake

import "fmt"

// Step is one instruction of a scenario. The concrete types below are the
// only implementations.
type Step interface {
	Kind() string
	fmt.Stringer
}

// Navigate loads URL, resolved against the base URL.
type Navigate struct {
	URL string
}

// WaitFor blocks until Condition holds or times out.
type WaitFor struct {
	Condition Condition
}

// Click resolves Target and clicks it.
type Click struct {
	Target LocatorSpec
}

// AssertVisible checks that Target is visible and, when Text is set, that its
// text equals Text (or contains it when Contains is true).
type AssertVisible struct {
	Target   LocatorSpec
	Text     string
	Contains bool
}

// AssertURL checks the current location.
type AssertURL struct {
	URL string
}

// Screenshot writes a frame to Path inside the scenario's evidence folder.
// A non-nil Target asks for an element-scoped shot.
type Screenshot struct {
	Path   string
	Target *LocatorSpec
}

func (Navigate) Kind() string      { return "navigate" }
func (WaitFor) Kind() string       { return "wait_for" }
func (Click) Kind() string         { return "click" }
func (AssertVisible) Kind() string { return "assert_visible" }
func (AssertURL) Kind() string     { return "assert_url" }
func (Screenshot) Kind() string    { return "screenshot" }

func (s Navigate) String() string { return "navigate " + s.URL }
func (s WaitFor) String() string  { return "wait for " + s.Condition.String() }
func (s Click) String() string    { return "click " + s.Target.String() }
func (s AssertURL) String() string {
	return "assert url " + s.URL
}

func (s AssertVisible) String() string {
	switch {
	case s.Text == "":
		return fmt.Sprintf("assert visible %s", s.Target)
	case s.Contains:
		return fmt.Sprintf("assert %s contains %q", s.Target, s.Text)
	default:
		return fmt.Sprintf("assert %s shows %q", s.Target, s.Text)
	}
}

func (s Screenshot) String() string {
	if s.Target != nil {
		return fmt.Sprintf("screenshot %s of %s", s.Path, s.Target)
	}
	return "screenshot " + s.Path
}
