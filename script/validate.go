package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Validation phases.
const (
	PhaseStructural = "structural" // YAML or Gherkin parse
	PhaseSemantic   = "semantic"   // JSON Schema
	PhaseDomain     = "domain"     // rules the schema cannot express
)

// ValidationError is a single problem with its location in the document.
type ValidationError struct {
	Phase    string `json:"phase"`
	Path     string `json:"path"` // e.g. "scenarios[0].steps[2].wait_for"
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// Errors collects every problem found in one file.
type Errors struct {
	File   string
	Issues []*ValidationError
}

func (e *Errors) Error() string {
	lines := make([]string, 0, len(e.Issues)+1)
	lines = append(lines, fmt.Sprintf("%s: %d validation error(s)", e.File, len(e.Issues)))
	for _, issue := range e.Issues {
		lines = append(lines, "  "+issue.Error())
	}
	return strings.Join(lines, "\n")
}

// IssuesOf returns the validation issues carried by err, if any.
func IssuesOf(err error) []*ValidationError {
	var e *Errors
	if errors.As(err, &e) {
		return e.Issues
	}
	return nil
}

// ValidateFile runs all three phases on a YAML scenario file.
func ValidateFile(path string) (*FileDoc, []*ValidationError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []*ValidationError{{Phase: PhaseStructural, Message: err.Error(), Severity: "error"}}
	}
	return Validate(data)
}

// Validate runs all three phases on YAML document bytes.
func Validate(data []byte) (*FileDoc, []*ValidationError) {
	doc, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, []*ValidationError{{Phase: PhaseStructural, Message: err.Error(), Severity: "error"}}
	}

	var all []*ValidationError
	all = append(all, validateSemantic(doc)...)
	all = append(all, ValidateDomain(doc)...)
	if len(all) > 0 {
		return doc, all
	}
	return doc, nil
}

// decode parses a document, rejecting unknown fields.
func decode(r io.Reader) (*FileDoc, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc FileDoc
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("decode scenarios: empty document")
		}
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}
	return &doc, nil
}

// ValidateDomain checks the rules the schema does not cover: one action per
// step, parseable durations, non-empty locators and unique scenario names.
func ValidateDomain(doc *FileDoc) []*ValidationError {
	var errs []*ValidationError
	add := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase:    PhaseDomain,
			Path:     path,
			Message:  fmt.Sprintf(format, args...),
			Severity: "error",
		})
	}

	seen := make(map[string]int)
	for i, sc := range doc.Scenarios {
		base := fmt.Sprintf("scenarios[%d]", i)
		if prev, dup := seen[sc.Name]; dup && sc.Name != "" {
			add(base+".name", "duplicate scenario name %q (also scenarios[%d])", sc.Name, prev)
		} else {
			seen[sc.Name] = i
		}

		if sc.Evidence != "" && !strings.HasSuffix(strings.ToLower(sc.Evidence), ".png") {
			add(base+".evidence", "evidence path %q must end in .png", sc.Evidence)
		}

		for j, st := range sc.Steps {
			path := fmt.Sprintf("%s.steps[%d]", base, j)
			actions := st.actions()
			switch len(actions) {
			case 0:
				add(path, "step has no action")
				continue
			case 1:
			default:
				add(path, "step has %d actions (%s), expected exactly one", len(actions), strings.Join(actions, ", "))
				continue
			}

			switch {
			case st.WaitFor != nil:
				validateWait(path+".wait_for", st.WaitFor, add)
			case st.Click != nil:
				validateLocator(path+".click", st.Click, add)
			case st.AssertVisible != nil:
				validateLocator(path+".assert_visible.locator", &st.AssertVisible.Locator, add)
				if st.AssertVisible.Contains && st.AssertVisible.Text == "" {
					add(path+".assert_visible", "contains requires text")
				}
			case st.Screenshot != nil:
				if st.Screenshot.Locator != nil {
					validateLocator(path+".screenshot.locator", st.Screenshot.Locator, add)
				}
			}
		}
	}
	return errs
}

func (s StepDoc) actions() []string {
	var out []string
	if s.Navigate != "" {
		out = append(out, "navigate")
	}
	if s.WaitFor != nil {
		out = append(out, "wait_for")
	}
	if s.Click != nil {
		out = append(out, "click")
	}
	if s.AssertVisible != nil {
		out = append(out, "assert_visible")
	}
	if s.AssertURL != "" {
		out = append(out, "assert_url")
	}
	if s.Screenshot != nil {
		out = append(out, "screenshot")
	}
	return out
}

func (w WaitDoc) conditions() []string {
	var out []string
	if w.Visible != nil {
		out = append(out, "visible")
	}
	if w.Hidden != nil {
		out = append(out, "hidden")
	}
	if w.Count != nil {
		out = append(out, "count")
	}
	if w.Text != "" {
		out = append(out, "text")
	}
	if w.URL != "" {
		out = append(out, "url")
	}
	if w.Expr != "" {
		out = append(out, "expr")
	}
	return out
}

func validateWait(path string, w *WaitDoc, add func(string, string, ...any)) {
	conds := w.conditions()
	if len(conds) != 1 {
		add(path, "wait_for needs exactly one condition, got %d", len(conds))
	}
	for _, d := range []struct{ field, value string }{{"timeout", w.Timeout}, {"poll", w.Poll}} {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			add(path+"."+d.field, "invalid duration %q", d.value)
		} else if v <= 0 {
			add(path+"."+d.field, "duration %q must be positive", d.value)
		}
	}
	switch {
	case w.Visible != nil:
		validateLocator(path+".visible", w.Visible, add)
	case w.Hidden != nil:
		validateLocator(path+".hidden", w.Hidden, add)
	case w.Count != nil:
		validateLocator(path+".count.locator", &w.Count.Locator, add)
	}
}

func validateLocator(path string, l *LocatorDoc, add func(string, string, ...any)) {
	if !l.hasMatcher() && len(l.Any) == 0 {
		add(path, "locator needs at least one of role, name, text, contains, css or any")
	}
	if l.Within != nil && l.Beside != nil {
		add(path, "locator cannot be both within and beside an anchor")
	}
	for i := range l.Any {
		validateLocator(fmt.Sprintf("%s.any[%d]", path, i), &l.Any[i], add)
	}
	if l.Within != nil {
		validateLocator(path+".within", l.Within, add)
	}
	if l.Beside != nil {
		validateLocator(path+".beside", l.Beside, add)
	}
}
