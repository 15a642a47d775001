// Package script loads scenario definitions from YAML documents and Gherkin
// feature files and turns them into longtake scenarios.
//
// A YAML file holds a list of scenarios:
//
//	scenarios:
//	  - name: start game shows searching
//	    tags: [smoke]
//	    steps:
//	      - navigate: /
//	      - click: {role: button, name: Start Game}
//	      - wait_for:
//	          visible: {text: "Searching for opponent..."}
//	          timeout: 10s
//
// Documents go through three validation phases before conversion: a strict
// YAML decode, JSON Schema validation against the schema reflected from the
// document types, and domain rules that the schema cannot express.
package script

// FileDoc is the top level of a YAML scenario file.
type FileDoc struct {
	Scenarios []ScenarioDoc `yaml:"scenarios" json:"scenarios" jsonschema:"required,minItems=1"`
}

// ScenarioDoc is one scenario.
type ScenarioDoc struct {
	Name     string    `yaml:"name"               json:"name"               jsonschema:"required,minLength=1"`
	Tags     []string  `yaml:"tags,omitempty"     json:"tags,omitempty"`
	Evidence string    `yaml:"evidence,omitempty" json:"evidence,omitempty" jsonschema:"description=final frame path inside the scenario folder"`
	Steps    []StepDoc `yaml:"steps"              json:"steps"              jsonschema:"required,minItems=1"`
}

// StepDoc holds exactly one action.
type StepDoc struct {
	Navigate      string      `yaml:"navigate,omitempty"       json:"navigate,omitempty"       jsonschema:"description=absolute URL or path relative to the base URL"`
	WaitFor       *WaitDoc    `yaml:"wait_for,omitempty"       json:"wait_for,omitempty"`
	Click         *LocatorDoc `yaml:"click,omitempty"          json:"click,omitempty"`
	AssertVisible *AssertDoc  `yaml:"assert_visible,omitempty" json:"assert_visible,omitempty"`
	AssertURL     string      `yaml:"assert_url,omitempty"     json:"assert_url,omitempty"`
	Screenshot    *ShotDoc    `yaml:"screenshot,omitempty"     json:"screenshot,omitempty"`
}

// WaitDoc is a wait condition. Exactly one of the condition fields is set.
type WaitDoc struct {
	Visible *LocatorDoc `yaml:"visible,omitempty" json:"visible,omitempty"`
	Hidden  *LocatorDoc `yaml:"hidden,omitempty"  json:"hidden,omitempty"`
	Count   *CountDoc   `yaml:"count,omitempty"   json:"count,omitempty"`
	Text    string      `yaml:"text,omitempty"    json:"text,omitempty"`
	URL     string      `yaml:"url,omitempty"     json:"url,omitempty"`
	Expr    string      `yaml:"expr,omitempty"    json:"expr,omitempty" jsonschema:"description=boolean expression over url title text count() has()"`

	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"description=Go duration such as 10s"`
	Poll    string `yaml:"poll,omitempty"    json:"poll,omitempty"    jsonschema:"description=Go duration such as 100ms"`
}

// CountDoc waits for a locator to match an exact number of elements.
type CountDoc struct {
	Locator LocatorDoc `yaml:"locator" json:"locator" jsonschema:"required"`
	Equals  int        `yaml:"equals"  json:"equals"  jsonschema:"required,minimum=0"`
}

// AssertDoc asserts an element is visible and optionally checks its text.
type AssertDoc struct {
	Locator  LocatorDoc `yaml:"locator"            json:"locator"            jsonschema:"required"`
	Text     string     `yaml:"text,omitempty"     json:"text,omitempty"`
	Contains bool       `yaml:"contains,omitempty" json:"contains,omitempty" jsonschema:"description=match text as a substring"`
}

// ShotDoc writes a named evidence frame.
type ShotDoc struct {
	Path    string      `yaml:"path"              json:"path"              jsonschema:"required,minLength=1"`
	Locator *LocatorDoc `yaml:"locator,omitempty" json:"locator,omitempty"`
}

// LocatorDoc describes an element. The matcher fields form the first
// candidate; Any lists fallbacks tried in order. Within and Beside scope every
// candidate relative to an anchor.
type LocatorDoc struct {
	Role     string `yaml:"role,omitempty"     json:"role,omitempty"`
	Name     string `yaml:"name,omitempty"     json:"name,omitempty"`
	Text     string `yaml:"text,omitempty"     json:"text,omitempty"`
	Contains string `yaml:"contains,omitempty" json:"contains,omitempty"`
	CSS      string `yaml:"css,omitempty"      json:"css,omitempty"`

	Any    []LocatorDoc `yaml:"any,omitempty"    json:"any,omitempty"`
	Within *LocatorDoc  `yaml:"within,omitempty" json:"within,omitempty"`
	Beside *LocatorDoc  `yaml:"beside,omitempty" json:"beside,omitempty"`
}

func (l LocatorDoc) hasMatcher() bool {
	return l.Role != "" || l.Name != "" || l.Text != "" || l.Contains != "" || l.CSS != ""
}
