package longtake

import (
	"fmt"
	"time"
)

// ConditionKind identifies what a Condition waits for.
type ConditionKind int

const (
	CondVisible ConditionKind = iota // element resolves and is visible
	CondHidden                       // element is absent or not visible
	CondCount                        // primary candidate matches exactly N elements
	CondText                         // page text contains a string
	CondURL                          // current URL equals a target
	CondExpr                         // boolean expression over a page snapshot
)

func (k ConditionKind) String() string {
	switch k {
	case CondVisible:
		return "visible"
	case CondHidden:
		return "hidden"
	case CondCount:
		return "count"
	case CondText:
		return "text"
	case CondURL:
		return "url"
	case CondExpr:
		return "expr"
	default:
		return "unknown"
	}
}

// Condition is a predicate over page state with its own deadline.
//
// Zero Timeout and PollInterval fall back to the director's configuration.
type Condition struct {
	Kind   ConditionKind
	Target LocatorSpec
	Count  int
	Text   string
	URL    string
	Expr   string

	Timeout      time.Duration
	PollInterval time.Duration
}

// ElementVisible waits until target resolves to one visible element.
func ElementVisible(target LocatorSpec) Condition {
	return Condition{Kind: CondVisible, Target: target}
}

// ElementHidden waits until target matches nothing or only a hidden element.
func ElementHidden(target LocatorSpec) Condition {
	return Condition{Kind: CondHidden, Target: target}
}

// ElementCount waits until the primary candidate of target matches n elements.
func ElementCount(target LocatorSpec, n int) Condition {
	return Condition{Kind: CondCount, Target: target, Count: n}
}

// TextPresent waits until the page text contains text.
func TextPresent(text string) Condition {
	return Condition{Kind: CondText, Text: text}
}

// URLEquals waits until the page location equals url, resolved against the
// base URL when relative.
func URLEquals(url string) Condition {
	return Condition{Kind: CondURL, URL: url}
}

// Expression waits until src evaluates to true. The expression sees url,
// title and text strings plus count(css) and has(text) functions.
//
//	Expression(`count(".quest-card") >= 3 && has("Daily Quests")`)
func Expression(src string) Condition {
	return Condition{Kind: CondExpr, Expr: src}
}

// WithTimeout returns a copy with the given deadline.
func (c Condition) WithTimeout(d time.Duration) Condition {
	c.Timeout = d
	return c
}

// WithPollInterval returns a copy polling every d.
func (c Condition) WithPollInterval(d time.Duration) Condition {
	c.PollInterval = d
	return c
}

func (c Condition) String() string {
	switch c.Kind {
	case CondVisible, CondHidden:
		return fmt.Sprintf("%s(%s)", c.Kind, c.Target)
	case CondCount:
		return fmt.Sprintf("count(%s) == %d", c.Target, c.Count)
	case CondText:
		return fmt.Sprintf("text(%q)", c.Text)
	case CondURL:
		return fmt.Sprintf("url(%q)", c.URL)
	case CondExpr:
		return fmt.Sprintf("expr(%s)", c.Expr)
	default:
		return c.Kind.String()
	}
}
