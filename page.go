// Package longtake drives a client application through a browser, waits for
// asynchronous screen transitions, asserts on what is visible and keeps
// screenshots as evidence.
//
// A longtake run is a single continuous take: the director walks a scenario
// step by step without cutting away, and every run ends with a final frame on
// disk whether the scene played out or fell apart.
//
// Basic usage:
//
//	sc := longtake.NewScenario("start-game",
//		longtake.Navigate{URL: "/"},
//		longtake.Click{Target: longtake.ByRole("button", "Start Game")},
//		longtake.WaitFor{Condition: longtake.ElementVisible(longtake.ByText("Searching for opponent..."))},
//	)
//
//	result := longtake.NewDirector(page, longtake.DefaultDirectorConfig()).Run(ctx, sc)
//	if !result.Success {
//		log.Fatal(result.ErrorMessage)
//	}
package longtake

import (
	"context"
	"errors"
)

// ErrStaleElement is returned by Element methods once the underlying node
// has been detached from the document by a re-render.
var ErrStaleElement = errors.New("element is no longer attached to the page")

// Page is the browser capability the harness drives.
//
// Navigate returns only after the page reports load complete. Query never
// blocks waiting for elements to appear; waiting is the Waiter's job.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Query(ctx context.Context, scope Scope, m Match) ([]Element, error)
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// Element is a handle to a live node. Any method on a detached node returns
// an error wrapping ErrStaleElement.
type Element interface {
	Handle() string
	Text(ctx context.Context) (string, error)
	Visible(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
}

// ConsoleSource is implemented by pages that collect browser console output.
type ConsoleSource interface {
	ConsoleLog() []string
}

// Opener opens an isolated page (its own browser context) for one scenario.
// The returned release func closes it.
type Opener interface {
	Open(ctx context.Context) (Page, func() error, error)
}

// Axis is the structural relation between a candidate and its anchor.
type Axis int

const (
	// AxisDocument queries the whole document.
	AxisDocument Axis = iota
	// AxisDescendant restricts the query to the anchor's subtree.
	AxisDescendant
	// AxisSibling restricts the query to the anchor's siblings and their
	// subtrees. The anchor itself never matches.
	AxisSibling
)

func (a Axis) String() string {
	switch a {
	case AxisDescendant:
		return "inside"
	case AxisSibling:
		return "beside"
	default:
		return "document"
	}
}

// Scope bounds a Query. The zero value is the whole document.
type Scope struct {
	Anchor Element
	Axis   Axis
}

// Match is the page-level part of a locator. Empty fields are unconstrained;
// a Match with every field empty matches nothing.
type Match struct {
	Role     string
	Name     string
	Text     string
	Contains string
	CSS      string
}

// Empty reports whether no field constrains the match.
func (m Match) Empty() bool {
	return m == Match{}
}
