// Package trip provides error handling for longtake scenario runs.
//
// The trip package uses stumbling metaphors for run failures - when a take
// encounters an issue it "trips up" or "stumbles", and the director decides
// whether the scene can continue.
package trip

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Failure kinds recorded on a Trip.
//
// The director maps each kind onto a step outcome; only KindStale is retried
// locally and only KindCapture is tolerated without halting the scenario.
const (
	KindResolution = "resolution"    // locator matched zero or many elements after all fallbacks
	KindTimeout    = "timeout"       // condition never became true
	KindStale      = "stale_element" // handle invalidated by a re-render
	KindAssertion  = "assertion"     // element present but state differs
	KindCapture    = "capture"       // evidence could not be written
	KindNavigation = "navigation"    // page load failed
	KindAction     = "action"        // interaction failed for another reason
	KindConfig     = "config"        // scenario is malformed
)

// Trip represents a failure during a scenario run with rich context.
//
// Example usage:
//
//	err := NewTrip(KindAssertion, "text mismatch",
//	    Context{"expected": "Gifts", "actual": "Shop"}).WithReason("text_mismatch")
//
//	if err.CanRecover() {
//	    // Continue the take despite this stumble
//	}
type Trip struct {
	Kind      string    // Failure category for systematic handling
	Reason    string    // Finer-grained cause inside the kind (e.g. "not_found")
	Message   string    // Human-readable description
	Context   Context   // Additional debugging information
	Timestamp time.Time // When the failure occurred
	Attempt   int       // Which attempt/retry this was
	Severity  Severity  // How serious this failure is
	Cause     error     // Underlying error, if any
}

// Context provides structured debugging information for trips.
type Context map[string]interface{}

// Severity indicates how serious a trip is and how it should be handled.
type Severity int

const (
	// Stumble indicates a minor issue that doesn't invalidate the run.
	// Examples: screenshot capture failed
	Stumble Severity = iota

	// Error indicates a step failure that halts the scenario.
	// Examples: assertion failures, timeouts
	Error

	// Fall indicates the run itself could not proceed.
	// Examples: browser session could not be opened
	Fall
)

func (s Severity) String() string {
	switch s {
	case Stumble:
		return "stumble"
	case Error:
		return "error"
	case Fall:
		return "fall"
	default:
		return "unknown"
	}
}

// NewTrip creates a new trip with the current timestamp.
func NewTrip(kind, message string, context Context) *Trip {
	return &Trip{
		Kind:      kind,
		Message:   message,
		Context:   context,
		Timestamp: time.Now(),
		Severity:  Error,
	}
}

// NewStumble creates a new trip with Stumble severity.
func NewStumble(kind, message string, context Context) *Trip {
	return NewTrip(kind, message, context).WithSeverity(Stumble)
}

// NewFall creates a new trip with Fall severity.
func NewFall(kind, message string, context Context) *Trip {
	return NewTrip(kind, message, context).WithSeverity(Fall)
}

// WithAttempt sets the attempt number for this trip.
func (t *Trip) WithAttempt(attemptNumber int) *Trip {
	t.Attempt = attemptNumber
	return t
}

// WithSeverity sets the severity level for this trip.
func (t *Trip) WithSeverity(severity Severity) *Trip {
	t.Severity = severity
	return t
}

// WithReason sets the finer-grained reason for this trip.
func (t *Trip) WithReason(reason string) *Trip {
	t.Reason = reason
	return t
}

// WithCause attaches the underlying error.
func (t *Trip) WithCause(err error) *Trip {
	t.Cause = err
	return t
}

// Error implements the error interface.
func (t *Trip) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", t.Kind, t.Severity, t.Message)
	if t.Cause != nil {
		msg += ": " + t.Cause.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (t *Trip) Unwrap() error {
	return t.Cause
}

// CanRecover returns true if the run can continue despite this trip.
func (t *Trip) CanRecover() bool {
	return t.Severity == Stumble
}

// IsFall returns true if this trip should immediately stop the run.
func (t *Trip) IsFall() bool {
	return t.Severity == Fall
}

// GetContext returns a specific context value if it exists.
func (t *Trip) GetContext(key string) (interface{}, bool) {
	if t.Context == nil {
		return nil, false
	}
	val, exists := t.Context[key]
	return val, exists
}

// DetailedString returns a comprehensive description with context.
// Context keys are sorted so reports are stable between runs.
func (t *Trip) DetailedString() string {
	var details strings.Builder

	details.WriteString(fmt.Sprintf("[%s:%s] %s", t.Kind, t.Severity, t.Message))
	details.WriteString(fmt.Sprintf("\n  Time: %s", t.Timestamp.Format("15:04:05.000")))

	if t.Reason != "" {
		details.WriteString(fmt.Sprintf("\n  Reason: %s", t.Reason))
	}
	if t.Attempt > 0 {
		details.WriteString(fmt.Sprintf("\n  Attempt: %d", t.Attempt))
	}
	if t.Cause != nil {
		details.WriteString(fmt.Sprintf("\n  Cause: %v", t.Cause))
	}

	if len(t.Context) > 0 {
		keys := make([]string, 0, len(t.Context))
		for key := range t.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		details.WriteString("\n  Context:")
		for _, key := range keys {
			details.WriteString(fmt.Sprintf("\n    %s: %v", key, t.Context[key]))
		}
	}

	return details.String()
}

// As extracts a *Trip from err's chain.
func As(err error) (*Trip, bool) {
	var t *Trip
	if errors.As(err, &t) {
		return t, true
	}
	return nil, false
}

// KindOf returns the trip kind of err, or "" when err carries no trip.
func KindOf(err error) string {
	if t, ok := As(err); ok {
		return t.Kind
	}
	return ""
}

// Handler manages trip collection and reporting during a run.
//
// Capture trips are stumbles and don't stop the run, while every other kind
// halts the scenario at the step that produced it.
type Handler struct {
	component string  // Scenario or component name
	trips     []*Trip // Collected failures in chronological order
	stumbles  []*Trip // Collected minor issues in chronological order
	policy    *Policy // How to handle different trip kinds
}

// Policy defines how different kinds and severities of trips are handled.
type Policy struct {
	// StopOnFall determines if the run should stop immediately on fall trips
	StopOnFall bool

	// StopOnError determines if the run should stop on the first error trip
	StopOnError bool

	// MaxStumbles sets a limit on accumulated stumbles before stopping (0 = no limit)
	MaxStumbles int

	// RecoverableKinds lists trip kinds that never stop the run
	RecoverableKinds []string

	// RetryPolicy defines retry behavior for different trip kinds
	RetryPolicy map[string]RetryConfig
}

// RetryConfig defines retry behavior for a specific trip kind.
type RetryConfig struct {
	MaxRetries  int           // Maximum retry attempts
	Backoff     time.Duration // Delay between retries
	Exponential bool          // Whether to use exponential backoff
}

// Delay returns the backoff before the given retry (1-based).
func (rc RetryConfig) Delay(retry int) time.Duration {
	if !rc.Exponential || retry <= 1 {
		return rc.Backoff
	}
	return rc.Backoff << (retry - 1)
}

// DefaultPolicy returns the scenario runner's policy: a stale element is
// re-resolved exactly once, capture failures never halt a run, and any
// other trip does.
func DefaultPolicy() *Policy {
	return &Policy{
		StopOnFall:       true,
		StopOnError:      true,
		RecoverableKinds: []string{KindCapture},
		RetryPolicy: map[string]RetryConfig{
			KindStale: {MaxRetries: 1, Backoff: 0, Exponential: false},
		},
	}
}

// NewHandler creates a new trip handler for a specific component.
func NewHandler(component string, policy *Policy) *Handler {
	if policy == nil {
		policy = DefaultPolicy()
	}

	return &Handler{
		component: component,
		trips:     make([]*Trip, 0),
		stumbles:  make([]*Trip, 0),
		policy:    policy,
	}
}

// Record adds a trip to the handler's collection.
func (h *Handler) Record(trip *Trip) {
	if trip.Severity == Stumble {
		h.stumbles = append(h.stumbles, trip)
	} else {
		h.trips = append(h.trips, trip)
	}
}

// ShouldContinue determines if the run should continue based on current trips.
// Trips of a recoverable kind never stop the run.
func (h *Handler) ShouldContinue() bool {
	for _, trip := range h.trips {
		if h.CanRecover(trip.Kind) {
			continue
		}
		if h.policy.StopOnFall && trip.IsFall() {
			return false
		}
		if h.policy.StopOnError && trip.Severity == Error {
			return false
		}
	}

	if h.policy.MaxStumbles > 0 && len(h.stumbles) > h.policy.MaxStumbles {
		return false
	}

	return true
}

// Retry returns the retry configuration for a specific trip kind.
func (p *Policy) Retry(kind string) (RetryConfig, bool) {
	config, exists := p.RetryPolicy[kind]
	return config, exists
}

// CanRecover returns true if the given trip kind is considered recoverable.
func (h *Handler) CanRecover(kind string) bool {
	for _, recoverable := range h.policy.RecoverableKinds {
		if recoverable == kind {
			return true
		}
	}
	return false
}

// Summary provides a concise overview of all trips and stumbles.
func (h *Handler) Summary() string {
	if len(h.trips) == 0 && len(h.stumbles) == 0 {
		return fmt.Sprintf("[%s] No issues during run", h.component)
	}

	return fmt.Sprintf("[%s] %d trips, %d stumbles",
		h.component, len(h.trips), len(h.stumbles))
}

// DetailedReport provides a comprehensive report of all issues.
func (h *Handler) DetailedReport() string {
	var report strings.Builder

	report.WriteString(fmt.Sprintf("=== %s Run Report ===\n", h.component))
	report.WriteString(h.Summary() + "\n")

	if len(h.trips) > 0 {
		report.WriteString("\nTrips:\n")
		for i, trip := range h.trips {
			report.WriteString(fmt.Sprintf("%d. %s\n", i+1, trip.DetailedString()))
		}
	}

	if len(h.stumbles) > 0 {
		report.WriteString("\nStumbles:\n")
		for i, stumble := range h.stumbles {
			report.WriteString(fmt.Sprintf("%d. %s\n", i+1, stumble.DetailedString()))
		}
	}

	return report.String()
}
