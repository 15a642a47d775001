package longtake

import (
	"time"

	"github.com/teranos/longtake/trip"
)

// Phase is a state of the scenario runner.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseNavigating
	PhaseWaiting
	PhaseActing
	PhaseAsserting
	PhaseCapturing
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseNavigating:
		return "Navigating"
	case PhaseWaiting:
		return "Waiting"
	case PhaseActing:
		return "Acting"
	case PhaseAsserting:
		return "Asserting"
	case PhaseCapturing:
		return "Capturing"
	case PhaseCompleted:
		return "Completed"
	case PhaseFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether the run has ended.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Outcome is how a single step ended.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeTimeout           Outcome = "timeout"
	OutcomeAssertionFailure  Outcome = "assertion_failure"
	OutcomeResolutionFailure Outcome = "resolution_failure"
	OutcomeStaleElement      Outcome = "stale_element"
	OutcomeNavigationFailure Outcome = "navigation_failure"
	OutcomeActionFailure     Outcome = "action_failure"
	OutcomeCaptureFailure    Outcome = "capture_failure"
	OutcomeConfigError       Outcome = "config_error"
	OutcomeSkipped           Outcome = "skipped"
)

// outcomeFor maps a trip kind onto the step outcome it produces.
func outcomeFor(kind string) Outcome {
	switch kind {
	case trip.KindTimeout:
		return OutcomeTimeout
	case trip.KindAssertion:
		return OutcomeAssertionFailure
	case trip.KindResolution:
		return OutcomeResolutionFailure
	case trip.KindStale:
		return OutcomeStaleElement
	case trip.KindNavigation:
		return OutcomeNavigationFailure
	case trip.KindCapture:
		return OutcomeCaptureFailure
	case trip.KindConfig:
		return OutcomeConfigError
	default:
		return OutcomeActionFailure
	}
}

// StepResult records how one step of a run went.
type StepResult struct {
	Index        int
	Step         Step
	Outcome      Outcome
	Reason       string // trip reason on failure, e.g. "text_mismatch"
	Err          error  // structured failure, usually a *trip.Trip
	EvidencePath string // frame written by a Screenshot step
	Attempts     int    // click attempts including stale retries
	Started      time.Time
	Duration     time.Duration
}

// RunResult contains the complete results of one scenario run.
//
// Success is true when the run reached Completed. A screenshot step that
// stumbled is reported in Steps and in the trip report but does not fail the
// run. Failed runs still carry final evidence unless the capture itself
// stumbled, in which case Evidence is nil and the trip report says why.
//
// Example usage:
//
//	result := director.Run(ctx, scenario)
//	if !result.Success {
//		log.Printf("%s failed at step %d: %s", result.Scenario, result.FailedStep(), result.ErrorMessage)
//		log.Printf("final frame: %s", result.Evidence.Path)
//	}
type RunResult struct {
	RunID    string
	Scenario string
	Slug     string
	Tags     []string

	Steps  []StepResult
	Phases []Phase // every phase entered, in order
	Final  Phase

	Evidence        *Evidence // final frame
	CaptureAttempts int       // final captures attempted; always 1 after Run returns
	Frames          []Evidence

	Success      bool
	Started      time.Time
	Duration     time.Duration
	ErrorMessage string // Human-readable failure description
	Error        error  // Structured failure for programmatic handling
	TripReport   string // Detailed trip handling report
}

// FailedStep returns the index of the step that failed the run, or -1.
// Steps that only stumbled are not it.
func (r *RunResult) FailedStep() int {
	if r.Error == nil {
		return -1
	}
	for _, s := range r.Steps {
		if s.Err != nil && s.Err == r.Error {
			return s.Index
		}
	}
	return -1
}

// Count returns how many steps ended with outcome.
func (r *RunResult) Count(outcome Outcome) int {
	n := 0
	for _, s := range r.Steps {
		if s.Outcome == outcome {
			n++
		}
	}
	return n
}
