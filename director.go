package longtake

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/longtake/trip"
)

// Event is emitted to an Observer as a run progresses.
type Event struct {
	RunID    string
	Scenario string
	Phase    Phase
	Step     int // index of the current step, -1 before the first
	Total    int
	Outcome  Outcome // set when a step finishes
	Done     bool    // the run has ended and its final frame is on disk
	Success  bool
	Time     time.Time
}

// Observer receives run events. It is called synchronously from the running
// goroutine and must not block.
type Observer func(Event)

// Director runs scenarios against one page, one step at a time.
//
// The director walks the state machine
//
//	Idle -> Navigating -> Waiting -> {Asserting|Acting|Capturing} -> ... -> Completed | Failed
//
// and records every phase it enters. The trip policy decides when a trip
// ends the take; with the default policy that is the first trip that is not
// a stumble. The failing step is reported, every later step is skipped, and
// a final frame is captured exactly once whatever happened. Any trip other
// than a stumble fails the run, even one the policy lets it continue past.
//
// Example usage:
//
//	director := longtake.NewDirector(page, config).
//		WithLogger(logger).
//		WithObserver(func(e longtake.Event) { log.Printf("%s: %s", e.Scenario, e.Phase) })
//
//	result := director.Run(ctx, scenario)
type Director struct {
	page     Page
	config   DirectorConfig
	logger   *zap.Logger
	policy   *trip.Policy
	observer Observer
}

// NewDirector creates a director driving page.
func NewDirector(page Page, config DirectorConfig) *Director {
	return &Director{
		page:   page,
		config: config,
		logger: zap.NewNop(),
		policy: trip.DefaultPolicy(),
	}
}

// WithLogger sets the structured logger.
func (d *Director) WithLogger(logger *zap.Logger) *Director {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// WithObserver registers a progress observer.
func (d *Director) WithObserver(observer Observer) *Director {
	d.observer = observer
	return d
}

// WithPolicy replaces the trip policy (retry counts, when to halt).
func (d *Director) WithPolicy(policy *trip.Policy) *Director {
	if policy != nil {
		d.policy = policy
	}
	return d
}

// take is the state of one run.
type take struct {
	scenario Scenario
	result   *RunResult
	handler  *trip.Handler
	logger   *zap.Logger
	step     int

	resolver   *Resolver
	waiter     *Waiter
	dispatcher *Dispatcher
	asserter   *Asserter
	camera     *Camera
}

// fail records the first failure of the run. Later failures only reach the
// trip report.
func (tk *take) fail(index int, step Step, err error) {
	if tk.result.Error != nil {
		return
	}
	tk.result.Error = err
	tk.result.ErrorMessage = fmt.Sprintf("step %d (%s): %v", index+1, step, err)
}

// Run executes sc and returns its result. Run never panics and never returns
// without attempting the final capture.
func (d *Director) Run(ctx context.Context, sc Scenario) *RunResult {
	runID := uuid.NewString()
	logger := d.logger.Named("director").With(
		zap.String("scenario", sc.Name()),
		zap.String("run_id", runID))

	resolver := NewResolver(d.page, logger)
	tk := &take{
		scenario: sc,
		handler:  trip.NewHandler(sc.Name(), d.policy),
		logger:   logger,
		step:     -1,
		result: &RunResult{
			RunID:    runID,
			Scenario: sc.Name(),
			Slug:     sc.Slug(),
			Tags:     sc.Tags(),
			Started:  time.Now(),
		},
		resolver:   resolver,
		waiter:     NewWaiter(d.page, resolver, d.config, logger),
		dispatcher: NewDispatcher(d.page, resolver, d.policy, d.config, logger),
		asserter:   NewAsserter(d.page, resolver, d.config, logger),
		camera:     NewCamera(d.page, resolver, d.config.EvidenceDir, sc.Slug(), logger),
	}

	logger.Info("action", zap.Int("steps", len(sc.steps)))
	d.enter(tk, PhaseIdle)

	halted := false
	for i, step := range sc.steps {
		tk.step = i
		if halted {
			tk.result.Steps = append(tk.result.Steps, StepResult{Index: i, Step: step, Outcome: OutcomeSkipped})
			continue
		}

		d.enter(tk, phaseFor(step))
		sr := d.runStep(ctx, tk, i, step)
		tk.result.Steps = append(tk.result.Steps, sr)
		d.emit(tk, Event{Outcome: sr.Outcome})

		if sr.Err == nil {
			continue
		}
		if t, ok := trip.As(sr.Err); !ok || !t.CanRecover() {
			tk.fail(i, step, sr.Err)
		}
		if tk.handler.ShouldContinue() {
			logger.Warn("tripped, continuing", zap.Int("step", i), zap.String("kind", trip.KindOf(sr.Err)), zap.Error(sr.Err))
			continue
		}

		halted = true
		tk.fail(i, step, sr.Err)
		logger.Error("cut", zap.Int("step", i), zap.Stringer("instruction", step), zap.Error(sr.Err))
	}

	final := PhaseCompleted
	if tk.result.Error != nil {
		final = PhaseFailed
	}
	d.enter(tk, final)
	tk.result.Final = final
	tk.result.Success = tk.result.Error == nil

	d.captureFinal(ctx, tk)

	tk.result.Duration = time.Since(tk.result.Started)
	tk.result.TripReport = tk.handler.DetailedReport()
	d.emit(tk, Event{Done: true, Success: tk.result.Success})

	logger.Info("wrap",
		zap.Stringer("phase", final),
		zap.Duration("duration", tk.result.Duration),
		zap.String("trips", tk.handler.Summary()))
	return tk.result
}

// runStep executes one step, turning any failure (or panic) into a trip.
func (d *Director) runStep(ctx context.Context, tk *take, index int, step Step) (sr StepResult) {
	sr = StepResult{Index: index, Step: step, Started: time.Now()}

	defer func() {
		if r := recover(); r != nil {
			tk.logger.Error("step panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			sr.Err = trip.NewFall(trip.KindAction, fmt.Sprintf("step panicked: %v", r),
				trip.Context{"step": step.String()}).WithReason("panic")
		}
		sr.Duration = time.Since(sr.Started)
		if sr.Err == nil {
			sr.Outcome = OutcomeSuccess
			return
		}

		t, ok := trip.As(sr.Err)
		if !ok {
			t = trip.NewTrip(trip.KindAction, sr.Err.Error(), nil).WithCause(sr.Err)
			sr.Err = t
		}
		if t.Context == nil {
			t.Context = trip.Context{}
		}
		t.Context["step"] = index + 1
		tk.handler.Record(t)
		sr.Outcome = outcomeFor(t.Kind)
		sr.Reason = t.Reason
	}()

	tk.logger.Debug("step", zap.Int("index", index), zap.Stringer("instruction", step))

	switch s := step.(type) {
	case Navigate:
		sr.Err = tk.dispatcher.Navigate(ctx, s.URL)
	case WaitFor:
		sr.Err = tk.waiter.WaitFor(ctx, s.Condition)
	case Click:
		sr.Attempts, sr.Err = tk.dispatcher.ClickTarget(ctx, s.Target)
	case AssertVisible:
		sr.Err = tk.asserter.Visible(ctx, s.Target, s.Text, s.Contains)
	case AssertURL:
		sr.Err = tk.asserter.URL(ctx, s.URL)
	case Screenshot:
		ev, err := tk.camera.Capture(ctx, s.Path, s.Target)
		if err == nil {
			sr.EvidencePath = ev.Path
			tk.result.Frames = append(tk.result.Frames, ev)
		}
		sr.Err = err
	default:
		sr.Err = trip.NewTrip(trip.KindConfig, fmt.Sprintf("unsupported step %T", step), nil).
			WithReason("unsupported_step")
	}
	return sr
}

// captureFinal takes the run's closing frame. It runs detached from the
// caller's cancellation so an aborted run still leaves evidence, bounded by
// CaptureTimeout.
func (d *Director) captureFinal(ctx context.Context, tk *take) {
	captureCtx := context.WithoutCancel(ctx)
	cancel := func() {}
	if d.config.CaptureTimeout > 0 {
		captureCtx, cancel = context.WithTimeout(captureCtx, d.config.CaptureTimeout)
	}
	defer cancel()

	tk.result.CaptureAttempts++
	ev, err := tk.camera.Capture(captureCtx, tk.scenario.EvidencePath(), nil)
	if err != nil {
		t, ok := trip.As(err)
		if !ok {
			t = trip.NewStumble(trip.KindCapture, "final capture failed", nil).WithCause(err)
		}
		tk.handler.Record(t)
		tk.logger.Warn("final capture failed", zap.Error(err))
		return
	}
	tk.result.Evidence = &ev
}

func (d *Director) enter(tk *take, phase Phase) {
	phases := tk.result.Phases
	if n := len(phases); n > 0 && phases[n-1] == phase {
		return
	}
	tk.result.Phases = append(phases, phase)
	tk.logger.Debug("phase", zap.Stringer("phase", phase))
	d.emit(tk, Event{Phase: phase})
}

func (d *Director) emit(tk *take, e Event) {
	if d.observer == nil {
		return
	}
	e.RunID = tk.result.RunID
	e.Scenario = tk.result.Scenario
	if e.Phase == PhaseIdle && len(tk.result.Phases) > 0 {
		e.Phase = tk.result.Phases[len(tk.result.Phases)-1]
	}
	e.Step = tk.step
	e.Total = len(tk.scenario.steps)
	e.Time = time.Now()
	d.observer(e)
}

func phaseFor(step Step) Phase {
	switch step.(type) {
	case Navigate:
		return PhaseNavigating
	case WaitFor:
		return PhaseWaiting
	case Click:
		return PhaseActing
	case AssertVisible, AssertURL:
		return PhaseAsserting
	case Screenshot:
		return PhaseCapturing
	default:
		return PhaseActing
	}
}

// PhaseTrace renders phases as "Idle -> Navigating -> ...".
func PhaseTrace(phases []Phase) string {
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = p.String()
	}
	return strings.Join(names, " -> ")
}
