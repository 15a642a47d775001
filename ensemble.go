package longtake

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/longtake/trip"
)

// Ensemble runs several scenarios at once, each on its own isolated page.
//
// Sessions share nothing but the Opener: a scenario that fails, times out
// or panics never affects its siblings.
type Ensemble struct {
	opener   Opener
	config   DirectorConfig
	logger   *zap.Logger
	observer Observer
	policy   *trip.Policy
}

// NewEnsemble creates an ensemble opening pages from opener.
func NewEnsemble(opener Opener, config DirectorConfig) *Ensemble {
	return &Ensemble{
		opener: opener,
		config: config,
		logger: zap.NewNop(),
	}
}

// WithLogger sets the structured logger.
func (e *Ensemble) WithLogger(logger *zap.Logger) *Ensemble {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// WithObserver registers a progress observer shared by all runs. It must be
// safe for concurrent use.
func (e *Ensemble) WithObserver(observer Observer) *Ensemble {
	e.observer = observer
	return e
}

// WithPolicy sets the trip policy handed to every director.
func (e *Ensemble) WithPolicy(policy *trip.Policy) *Ensemble {
	e.policy = policy
	return e
}

// Run executes scenarios with at most config.Parallel in flight and returns
// their results in input order.
func (e *Ensemble) Run(ctx context.Context, scenarios []Scenario) []*RunResult {
	results := make([]*RunResult, len(scenarios))

	limit := e.config.Parallel
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i, sc := range scenarios {
		g.Go(func() error {
			results[i] = e.runOne(ctx, sc)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Ensemble) runOne(ctx context.Context, sc Scenario) (result *RunResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("session panicked", zap.String("scenario", sc.Name()), zap.Any("panic", r))
			result = openFailure(sc, trip.NewFall(trip.KindAction, fmt.Sprintf("session panicked: %v", r), nil).
				WithReason("panic"))
			e.announce(result)
		}
	}()

	page, release, err := e.opener.Open(ctx)
	if err != nil {
		e.logger.Error("could not open page", zap.String("scenario", sc.Name()), zap.Error(err))
		result = openFailure(sc, trip.NewFall(trip.KindAction, "could not open browser page",
			trip.Context{"scenario": sc.Name()}).WithReason("open_failed").WithCause(err))
		e.announce(result)
		return result
	}
	defer func() {
		if err := release(); err != nil {
			e.logger.Warn("could not close page", zap.String("scenario", sc.Name()), zap.Error(err))
		}
	}()

	return NewDirector(page, e.config).
		WithLogger(e.logger).
		WithObserver(e.observer).
		WithPolicy(e.policy).
		Run(ctx, sc)
}

// announce reports a run that ended without a director.
func (e *Ensemble) announce(result *RunResult) {
	if e.observer == nil {
		return
	}
	e.observer(Event{
		RunID:    result.RunID,
		Scenario: result.Scenario,
		Phase:    result.Final,
		Step:     -1,
		Total:    len(result.Steps),
		Done:     true,
		Time:     time.Now(),
	})
}

// openFailure builds the result of a scenario that never got a page.
func openFailure(sc Scenario, t *trip.Trip) *RunResult {
	handler := trip.NewHandler(sc.Name(), nil)
	handler.Record(t)

	steps := make([]StepResult, len(sc.steps))
	for i, s := range sc.steps {
		steps[i] = StepResult{Index: i, Step: s, Outcome: OutcomeSkipped}
	}
	return &RunResult{
		RunID:        uuid.NewString(),
		Scenario:     sc.Name(),
		Slug:         sc.Slug(),
		Tags:         sc.Tags(),
		Steps:        steps,
		Phases:       []Phase{PhaseIdle, PhaseFailed},
		Final:        PhaseFailed,
		Started:      time.Now(),
		ErrorMessage: t.Error(),
		Error:        t,
		TripReport:   handler.DetailedReport(),
	}
}

// Failed reports whether any run failed.
func Failed(results []*RunResult) bool {
	for _, r := range results {
		if r == nil || !r.Success {
			return true
		}
	}
	return false
}
