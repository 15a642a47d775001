package longtake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.uber.org/zap"

	"github.com/teranos/longtake/trip"
)

const observedExcerpt = 200

// Waiter polls page state until a Condition holds or its deadline passes.
//
// The first evaluation happens immediately, so a condition that is already
// true costs no delay. Every poll takes a fresh snapshot and re-resolves
// locators; no element handle survives between polls.
type Waiter struct {
	page     Page
	resolver *Resolver
	logger   *zap.Logger

	baseURL      string
	timeout      time.Duration
	pollInterval time.Duration
}

// NewWaiter creates a waiter with the config's default deadline and cadence.
func NewWaiter(page Page, resolver *Resolver, config DirectorConfig, logger *zap.Logger) *Waiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Waiter{
		page:         page,
		resolver:     resolver,
		logger:       logger.Named("waiter"),
		baseURL:      config.BaseURL,
		timeout:      config.Timeout,
		pollInterval: config.PollInterval,
	}
}

// WaitFor blocks until cond holds. It returns a timeout trip carrying the
// last observed state once cond.Timeout has elapsed, and never earlier.
func (w *Waiter) WaitFor(ctx context.Context, cond Condition) error {
	timeout := cond.Timeout
	if timeout <= 0 {
		timeout = w.timeout
	}
	poll := cond.PollInterval
	if poll <= 0 {
		poll = w.pollInterval
	}

	var program *vm.Program
	if cond.Kind == CondExpr {
		p, err := compileExpression(cond.Expr)
		if err != nil {
			return trip.NewTrip(trip.KindConfig, fmt.Sprintf("invalid expression %q", cond.Expr),
				trip.Context{"condition": cond.String()}).WithReason("invalid_expression").WithCause(err)
		}
		program = p
	}

	start := time.Now()
	deadline := start.Add(timeout)
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	polls := 0
	lastObserved := ""
	check := func() bool {
		polls++
		ok, observed, err := w.evaluate(waitCtx, cond, program)
		if observed != "" {
			lastObserved = observed
		}
		if err != nil {
			if !isTransient(err) && waitCtx.Err() == nil {
				lastObserved = err.Error()
				w.logger.Debug("evaluation failed", zap.Stringer("condition", cond), zap.Error(err))
			}
			return false
		}
		return ok
	}

	w.logger.Debug("waiting", zap.Stringer("condition", cond), zap.Duration("timeout", timeout), zap.Duration("poll", poll))

	if check() {
		return nil
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.timeoutTrip(cond, timeout, polls, lastObserved, time.Since(start)).WithCause(ctx.Err())
		case <-timer.C:
			return w.timeoutTrip(cond, timeout, polls, lastObserved, time.Since(start))
		case <-ticker.C:
			if check() {
				w.logger.Debug("condition met", zap.Stringer("condition", cond), zap.Int("polls", polls),
					zap.Duration("elapsed", time.Since(start)))
				return nil
			}
		}
	}
}

func (w *Waiter) timeoutTrip(cond Condition, timeout time.Duration, polls int, observed string, elapsed time.Duration) *trip.Trip {
	return trip.NewTrip(trip.KindTimeout,
		fmt.Sprintf("%s not met within %s (last observed: %s)", cond, timeout, observed),
		trip.Context{
			"condition":     cond.String(),
			"timeout":       timeout.String(),
			"elapsed":       elapsed.Round(time.Millisecond).String(),
			"polls":         polls,
			"last_observed": observed,
		}).WithReason("condition_not_met")
}

// evaluate checks cond once and describes what it saw.
func (w *Waiter) evaluate(ctx context.Context, cond Condition, program *vm.Program) (bool, string, error) {
	switch cond.Kind {
	case CondVisible:
		el, err := w.resolver.Resolve(ctx, cond.Target)
		if err != nil {
			return false, observedResolution(err), err
		}
		visible, err := el.Visible(ctx)
		if err != nil {
			return false, "element went stale", err
		}
		if !visible {
			return false, fmt.Sprintf("%s present but hidden", el.Handle()), nil
		}
		return true, fmt.Sprintf("%s visible", el.Handle()), nil

	case CondHidden:
		el, err := w.resolver.Resolve(ctx, cond.Target)
		if err != nil {
			if t, ok := trip.As(err); ok && t.Kind == trip.KindResolution {
				if allMissing(t) {
					return true, "no match", nil
				}
				return false, observedResolution(err), nil
			}
			return false, "", err
		}
		visible, err := el.Visible(ctx)
		if errors.Is(err, ErrStaleElement) {
			return true, "element detached", nil
		}
		if err != nil {
			return false, "", err
		}
		if visible {
			return false, fmt.Sprintf("%s still visible", el.Handle()), nil
		}
		return true, fmt.Sprintf("%s hidden", el.Handle()), nil

	case CondCount:
		primary, ok := cond.Target.Primary()
		if !ok {
			return cond.Count == 0, "count=0", nil
		}
		n, err := w.resolver.Count(ctx, primary)
		if err != nil {
			return false, "", err
		}
		return n == cond.Count, fmt.Sprintf("count=%d", n), nil

	case CondText:
		body, err := w.page.BodyText(ctx)
		if err != nil {
			return false, "", err
		}
		return strings.Contains(normalizeSpace(body), normalizeSpace(cond.Text)), excerpt(body), nil

	case CondURL:
		want, err := ResolveURL(w.baseURL, cond.URL)
		if err != nil {
			return false, "", err
		}
		got, err := w.page.Location(ctx)
		if err != nil {
			return false, "", err
		}
		return got == want, "url=" + got, nil

	case CondExpr:
		env, firstErr := snapshotEnv(ctx, w.page)
		out, err := expr.Run(program, env)
		if *firstErr != nil {
			return false, "", *firstErr
		}
		if err != nil {
			return false, "", err
		}
		ok, _ := out.(bool)
		return ok, fmt.Sprintf("url=%v title=%v", env["url"], env["title"]), nil
	}

	return false, "", fmt.Errorf("unknown condition kind %d", cond.Kind)
}

// isTransient reports whether err only means "not ready yet".
func isTransient(err error) bool {
	return errors.Is(err, ErrStaleElement) || trip.KindOf(err) == trip.KindResolution
}

func allMissing(t *trip.Trip) bool {
	v, ok := t.GetContext("attempts")
	if !ok {
		return false
	}
	attempts, ok := v.([]Attempt)
	if !ok {
		return false
	}
	for _, a := range attempts {
		if a.Matches != 0 {
			return false
		}
	}
	return true
}

func observedResolution(err error) string {
	if t, ok := trip.As(err); ok {
		if v, ok := t.GetContext("attempts"); ok {
			if attempts, ok := v.([]Attempt); ok {
				return describeAttempts(attempts)
			}
		}
	}
	return err.Error()
}

// compileExpression type-checks src against a snapshot-shaped environment.
func compileExpression(src string) (*vm.Program, error) {
	env := map[string]interface{}{
		"url":   "",
		"title": "",
		"text":  "",
		"count": func(string) int { return 0 },
		"has":   func(string) bool { return false },
	}
	return expr.Compile(src, expr.Env(env), expr.AsBool())
}

// snapshotEnv reads the page once. The returned pointer holds the first page
// error hit while building the snapshot or while the expression called back
// into the page.
func snapshotEnv(ctx context.Context, page Page) (map[string]interface{}, *error) {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	location, err := page.Location(ctx)
	record(err)
	title, err := page.Title(ctx)
	record(err)
	body, err := page.BodyText(ctx)
	record(err)
	normalized := normalizeSpace(body)

	env := map[string]interface{}{
		"url":   location,
		"title": title,
		"text":  body,
		"count": func(css string) int {
			els, err := page.Query(ctx, Scope{}, Match{CSS: css})
			record(err)
			return len(els)
		},
		"has": func(text string) bool {
			return strings.Contains(normalized, normalizeSpace(text))
		},
	}
	return env, &firstErr
}

// normalizeSpace collapses runs of whitespace and trims the ends.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// excerpt shortens s to at most observedExcerpt bytes without splitting a rune.
func excerpt(s string) string {
	s = normalizeSpace(s)
	if len(s) <= observedExcerpt {
		return s
	}
	cut := observedExcerpt
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
