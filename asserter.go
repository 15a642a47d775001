package longtake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/longtake/trip"
)

// Assertion failure reasons.
const (
	ReasonNotFound     = "not_found"
	ReasonNotVisible   = "not_visible"
	ReasonTextMismatch = "text_mismatch"
	ReasonURLMismatch  = "url_mismatch"
)

// Asserter checks the current page state once. It never waits: a scenario
// that expects a transition waits for it first.
type Asserter struct {
	page     Page
	resolver *Resolver
	logger   *zap.Logger
	baseURL  string
}

// NewAsserter creates an asserter over page.
func NewAsserter(page Page, resolver *Resolver, config DirectorConfig, logger *zap.Logger) *Asserter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Asserter{
		page:     page,
		resolver: resolver,
		logger:   logger.Named("asserter"),
		baseURL:  config.BaseURL,
	}
}

// Visible asserts that spec resolves to a visible element. When text is set
// the element's whitespace-normalized text must equal it, or contain it when
// contains is true.
func (a *Asserter) Visible(ctx context.Context, spec LocatorSpec, text string, contains bool) error {
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		err = a.visibleOnce(ctx, spec, text, contains)
		if !errors.Is(err, ErrStaleElement) {
			return err
		}
		a.logger.Debug("element went stale during assertion, re-resolving", zap.Stringer("locator", spec))
	}
	return trip.NewTrip(trip.KindStale, fmt.Sprintf("%s kept detaching during assertion", spec),
		trip.Context{"locator": spec.String()}).WithReason("detached").WithCause(err)
}

func (a *Asserter) visibleOnce(ctx context.Context, spec LocatorSpec, text string, contains bool) error {
	el, err := a.resolver.Resolve(ctx, spec)
	if err != nil {
		if t, ok := trip.As(err); ok && t.Kind == trip.KindResolution {
			return trip.NewTrip(trip.KindResolution, fmt.Sprintf("%s not found", spec), t.Context).
				WithReason(ReasonNotFound)
		}
		return err
	}

	visible, err := el.Visible(ctx)
	if err != nil {
		return err
	}
	if !visible {
		return trip.NewTrip(trip.KindAssertion, fmt.Sprintf("%s is present but not visible", spec),
			trip.Context{"locator": spec.String(), "handle": el.Handle()}).WithReason(ReasonNotVisible)
	}

	if text == "" {
		return nil
	}

	actual, err := el.Text(ctx)
	if err != nil {
		return err
	}
	if !textMatches(actual, text, contains) {
		mode := "equal"
		if contains {
			mode = "contain"
		}
		return trip.NewTrip(trip.KindAssertion,
			fmt.Sprintf("%s text %q does not %s %q", spec, normalizeSpace(actual), mode, text),
			trip.Context{
				"locator":  spec.String(),
				"expected": text,
				"actual":   normalizeSpace(actual),
				"contains": contains,
			}).WithReason(ReasonTextMismatch)
	}
	return nil
}

// URL asserts the page location equals want, resolved against the base URL.
func (a *Asserter) URL(ctx context.Context, want string) error {
	expected, err := ResolveURL(a.baseURL, want)
	if err != nil {
		return trip.NewTrip(trip.KindConfig, fmt.Sprintf("invalid URL %q", want), nil).
			WithReason("invalid_url").WithCause(err)
	}
	actual, err := a.page.Location(ctx)
	if err != nil {
		return trip.NewTrip(trip.KindAction, "could not read page location", nil).WithCause(err)
	}
	if actual != expected {
		return trip.NewTrip(trip.KindAssertion, fmt.Sprintf("URL is %s, expected %s", actual, expected),
			trip.Context{"expected": expected, "actual": actual}).WithReason(ReasonURLMismatch)
	}
	return nil
}

func textMatches(actual, want string, contains bool) bool {
	actual, want = normalizeSpace(actual), normalizeSpace(want)
	if contains {
		return strings.Contains(actual, want)
	}
	return actual == want
}
