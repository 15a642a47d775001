package longtake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/longtake/trip"
)

// ReasonAmbiguousOrMissing is the trip reason when no candidate of a chain
// matched exactly one element.
const ReasonAmbiguousOrMissing = "ambiguous_or_missing"

// Attempt records how one candidate fared during resolution.
type Attempt struct {
	Candidate string
	Matches   int
}

func (a Attempt) String() string {
	return fmt.Sprintf("%s => %d", a.Candidate, a.Matches)
}

// Resolver turns a LocatorSpec into exactly one live element.
//
// Candidates are tried in declared order and the first one yielding a single
// match wins. Zero matches and more than one match both fall through to the
// next candidate; the resolver never picks "the first" of several.
type Resolver struct {
	page   Page
	logger *zap.Logger
}

// NewResolver creates a resolver querying page.
func NewResolver(page Page, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{page: page, logger: logger.Named("resolver")}
}

// Resolve returns the single element described by spec, or a resolution trip
// listing every attempt with its match count.
func (r *Resolver) Resolve(ctx context.Context, spec LocatorSpec) (Element, error) {
	attempts := make([]Attempt, 0, len(spec.candidates))

	for _, c := range spec.candidates {
		els, err := r.query(ctx, c)
		if err != nil {
			return nil, err
		}

		attempts = append(attempts, Attempt{Candidate: c.String(), Matches: len(els)})
		if len(els) == 1 {
			r.logger.Debug("resolved",
				zap.Stringer("candidate", c),
				zap.String("handle", els[0].Handle()),
				zap.Int("attempt", len(attempts)))
			return els[0], nil
		}
	}

	r.logger.Debug("unresolved", zap.Stringer("locator", spec), zap.Stringers("attempts", attempts))
	return nil, trip.NewTrip(trip.KindResolution,
		fmt.Sprintf("no candidate matched exactly one element: %s", describeAttempts(attempts)),
		trip.Context{
			"locator":  spec.String(),
			"attempts": attempts,
		}).WithReason(ReasonAmbiguousOrMissing)
}

// Count returns how many elements the candidate currently matches. An
// unresolvable anchor counts as zero.
func (r *Resolver) Count(ctx context.Context, c Locator) (int, error) {
	els, err := r.query(ctx, c)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

// query evaluates one candidate. Only page failures unrelated to resolution
// are returned as errors.
func (r *Resolver) query(ctx context.Context, c Locator) ([]Element, error) {
	m := c.Match()
	if m.Empty() {
		return nil, nil
	}

	scope := Scope{}
	if c.Anchor != nil && c.Axis != AxisDocument {
		anchor, err := r.Resolve(ctx, *c.Anchor)
		if err != nil {
			if trip.KindOf(err) == trip.KindResolution {
				return nil, nil
			}
			return nil, err
		}
		scope = Scope{Anchor: anchor, Axis: c.Axis}
	}

	els, err := r.page.Query(ctx, scope, m)
	if err != nil {
		// The anchor was detached between resolving it and scoping the query.
		if errors.Is(err, ErrStaleElement) {
			return nil, nil
		}
		return nil, fmt.Errorf("query %s: %w", c, err)
	}
	return els, nil
}

func describeAttempts(attempts []Attempt) string {
	if len(attempts) == 0 {
		return "no candidates"
	}
	parts := make([]string, len(attempts))
	for i, a := range attempts {
		parts[i] = a.String()
	}
	return strings.Join(parts, "; ")
}
