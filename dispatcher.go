package longtake

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/longtake/trip"
)

// Dispatcher performs user-visible actions: navigation and clicks.
// It never waits for the page to settle after an action; the scenario's next
// WaitFor step does that.
type Dispatcher struct {
	page     Page
	resolver *Resolver
	policy   *trip.Policy
	logger   *zap.Logger

	baseURL           string
	navigationTimeout time.Duration
	actionTimeout     time.Duration
}

// NewDispatcher creates a dispatcher. The policy's stale_element retry
// config decides how often ClickTarget re-resolves a detached target.
func NewDispatcher(page Page, resolver *Resolver, policy *trip.Policy, config DirectorConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = trip.DefaultPolicy()
	}
	return &Dispatcher{
		page:              page,
		resolver:          resolver,
		policy:            policy,
		logger:            logger.Named("dispatcher"),
		baseURL:           config.BaseURL,
		navigationTimeout: config.NavigationTimeout,
		actionTimeout:     config.ActionTimeout,
	}
}

// Navigate loads target, resolved against the base URL, and returns once the
// page reports load complete.
func (d *Dispatcher) Navigate(ctx context.Context, target string) error {
	full, err := ResolveURL(d.baseURL, target)
	if err != nil {
		return trip.NewTrip(trip.KindNavigation, fmt.Sprintf("invalid URL %q", target),
			trip.Context{"url": target, "base_url": d.baseURL}).WithReason("invalid_url").WithCause(err)
	}

	navCtx, cancel := withOptionalTimeout(ctx, d.navigationTimeout)
	defer cancel()

	start := time.Now()
	if err := d.page.Navigate(navCtx, full); err != nil {
		return trip.NewTrip(trip.KindNavigation, fmt.Sprintf("navigation to %s failed", full),
			trip.Context{"url": full, "elapsed": time.Since(start).Round(time.Millisecond).String()}).
			WithReason("load_failed").WithCause(err)
	}

	d.logger.Debug("navigated", zap.String("url", full), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Click clicks an already resolved element.
func (d *Dispatcher) Click(ctx context.Context, el Element) error {
	clickCtx, cancel := withOptionalTimeout(ctx, d.actionTimeout)
	defer cancel()

	if err := el.Click(clickCtx); err != nil {
		if errors.Is(err, ErrStaleElement) {
			return trip.NewTrip(trip.KindStale, fmt.Sprintf("element %s detached before click", el.Handle()),
				trip.Context{"handle": el.Handle()}).WithReason("detached").WithCause(err)
		}
		return trip.NewTrip(trip.KindAction, fmt.Sprintf("click on %s failed", el.Handle()),
			trip.Context{"handle": el.Handle()}).WithReason("click_failed").WithCause(err)
	}
	return nil
}

// ClickTarget resolves spec and clicks the result. A stale handle is
// re-resolved and retried as often as the stale_element retry policy allows
// (once by default). It returns the number of click attempts made.
func (d *Dispatcher) ClickTarget(ctx context.Context, spec LocatorSpec) (int, error) {
	retries := 0
	rc, ok := d.policy.Retry(trip.KindStale)
	if ok {
		retries = rc.MaxRetries
	}

	attempts := 0
	for {
		el, err := d.resolver.Resolve(ctx, spec)
		if err != nil {
			return attempts, err
		}

		attempts++
		err = d.Click(ctx, el)
		if err == nil {
			return attempts, nil
		}
		if trip.KindOf(err) != trip.KindStale || attempts > retries {
			if t, ok := trip.As(err); ok {
				t.WithAttempt(attempts)
			}
			return attempts, err
		}

		d.logger.Warn("stale target, re-resolving",
			zap.Stringer("locator", spec), zap.Int("attempt", attempts))
		if delay := rc.Delay(attempts); delay > 0 {
			select {
			case <-ctx.Done():
				return attempts, err
			case <-time.After(delay):
			}
		}
	}
}

// ResolveURL resolves target against base. Absolute targets pass through.
func ResolveURL(base, target string) (string, error) {
	t, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if t.IsAbs() || base == "" {
		return t.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("base URL %q: %w", base, err)
	}
	return b.ResolveReference(t).String(), nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
