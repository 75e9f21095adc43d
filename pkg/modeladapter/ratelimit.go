package modeladapter

import (
	"context"
	"sync"
	"time"

	"github.com/germanamz/babycode/pkg/modeladapter/usage"
)

var _ Completer = (*RateLimitedCompleter)(nil)

// RateLimits are per-minute quotas. Zero disables a limit.
type RateLimits struct {
	InputTPM  int // Input tokens per minute.
	OutputTPM int // Output tokens per minute.
	RPM       int // Requests per minute.
}

func (l RateLimits) enabled() bool {
	return l.InputTPM > 0 || l.OutputTPM > 0 || l.RPM > 0
}

type windowEntry struct {
	at     time.Time
	input  int
	output int
}

// RateLimitedCompleter throttles a Completer before it hits the provider's
// limits. Completed requests are kept in a sliding one-minute window and a new
// request waits until the window has room for it. Token counts come from the
// completion's usage events, or from a TokenEstimator when the provider sends
// none. After each completion it also honours the quota the provider reported
// through RateLimitInfoReporter, sleeping until the reset time once requests
// or tokens run out.
//
// It does not retry; wrap it in a RetryCompleter for that.
type RateLimitedCompleter struct {
	inner     Completer
	limits    RateLimits
	estimator TokenEstimator

	mu     sync.Mutex
	window []windowEntry

	fallbackTracker usage.Tracker

	// nowFunc is used for testing; defaults to time.Now.
	nowFunc func() time.Time
	// sleepFunc is used for testing; defaults to a context-aware sleep.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewRateLimitedCompleter wraps inner with proactive throttling.
func NewRateLimitedCompleter(inner Completer, limits RateLimits) *RateLimitedCompleter {
	return &RateLimitedCompleter{
		inner:     inner,
		limits:    limits,
		nowFunc:   time.Now,
		sleepFunc: contextSleep,
	}
}

// SetNowFunc overrides the time source (for testing).
func (r *RateLimitedCompleter) SetNowFunc(fn func() time.Time) { r.nowFunc = fn }

// SetSleepFunc overrides the sleep function (for testing).
func (r *RateLimitedCompleter) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	r.sleepFunc = fn
}

// Inner returns the wrapped Completer.
func (r *RateLimitedCompleter) Inner() Completer { return r.inner }

// Limits returns the configured quotas.
func (r *RateLimitedCompleter) Limits() RateLimits { return r.limits }

// Complete waits for capacity, runs the inner completion and records what it
// used.
func (r *RateLimitedCompleter) Complete(ctx context.Context, req Request, emit Sink) error {
	estimate := r.estimator.EstimateRequest(req)
	if err := r.waitForCapacity(ctx, estimate); err != nil {
		return err
	}

	var reported usage.TokenCount
	var generated int
	err := r.inner.Complete(ctx, req, func(ev Event) error {
		switch e := ev.(type) {
		case EventUsage:
			if e.Usage.InputTokens > 0 {
				reported.InputTokens = e.Usage.InputTokens
			}
			if e.Usage.OutputTokens > 0 {
				reported.OutputTokens = e.Usage.OutputTokens
			}
		case EventTextDelta:
			generated += len(e.Text)
		case EventToolCallDelta:
			generated += len(e.Text)
		}
		return emit(ev)
	})
	if err != nil {
		return err
	}

	in, out := reported.InputTokens, reported.OutputTokens
	if in == 0 {
		in = estimate
	}
	if out == 0 {
		out = charsToTokens(generated)
	}
	r.record(in, out)

	return r.adaptFromServerInfo(ctx)
}

// prune drops entries older than a minute. The caller must hold mu.
func (r *RateLimitedCompleter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(r.window) && !r.window[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		r.window = append(r.window[:0:0], r.window[i:]...)
	}
}

// fits reports whether a request with the given estimated input fits in the
// window. An empty window always fits so an oversized request still runs. The
// caller must hold mu.
func (r *RateLimitedCompleter) fits(estimate int) bool {
	if len(r.window) == 0 {
		return true
	}

	var in, out int
	for _, e := range r.window {
		in += e.input
		out += e.output
	}

	l := r.limits
	return (l.InputTPM <= 0 || in+estimate <= l.InputTPM) &&
		(l.OutputTPM <= 0 || out < l.OutputTPM) &&
		(l.RPM <= 0 || len(r.window) < l.RPM)
}

// waitForCapacity blocks until the window has room for a request of the
// given estimated input size.
func (r *RateLimitedCompleter) waitForCapacity(ctx context.Context, estimate int) error {
	if !r.limits.enabled() {
		return nil
	}

	const minWait = 10 * time.Millisecond

	for {
		r.mu.Lock()
		now := r.nowFunc()
		r.prune(now)
		if r.fits(estimate) {
			r.mu.Unlock()
			return nil
		}
		// The oldest entry is the next to free capacity.
		wait := max(r.window[0].at.Add(time.Minute).Sub(now), minWait)
		r.mu.Unlock()

		if err := r.sleepFunc(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *RateLimitedCompleter) record(input, output int) {
	if !r.limits.enabled() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.window = append(r.window, windowEntry{at: r.nowFunc(), input: input, output: output})
}

// adaptFromServerInfo sleeps until the provider's reset time when its last
// response reported at most one request or token left.
func (r *RateLimitedCompleter) adaptFromServerInfo(ctx context.Context) error {
	reporter, ok := r.inner.(RateLimitInfoReporter)
	if !ok {
		return nil
	}
	info := reporter.LastRateLimitInfo()
	if info == nil {
		return nil
	}

	now := r.nowFunc()
	var until time.Time
	if info.RemainingRequests <= 1 && info.RequestsReset.After(now) {
		until = info.RequestsReset
	}
	if info.RemainingTokens <= 1 && info.TokensReset.After(now) && info.TokensReset.After(until) {
		until = info.TokensReset
	}
	if until.IsZero() {
		return nil
	}

	return r.sleepFunc(ctx, until.Sub(now))
}

// UsageTracker forwards to the inner completer if it implements UsageReporter.
func (r *RateLimitedCompleter) UsageTracker() *usage.Tracker {
	if ur, ok := r.inner.(UsageReporter); ok {
		return ur.UsageTracker()
	}
	return &r.fallbackTracker
}

// ModelMaxTokens forwards to the inner completer if it implements UsageReporter.
func (r *RateLimitedCompleter) ModelMaxTokens() int {
	if ur, ok := r.inner.(UsageReporter); ok {
		return ur.ModelMaxTokens()
	}
	return 0
}

// LastRateLimitInfo forwards to the inner completer if it reports quotas.
func (r *RateLimitedCompleter) LastRateLimitInfo() *RateLimitInfo {
	if rr, ok := r.inner.(RateLimitInfoReporter); ok {
		return rr.LastRateLimitInfo()
	}
	return nil
}
