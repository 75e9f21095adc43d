package modeladapter

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/germanamz/babycode/pkg/modeladapter/usage"
)

var _ Completer = (*RetryCompleter)(nil)

// RetryCompleter wraps a Completer with reactive 429 retry using exponential
// backoff and jitter. A completion is only retried while it has not emitted
// any event, so consumers never see a partial reply followed by a second one.
type RetryCompleter struct {
	inner      Completer
	maxRetries int           // max retries on 429
	baseDelay  time.Duration // initial backoff delay

	fallbackTracker usage.Tracker

	// sleepFunc is used for testing; defaults to a context-aware sleep.
	sleepFunc func(ctx context.Context, d time.Duration) error
	// randFunc returns a random float64 in [0,1); used for jitter. Defaults to rand.Float64.
	randFunc func() float64
}

// RetryOpts configures the RetryCompleter.
type RetryOpts struct {
	MaxRetries int           // Max retries on 429 (default 3).
	BaseDelay  time.Duration // Initial backoff delay (default 1s).
}

// NewRetryCompleter wraps a Completer with 429 retry.
func NewRetryCompleter(inner Completer, opts RetryOpts) *RetryCompleter {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}

	return &RetryCompleter{
		inner:      inner,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		sleepFunc:  contextSleep,
		randFunc:   rand.Float64,
	}
}

// SetSleepFunc overrides the sleep function (for testing).
func (r *RetryCompleter) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	r.sleepFunc = fn
}

// SetRandFunc overrides the random number generator (for testing).
func (r *RetryCompleter) SetRandFunc(fn func() float64) { r.randFunc = fn }

// Inner returns the wrapped Completer.
func (r *RetryCompleter) Inner() Completer { return r.inner }

// contextSleep sleeps for d or until ctx is cancelled.
func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitter applies ±25% random jitter to a duration.
func (r *RetryCompleter) jitter(d time.Duration) time.Duration {
	factor := 0.75 + r.randFunc()*0.5 //nolint:mnd // jitter range: ±25%
	return time.Duration(float64(d) * factor)
}

// Complete implements Completer with 429 retry.
func (r *RetryCompleter) Complete(ctx context.Context, req Request, emit Sink) error {
	var lastErr error
	for attempt := range r.maxRetries + 1 {
		emitted := false
		err := r.inner.Complete(ctx, req, func(ev Event) error {
			emitted = true
			return emit(ev)
		})
		if err == nil {
			return nil
		}

		var rle *RateLimitError
		if emitted || !errors.As(err, &rle) {
			return err
		}

		lastErr = err

		if attempt >= r.maxRetries {
			break
		}

		// baseDelay * 2^attempt, but RetryAfter if larger.
		backoff := r.jitter(max(
			r.baseDelay*time.Duration(math.Pow(2, float64(attempt))), //nolint:mnd // exponential backoff formula
			rle.RetryAfter,
		))

		if err := r.sleepFunc(ctx, backoff); err != nil {
			return err
		}
	}

	return lastErr
}

// UsageTracker forwards to the inner completer if it implements UsageReporter.
func (r *RetryCompleter) UsageTracker() *usage.Tracker {
	if ur, ok := r.inner.(UsageReporter); ok {
		return ur.UsageTracker()
	}
	return &r.fallbackTracker
}

// ModelMaxTokens forwards to the inner completer if it implements UsageReporter.
func (r *RetryCompleter) ModelMaxTokens() int {
	if ur, ok := r.inner.(UsageReporter); ok {
		return ur.ModelMaxTokens()
	}
	return 0
}
