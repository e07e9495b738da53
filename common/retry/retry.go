// Package retry retries outbound HTTP calls that fail for transient reasons.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy controls how often and how long Do waits between attempts.
type Policy struct {
	// Attempts is the total number of calls, including the first. Values
	// below 1 mean a single call.
	Attempts int
	// Delay is the wait after the first failure; it doubles up to MaxDelay.
	Delay    time.Duration
	MaxDelay time.Duration
}

// Default suits short scraping and reply calls.
var Default = Policy{
	Attempts: 3,
	Delay:    300 * time.Millisecond,
	MaxDelay: 5 * time.Second,
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts are
// exhausted, or ctx is done.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)
	delay := p.Delay
	if delay <= 0 {
		delay = Default.Delay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = Default.MaxDelay
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= attempts {
			return err
		}

		slog.Debug("retrying", "attempt", attempt, "of", attempts, "delay", delay, "err", err)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}
		delay = min(delay*2, maxDelay)
	}
}
