// Package retryutil centralizes the bounded-retry behavior used by the
// login steps, driver initialization and store upserts so the attempt
// budgets live in one place instead of ad hoc loops.
package retryutil

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	// MaxAttempts counts the first try, so MaxAttempts=3 means
	// at most 2 retries after the initial failure.
	MaxAttempts uint64
	// Interval is the base wait between attempts.
	Interval time.Duration
	// Exponential switches from a constant schedule to exponential
	// backoff starting at Interval.
	Exponential bool
}

// the two schedules the scrapers actually use
var (
	// short constant backoff for flaky DOM interactions
	Interaction = Policy{MaxAttempts: 3, Interval: 2 * time.Second}
	// exponential backoff for store upserts
	Storage = Policy{MaxAttempts: 4, Interval: time.Second, Exponential: true}
)

// Permanent marks an error as non-retryable; Do will stop and
// return it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func (p Policy) backoff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.Exponential {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.Interval
		b = exp
	} else {
		b = backoff.NewConstantBackOff(p.Interval)
	}
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, p.MaxAttempts-1)
	}
	return backoff.WithContext(b, ctx)
}

// Do runs op under the policy, logging each failed attempt at debug
// level with the given step name.
func (p Policy) Do(ctx context.Context, step string, op func() error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err != nil {
			slog.DebugContext(
				ctx, "retryable step failed",
				"step", step,
				"attempt", attempt,
				"err", err,
			)
		}
		return err
	}, p.backoff(ctx))
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, step string, op func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, step, func() error {
		var err error
		out, err = op()
		return err
	})
	return out, err
}
