package fn

import (
	"context"
	"math/rand"
	"time"
)

// RetryOpts bounds the retry loop.
type RetryOpts struct {
	// MaxAttempts counts the first call, so 3 means two retries.
	MaxAttempts int
	// InitialWait is the backoff before the first retry; it doubles per
	// attempt up to MaxWait.
	InitialWait time.Duration
	MaxWait     time.Duration
	// Jitter randomizes each wait to 50-150% of its nominal value.
	Jitter bool
}

// DefaultRetry suits upstream HTTP calls: brief blips recover, a dead
// endpoint fails within seconds.
var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     10 * time.Second,
	Jitter:      true,
}

// Retry calls f until it succeeds, attempts run out, or the context is
// canceled. The final attempt's Result is returned as-is.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	wait := opts.InitialWait
	var last Result[T]

	for attempt := 1; ; attempt++ {
		last = f(ctx)
		if last.IsOk() || attempt >= opts.MaxAttempts {
			return last
		}

		sleep := wait
		if opts.Jitter {
			sleep = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if sleep > opts.MaxWait {
			sleep = opts.MaxWait
		}

		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		case <-time.After(sleep):
		}

		if wait *= 2; wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
}

// RetryStage retries a stage under opts. Only wrap stages whose effects
// are idempotent, such as a MERGE-based store.
func RetryStage[In, Out any](opts RetryOpts, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		return Retry(ctx, opts, func(ctx context.Context) Result[Out] {
			return stage(ctx, in)
		})
	}
}
