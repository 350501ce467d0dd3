package resilience

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/AbstraktAI/abstrakt-mvp/pkg/fn"
)

// LimiterOpts configures a token bucket.
type LimiterOpts struct {
	// Rate is tokens added per second.
	Rate float64
	// Burst is the bucket capacity. Zero or negative means 1.
	Burst int
}

// Limiter paces calls to an upstream, in practice the Ollama embedder,
// using a token bucket.
type Limiter struct {
	rl *rate.Limiter
}

func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst)}
}

// Allow reports whether a call may proceed right now.
func (l *Limiter) Allow() bool {
	return l.rl.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.rl.Wait(ctx)
}

// LimiterStageWait paces a pipeline stage, blocking each call until the
// bucket grants a token. Cancellation surfaces as the stage's error.
func LimiterStageWait[In, Out any](l *Limiter, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		if err := l.Wait(ctx); err != nil {
			return fn.Err[Out](err)
		}
		return stage(ctx, in)
	}
}
