package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AbstraktAI/abstrakt-mvp/pkg/fn"
)

var errEmbed = errors.New("embed batch failed")

func failing(b *Breaker) fn.Result[string] {
	return CallResult(b, context.Background(), func(context.Context) fn.Result[string] {
		return fn.Err[string](errEmbed)
	})
}

func succeeding(b *Breaker) fn.Result[string] {
	return CallResult(b, context.Background(), func(context.Context) fn.Result[string] {
		return fn.Ok("pubmed:38001234")
	})
}

func TestBreakerStartsClosed(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Second})
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Second})

	for i := 0; i < 3; i++ {
		failing(b)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 failures", b.State())
	}

	r := succeeding(b)
	_, err := r.Unwrap()
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker returned %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Second})

	failing(b)
	failing(b)
	succeeding(b)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after success", b.State())
	}

	// The counter restarted, so two more failures are not enough.
	failing(b)
	failing(b)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want still closed", b.State())
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: 5 * time.Second, HalfOpenMax: 1})
	b.now = func() time.Time { return now }

	failing(b)
	failing(b)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	now = now.Add(6 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after timeout", b.State())
	}

	succeeding(b)
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after trial success", b.State())
	}
}

func TestBreakerReopensOnTrialFailure(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: 5 * time.Second, HalfOpenMax: 1})
	b.now = func() time.Time { return now }

	failing(b)
	failing(b)
	now = now.Add(6 * time.Second)

	failing(b)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after trial failure", b.State())
	}
}

func TestBreakerHalfOpenCapsTrials(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Second, HalfOpenMax: 1})
	b.now = func() time.Time { return now }

	failing(b)
	now = now.Add(2 * time.Second)

	// First trial call is admitted and blocks further trials until it
	// settles. Simulate an in-flight trial by admitting without settling.
	if !b.admit() {
		t.Fatal("first half-open trial must be admitted")
	}
	if b.admit() {
		t.Fatal("second concurrent trial must be rejected")
	}
}

func TestBreakerStage(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: time.Second})
	ctx := context.Background()

	stage := BreakerStage(b, func(ctx context.Context, batch []string) fn.Result[int] {
		return fn.Err[int](errEmbed)
	})

	stage(ctx, []string{"chunk a"})
	stage(ctx, []string{"chunk b"})

	r := stage(ctx, []string{"chunk c"})
	if r.IsOk() {
		t.Fatal("tripped breaker let a call through")
	}
	if _, err := r.Unwrap(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}
