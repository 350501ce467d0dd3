package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/AbstraktAI/abstrakt-mvp/pkg/fn"
)

func TestLimiterAllowsBurst(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 10, Burst: 3})
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("call %d rejected inside burst", i)
		}
	}
	if l.Allow() {
		t.Fatal("call allowed after burst exhausted")
	}
}

func TestLimiterDefaultBurst(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1})
	if !l.Allow() {
		t.Fatal("first call rejected with default burst")
	}
	if l.Allow() {
		t.Fatal("second immediate call allowed with burst 1")
	}
}

func TestLimiterWaitRefills(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1000, Burst: 1})
	l.Allow() // drain

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait at 1000 rps did not refill in time: %v", err)
	}
}

func TestLimiterWaitHonorsDeadline(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 0.001, Burst: 1})
	l.Allow() // drain

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("Wait returned before a token could possibly arrive")
	}
}

func TestLimiterStageWait(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 1000, Burst: 1})

	calls := 0
	stage := LimiterStageWait(l, func(ctx context.Context, batch []string) fn.Result[int] {
		calls++
		return fn.Ok(len(batch))
	})

	for i := 0; i < 3; i++ {
		r := stage(context.Background(), []string{"chunk a", "chunk b"})
		if r.IsErr() {
			t.Fatalf("stage call %d failed", i)
		}
		if v, _ := r.Unwrap(); v != 2 {
			t.Fatalf("stage = %d, want 2", v)
		}
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestLimiterStageWaitCancelled(t *testing.T) {
	l := NewLimiter(LimiterOpts{Rate: 0.001, Burst: 1})
	l.Allow() // drain

	stage := LimiterStageWait(l, func(ctx context.Context, batch []string) fn.Result[int] {
		t.Fatal("stage must not run when the wait is cancelled")
		return fn.Ok(0)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if r := stage(ctx, []string{"chunk a"}); r.IsOk() {
		t.Fatal("cancelled wait produced a value")
	}
}
