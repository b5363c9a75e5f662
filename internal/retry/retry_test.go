package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"voiceagent-platform/internal/apperr"
)

func noSleep(policy Policy) (Policy, *[]time.Duration) {
	var slept []time.Duration
	policy.Sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	policy.Jitter = func(max time.Duration) time.Duration { return max }
	return policy, &slept
}

func TestDo_TransientIsAttemptedExactlyFiveTimes(t *testing.T) {
	p, slept := noSleep(DefaultPolicy())

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return apperr.Transient("downstream", errors.New("503"))
	})

	if calls != 5 {
		t.Fatalf("expected 5 attempts, got %d", calls)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 5 {
		t.Fatalf("expected ExhaustedError after 5 attempts, got %v", err)
	}
	if apperr.IsTransient(err) {
		t.Fatalf("exhausted error must not be transient")
	}
	want := []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Fatalf("sleep %d = %s, want %s", i, (*slept)[i], d)
		}
	}
}

func TestDo_PermanentIsNotRetried(t *testing.T) {
	p, _ := noSleep(DefaultPolicy())

	calls := 0
	notFound := errors.New("not found")
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return notFound
	})
	if calls != 1 || !errors.Is(err, notFound) {
		t.Fatalf("expected single attempt returning cause, got calls=%d err=%v", calls, err)
	}
}

func TestDo_SucceedsAfterTransient(t *testing.T) {
	p, _ := noSleep(DefaultPolicy())

	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		if attempt < 3 {
			return apperr.Transient("db", errors.New("conn reset"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestDelay_CapsAtMax(t *testing.T) {
	p, _ := noSleep(DefaultPolicy())
	if d := p.Delay(10); d != 4*time.Second {
		t.Fatalf("expected cap of 4s, got %s", d)
	}
}

func TestFullJitter_WithinBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := fullJitter(time.Second)
		if d < 0 || d > time.Second {
			t.Fatalf("jitter out of range: %s", d)
		}
	}
}

func TestDo_AttemptTimeoutIsTransient(t *testing.T) {
	p, _ := noSleep(DefaultPolicy())
	p.MaxAttempts = 2
	p.AttemptTimeout = 10 * time.Millisecond

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if calls != 2 {
		t.Fatalf("expected both attempts to run, got %d", calls)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
}
