// Package retry runs a unit of work under a bounded exponential-backoff policy.
// Only errors classified as transient by apperr are retried.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"voiceagent-platform/internal/apperr"
)

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration

	// AttemptTimeout bounds each call to fn. Zero means no per-attempt bound.
	AttemptTimeout time.Duration

	// Sleep and Jitter are swapped in tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(max time.Duration) time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   250 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    4 * time.Second,
	}
}

// ExhaustedError is returned when every attempt failed transiently.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Do calls fn until it succeeds, returns a non-transient error, or the attempt
// budget runs out. An exhausted budget is reported as a PermanentError wrapping
// ExhaustedError so callers never retry it again.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	p = p.withDefaults()

	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		last = p.run(ctx, attempt, fn)
		if last == nil {
			return nil
		}
		if !apperr.IsTransient(last) {
			return last
		}
		if ctx.Err() != nil {
			return apperr.Permanent("retry", fmt.Errorf("cancelled after %d attempts: %w", attempt, last))
		}
		if attempt == p.MaxAttempts {
			break
		}
		if err := p.Sleep(ctx, p.Delay(attempt)); err != nil {
			return apperr.Permanent("retry", fmt.Errorf("cancelled after %d attempts: %w", attempt, last))
		}
	}
	return apperr.Permanent("retry", &ExhaustedError{Attempts: p.MaxAttempts, Last: last})
}

func (p Policy) run(ctx context.Context, attempt int, fn func(ctx context.Context, attempt int) error) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	err := fn(attemptCtx, attempt)
	if err != nil && attemptCtx.Err() != nil && ctx.Err() == nil {
		return apperr.Transient("attempt timeout", err)
	}
	return err
}

// Delay is the full-jitter backoff before the attempt following `attempt`.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	ceiling := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		ceiling *= p.Multiplier
		if ceiling >= float64(p.MaxDelay) {
			ceiling = float64(p.MaxDelay)
			break
		}
	}
	if ceiling > float64(p.MaxDelay) {
		ceiling = float64(p.MaxDelay)
	}
	return p.Jitter(time.Duration(ceiling))
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	if p.Jitter == nil {
		p.Jitter = fullJitter
	}
	return p
}

func fullJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max) + 1))
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
