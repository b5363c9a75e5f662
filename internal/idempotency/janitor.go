package idempotency

import (
	"context"
	"time"

	"voiceagent-platform/internal/alerts"
	"voiceagent-platform/pkg/logger"
)

type AlertRaiser interface {
	Raise(ctx context.Context, a alerts.Alert) error
}

// Janitor runs on a fixed interval. It purges closed records older than the
// retention window, and fails and alerts on records left in progress longer
// than any delivery can take.
type Janitor struct {
	store      Store
	alerts     AlertRaiser
	retention  time.Duration
	staleAfter time.Duration
	interval   time.Duration
	clock      func() time.Time
}

// NewJanitor builds a janitor. staleAfter must exceed the full retry budget of
// one delivery; zero disables stale detection. raiser may be nil.
func NewJanitor(store Store, raiser AlertRaiser, retention, staleAfter, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		store:      store,
		alerts:     raiser,
		retention:  retention,
		staleAfter: staleAfter,
		interval:   interval,
		clock:      time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	t := time.NewTicker(j.interval)
	defer t.Stop()
	for {
		j.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// RunOnce returns the number of purged records.
func (j *Janitor) RunOnce(ctx context.Context) int64 {
	log := logger.From(ctx).With("component", "idempotency_janitor")
	now := j.clock()

	cutoff := now.Add(-j.retention)
	n, err := j.store.Purge(ctx, cutoff)
	if err != nil {
		log.ErrorContext(ctx, "purge failed", "error", err)
	} else if n > 0 {
		log.InfoContext(ctx, "purged webhook events", "count", n, "cutoff", cutoff)
	}

	if j.staleAfter > 0 {
		j.expireStale(ctx, now.Add(-j.staleAfter))
	}
	return n
}

func (j *Janitor) expireStale(ctx context.Context, cutoff time.Time) {
	log := logger.From(ctx).With("component", "idempotency_janitor")
	stale, err := j.store.ExpireStale(ctx, cutoff, "abandoned: still in progress after "+j.staleAfter.String())
	if err != nil {
		log.ErrorContext(ctx, "expire stale events failed", "error", err)
		return
	}
	for _, rec := range stale {
		log.ErrorContext(ctx, "webhook event abandoned", "event_id", rec.EventID, "event_type", rec.EventType, "received_at", rec.ReceivedAt)
		if j.alerts == nil {
			continue
		}
		err := j.alerts.Raise(ctx, alerts.Alert{
			Kind:     alerts.KindEventAbandoned,
			Severity: alerts.SeverityHigh,
			EventID:  rec.EventID,
			CallID:   rec.CallID,
			Message:  "event acknowledged but never completed",
			Metadata: map[string]string{
				"event_type":  rec.EventType,
				"tenant_hint": rec.TenantHint,
				"received_at": rec.ReceivedAt.UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			log.ErrorContext(ctx, "raise alert", "event_id", rec.EventID, "error", err)
		}
	}
}
