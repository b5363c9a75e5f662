package slots

import (
	"context"
	"time"
)

// Store persists claims. Claim must check-and-insert atomically per
// (tenant, scheduledAt) and return *apperr.ConflictError when a different
// committed claim already holds the instant. Re-claiming with the same claim id
// returns the stored claim unchanged.
type Store interface {
	Claim(ctx context.Context, c SlotClaim) (SlotClaim, error)
	Release(ctx context.Context, tenantID, claimID string) (SlotClaim, error)
	Get(ctx context.Context, tenantID, claimID string) (SlotClaim, error)
	ListCommitted(ctx context.Context, tenantID string, from, to time.Time) ([]SlotClaim, error)
	SetCalendarEventID(ctx context.Context, tenantID, claimID, calendarEventID string) error
}
