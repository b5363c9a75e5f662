// Package slots guarantees at most one committed booking per tenant and instant.
package slots

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voiceagent-platform/internal/apperr"

	"github.com/google/uuid"
)

// Request is the caller's view of a claim before normalization.
type Request struct {
	TenantID        string
	ScheduledAt     time.Time
	DurationMinutes int
	Contact         Contact
	ServiceType     string
	SourceEventID   string
}

type Engine struct {
	store           Store
	region          string
	defaultDuration int
	clock           func() time.Time
}

func NewEngine(store Store, defaultRegion string, defaultDurationMinutes int) *Engine {
	if defaultDurationMinutes <= 0 {
		defaultDurationMinutes = 30
	}
	return &Engine{store: store, region: defaultRegion, defaultDuration: defaultDurationMinutes, clock: time.Now}
}

type ClaimOption func(*SlotClaim)

// WithClaimID fixes the claim id so a redelivered request maps to the same row.
func WithClaimID(id string) ClaimOption {
	return func(c *SlotClaim) { c.ClaimID = id }
}

// DeliveryClaimID derives a stable claim id from the delivery that requested it.
func DeliveryClaimID(eventID, toolCallID string) string {
	return uuid.NewSHA1(claimNamespace, []byte(eventID+"|"+toolCallID)).String()
}

var claimNamespace = uuid.MustParse("6f1c1f5e-6a43-4d3b-9a0e-4f5d2b8c1a77")

// Claim commits a claim for the exact instant or returns *apperr.ConflictError.
func (e *Engine) Claim(ctx context.Context, req Request, opts ...ClaimOption) (SlotClaim, error) {
	claim, err := e.prepare(req)
	if err != nil {
		return SlotClaim{}, err
	}
	for _, opt := range opts {
		opt(&claim)
	}
	if claim.ClaimID == "" {
		claim.ClaimID = uuid.NewString()
	}
	return e.store.Claim(ctx, claim)
}

func (e *Engine) prepare(req Request) (SlotClaim, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		return SlotClaim{}, apperr.Validation("tenant_id", "required")
	}
	if req.ScheduledAt.IsZero() {
		return SlotClaim{}, apperr.Validation("scheduled_at", "required")
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = e.defaultDuration
	}
	if duration < 0 || duration > MaxDurationMinutes {
		return SlotClaim{}, apperr.Validation("duration_minutes", fmt.Sprintf("must be between 1 and %d", MaxDurationMinutes))
	}
	contact, err := NormalizeContact(req.Contact, e.region)
	if err != nil {
		return SlotClaim{}, err
	}
	return SlotClaim{
		TenantID:        tenantID,
		ScheduledAt:     normalizeInstant(req.ScheduledAt),
		DurationMinutes: duration,
		Contact:         contact,
		ServiceType:     strings.TrimSpace(req.ServiceType),
		Status:          StatusCommitted,
		SourceEventID:   req.SourceEventID,
		CreatedAt:       e.clock().UTC(),
	}, nil
}

// normalizeInstant is the single canonical form of a slot key: UTC, whole seconds.
func normalizeInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func (e *Engine) Release(ctx context.Context, tenantID, claimID string) (SlotClaim, error) {
	if _, err := uuid.Parse(claimID); err != nil {
		return SlotClaim{}, ErrClaimNotFound
	}
	return e.store.Release(ctx, tenantID, claimID)
}

func (e *Engine) Get(ctx context.Context, tenantID, claimID string) (SlotClaim, error) {
	if _, err := uuid.Parse(claimID); err != nil {
		return SlotClaim{}, ErrClaimNotFound
	}
	return e.store.Get(ctx, tenantID, claimID)
}

func (e *Engine) List(ctx context.Context, tenantID string, from, to time.Time) ([]SlotClaim, error) {
	if !to.After(from) {
		return nil, apperr.Validation("range", "to must be after from")
	}
	return e.store.ListCommitted(ctx, tenantID, from.UTC(), to.UTC())
}

// IsFree reports whether no committed claim holds the exact instant.
func (e *Engine) IsFree(ctx context.Context, tenantID string, at time.Time) (bool, error) {
	at = normalizeInstant(at)
	taken, err := e.store.ListCommitted(ctx, tenantID, at, at.Add(time.Second))
	if err != nil {
		return false, err
	}
	return len(taken) == 0, nil
}

// Alternatives steps forward from after in increments of the duration and
// returns up to n free instants strictly before until.
func (e *Engine) Alternatives(ctx context.Context, tenantID string, after time.Time, durationMinutes, n int, until time.Time) ([]time.Time, error) {
	if n <= 0 {
		return nil, nil
	}
	if durationMinutes <= 0 {
		durationMinutes = e.defaultDuration
	}
	step := time.Duration(durationMinutes) * time.Minute
	after = normalizeInstant(after)
	taken, err := e.store.ListCommitted(ctx, tenantID, after, until.UTC())
	if err != nil {
		return nil, err
	}
	busy := make(map[int64]struct{}, len(taken))
	for _, c := range taken {
		busy[c.ScheduledAt.Unix()] = struct{}{}
	}

	var out []time.Time
	for t := after.Add(step); t.Before(until) && len(out) < n; t = t.Add(step) {
		if _, ok := busy[t.Unix()]; ok {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (e *Engine) SetCalendarEventID(ctx context.Context, tenantID, claimID, calendarEventID string) error {
	if calendarEventID == "" {
		return ErrInvalidClaim
	}
	return e.store.SetCalendarEventID(ctx, tenantID, claimID, calendarEventID)
}
