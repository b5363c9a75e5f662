package slots

import (
	"errors"
	"time"
)

type Status string

const (
	StatusCommitted Status = "committed"
	StatusCancelled Status = "cancelled"
)

// Contact is the normalized identity of the person a claim is booked for.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// SlotClaim is a committed reservation of an exact instant on a tenant's calendar.
type SlotClaim struct {
	ClaimID         string    `json:"claim_id"`
	TenantID        string    `json:"tenant_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Contact         Contact   `json:"contact"`
	ServiceType     string    `json:"service_type,omitempty"`
	Status          Status    `json:"status"`
	SourceEventID   string    `json:"source_event_id,omitempty"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func (c SlotClaim) EndsAt() time.Time {
	return c.ScheduledAt.Add(time.Duration(c.DurationMinutes) * time.Minute)
}

const MaxDurationMinutes = 8 * 60

var (
	ErrClaimNotFound = errors.New("slots: claim not found")
	ErrInvalidClaim  = errors.New("slots: invalid claim")
)
