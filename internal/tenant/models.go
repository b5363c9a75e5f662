package tenant

import (
	"errors"
	"time"
)

// Tenant is a client organization. Every other record is keyed by its ID.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
}

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Location returns the tenant's IANA zone, falling back to UTC for unknown names.
func (t Tenant) Location() *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

var (
	ErrNotFound  = errors.New("tenant: not found")
	ErrSuspended = errors.New("tenant: suspended")
)
