package calls

import (
	"errors"
	"strings"
	"time"
)

// Call is a tenant-scoped record of one provider call.
//
// Multi-tenant invariant: TenantID is required on every row. Rows are keyed by
// (TenantID, ProviderCallID) and written by upsert because call events can
// arrive in any order.
type Call struct {
	TenantID       string `json:"tenant_id"`
	ProviderCallID string `json:"provider_call_id"`
	AssistantID    string `json:"assistant_id,omitempty"`

	From string `json:"from"`
	To   string `json:"to"`

	Status      CallStatus `json:"status"`
	EndedReason string     `json:"ended_reason,omitempty"`

	DurationSeconds int `json:"duration"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusCanceled   CallStatus = "canceled"
)

// rank orders statuses along the call lifecycle. A stored call never moves to
// a lower rank, and a terminal status is final.
func (s CallStatus) rank() int {
	switch s {
	case CallStatusQueued:
		return 0
	case CallStatusRinging:
		return 1
	case CallStatusInProgress:
		return 2
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusCanceled:
		return 3
	default:
		return -1
	}
}

func (s CallStatus) Terminal() bool {
	return s.rank() == 3
}

// FromProvider maps the provider's status vocabulary. "ended" is refined by
// the ended reason.
func FromProvider(status, endedReason string) (CallStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "queued", "scheduled":
		return CallStatusQueued, true
	case "ringing":
		return CallStatusRinging, true
	case "in-progress", "in_progress", "forwarding":
		return CallStatusInProgress, true
	case "ended", "completed":
		return FromEndedReason(endedReason), true
	}
	return "", false
}

func FromEndedReason(reason string) CallStatus {
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "did-not-answer") || strings.Contains(r, "no-answer"):
		return CallStatusNoAnswer
	case strings.Contains(r, "busy"):
		return CallStatusBusy
	case strings.Contains(r, "cancel"):
		return CallStatusCanceled
	case strings.Contains(r, "error") || strings.Contains(r, "failed") || strings.Contains(r, "fault"):
		return CallStatusFailed
	default:
		return CallStatusCompleted
	}
}

// merge folds an incoming observation into the stored call.
func merge(cur, in Call) Call {
	out := cur
	if out.AssistantID == "" {
		out.AssistantID = in.AssistantID
	}
	if out.From == "" {
		out.From = in.From
	}
	if out.To == "" {
		out.To = in.To
	}
	if !cur.Status.Terminal() && in.Status.rank() >= cur.Status.rank() {
		out.Status = in.Status
	}
	if in.EndedReason != "" {
		out.EndedReason = in.EndedReason
	}
	if in.DurationSeconds > 0 {
		out.DurationSeconds = in.DurationSeconds
	}
	if out.StartedAt == nil {
		out.StartedAt = in.StartedAt
	}
	if in.EndedAt != nil {
		out.EndedAt = in.EndedAt
	}
	if in.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = in.UpdatedAt
	}
	return out
}

var (
	ErrNotFound      = errors.New("calls: not found")
	ErrInvalidCall   = errors.New("calls: invalid call")
	ErrUnknownStatus = errors.New("calls: unknown provider status")
)
