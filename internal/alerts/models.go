package alerts

import "time"

// Alert is an append-only, operator-visible record of something the pipeline
// acknowledged to the provider but could not complete.
//
// TenantID is optional: ambiguous or unresolvable events have none.
type Alert struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id,omitempty"`
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`

	EventID string `json:"event_id,omitempty"`
	CallID  string `json:"call_id,omitempty"`

	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type Kind string

const (
	KindHandlerFailed        Kind = "handler_failed"
	KindAmbiguousTenant      Kind = "ambiguous_tenant"
	KindNotificationFailed   Kind = "notification_failed"
	KindCalendarMirrorFailed Kind = "calendar_mirror_failed"
	KindSyncFailed           Kind = "sync_failed"
	KindEventAbandoned       Kind = "event_abandoned"
)

type Severity string

const (
	SeverityLow  Severity = "low"
	SeverityHigh Severity = "high"
)
