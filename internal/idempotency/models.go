// Package idempotency records every inbound webhook event before any side effect
// runs. The event id is the dedup key; the first writer wins.
package idempotency

import (
	"encoding/json"
	"errors"
	"time"
)

type Outcome string

const (
	OutcomeInProgress Outcome = "in_progress"
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeFailed     Outcome = "failed"
	OutcomeRejected   Outcome = "rejected"
)

func (o Outcome) Terminal() bool {
	return o == OutcomeSucceeded || o == OutcomeFailed || o == OutcomeRejected
}

// Record is the stored form of an inbound event. The envelope fields are written
// once by Begin and never change; only the outcome columns are updated.
type Record struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	CallID      string          `json:"call_id,omitempty"`
	AssistantID string          `json:"assistant_id,omitempty"`
	TenantHint  string          `json:"tenant_hint,omitempty"`
	TenantID    string          `json:"tenant_id,omitempty"`

	// DeliveryID is unique per receipt of an event. A Begin retried after its
	// own insert committed finds its DeliveryID on the row and still owns it.
	DeliveryID string `json:"delivery_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	ReceivedAt  time.Time       `json:"received_at"`

	Outcome     Outcome         `json:"outcome"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// Completion is the terminal update applied once a delivery finishes.
type Completion struct {
	TenantID string
	Outcome  Outcome
	Result   json.RawMessage
	Error    string
}

var (
	ErrNotFound       = errors.New("idempotency: record not found")
	ErrInvalidRecord  = errors.New("idempotency: invalid record")
	ErrAlreadyClosed  = errors.New("idempotency: record already completed")
	ErrInvalidOutcome = errors.New("idempotency: invalid outcome")
)
