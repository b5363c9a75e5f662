package webhook

import (
	"context"
	"encoding/json"
	"time"

	"voiceagent-platform/internal/tenant"
)

type EventType string

const (
	TypeCallStarted    EventType = "call-started"
	TypeCallEnded      EventType = "call-ended"
	TypeToolInvocation EventType = "tool-invocation"
	TypeStatusUpdate   EventType = "status-update"
)

// Meta is common to every event.
type Meta struct {
	EventID     string
	Type        EventType
	CallID      string
	AssistantID string
	TenantHint  string

	// PhoneNumber is the tenant's number on the call; CallerNumber is the other party.
	PhoneNumber  string
	CallerNumber string

	OccurredAt time.Time
	Payload    json.RawMessage
}

func (m Meta) meta() Meta { return m }

// Event is closed to this package: the unexported dispatch method means every
// event type must be routed through a Handlers method.
type Event interface {
	meta() Meta
	dispatch(ctx context.Context, h Handlers, t tenant.Tenant) (any, error)
}

// Handlers has one method per event type. Only tool invocations produce a
// response body for the provider.
type Handlers interface {
	CallStarted(ctx context.Context, t tenant.Tenant, e *CallStarted) error
	CallEnded(ctx context.Context, t tenant.Tenant, e *CallEnded) error
	StatusUpdate(ctx context.Context, t tenant.Tenant, e *StatusUpdate) error
	ToolInvocation(ctx context.Context, t tenant.Tenant, e *ToolInvocation) (ToolResponse, error)
}

type CallStarted struct {
	Meta
	CallerName string
}

func (e *CallStarted) dispatch(ctx context.Context, h Handlers, t tenant.Tenant) (any, error) {
	return nil, h.CallStarted(ctx, t, e)
}

type CallEnded struct {
	Meta
	Reason          string
	DurationSeconds int
}

func (e *CallEnded) dispatch(ctx context.Context, h Handlers, t tenant.Tenant) (any, error) {
	return nil, h.CallEnded(ctx, t, e)
}

type StatusUpdate struct {
	Meta
	Status      string
	EndedReason string
}

func (e *StatusUpdate) dispatch(ctx context.Context, h Handlers, t tenant.Tenant) (any, error) {
	return nil, h.StatusUpdate(ctx, t, e)
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

type ToolInvocation struct {
	Meta
	Calls []ToolCall
}

func (e *ToolInvocation) dispatch(ctx context.Context, h Handlers, t tenant.Tenant) (any, error) {
	resp, err := h.ToolInvocation(ctx, t, e)
	return resp, err
}

// ToolResponse is the synchronous reply to a tool invocation.
type ToolResponse struct {
	Results []ToolResult `json:"results"`
}

type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result"`
}
