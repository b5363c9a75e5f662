package webhook

import (
	"context"
	"errors"
	"time"

	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/internal/booking"
	"voiceagent-platform/internal/calls"
	"voiceagent-platform/internal/tenant"
	"voiceagent-platform/pkg/logger"
)

type CallRecorder interface {
	Started(ctx context.Context, tenantID string, e calls.Started) error
	Ended(ctx context.Context, tenantID string, e calls.Ended) error
	StatusChanged(ctx context.Context, tenantID, providerCallID, providerStatus, endedReason string, at time.Time) error
}

type Booker interface {
	Book(ctx context.Context, inv booking.Invocation, args booking.BookAppointmentArgs) (booking.Result, error)
	CheckAvailability(ctx context.Context, inv booking.Invocation, args booking.CheckAvailabilityArgs) (booking.Result, error)
}

// Router is the production Handlers: call lifecycle events go to the call
// ledger, tool invocations go to booking.
type Router struct {
	calls   CallRecorder
	booking Booker
	clock   func() time.Time
}

func NewRouter(c CallRecorder, b Booker) *Router {
	return &Router{calls: c, booking: b, clock: time.Now}
}

var _ Handlers = (*Router)(nil)

func (r *Router) CallStarted(ctx context.Context, t tenant.Tenant, e *CallStarted) error {
	return r.calls.Started(ctx, t.ID, calls.Started{
		ProviderCallID: e.CallID,
		AssistantID:    e.AssistantID,
		From:           e.CallerNumber,
		To:             e.PhoneNumber,
		At:             r.at(e.Meta),
	})
}

func (r *Router) CallEnded(ctx context.Context, t tenant.Tenant, e *CallEnded) error {
	return r.calls.Ended(ctx, t.ID, calls.Ended{
		ProviderCallID:  e.CallID,
		Reason:          e.Reason,
		DurationSeconds: e.DurationSeconds,
		At:              r.at(e.Meta),
	})
}

func (r *Router) StatusUpdate(ctx context.Context, t tenant.Tenant, e *StatusUpdate) error {
	return r.calls.StatusChanged(ctx, t.ID, e.CallID, e.Status, e.EndedReason, r.at(e.Meta))
}

// ToolInvocation answers every call in the invocation. A call with bad
// arguments or an unknown tool gets an error result and the rest still run.
// Any other failure aborts the invocation so the pipeline can retry it; claims
// already committed by an earlier attempt are found again by their delivery id.
func (r *Router) ToolInvocation(ctx context.Context, t tenant.Tenant, e *ToolInvocation) (ToolResponse, error) {
	resp := ToolResponse{Results: make([]ToolResult, 0, len(e.Calls))}
	for _, tc := range e.Calls {
		inv := booking.Invocation{
			TenantID:    t.ID,
			Timezone:    t.Timezone,
			ClinicName:  t.Name,
			EventID:     e.EventID,
			CallID:      e.CallID,
			ToolCallID:  tc.ID,
			CallerPhone: e.CallerNumber,
		}
		res, err := r.runTool(ctx, inv, tc)
		if err != nil {
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) {
				return ToolResponse{}, err
			}
			logger.From(ctx).WarnContext(ctx, "tool call rejected",
				"tool", tc.Name,
				"tool_call_id", tc.ID,
				"err", err,
			)
		}
		resp.Results = append(resp.Results, ToolResult{ToolCallID: tc.ID, Result: res})
	}
	return resp, nil
}

func (r *Router) runTool(ctx context.Context, inv booking.Invocation, tc ToolCall) (booking.Result, error) {
	switch tc.Name {
	case booking.ToolBookAppointment, booking.ToolBookClinicAppointment:
		var args booking.BookAppointmentArgs
		if err := booking.DecodeArgs(tc.Arguments, &args); err != nil {
			return booking.ErrorResult(), err
		}
		return r.booking.Book(ctx, inv, args)
	case booking.ToolCheckAvailability:
		var args booking.CheckAvailabilityArgs
		if err := booking.DecodeArgs(tc.Arguments, &args); err != nil {
			return booking.ErrorResult(), err
		}
		return r.booking.CheckAvailability(ctx, inv, args)
	default:
		return booking.ErrorResult(), apperr.Validation("toolCall.name", "unknown tool "+tc.Name)
	}
}

// at prefers the provider's timestamp so late deliveries keep their order.
func (r *Router) at(m Meta) time.Time {
	if !m.OccurredAt.IsZero() {
		return m.OccurredAt
	}
	return r.clock().UTC()
}
