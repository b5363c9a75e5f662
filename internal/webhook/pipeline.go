// Package webhook ingests signed voice-provider events. Every delivery is
// verified, recorded in the idempotency store before any side effect, routed
// to a typed handler and acknowledged with 2xx unless the signature failed.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"voiceagent-platform/internal/alerts"
	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/internal/booking"
	"voiceagent-platform/internal/idempotency"
	"voiceagent-platform/internal/retry"
	"voiceagent-platform/internal/tenant"
	"voiceagent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type TenantResolver interface {
	Resolve(ctx context.Context, in tenant.Lookup) (tenant.Resolution, error)
}

type AlertRaiser interface {
	Raise(ctx context.Context, a alerts.Alert) error
}

// Response is what the HTTP layer writes back.
type Response struct {
	Status int
	Body   any
}

type Options struct {
	Retry retry.Policy

	// ExternalTimeout bounds one attempt of a call lifecycle event;
	// DatastoreTimeout bounds one attempt of a tool invocation and every
	// idempotency store call.
	ExternalTimeout  time.Duration
	DatastoreTimeout time.Duration

	// ToolDeadline bounds a whole tool invocation, retries included. The
	// caller is waiting on the phone.
	ToolDeadline time.Duration
}

type Pipeline struct {
	verifier Verifier
	store    idempotency.Store
	resolver TenantResolver
	handlers Handlers
	limiter  TenantLimiter
	alerts   AlertRaiser
	opts     Options
	tracer   trace.Tracer
	clock    func() time.Time
}

// NewPipeline wires the stages. limiter may be nil.
func NewPipeline(v Verifier, store idempotency.Store, resolver TenantResolver, h Handlers, limiter TenantLimiter, raiser AlertRaiser, opts Options) *Pipeline {
	if limiter == nil {
		limiter = noopLimiter{}
	}
	if opts.ExternalTimeout <= 0 {
		opts.ExternalTimeout = 5 * time.Second
	}
	if opts.DatastoreTimeout <= 0 {
		opts.DatastoreTimeout = 2 * time.Second
	}
	if opts.ToolDeadline <= 0 {
		opts.ToolDeadline = 3 * time.Second
	}
	return &Pipeline{
		verifier: v,
		store:    store,
		resolver: resolver,
		handlers: h,
		limiter:  limiter,
		alerts:   raiser,
		opts:     opts,
		tracer:   otel.Tracer("voiceagent-platform/webhook"),
		clock:    time.Now,
	}
}

var (
	statusIgnored   = gin.H{"status": "ignored"}
	statusDuplicate = gin.H{"status": "duplicate"}
)

// Process runs one delivery through the pipeline.
func (p *Pipeline) Process(ctx context.Context, body []byte, signature string) Response {
	ctx, span := p.tracer.Start(ctx, "webhook.process")
	defer span.End()
	log := logger.From(ctx)

	if err := p.verifier.Verify(body, signature); err != nil {
		span.SetStatus(codes.Error, "signature")
		log.WarnContext(ctx, "webhook signature rejected", "err", err)
		return Response{Status: http.StatusUnauthorized, Body: gin.H{"error": "invalid signature"}}
	}

	ev, err := Parse(body)
	if err != nil {
		log.WarnContext(ctx, "webhook envelope rejected", "err", err)
		p.recordRejected(ctx, body, err)
		return Response{Status: http.StatusOK, Body: statusIgnored}
	}
	m := ev.meta()
	span.SetAttributes(
		attribute.String("event.id", m.EventID),
		attribute.String("event.type", string(m.Type)),
	)
	ctx = logger.WithFields(ctx, logger.Fields{EventID: m.EventID, EventType: string(m.Type), CallID: m.CallID})
	if m.Type == TypeToolInvocation {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.ToolDeadline)
		defer cancel()
	}

	existing, inserted, err := p.begin(ctx, m)
	if err != nil {
		// Nothing has run yet, so asking the provider to redeliver is safe.
		span.RecordError(err)
		span.SetStatus(codes.Error, "dedup")
		log.ErrorContext(ctx, "idempotency store unavailable", "err", err)
		return Response{Status: http.StatusServiceUnavailable, Body: gin.H{"error": "temporarily unavailable"}}
	}
	if !inserted {
		span.SetAttributes(attribute.Bool("event.duplicate", true))
		log.InfoContext(ctx, "duplicate delivery", "outcome", existing.Outcome)
		return p.replay(ev, existing)
	}

	result, tenantID, err := p.execute(ctx, ev)
	outcome := outcomeFor(err)
	respBody := p.responseBody(ev, result, err)
	if tenantID != "" {
		ctx = logger.WithFields(ctx, logger.Fields{TenantID: tenantID})
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.Classify(err)))
		p.report(ctx, m, tenantID, outcome, err)
	}
	p.complete(ctx, m, tenantID, outcome, respBody, err)

	return Response{Status: http.StatusOK, Body: respBody}
}

func (p *Pipeline) begin(ctx context.Context, m Meta) (idempotency.Record, bool, error) {
	rec := idempotency.Record{
		EventID:     m.EventID,
		EventType:   string(m.Type),
		CallID:      m.CallID,
		AssistantID: m.AssistantID,
		TenantHint:  m.TenantHint,
		DeliveryID:  uuid.NewString(),
		Payload:     m.Payload,
		ReceivedAt:  p.clock().UTC(),
	}
	var (
		existing idempotency.Record
		inserted bool
	)
	policy := p.opts.Retry
	policy.AttemptTimeout = p.opts.DatastoreTimeout
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		existing, inserted, err = p.store.Begin(ctx, rec)
		return err
	})
	return existing, inserted, err
}

// execute resolves the tenant and runs the handler under the retry policy.
// The resolved tenant is kept across attempts.
func (p *Pipeline) execute(ctx context.Context, ev Event) (any, string, error) {
	m := ev.meta()
	policy := p.opts.Retry
	policy.AttemptTimeout = p.opts.ExternalTimeout
	if m.Type == TypeToolInvocation {
		policy.AttemptTimeout = p.opts.DatastoreTimeout
	}

	var (
		resolved *tenant.Tenant
		result   any
	)
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		ctx, span := p.tracer.Start(ctx, "webhook.handle", trace.WithAttributes(attribute.Int("attempt", attempt)))
		defer span.End()

		if resolved == nil {
			res, err := p.resolver.Resolve(ctx, tenant.Lookup{
				TenantHint:  m.TenantHint,
				AssistantID: m.AssistantID,
				PhoneNumber: m.PhoneNumber,
			})
			if err != nil {
				span.RecordError(err)
				return err
			}
			resolved = &res.Tenant
			span.SetAttributes(attribute.String("tenant.step", string(res.Step)))
		}
		ctx = logger.WithFields(ctx, logger.Fields{TenantID: resolved.ID})

		release, err := p.limiter.Acquire(ctx, resolved.ID)
		if err != nil {
			span.RecordError(err)
			return err
		}
		defer release()

		out, err := ev.dispatch(ctx, p.handlers, *resolved)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperr.Classify(err)))
			if attempt > 1 || apperr.IsTransient(err) {
				logger.From(ctx).WarnContext(ctx, "handler attempt failed", "attempt", attempt, "err", err)
			}
			return err
		}
		result = out
		return nil
	})

	tenantID := ""
	if resolved != nil {
		tenantID = resolved.ID
	}
	return result, tenantID, err
}

func outcomeFor(err error) idempotency.Outcome {
	if err == nil {
		return idempotency.OutcomeSucceeded
	}
	switch apperr.Classify(err) {
	case apperr.KindValidation, apperr.KindAmbiguous:
		return idempotency.OutcomeRejected
	}
	if errors.Is(err, tenant.ErrNotFound) || errors.Is(err, tenant.ErrSuspended) {
		return idempotency.OutcomeRejected
	}
	return idempotency.OutcomeFailed
}

// responseBody is the acknowledgement for a delivery that reached a handler.
// Tool invocations always get one result per call so the agent can speak.
func (p *Pipeline) responseBody(ev Event, result any, err error) any {
	inv, isTool := ev.(*ToolInvocation)
	if !isTool {
		if err != nil {
			return gin.H{"status": string(outcomeFor(err))}
		}
		return gin.H{"status": "ok"}
	}
	if err == nil {
		if resp, ok := result.(ToolResponse); ok {
			return resp
		}
	}
	return fallbackResponse(inv, booking.ErrorResult())
}

func fallbackResponse(inv *ToolInvocation, res booking.Result) ToolResponse {
	resp := ToolResponse{Results: make([]ToolResult, 0, len(inv.Calls))}
	for _, tc := range inv.Calls {
		resp.Results = append(resp.Results, ToolResult{ToolCallID: tc.ID, Result: res})
	}
	return resp
}

// replay answers a redelivery without running the handler again.
func (p *Pipeline) replay(ev Event, existing idempotency.Record) Response {
	inv, isTool := ev.(*ToolInvocation)
	if !isTool {
		return Response{Status: http.StatusOK, Body: statusDuplicate}
	}
	if existing.Outcome.Terminal() && len(existing.Result) > 0 {
		return Response{Status: http.StatusOK, Body: json.RawMessage(existing.Result)}
	}
	return Response{Status: http.StatusOK, Body: fallbackResponse(inv, booking.PendingResult())}
}

func (p *Pipeline) complete(ctx context.Context, m Meta, tenantID string, outcome idempotency.Outcome, body any, cause error) {
	c := idempotency.Completion{TenantID: tenantID, Outcome: outcome}
	if cause != nil {
		c.Error = cause.Error()
	}
	if m.Type == TypeToolInvocation {
		if b, err := json.Marshal(body); err == nil {
			c.Result = b
		}
	}

	// The delivery may have been cancelled by the client; the ledger must still close.
	ctx = context.WithoutCancel(ctx)
	policy := p.opts.Retry
	policy.AttemptTimeout = p.opts.DatastoreTimeout
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		err := p.store.Complete(ctx, m.EventID, c)
		if errors.Is(err, idempotency.ErrAlreadyClosed) {
			return nil
		}
		return err
	})
	if err != nil {
		logger.From(ctx).ErrorContext(ctx, "could not record event outcome", "outcome", outcome, "err", err)
	}
}

// recordRejected stores a malformed delivery when it at least carries an id.
func (p *Pipeline) recordRejected(ctx context.Context, body []byte, cause error) {
	id := peekID(body)
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.DatastoreTimeout)
	defer cancel()

	_, inserted, err := p.store.Begin(ctx, idempotency.Record{
		EventID:    id,
		EventType:  "invalid",
		Payload:    json.RawMessage(body),
		ReceivedAt: p.clock().UTC(),
	})
	if err != nil || !inserted {
		if err != nil {
			logger.From(ctx).WarnContext(ctx, "could not record rejected event", "event_id", id, "err", err)
		}
		return
	}
	err = p.store.Complete(ctx, id, idempotency.Completion{Outcome: idempotency.OutcomeRejected, Error: cause.Error()})
	if err != nil {
		logger.From(ctx).WarnContext(ctx, "could not record rejected event", "event_id", id, "err", err)
	}
}

// report raises an operator alert for deliveries that were acknowledged but
// not carried out. Rejected payloads are only logged.
func (p *Pipeline) report(ctx context.Context, m Meta, tenantID string, outcome idempotency.Outcome, err error) {
	log := logger.From(ctx)

	var a alerts.Alert
	var amb *apperr.AmbiguousTenantError
	switch {
	case errors.As(err, &amb):
		a = alerts.Alert{
			Kind:     alerts.KindAmbiguousTenant,
			Severity: alerts.SeverityHigh,
			Message:  amb.Error(),
			Metadata: map[string]string{"step": amb.Step, "key": amb.Key},
		}
	case outcome == idempotency.OutcomeFailed, errors.Is(err, tenant.ErrNotFound):
		a = alerts.Alert{
			Kind:     alerts.KindHandlerFailed,
			Severity: alerts.SeverityHigh,
			Message:  err.Error(),
			Metadata: map[string]string{"event_type": string(m.Type), "class": string(apperr.Classify(err))},
		}
	default:
		log.WarnContext(ctx, "event rejected", "err", err)
		return
	}

	log.ErrorContext(ctx, "event not processed", "outcome", outcome, "err", err)
	if p.alerts == nil {
		return
	}
	a.TenantID = tenantID
	a.EventID = m.EventID
	a.CallID = m.CallID
	if raiseErr := p.alerts.Raise(context.WithoutCancel(ctx), a); raiseErr != nil {
		log.ErrorContext(ctx, "raise alert", "err", raiseErr)
	}
}
