// Package agentconfig keeps tenant agent settings in step with the voice
// provider. The provider is written first; the local row records what the
// provider accepted.
package agentconfig

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voiceagent-platform/internal/alerts"
	"voiceagent-platform/internal/voiceprovider"
	"voiceagent-platform/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Provider interface {
	CreateAssistant(ctx context.Context, a voiceprovider.Assistant) (voiceprovider.Assistant, error)
	UpdateAssistant(ctx context.Context, id string, a voiceprovider.Assistant) (voiceprovider.Assistant, error)
	GetAssistant(ctx context.Context, id string) (voiceprovider.Assistant, error)
}

type AlertRaiser interface {
	Raise(ctx context.Context, a alerts.Alert) error
}

type SyncOptions struct {
	ServerURL      string
	ModelProvider  string
	Model          string
	VerifyExternal bool
}

type SyncResult struct {
	Config   AgentConfig `json:"config"`
	Created  bool        `json:"created"`
	Verified bool        `json:"verified_external"`
}

type SyncEngine struct {
	repo     Repository
	provider Provider
	alerts   AlertRaiser
	opts     SyncOptions
	tools    []voiceprovider.Tool
	tracer   trace.Tracer
	clock    func() time.Time
}

func NewSyncEngine(repo Repository, provider Provider, raiser AlertRaiser, opts SyncOptions) (*SyncEngine, error) {
	tools, err := Tools(opts.ServerURL)
	if err != nil {
		return nil, err
	}
	return &SyncEngine{
		repo:     repo,
		provider: provider,
		alerts:   raiser,
		opts:     opts,
		tools:    tools,
		tracer:   otel.Tracer("voiceagent-platform/agentconfig"),
		clock:    time.Now,
	}, nil
}

// Sync pushes upd to the provider and then mirrors it locally.
func (e *SyncEngine) Sync(ctx context.Context, tenantID string, role Role, upd Update) (SyncResult, error) {
	ctx = logger.WithFields(ctx, logger.Fields{TenantID: tenantID, Component: "agentconfig"})
	ctx, span := e.tracer.Start(ctx, "agentconfig.sync", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("agent.role", string(role)),
	))
	defer span.End()

	res, err := e.sync(ctx, tenantID, role, upd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var se *SyncError
		if errors.As(err, &se) && !se.RetrySafe() {
			e.raise(ctx, tenantID, role, se)
		}
	}
	return res, err
}

func (e *SyncEngine) sync(ctx context.Context, tenantID string, role Role, upd Update) (SyncResult, error) {
	log := logger.From(ctx)
	upd = upd.normalized()

	var current AgentConfig
	err := e.phase(ctx, PhaseValidate, func(ctx context.Context) error {
		if !role.Valid() {
			return fmt.Errorf("%w: role %q", ErrInvalidUpdate, role)
		}
		if upd.SystemPrompt == "" || upd.VoiceSelector == "" {
			return fmt.Errorf("%w: system prompt and voice are required", ErrInvalidUpdate)
		}
		c, err := e.repo.Get(ctx, tenantID, role)
		if err != nil {
			return err
		}
		if !c.Consistent() {
			return ErrInconsistentConfig
		}
		current = c
		return nil
	})
	if err != nil {
		return SyncResult{}, &SyncError{Phase: PhaseValidate, Err: err}
	}

	var (
		remote  voiceprovider.Assistant
		created = current.ExternalAssistantID == ""
	)
	err = e.phase(ctx, PhaseExternalWrite, func(ctx context.Context) error {
		desired := e.assistantFor(tenantID, role, upd)
		var (
			a   voiceprovider.Assistant
			err error
		)
		if created {
			a, err = e.provider.CreateAssistant(ctx, desired)
		} else {
			a, err = e.provider.UpdateAssistant(ctx, current.ExternalAssistantID, desired)
		}
		if err != nil {
			return err
		}
		if a.ID == "" {
			return errors.New("provider returned no assistant id")
		}
		remote = a
		return nil
	})
	if err != nil {
		return SyncResult{}, &SyncError{Phase: PhaseExternalWrite, Err: err}
	}
	log.InfoContext(ctx, "assistant written", "assistant_id", remote.ID, "created", created)

	now := e.clock().UTC()
	next := AgentConfig{
		TenantID:            tenantID,
		Role:                role,
		SystemPrompt:        upd.SystemPrompt,
		VoiceSelector:       upd.VoiceSelector,
		ExternalAssistantID: remote.ID,
		LastSyncedAt:        &now,
	}
	var saved AgentConfig
	err = e.phase(ctx, PhaseLocalWrite, func(ctx context.Context) error {
		c, err := e.repo.SaveSynced(ctx, next)
		if err != nil {
			return err
		}
		saved = c
		return nil
	})
	if err != nil {
		return SyncResult{}, &SyncError{Phase: PhaseLocalWrite, ExternalMutated: true, Err: err}
	}

	verified := false
	err = e.phase(ctx, PhaseVerify, func(ctx context.Context) error {
		got, err := e.repo.Get(ctx, tenantID, role)
		if err != nil {
			return err
		}
		if got.ExternalAssistantID != next.ExternalAssistantID || got.SystemPrompt != next.SystemPrompt || got.VoiceSelector != next.VoiceSelector {
			return fmt.Errorf("%w: local row differs from written config", ErrVerifyMismatch)
		}
		if !e.opts.VerifyExternal {
			return nil
		}
		a, err := e.provider.GetAssistant(ctx, remote.ID)
		if err != nil {
			return err
		}
		if a.SystemPrompt() != next.SystemPrompt {
			return fmt.Errorf("%w: provider prompt differs", ErrVerifyMismatch)
		}
		if _, voiceID := ParseVoice(next.VoiceSelector); a.Voice == nil || a.Voice.VoiceID != voiceID {
			return fmt.Errorf("%w: provider voice differs", ErrVerifyMismatch)
		}
		verified = true
		return nil
	})
	if err != nil {
		return SyncResult{}, &SyncError{Phase: PhaseVerify, ExternalMutated: true, LocalMutated: true, Err: err}
	}

	return SyncResult{Config: saved, Created: created, Verified: verified}, nil
}

func (e *SyncEngine) phase(ctx context.Context, p Phase, fn func(ctx context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "agentconfig.sync."+string(p))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	log := logger.From(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WarnContext(ctx, "sync phase failed", "phase", p, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return err
	}
	log.DebugContext(ctx, "sync phase done", "phase", p, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (e *SyncEngine) assistantFor(tenantID string, role Role, upd Update) voiceprovider.Assistant {
	voiceProvider, voiceID := ParseVoice(upd.VoiceSelector)
	return voiceprovider.Assistant{
		Name: fmt.Sprintf("%s-%s", tenantID, role),
		Model: &voiceprovider.Model{
			Provider: e.opts.ModelProvider,
			Model:    e.opts.Model,
			Messages: []voiceprovider.Message{{Role: "system", Content: upd.SystemPrompt}},
			Tools:    e.tools,
		},
		Voice:     &voiceprovider.Voice{Provider: voiceProvider, VoiceID: voiceID},
		ServerURL: e.opts.ServerURL,
		Metadata:  map[string]string{"tenantId": tenantID, "role": string(role)},
	}
}

func (e *SyncEngine) raise(ctx context.Context, tenantID string, role Role, se *SyncError) {
	if e.alerts == nil {
		return
	}
	err := e.alerts.Raise(context.WithoutCancel(ctx), alerts.Alert{
		TenantID: tenantID,
		Kind:     alerts.KindSyncFailed,
		Severity: alerts.SeverityHigh,
		Message:  se.Error(),
		Metadata: map[string]string{
			"role":             string(role),
			"phase":            string(se.Phase),
			"external_mutated": fmt.Sprint(se.ExternalMutated),
			"local_mutated":    fmt.Sprint(se.LocalMutated),
		},
	})
	if err != nil {
		logger.From(ctx).ErrorContext(ctx, "raise alert failed", "error", err)
	}
}
