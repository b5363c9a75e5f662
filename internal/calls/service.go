package calls

import (
	"context"
	"time"

	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/internal/telephony"
)

type Started struct {
	ProviderCallID string
	AssistantID    string
	From           string
	To             string
	At             time.Time
}

type Ended struct {
	ProviderCallID  string
	Reason          string
	DurationSeconds int
	At              time.Time
}

type Service struct {
	repo   Repository
	region string
}

func NewService(repo Repository, defaultRegion string) *Service {
	return &Service{repo: repo, region: defaultRegion}
}

func (s *Service) Started(ctx context.Context, tenantID string, e Started) error {
	if e.ProviderCallID == "" {
		return apperr.Validation("call.id", "required")
	}
	at := e.At.UTC()
	return s.repo.Upsert(ctx, Call{
		TenantID:       tenantID,
		ProviderCallID: e.ProviderCallID,
		AssistantID:    e.AssistantID,
		From:           s.phone(e.From),
		To:             s.phone(e.To),
		Status:         CallStatusInProgress,
		StartedAt:      &at,
		UpdatedAt:      at,
	})
}

// Ended records the final state. It also creates the row when the start event
// has not arrived yet.
func (s *Service) Ended(ctx context.Context, tenantID string, e Ended) error {
	if e.ProviderCallID == "" {
		return apperr.Validation("call.id", "required")
	}
	at := e.At.UTC()
	return s.repo.Upsert(ctx, Call{
		TenantID:        tenantID,
		ProviderCallID:  e.ProviderCallID,
		Status:          FromEndedReason(e.Reason),
		EndedReason:     e.Reason,
		DurationSeconds: e.DurationSeconds,
		EndedAt:         &at,
		UpdatedAt:       at,
	})
}

func (s *Service) StatusChanged(ctx context.Context, tenantID, providerCallID, providerStatus, endedReason string, at time.Time) error {
	if providerCallID == "" {
		return apperr.Validation("call.id", "required")
	}
	status, ok := FromProvider(providerStatus, endedReason)
	if !ok {
		return apperr.Validation("status", ErrUnknownStatus.Error()+": "+providerStatus)
	}
	at = at.UTC()
	c := Call{
		TenantID:       tenantID,
		ProviderCallID: providerCallID,
		Status:         status,
		EndedReason:    endedReason,
		UpdatedAt:      at,
	}
	if status.Terminal() {
		c.EndedAt = &at
	}
	return s.repo.Upsert(ctx, c)
}

func (s *Service) Get(ctx context.Context, tenantID, providerCallID string) (Call, error) {
	return s.repo.Get(ctx, tenantID, providerCallID)
}

// phone keeps unparseable numbers (SIP URIs, "anonymous") as received.
func (s *Service) phone(raw string) string {
	if raw == "" {
		return ""
	}
	if e164, err := telephony.NormalizeE164(raw, s.region); err == nil {
		return e164
	}
	return raw
}
