package alerts

import (
	"context"
	"errors"
	"time"

	"voiceagent-platform/pkg/logger"

	"github.com/google/uuid"
)

// Repository is the sink for alerts. It is append-only.
type Repository interface {
	Append(ctx context.Context, a Alert) error
}

// Service raises operator alerts. Raising is best-effort: callers log the
// returned error but never fail their own work because of it.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidAlert = errors.New("alerts: invalid alert")

func (s *Service) Raise(ctx context.Context, a Alert) error {
	if s == nil || s.repo == nil {
		return errors.New("alerts: repository not configured")
	}
	if a.Kind == "" || a.Message == "" {
		return ErrInvalidAlert
	}
	if a.Severity == "" {
		a.Severity = SeverityHigh
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock().UTC()
	}

	log := logger.From(ctx)
	attrs := []any{"alert_id", a.ID, "kind", a.Kind, "severity", a.Severity, "message", a.Message}
	if a.Severity == SeverityHigh {
		log.ErrorContext(ctx, "operator alert", attrs...)
	} else {
		log.WarnContext(ctx, "operator alert", attrs...)
	}

	return s.repo.Append(ctx, a)
}
