package tenant

import (
	"context"
	"errors"
	"fmt"

	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/internal/telephony"
)

// Repository is the read side the resolver needs. Lookups return every match so
// the resolver can detect ambiguity instead of trusting LIMIT 1.
type Repository interface {
	Get(ctx context.Context, tenantID string) (Tenant, error)
	TenantIDsByAssistantID(ctx context.Context, assistantID string) ([]string, error)
	TenantIDsByPhoneNumber(ctx context.Context, e164 string) ([]string, error)
}

// Lookup carries the identifiers an inbound event offers for tenant resolution.
type Lookup struct {
	TenantHint  string
	AssistantID string
	PhoneNumber string
}

// Step names the resolution stage that produced a match.
type Step string

const (
	StepHint      Step = "hint"
	StepAssistant Step = "assistant"
	StepPhone     Step = "phone"
)

type Resolution struct {
	Tenant Tenant
	Step   Step
}

type Resolver struct {
	repo   Repository
	region string
}

func NewResolver(repo Repository, defaultRegion string) *Resolver {
	return &Resolver{repo: repo, region: defaultRegion}
}

// Resolve tries the explicit hint, then the assistant id, then the call's phone
// number. More than one match at a step is an AmbiguousTenantError; no match
// anywhere is ErrNotFound. A hint naming an unknown tenant falls through; a hint
// naming a suspended tenant stops resolution.
func (r *Resolver) Resolve(ctx context.Context, in Lookup) (Resolution, error) {
	if in.TenantHint != "" {
		t, err := r.repo.Get(ctx, in.TenantHint)
		switch {
		case err == nil:
			return r.accept(t, StepHint)
		case errors.Is(err, ErrNotFound):
		default:
			return Resolution{}, err
		}
	}

	if in.AssistantID != "" {
		ids, err := r.repo.TenantIDsByAssistantID(ctx, in.AssistantID)
		if err != nil {
			return Resolution{}, err
		}
		if res, ok, err := r.pick(ctx, StepAssistant, in.AssistantID, ids); ok || err != nil {
			return res, err
		}
	}

	if in.PhoneNumber != "" {
		e164, err := telephony.NormalizeE164(in.PhoneNumber, r.region)
		if err == nil {
			ids, err := r.repo.TenantIDsByPhoneNumber(ctx, e164)
			if err != nil {
				return Resolution{}, err
			}
			if res, ok, err := r.pick(ctx, StepPhone, e164, ids); ok || err != nil {
				return res, err
			}
		}
	}

	return Resolution{}, apperr.Permanent("resolve tenant", ErrNotFound)
}

func (r *Resolver) pick(ctx context.Context, step Step, key string, ids []string) (Resolution, bool, error) {
	ids = dedupe(ids)
	switch len(ids) {
	case 0:
		return Resolution{}, false, nil
	case 1:
		t, err := r.repo.Get(ctx, ids[0])
		if err != nil {
			return Resolution{}, true, fmt.Errorf("load tenant %s: %w", ids[0], err)
		}
		res, err := r.accept(t, step)
		return res, true, err
	default:
		return Resolution{}, true, &apperr.AmbiguousTenantError{Step: string(step), Key: key, Candidates: ids}
	}
}

func (r *Resolver) accept(t Tenant, step Step) (Resolution, error) {
	if t.Status != StatusActive {
		return Resolution{}, apperr.Permanent("resolve tenant", fmt.Errorf("%w: %s", ErrSuspended, t.ID))
	}
	return Resolution{Tenant: t, Step: step}, nil
}

func dedupe(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
