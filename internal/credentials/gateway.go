// Package credentials is the only path to tenant secrets for downstream
// providers. Lookups go through a short-lived cache in front of Postgres.
package credentials

import (
	"context"
	"errors"
	"time"

	"voiceagent-platform/pkg/logger"
)

// Source is the system of record. Get returns *NotConfiguredError when the
// tenant has no active credential for the provider.
type Source interface {
	Get(ctx context.Context, tenantID string, provider Provider) (Credential, error)
}

type Cache interface {
	Get(ctx context.Context, tenantID string, provider Provider) (Credential, error)
	Set(ctx context.Context, c Credential, ttl time.Duration) error
	Delete(ctx context.Context, tenantID string, provider Provider) error
}

// MaxTTL bounds how long a revoked credential can keep working.
const MaxTTL = 60 * time.Second

type Gateway struct {
	source Source
	cache  Cache
	ttl    time.Duration
}

func NewGateway(source Source, cache Cache, ttl time.Duration) *Gateway {
	if ttl <= 0 || ttl > MaxTTL {
		ttl = MaxTTL
	}
	return &Gateway{source: source, cache: cache, ttl: ttl}
}

func (g *Gateway) Get(ctx context.Context, tenantID string, provider Provider) (Credential, error) {
	if !provider.Valid() {
		return Credential{}, ErrInvalidProvider
	}
	log := logger.From(ctx)

	if g.cache != nil {
		c, err := g.cache.Get(ctx, tenantID, provider)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, errCacheMiss) {
			log.WarnContext(ctx, "credential cache read failed", "provider", provider, "error", err)
		}
	}

	c, err := g.source.Get(ctx, tenantID, provider)
	if err != nil {
		return Credential{}, err
	}
	if g.cache != nil {
		if err := g.cache.Set(ctx, c, g.ttl); err != nil {
			log.WarnContext(ctx, "credential cache write failed", "provider", provider, "error", err)
		}
	}
	return c, nil
}

// Invalidate drops a cached credential after it is rotated or revoked.
func (g *Gateway) Invalidate(ctx context.Context, tenantID string, provider Provider) error {
	if g.cache == nil {
		return nil
	}
	return g.cache.Delete(ctx, tenantID, provider)
}
