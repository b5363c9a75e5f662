package agentconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/pkg/utils"
)

type Repository interface {
	Get(ctx context.Context, tenantID string, role Role) (AgentConfig, error)
	// SaveSynced writes prompt, voice, external id and sync time in one transaction.
	SaveSynced(ctx context.Context, cfg AgentConfig) (AgentConfig, error)
}

type PostgresRepo struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresRepo(db *sql.DB, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID string, role Role) (AgentConfig, error) {
	ctx, cancel := utils.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
SELECT tenant_id, role, system_prompt, voice_selector, COALESCE(external_assistant_id, ''), last_synced_at, updated_at
FROM agent_configs
WHERE tenant_id = $1 AND role = $2
`
	var (
		c        AgentConfig
		roleStr  string
		syncedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, tenantID, string(role)).Scan(
		&c.TenantID, &roleStr, &c.SystemPrompt, &c.VoiceSelector, &c.ExternalAssistantID, &syncedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AgentConfig{}, ErrConfigNotFound
		}
		if utils.IsTransientDBError(err) {
			return AgentConfig{}, apperr.Transient("get agent config", err)
		}
		return AgentConfig{}, fmt.Errorf("get agent config: %w", err)
	}
	c.Role = Role(roleStr)
	if syncedAt.Valid {
		t := syncedAt.Time.UTC()
		c.LastSyncedAt = &t
	}
	return c, nil
}

func (r *PostgresRepo) SaveSynced(ctx context.Context, cfg AgentConfig) (AgentConfig, error) {
	if cfg.ExternalAssistantID == "" || cfg.LastSyncedAt == nil {
		return AgentConfig{}, ErrInvalidUpdate
	}
	ctx, cancel := utils.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var current sql.NullString
		err := tx.QueryRowContext(ctx, `
SELECT external_assistant_id
FROM agent_configs
WHERE tenant_id = $1 AND role = $2
FOR UPDATE
`, cfg.TenantID, string(cfg.Role)).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrConfigNotFound
			}
			return err
		}
		if current.Valid && current.String != "" && current.String != cfg.ExternalAssistantID {
			return fmt.Errorf("%w: assistant id changed concurrently", ErrInconsistentConfig)
		}

		_, err = tx.ExecContext(ctx, `
UPDATE agent_configs
SET system_prompt = $3, voice_selector = $4, external_assistant_id = $5, last_synced_at = $6, updated_at = $6
WHERE tenant_id = $1 AND role = $2
`, cfg.TenantID, string(cfg.Role), cfg.SystemPrompt, cfg.VoiceSelector, cfg.ExternalAssistantID, *cfg.LastSyncedAt)
		return err
	})
	if err != nil {
		return AgentConfig{}, err
	}
	cfg.UpdatedAt = *cfg.LastSyncedAt
	return cfg, nil
}

// MemoryRepo is a Repository for tests. SaveErr, when set, fails the next saves.
type MemoryRepo struct {
	mu      sync.Mutex
	configs map[string]AgentConfig
	SaveErr error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{configs: map[string]AgentConfig{}}
}

func (r *MemoryRepo) Put(c AgentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[c.TenantID+"|"+string(c.Role)] = c
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID string, role Role) (AgentConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[tenantID+"|"+string(role)]
	if !ok {
		return AgentConfig{}, ErrConfigNotFound
	}
	return c, nil
}

func (r *MemoryRepo) SaveSynced(ctx context.Context, cfg AgentConfig) (AgentConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return AgentConfig{}, r.SaveErr
	}
	k := cfg.TenantID + "|" + string(cfg.Role)
	if _, ok := r.configs[k]; !ok {
		return AgentConfig{}, ErrConfigNotFound
	}
	cfg.UpdatedAt = *cfg.LastSyncedAt
	r.configs[k] = cfg
	return cfg, nil
}
