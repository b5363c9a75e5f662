package calls

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
	// Upsert merges c into the stored row. Status never regresses and a
	// terminal status is final.
	Upsert(ctx context.Context, c Call) error
	Get(ctx context.Context, tenantID, providerCallID string) (Call, error)
}

type PostgresRepo struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresRepo(db *sql.DB, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

const statusRankSQL = `CASE %s
    WHEN 'queued' THEN 0 WHEN 'ringing' THEN 1 WHEN 'in_progress' THEN 2
    ELSE 3 END`

var upsertSQL = fmt.Sprintf(`
INSERT INTO calls (tenant_id, provider_call_id, assistant_id, from_number, to_number, status,
                   ended_reason, duration_seconds, started_at, ended_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (tenant_id, provider_call_id) DO UPDATE SET
    assistant_id     = COALESCE(NULLIF(calls.assistant_id, ''), EXCLUDED.assistant_id),
    from_number      = COALESCE(NULLIF(calls.from_number, ''), EXCLUDED.from_number),
    to_number        = COALESCE(NULLIF(calls.to_number, ''), EXCLUDED.to_number),
    status           = CASE
                           WHEN (%s) = 3 THEN calls.status
                           WHEN (%s) >= (%s) THEN EXCLUDED.status
                           ELSE calls.status
                       END,
    ended_reason     = COALESCE(NULLIF(EXCLUDED.ended_reason, ''), calls.ended_reason),
    duration_seconds = GREATEST(calls.duration_seconds, EXCLUDED.duration_seconds),
    started_at       = COALESCE(calls.started_at, EXCLUDED.started_at),
    ended_at         = COALESCE(EXCLUDED.ended_at, calls.ended_at),
    updated_at       = GREATEST(calls.updated_at, EXCLUDED.updated_at)
`,
	fmt.Sprintf(statusRankSQL, "calls.status"),
	fmt.Sprintf(statusRankSQL, "EXCLUDED.status"),
	fmt.Sprintf(statusRankSQL, "calls.status"),
)

func (r *PostgresRepo) Upsert(ctx context.Context, c Call) error {
	if c.TenantID == "" || c.ProviderCallID == "" || c.Status == "" {
		return ErrInvalidCall
	}
	ctx, cancel := utils.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, upsertSQL,
		c.TenantID, c.ProviderCallID, c.AssistantID, c.From, c.To, string(c.Status),
		c.EndedReason, c.DurationSeconds, nullTime(c.StartedAt), nullTime(c.EndedAt), c.UpdatedAt,
	)
	if err != nil {
		if utils.IsTransientDBError(err) {
			return apperr.Transient("upsert call", err)
		}
		return fmt.Errorf("upsert call: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID, providerCallID string) (Call, error) {
	ctx, cancel := utils.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
SELECT tenant_id, provider_call_id, assistant_id, from_number, to_number, status,
       ended_reason, duration_seconds, started_at, ended_at, updated_at
FROM calls
WHERE tenant_id = $1 AND provider_call_id = $2
`
	var (
		c              Call
		status         string
		started, ended sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, tenantID, providerCallID).Scan(
		&c.TenantID, &c.ProviderCallID, &c.AssistantID, &c.From, &c.To, &status,
		&c.EndedReason, &c.DurationSeconds, &started, &ended, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, fmt.Errorf("get call: %w", err)
	}
	c.Status = CallStatus(status)
	if started.Valid {
		t := started.Time
		c.StartedAt = &t
	}
	if ended.Valid {
		t := ended.Time
		c.EndedAt = &t
	}
	return c, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

type MemoryRepo struct {
	mu    sync.Mutex
	calls map[string]Call
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{calls: map[string]Call{}}
}

func (r *MemoryRepo) Upsert(ctx context.Context, c Call) error {
	if c.TenantID == "" || c.ProviderCallID == "" || c.Status == "" {
		return ErrInvalidCall
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := c.TenantID + "|" + c.ProviderCallID
	if cur, ok := r.calls[k]; ok {
		r.calls[k] = merge(cur, c)
		return nil
	}
	r.calls[k] = c
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID, providerCallID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[tenantID+"|"+providerCallID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}
