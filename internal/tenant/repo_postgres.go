package tenant

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/pkg/utils"
)

type PostgresRepo struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresRepo(db *sql.DB, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID string) (Tenant, error) {
	ctx, cancel := utils.WithTimeout(ctx, r.timeout)
	defer cancel()

	const q = `
SELECT id, name, status, timezone, created_at
FROM tenants
WHERE id = $1
`
	var t Tenant
	if err := r.db.QueryRowContext(ctx, q, tenantID).Scan(&t.ID, &t.Name, &t.Status, &t.Timezone, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, wrapDBErr("get tenant", err)
	}
	return t, nil
}

func (r *PostgresRepo) TenantIDsByAssistantID(ctx context.Context, assistantID string) ([]string, error) {
	const q = `
SELECT DISTINCT tenant_id
FROM agent_configs
WHERE external_assistant_id = $1
ORDER BY tenant_id
`
	return r.listIDs(ctx, "tenants by assistant", q, assistantID)
}

func (r *PostgresRepo) TenantIDsByPhoneNumber(ctx context.Context, e164 string) ([]string, error) {
	const q = `
SELECT DISTINCT tenant_id
FROM tenant_phone_numbers
WHERE phone_number = $1
ORDER BY tenant_id
`
	return r.listIDs(ctx, "tenants by phone", q, e164)
}

func (r *PostgresRepo) listIDs(ctx context.Context, op, q string, arg string) ([]string, error) {
	ctx, cancel := utils.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBErr(op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}
	return ids, nil
}

func wrapDBErr(op string, err error) error {
	if utils.IsTransientDBError(err) {
		return apperr.Transient(op, err)
	}
	return err
}
