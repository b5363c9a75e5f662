package credentials

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/pkg/utils"
)

type PostgresSource struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresSource(db *sql.DB, timeout time.Duration) *PostgresSource {
	return &PostgresSource{db: db, timeout: timeout}
}

func (s *PostgresSource) Get(ctx context.Context, tenantID string, provider Provider) (Credential, error) {
	ctx, cancel := utils.WithTimeout(ctx, s.timeout)
	defer cancel()

	const q = `
SELECT fields
FROM tenant_credentials
WHERE tenant_id = $1 AND provider = $2 AND revoked_at IS NULL
`
	var raw []byte
	if err := s.db.QueryRowContext(ctx, q, tenantID, string(provider)).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credential{}, &NotConfiguredError{TenantID: tenantID, Provider: provider}
		}
		if utils.IsTransientDBError(err) {
			return Credential{}, apperr.Transient("get credential", err)
		}
		return Credential{}, fmt.Errorf("get credential: %w", err)
	}

	fields := map[string]string{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Credential{}, fmt.Errorf("decode credential fields: %w", err)
	}
	return Credential{TenantID: tenantID, Provider: provider, Fields: fields}, nil
}
