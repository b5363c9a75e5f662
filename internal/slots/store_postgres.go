package slots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/pkg/utils"

	"github.com/cespare/xxhash/v2"
)

type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresStore(db *sql.DB, timeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, timeout: timeout}
}

// LockKey is the advisory lock id for one tenant instant. Two different keys
// may collide; that only serializes unrelated claims, it never merges them.
func LockKey(tenantID string, scheduledAt time.Time) int64 {
	return int64(xxhash.Sum64String(tenantID + "|" + scheduledAt.UTC().Format(time.RFC3339Nano)))
}

const claimColumns = `claim_id, tenant_id, scheduled_at, duration_minutes, contact_name, contact_phone,
       contact_email, service_type, status, source_event_id, COALESCE(calendar_event_id, ''), created_at`

func (s *PostgresStore) Claim(ctx context.Context, c SlotClaim) (SlotClaim, error) {
	ctx, cancel := utils.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out SlotClaim
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, LockKey(c.TenantID, c.ScheduledAt)); err != nil {
			return err
		}

		existing, err := scanClaim(tx.QueryRowContext(ctx, `
SELECT `+claimColumns+`
FROM slot_claims
WHERE tenant_id = $1 AND scheduled_at = $2 AND status = 'committed'
`, c.TenantID, c.ScheduledAt))
		switch {
		case err == nil:
			if existing.ClaimID == c.ClaimID {
				out = existing
				return nil
			}
			return conflict(c)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		_, err = tx.ExecContext(ctx, `
INSERT INTO slot_claims (claim_id, tenant_id, scheduled_at, duration_minutes, contact_name, contact_phone,
                         contact_email, service_type, status, source_event_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'committed', $9, $10, $10)
`, c.ClaimID, c.TenantID, c.ScheduledAt, c.DurationMinutes, c.Contact.Name, c.Contact.Phone,
			c.Contact.Email, c.ServiceType, c.SourceEventID, c.CreatedAt)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		var ce *apperr.ConflictError
		switch {
		case errors.As(err, &ce):
			return SlotClaim{}, err
		case utils.IsUniqueViolation(err):
			return SlotClaim{}, conflict(c)
		case utils.IsTransientDBError(err):
			return SlotClaim{}, apperr.Transient("claim slot", err)
		}
		return SlotClaim{}, fmt.Errorf("claim slot: %w", err)
	}
	return out, nil
}

func conflict(c SlotClaim) error {
	return &apperr.ConflictError{Code: apperr.CodeSlotUnavailable, TenantID: c.TenantID, ScheduledAt: c.ScheduledAt}
}

func (s *PostgresStore) Release(ctx context.Context, tenantID, claimID string) (SlotClaim, error) {
	ctx, cancel := utils.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := scanClaim(s.db.QueryRowContext(ctx, `
UPDATE slot_claims
SET status = 'cancelled', updated_at = now()
WHERE tenant_id = $1 AND claim_id = $2 AND status = 'committed'
RETURNING `+claimColumns, tenantID, claimID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SlotClaim{}, ErrClaimNotFound
		}
		return SlotClaim{}, wrapDBErr("release claim", err)
	}
	return c, nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, claimID string) (SlotClaim, error) {
	ctx, cancel := utils.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := scanClaim(s.db.QueryRowContext(ctx, `
SELECT `+claimColumns+`
FROM slot_claims
WHERE tenant_id = $1 AND claim_id = $2
`, tenantID, claimID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SlotClaim{}, ErrClaimNotFound
		}
		return SlotClaim{}, wrapDBErr("get claim", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCommitted(ctx context.Context, tenantID string, from, to time.Time) ([]SlotClaim, error) {
	ctx, cancel := utils.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
SELECT `+claimColumns+`
FROM slot_claims
WHERE tenant_id = $1 AND status = 'committed' AND scheduled_at >= $2 AND scheduled_at < $3
ORDER BY scheduled_at
`, tenantID, from, to)
	if err != nil {
		return nil, wrapDBErr("list claims", err)
	}
	defer rows.Close()

	var out []SlotClaim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr("list claims", err)
	}
	return out, nil
}

func (s *PostgresStore) SetCalendarEventID(ctx context.Context, tenantID, claimID, calendarEventID string) error {
	ctx, cancel := utils.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
UPDATE slot_claims
SET calendar_event_id = $3, updated_at = now()
WHERE tenant_id = $1 AND claim_id = $2
`, tenantID, claimID, calendarEventID)
	if err != nil {
		return wrapDBErr("set calendar event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrClaimNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (SlotClaim, error) {
	var (
		c      SlotClaim
		status string
	)
	err := row.Scan(
		&c.ClaimID, &c.TenantID, &c.ScheduledAt, &c.DurationMinutes, &c.Contact.Name, &c.Contact.Phone,
		&c.Contact.Email, &c.ServiceType, &status, &c.SourceEventID, &c.CalendarEventID, &c.CreatedAt,
	)
	if err != nil {
		return SlotClaim{}, err
	}
	c.Status = Status(status)
	c.ScheduledAt = c.ScheduledAt.UTC()
	return c, nil
}

func wrapDBErr(op string, err error) error {
	if utils.IsTransientDBError(err) {
		return apperr.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
