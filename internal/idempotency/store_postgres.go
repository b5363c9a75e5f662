package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voiceagent-platform/internal/apperr"
	"voiceagent-platform/pkg/utils"
)

type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
	clock   func() time.Time
}

func NewPostgresStore(db *sql.DB, timeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, timeout: timeout, clock: time.Now}
}

func (s *PostgresStore) Begin(ctx context.Context, rec Record) (Record, bool, error) {
	if err := validateBegin(rec); err != nil {
		return Record{}, false, err
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = s.clock().UTC()
	}
	if len(rec.Payload) == 0 {
		rec.Payload = []byte("{}")
	}

	ctx, cancel := utils.WithTimeout(ctx, s.timeout)
	defer cancel()

	const q = `
INSERT INTO webhook_events (event_id, event_type, call_id, assistant_id, tenant_hint, delivery_id, payload, outcome, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'in_progress', $8)
ON CONFLICT (event_id) DO NOTHING
RETURNING event_id
`
	var id string
	err := s.db.QueryRowContext(ctx, q,
		rec.EventID, rec.EventType, rec.CallID, rec.AssistantID, rec.TenantHint, rec.DeliveryID, []byte(rec.Payload), rec.ReceivedAt,
	).Scan(&id)
	switch {
	case err == nil:
		rec.Outcome = OutcomeInProgress
		return rec, true, nil
	case errors.Is(err, sql.ErrNoRows):
		existing, err := s.get(ctx, rec.EventID)
		if err != nil {
			return Record{}, false, err
		}
		return existing, ownedBy(existing, rec.DeliveryID), nil
	default:
		return Record{}, false, wrapDBErr("begin event", err)
	}
}

func (s *PostgresStore) Complete(ctx context.Context, eventID string, c Completion) error {
	if err := validateCompletion(c); err != nil {
		return err
	}

	ctx, cancel := utils.WithTimeout(ctx, s.timeout)
	defer cancel()

	const q = `
UPDATE webhook_events
SET outcome = $2, tenant_id = NULLIF($3, ''), result = $4, error = $5, processed_at = $6
WHERE event_id = $1 AND outcome = 'in_progress'
`
	var result any
	if len(c.Result) > 0 {
		result = []byte(c.Result)
	}
	res, err := s.db.ExecContext(ctx, q, eventID, string(c.Outcome), c.TenantID, result, c.Error, s.clock().UTC())
	if err != nil {
		return wrapDBErr("complete event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.get(ctx, eventID); err != nil {
			return err
		}
		return ErrAlreadyClosed
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, eventID string) (Record, error) {
	ctx, cancel := utils.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.get(ctx, eventID)
}

func (s *PostgresStore) get(ctx context.Context, eventID string) (Record, error) {
	const q = `
SELECT event_id, event_type, call_id, assistant_id, tenant_hint, COALESCE(tenant_id, ''), delivery_id,
       payload, outcome, result, COALESCE(error, ''), received_at, processed_at
FROM webhook_events
WHERE event_id = $1
`
	var (
		rec         Record
		payload     []byte
		result      []byte
		outcome     string
		processedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, q, eventID).Scan(
		&rec.EventID, &rec.EventType, &rec.CallID, &rec.AssistantID, &rec.TenantHint, &rec.TenantID, &rec.DeliveryID,
		&payload, &outcome, &result, &rec.Error, &rec.ReceivedAt, &processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, wrapDBErr("get event", err)
	}
	rec.Payload = payload
	rec.Result = result
	rec.Outcome = Outcome(outcome)
	if processedAt.Valid {
		t := processedAt.Time
		rec.ProcessedAt = &t
	}
	return rec, nil
}

// Purge deletes records received before the cutoff. Records still in progress
// are kept so an in-flight delivery never loses its dedup row.
func (s *PostgresStore) Purge(ctx context.Context, receivedBefore time.Time) (int64, error) {
	const q = `
DELETE FROM webhook_events
WHERE received_at < $1 AND outcome <> 'in_progress'
`
	res, err := s.db.ExecContext(ctx, q, receivedBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return res.RowsAffected()
}

// ExpireStale closes deliveries that never completed, for example when the
// process died mid-handler or lost track of its own insert.
func (s *PostgresStore) ExpireStale(ctx context.Context, receivedBefore time.Time, reason string) ([]Record, error) {
	const q = `
UPDATE webhook_events
SET outcome = 'failed', error = $2, processed_at = $3
WHERE outcome = 'in_progress' AND received_at < $1
RETURNING event_id, event_type, call_id, assistant_id, tenant_hint, delivery_id, received_at
`
	now := s.clock().UTC()
	rows, err := s.db.QueryContext(ctx, q, receivedBefore.UTC(), reason, now)
	if err != nil {
		return nil, fmt.Errorf("expire stale events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec := Record{Outcome: OutcomeFailed, Error: reason, ProcessedAt: &now}
		if err := rows.Scan(&rec.EventID, &rec.EventType, &rec.CallID, &rec.AssistantID, &rec.TenantHint, &rec.DeliveryID, &rec.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan stale event: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func wrapDBErr(op string, err error) error {
	if utils.IsTransientDBError(err) {
		return apperr.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
