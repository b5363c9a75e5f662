package idempotency

import (
	"context"
	"time"
)

// Store is the dedup ledger.
//
// Begin inserts rec with outcome in_progress if no record with the same event id
// exists. It returns inserted=false and the stored record when one does, unless
// that record is still in progress under the same DeliveryID. The check and the
// insert are a single atomic operation.
//
// ExpireStale fails every record still in progress that was received before
// the cutoff and returns them.
type Store interface {
	Begin(ctx context.Context, rec Record) (existing Record, inserted bool, err error)
	Complete(ctx context.Context, eventID string, c Completion) error
	Get(ctx context.Context, eventID string) (Record, error)
	Purge(ctx context.Context, receivedBefore time.Time) (int64, error)
	ExpireStale(ctx context.Context, receivedBefore time.Time, reason string) ([]Record, error)
}

// ownedBy reports whether rec is an in-progress row written by the delivery.
func ownedBy(rec Record, deliveryID string) bool {
	return deliveryID != "" && rec.Outcome == OutcomeInProgress && rec.DeliveryID == deliveryID
}

func validateBegin(rec Record) error {
	if rec.EventID == "" || rec.EventType == "" {
		return ErrInvalidRecord
	}
	return nil
}

func validateCompletion(c Completion) error {
	if !c.Outcome.Terminal() {
		return ErrInvalidOutcome
	}
	return nil
}
