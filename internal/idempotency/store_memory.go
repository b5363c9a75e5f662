package idempotency

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	clock   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}, clock: time.Now}
}

func (s *MemoryStore) Begin(ctx context.Context, rec Record) (Record, bool, error) {
	if err := validateBegin(rec); err != nil {
		return Record{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.EventID]; ok {
		return existing, ownedBy(existing, rec.DeliveryID), nil
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = s.clock().UTC()
	}
	rec.Outcome = OutcomeInProgress
	rec.Result = nil
	rec.Error = ""
	rec.ProcessedAt = nil
	s.records[rec.EventID] = rec
	return rec, true, nil
}

func (s *MemoryStore) Complete(ctx context.Context, eventID string, c Completion) error {
	if err := validateCompletion(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[eventID]
	if !ok {
		return ErrNotFound
	}
	if rec.Outcome != OutcomeInProgress {
		return ErrAlreadyClosed
	}
	now := s.clock().UTC()
	rec.TenantID = c.TenantID
	rec.Outcome = c.Outcome
	rec.Result = append([]byte(nil), c.Result...)
	rec.Error = c.Error
	rec.ProcessedAt = &now
	s.records[eventID] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, eventID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[eventID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Purge(ctx context.Context, receivedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.records {
		if rec.Outcome != OutcomeInProgress && rec.ReceivedAt.Before(receivedBefore) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ExpireStale(ctx context.Context, receivedBefore time.Time, reason string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock().UTC()
	var out []Record
	for id, rec := range s.records {
		if rec.Outcome != OutcomeInProgress || !rec.ReceivedAt.Before(receivedBefore) {
			continue
		}
		rec.Outcome = OutcomeFailed
		rec.Error = reason
		rec.ProcessedAt = &now
		s.records[id] = rec
		out = append(out, rec)
	}
	return out, nil
}
