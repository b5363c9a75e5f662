package slots

import (
	"context"
	"sort"
	"sync"
	"time"

	"voiceagent-platform/internal/apperr"
)

// MemoryStore serializes claims per (tenant, instant) with keyed mutexes, the
// in-process analogue of the advisory lock.
type MemoryStore struct {
	locks sync.Map // int64 -> *sync.Mutex

	mu     sync.RWMutex
	claims map[string]SlotClaim // claim id -> claim
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{claims: map[string]SlotClaim{}}
}

func (s *MemoryStore) lock(tenantID string, at time.Time) func() {
	v, _ := s.locks.LoadOrStore(LockKey(tenantID, at), &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func (s *MemoryStore) Claim(ctx context.Context, c SlotClaim) (SlotClaim, error) {
	if err := ctx.Err(); err != nil {
		return SlotClaim{}, apperr.Transient("claim slot", err)
	}
	unlock := s.lock(c.TenantID, c.ScheduledAt)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.claims {
		if existing.TenantID == c.TenantID && existing.Status == StatusCommitted && existing.ScheduledAt.Equal(c.ScheduledAt) {
			if existing.ClaimID == c.ClaimID {
				return existing, nil
			}
			return SlotClaim{}, conflict(c)
		}
	}
	if _, ok := s.claims[c.ClaimID]; ok {
		return SlotClaim{}, conflict(c)
	}
	s.claims[c.ClaimID] = c
	return c, nil
}

func (s *MemoryStore) Release(ctx context.Context, tenantID, claimID string) (SlotClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimID]
	if !ok || c.TenantID != tenantID || c.Status != StatusCommitted {
		return SlotClaim{}, ErrClaimNotFound
	}
	c.Status = StatusCancelled
	s.claims[claimID] = c
	return c, nil
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, claimID string) (SlotClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[claimID]
	if !ok || c.TenantID != tenantID {
		return SlotClaim{}, ErrClaimNotFound
	}
	return c, nil
}

func (s *MemoryStore) ListCommitted(ctx context.Context, tenantID string, from, to time.Time) ([]SlotClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SlotClaim
	for _, c := range s.claims {
		if c.TenantID != tenantID || c.Status != StatusCommitted {
			continue
		}
		if c.ScheduledAt.Before(from) || !c.ScheduledAt.Before(to) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (s *MemoryStore) SetCalendarEventID(ctx context.Context, tenantID, claimID, calendarEventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimID]
	if !ok || c.TenantID != tenantID {
		return ErrClaimNotFound
	}
	c.CalendarEventID = calendarEventID
	s.claims[claimID] = c
	return nil
}
