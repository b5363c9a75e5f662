package tenant

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-process Repository for tests and local runs.
type MemoryRepo struct {
	mu         sync.RWMutex
	tenants    map[string]Tenant
	assistants map[string][]string
	phones     map[string][]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		tenants:    map[string]Tenant{},
		assistants: map[string][]string{},
		phones:     map[string][]string{},
	}
}

func (r *MemoryRepo) Put(t Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = t
}

func (r *MemoryRepo) AddAssistant(tenantID, assistantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assistants[assistantID] = append(r.assistants[assistantID], tenantID)
}

func (r *MemoryRepo) AddPhoneNumber(tenantID, e164 string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phones[e164] = append(r.phones[e164], tenantID)
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID string) (Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepo) TenantIDsByAssistantID(ctx context.Context, assistantID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedCopy(r.assistants[assistantID]), nil
}

func (r *MemoryRepo) TenantIDsByPhoneNumber(ctx context.Context, e164 string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedCopy(r.phones[e164]), nil
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
