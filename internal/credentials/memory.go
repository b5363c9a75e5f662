package credentials

import (
	"context"
	"sync"
	"time"
)

// MemorySource is a Source for tests and local runs.
type MemorySource struct {
	mu    sync.RWMutex
	creds map[string]Credential
	calls int
}

func NewMemorySource() *MemorySource {
	return &MemorySource{creds: map[string]Credential{}}
}

func (s *MemorySource) Put(c Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[c.TenantID+":"+string(c.Provider)] = c
}

func (s *MemorySource) Revoke(tenantID string, provider Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, tenantID+":"+string(provider))
}

// Calls reports how many lookups reached the source.
func (s *MemorySource) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *MemorySource) Get(ctx context.Context, tenantID string, provider Provider) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	c, ok := s.creds[tenantID+":"+string(provider)]
	if !ok {
		return Credential{}, &NotConfiguredError{TenantID: tenantID, Provider: provider}
	}
	return c, nil
}

type memoryEntry struct {
	cred    Credential
	expires time.Time
}

// MemoryCache is an in-process Cache with per-entry expiry.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]memoryEntry{}, clock: time.Now}
}

func (c *MemoryCache) Get(ctx context.Context, tenantID string, provider Provider) (Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := tenantID + ":" + string(provider)
	e, ok := c.entries[k]
	if !ok {
		return Credential{}, errCacheMiss
	}
	if !c.clock().Before(e.expires) {
		delete(c.entries, k)
		return Credential{}, errCacheMiss
	}
	return e.cred, nil
}

func (c *MemoryCache) Set(ctx context.Context, cred Credential, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cred.TenantID+":"+string(cred.Provider)] = memoryEntry{cred: cred, expires: c.clock().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, tenantID string, provider Provider) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID+":"+string(provider))
	return nil
}
