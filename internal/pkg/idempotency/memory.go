package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	inflight  bool
	outcome   Outcome
	expiresAt time.Time
}

// MemoryCache is an in-process Cache with the same lease semantics as the
// Redis implementation. It backs the development profile when no Redis URL is
// configured, and the test suites.
type MemoryCache struct {
	mu  sync.Mutex
	m   map[string]memoryEntry
	now func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string]memoryEntry), now: time.Now}
}

// WithClock overrides the cache's clock. Intended for tests.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) TryBegin(_ context.Context, fingerprint string, leaseTTL time.Duration) (BeginResult, Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry, ok := c.m[fingerprint]
	if ok && now.Before(entry.expiresAt) {
		if entry.inflight {
			return AlreadyInFlight, "", nil
		}
		return AlreadySettled, entry.outcome, nil
	}

	c.m[fingerprint] = memoryEntry{inflight: true, expiresAt: now.Add(leaseTTL)}
	return LeaseGranted, "", nil
}

func (c *MemoryCache) Settle(_ context.Context, fingerprint string, outcome Outcome, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[fingerprint] = memoryEntry{outcome: outcome, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Release(_ context.Context, fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.m[fingerprint]; ok && entry.inflight {
		delete(c.m, fingerprint)
	}
	return nil
}
