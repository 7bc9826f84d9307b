package auth

import (
	"sync"
	"time"
)

type cacheEntry struct {
	claims    Claims
	expiresAt time.Time
}

// claimsCache maps raw token strings to verified claims. Entries are
// read-only once inserted and expire lazily on the next read; there is no
// background sweeper. Safe for concurrent use; lives for the process
// lifetime.
type claimsCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry

	now func() time.Time // stubbed in tests
}

func newClaimsCache() *claimsCache {
	return &claimsCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the cached claims for token, dropping the entry if
// it has expired.
func (c *claimsCache) Get(token string) (*Claims, bool) {
	c.mu.RLock()
	entry, ok := c.entries[token]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		// Re-check: a concurrent verification may have refreshed the entry.
		if cur, ok := c.entries[token]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.entries, token)
		}
		c.mu.Unlock()
		return nil, false
	}
	claims := entry.claims
	return &claims, true
}

func (c *claimsCache) Put(token string, claims Claims, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = cacheEntry{claims: claims, expiresAt: expiresAt}
}
