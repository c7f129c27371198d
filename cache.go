package authgate

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// PermissionCache stores resolved effective-permission sets keyed by user id.
// Entries are pure derived data: last-writer-wins under concurrent writes is
// acceptable because every entry is TTL-bounded and rebuilt from the store on
// miss. Invalidate must be called on every role-assignment mutation path; an
// uninvalidated entry is a security defect, not a staleness nuisance.
type PermissionCache interface {
	Get(userID string) ([]string, bool)
	Set(userID string, permissions []string, ttl time.Duration)
	Invalidate(userID string)
}

// DefaultCacheTTL bounds how stale a cached permission set may be when an
// invalidation hook is missed by an out-of-band store write.
const DefaultCacheTTL = 5 * time.Minute

type permCacheEntry struct {
	permissions []string
	expiresAt   time.Time
}

// MemoryPermissionCache is a map-backed cache with per-entry TTL.
type MemoryPermissionCache struct {
	mu      sync.RWMutex
	entries map[string]*permCacheEntry
}

func NewMemoryPermissionCache() *MemoryPermissionCache {
	return &MemoryPermissionCache{entries: make(map[string]*permCacheEntry)}
}

func (c *MemoryPermissionCache) Get(userID string) ([]string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.Invalidate(userID)
		return nil, false
	}
	out := make([]string, len(entry.permissions))
	copy(out, entry.permissions)
	return out, true
}

func (c *MemoryPermissionCache) Set(userID string, permissions []string, ttl time.Duration) {
	cp := make([]string, len(permissions))
	copy(cp, permissions)
	c.mu.Lock()
	c.entries[userID] = &permCacheEntry{permissions: cp, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

func (c *MemoryPermissionCache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

// Purge drops every entry. Used when a change cannot be attributed to a
// bounded set of users, e.g. editing a system role.
func (c *MemoryPermissionCache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]*permCacheEntry)
	c.mu.Unlock()
}

// RistrettoPermissionCache backs the permission cache with a ristretto
// LRU+TTL cache, bounding memory under large user populations.
type RistrettoPermissionCache struct {
	cache *ristretto.Cache
}

// NewRistrettoPermissionCache sizes the cache from the usual ristretto knobs.
// Zero values fall back to defaults suitable for tens of thousands of users.
func NewRistrettoPermissionCache(numCounters, maxCost, bufferItems int64) (*RistrettoPermissionCache, error) {
	if numCounters <= 0 {
		numCounters = 1 << 16
	}
	if maxCost <= 0 {
		maxCost = 1 << 24
	}
	if bufferItems <= 0 {
		bufferItems = 64
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoPermissionCache{cache: cache}, nil
}

func (c *RistrettoPermissionCache) Get(userID string) ([]string, bool) {
	v, ok := c.cache.Get(userID)
	if !ok {
		return nil, false
	}
	perms, ok := v.([]string)
	if !ok {
		return nil, false
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out, true
}

func (c *RistrettoPermissionCache) Set(userID string, permissions []string, ttl time.Duration) {
	cp := make([]string, len(permissions))
	copy(cp, permissions)
	cost := int64(0)
	for _, p := range cp {
		cost += int64(len(p))
	}
	if cost == 0 {
		cost = 1
	}
	c.cache.SetWithTTL(userID, cp, cost, ttl)
	// Wait for the set buffer to drain so a subsequent read observes the
	// entry; resolver correctness does not depend on it, only hit rate.
	c.cache.Wait()
}

func (c *RistrettoPermissionCache) Invalidate(userID string) {
	c.cache.Del(userID)
}

func (c *RistrettoPermissionCache) Close() {
	c.cache.Close()
}
