package catalog

import (
	"sync"
	"time"
)

// resultCache memoizes search results (including misses) for a TTL. Safe for
// concurrent use.
type resultCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	result  Result
	expires time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (rc *resultCache) get(key string) (Result, bool) {
	rc.mu.RLock()
	e, ok := rc.entries[key]
	rc.mu.RUnlock()
	if !ok || rc.now().After(e.expires) {
		return Result{}, false
	}
	return e.result, true
}

func (rc *resultCache) put(key string, res Result) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	// Opportunistic sweep keeps the map from growing without bound.
	if len(rc.entries)%64 == 0 {
		now := rc.now()
		for k, e := range rc.entries {
			if now.After(e.expires) {
				delete(rc.entries, k)
			}
		}
	}
	rc.entries[key] = cacheEntry{result: res, expires: rc.now().Add(rc.ttl)}
}
