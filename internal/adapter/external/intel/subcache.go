package intel

import (
	"sync"
	"time"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// subCache is an in-memory TTL cache for a single provider's partial
// results. Quota-constrained providers (Shodan InternetDB) use it with a
// long TTL so repeat lookups within the window never hit the upstream.
// A hit here does not bypass the top-level result cache check; it only
// spares the provider call during a fresh aggregation.
type subCache struct {
	mu   sync.RWMutex
	data map[string]subEntry
	ttl  time.Duration
	now  func() time.Time
}

type subEntry struct {
	result   *entity.PartialResult
	storedAt time.Time
}

func newSubCache(ttl time.Duration) *subCache {
	return &subCache{
		data: make(map[string]subEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// get returns a copy of the cached result, lazily evicting expired entries.
func (c *subCache) get(key string) (*entity.PartialResult, bool) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return nil, false
	}

	cp := *entry.result
	return &cp, true
}

func (c *subCache) set(key string, result *entity.PartialResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = subEntry{result: result, storedAt: c.now()}
}
