package resultcache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// ErrMiss is returned by stores when no fresh entry exists for a key.
var ErrMiss = errors.New("cache miss")

// Store is the persistence behind the cache. Implementations return
// ErrMiss for absent keys; the cache itself handles TTL expiry.
type Store interface {
	Get(ctx context.Context, key string) (*entity.AnalysisResult, time.Time, error)
	Put(ctx context.Context, key string, result *entity.AnalysisResult, storedAt time.Time, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache holds composed analysis results for a fixed TTL, keyed by
// normalized indicator. A memory layer fronts the persistent store so a
// restart does not lose the cache, while the hot path stays allocation
// only. Entries are immutable once written and replaced wholesale on
// recomputation; expiry is lazy on access.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu  sync.RWMutex
	mem map[string]memEntry

	hits   int64
	misses int64
}

type memEntry struct {
	result   *entity.AnalysisResult
	storedAt time.Time
}

// Config holds cache configuration.
type Config struct {
	TTL    time.Duration
	Logger *slog.Logger
}

// New creates a result cache over the given store.
func New(store Store, cfg Config) *Cache {
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Cache{
		store:  store,
		ttl:    cfg.TTL,
		logger: cfg.Logger,
		now:    time.Now,
		mem:    make(map[string]memEntry),
	}
}

// TTL returns the configured result TTL.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached result for a normalized indicator key, or false
// on a miss. Entries past their TTL are treated as misses and evicted.
func (c *Cache) Get(ctx context.Context, key string) (*entity.AnalysisResult, bool) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.mem[key]
	c.mu.RUnlock()

	if ok {
		if now.Sub(entry.storedAt) <= c.ttl {
			c.markHit()
			cp := *entry.result
			return &cp, true
		}
		c.evict(ctx, key)
		c.markMiss()
		return nil, false
	}

	result, storedAt, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("cache store read failed", "key", key, "error", err)
		}
		c.markMiss()
		return nil, false
	}

	if now.Sub(storedAt) > c.ttl {
		c.evict(ctx, key)
		c.markMiss()
		return nil, false
	}

	c.mu.Lock()
	c.mem[key] = memEntry{result: result, storedAt: storedAt}
	c.mu.Unlock()

	c.markHit()
	cp := *result
	return &cp, true
}

// Put replaces any existing entry for the key atomically. A store write
// failure is logged, not surfaced: the computed result is still valid
// and the memory layer keeps serving it.
func (c *Cache) Put(ctx context.Context, key string, result *entity.AnalysisResult) {
	storedAt := c.now()

	c.mu.Lock()
	c.mem[key] = memEntry{result: result, storedAt: storedAt}
	c.mu.Unlock()

	if err := c.store.Put(ctx, key, result, storedAt, c.ttl); err != nil {
		c.logger.Warn("cache store write failed", "key", key, "error", err)
	}
}

func (c *Cache) evict(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()

	if err := c.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrMiss) {
		c.logger.Warn("cache store delete failed", "key", key, "error", err)
	}
}

func (c *Cache) markHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *Cache) markMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// Stats contains cache statistics.
type Stats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	TTL     string  `json:"ttl"`
}

// Stats returns a snapshot of cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}

	return Stats{
		Size:    len(c.mem),
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
		TTL:     c.ttl.String(),
	}
}

// MemoryStore is a Store kept entirely in memory, used in tests and
// when no database is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]memoryStoreEntry
}

type memoryStoreEntry struct {
	result   *entity.AnalysisResult
	storedAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]memoryStoreEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*entity.AnalysisResult, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.data[key]
	if !ok {
		return nil, time.Time{}, ErrMiss
	}
	return entry.result, entry.storedAt, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, result *entity.AnalysisResult, storedAt time.Time, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = memoryStoreEntry{result: result, storedAt: storedAt}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
