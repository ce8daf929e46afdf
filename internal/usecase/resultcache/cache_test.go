package resultcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

func sampleResult(ioc string, score int) *entity.AnalysisResult {
	return &entity.AnalysisResult{
		IOC:     ioc,
		IOCType: entity.KindIPv4,
		NormalizedScore: entity.NormalizedScore{
			FinalScore: score,
			Severity:   entity.SeverityForScore(score),
		},
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c := New(NewMemoryStore(), Config{TTL: time.Hour})
	ctx := context.Background()

	_, ok := c.Get(ctx, "192.0.2.1")
	assert.False(t, ok)

	c.Put(ctx, "192.0.2.1", sampleResult("192.0.2.1", 80))

	got, ok := c.Get(ctx, "192.0.2.1")
	require.True(t, ok)
	assert.Equal(t, 80, got.NormalizedScore.FinalScore)
}

func TestCacheExpiryIsLazy(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, Config{TTL: time.Hour})
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Put(ctx, "k", sampleResult("k", 50))

	c.now = func() time.Time { return base.Add(59 * time.Minute) }
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok, "entry within TTL")

	c.now = func() time.Time { return base.Add(61 * time.Minute) }
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok, "entry past TTL is a miss")

	// Expired entry was evicted from the store too.
	_, _, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCachePutReplacesWholesale(t *testing.T) {
	c := New(NewMemoryStore(), Config{TTL: time.Hour})
	ctx := context.Background()

	c.Put(ctx, "k", sampleResult("k", 20))
	c.Put(ctx, "k", sampleResult("k", 95))

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 95, got.NormalizedScore.FinalScore)
	assert.Equal(t, entity.SeverityCritical, got.NormalizedScore.Severity)
}

func TestCacheRepopulatesMemoryFromStore(t *testing.T) {
	store := NewMemoryStore()

	first := New(store, Config{TTL: time.Hour})
	first.Put(context.Background(), "k", sampleResult("k", 70))

	// Fresh cache over the same store, simulating a restart.
	second := New(store, Config{TTL: time.Hour})
	got, ok := second.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, 70, got.NormalizedScore.FinalScore)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (*entity.AnalysisResult, time.Time, error) {
	return nil, time.Time{}, errors.New("db down")
}
func (failingStore) Put(context.Context, string, *entity.AnalysisResult, time.Time, time.Duration) error {
	return errors.New("db down")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("db down") }

func TestCacheDegradesWhenStoreFails(t *testing.T) {
	c := New(failingStore{}, Config{TTL: time.Hour})
	ctx := context.Background()

	// Write failure must not lose the computed result.
	c.Put(ctx, "k", sampleResult("k", 40))

	got, ok := c.Get(ctx, "k")
	require.True(t, ok, "memory layer still serves after store write failure")
	assert.Equal(t, 40, got.NormalizedScore.FinalScore)
}

func TestCacheStats(t *testing.T) {
	c := New(NewMemoryStore(), Config{TTL: time.Hour})
	ctx := context.Background()

	c.Get(ctx, "missing")
	c.Put(ctx, "k", sampleResult("k", 10))
	c.Get(ctx, "k")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
}
