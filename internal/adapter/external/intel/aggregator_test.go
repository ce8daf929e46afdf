package intel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

type fakeProvider struct {
	name       string
	configured bool
	kinds      map[entity.Kind]bool
	result     *entity.PartialResult
	err        error
	delay      time.Duration
	calls      atomic.Int64
}

func (f *fakeProvider) Name() string       { return f.name }
func (f *fakeProvider) IsConfigured() bool { return f.configured }

func (f *fakeProvider) Supports(k entity.Kind) bool {
	if f.kinds == nil {
		return true
	}
	return f.kinds[k]
}

func (f *fakeProvider) Query(ctx context.Context, ind entity.Indicator) (*entity.PartialResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func ipIndicator(t *testing.T) entity.Indicator {
	t.Helper()
	ind, err := entity.ParseIndicator("192.0.2.1")
	require.NoError(t, err)
	return ind
}

func TestAggregatorCollectsAndSortsResults(t *testing.T) {
	providers := []Provider{
		&fakeProvider{name: "zeta", configured: true,
			result: &entity.PartialResult{Source: "zeta", Score: 10}},
		&fakeProvider{name: "alpha", configured: true,
			result: &entity.PartialResult{Source: "alpha", Score: 90}},
		&fakeProvider{name: "mid", configured: true,
			result: &entity.PartialResult{Source: "mid", Score: 50}},
	}

	agg := NewAggregator(providers, AggregatorConfig{})
	partials, failures := agg.Analyze(context.Background(), ipIndicator(t))

	require.Len(t, partials, 3)
	assert.Empty(t, failures)
	assert.Equal(t, "alpha", partials[0].Source)
	assert.Equal(t, "mid", partials[1].Source)
	assert.Equal(t, "zeta", partials[2].Source)
}

func TestAggregatorToleratesPartialFailure(t *testing.T) {
	providers := []Provider{
		&fakeProvider{name: "good", configured: true,
			result: &entity.PartialResult{Source: "good", Score: 80}},
		&fakeProvider{name: "bad", configured: true, err: errors.New("connection refused")},
		&fakeProvider{name: "quota", configured: true,
			err: &SourceError{Source: "quota", Kind: ErrQuotaExhausted, Err: errors.New("exhausted")}},
	}

	agg := NewAggregator(providers, AggregatorConfig{})
	partials, failures := agg.Analyze(context.Background(), ipIndicator(t))

	require.Len(t, partials, 1)
	assert.Equal(t, "good", partials[0].Source)

	require.Len(t, failures, 2)
	assert.Equal(t, "bad", failures[0].Source)
	assert.Equal(t, ErrUpstream, failures[0].Kind)
	assert.Equal(t, "quota", failures[1].Source)
	assert.Equal(t, ErrQuotaExhausted, failures[1].Kind)
}

func TestAggregatorZeroSuccessesIsNotAnError(t *testing.T) {
	providers := []Provider{
		&fakeProvider{name: "down", configured: true, err: errors.New("boom")},
	}

	agg := NewAggregator(providers, AggregatorConfig{})
	partials, failures := agg.Analyze(context.Background(), ipIndicator(t))

	assert.Empty(t, partials)
	assert.Len(t, failures, 1)
}

func TestAggregatorPerSourceTimeout(t *testing.T) {
	providers := []Provider{
		&fakeProvider{name: "slow", configured: true, delay: 500 * time.Millisecond,
			result: &entity.PartialResult{Source: "slow"}},
		&fakeProvider{name: "fast", configured: true,
			result: &entity.PartialResult{Source: "fast", Score: 40}},
	}

	agg := NewAggregator(providers, AggregatorConfig{PerSourceTimeout: 50 * time.Millisecond})

	start := time.Now()
	partials, failures := agg.Analyze(context.Background(), ipIndicator(t))
	elapsed := time.Since(start)

	require.Len(t, partials, 1)
	assert.Equal(t, "fast", partials[0].Source)
	require.Len(t, failures, 1)
	assert.Equal(t, "slow", failures[0].Source)
	assert.Equal(t, ErrTimeout, failures[0].Kind)
	assert.Less(t, elapsed, 400*time.Millisecond, "timed-out source must not block the pass")
}

func TestAggregatorSkipsInapplicableProviders(t *testing.T) {
	ipOnly := &fakeProvider{name: "ip_only", configured: true,
		kinds:  map[entity.Kind]bool{entity.KindIPv4: true},
		result: &entity.PartialResult{Source: "ip_only"}}
	unconfigured := &fakeProvider{name: "nokey", configured: false,
		result: &entity.PartialResult{Source: "nokey"}}
	universal := &fakeProvider{name: "all", configured: true,
		result: &entity.PartialResult{Source: "all"}}

	agg := NewAggregator([]Provider{ipOnly, unconfigured, universal}, AggregatorConfig{})

	hash, err := entity.ParseIndicator("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.NoError(t, err)

	partials, failures := agg.Analyze(context.Background(), hash)
	require.Len(t, partials, 1)
	assert.Equal(t, "all", partials[0].Source)
	assert.Empty(t, failures)

	assert.EqualValues(t, 0, ipOnly.calls.Load())
	assert.EqualValues(t, 0, unconfigured.calls.Load())
	assert.EqualValues(t, 1, universal.calls.Load())
}

func TestSubCacheExpiry(t *testing.T) {
	c := newSubCache(time.Hour)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.set("1.2.3.4", &entity.PartialResult{Source: "shodan_internetdb", Score: 30})

	got, ok := c.get("1.2.3.4")
	require.True(t, ok)
	assert.Equal(t, 30, got.Score)

	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, ok = c.get("1.2.3.4")
	assert.False(t, ok, "entry past TTL must be a miss")
}
