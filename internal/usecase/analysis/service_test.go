package analysis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ugurrates/threat-intel-web/internal/adapter/external/intel"
	"github.com/ugurrates/threat-intel-web/internal/entity"
	"github.com/ugurrates/threat-intel-web/internal/usecase/ratelimit"
	"github.com/ugurrates/threat-intel-web/internal/usecase/resultcache"
	"github.com/ugurrates/threat-intel-web/internal/usecase/rules"
	"github.com/ugurrates/threat-intel-web/internal/usecase/scoring"
)

type fakeAggregator struct {
	partials []entity.PartialResult
	failures []*intel.SourceError
	delay    time.Duration
	calls    atomic.Int64
}

func (f *fakeAggregator) Analyze(ctx context.Context, _ entity.Indicator) ([]entity.PartialResult, []*intel.SourceError) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}
	return f.partials, f.failures
}

type memoryQuotaRepo struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *memoryQuotaRepo) Count(_ context.Context, scope, bucket, identity string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[scope+"|"+bucket+"|"+identity], nil
}

func (r *memoryQuotaRepo) Increment(_ context.Context, scope, bucket, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[scope+"|"+bucket+"|"+identity]++
	return nil
}

func (r *memoryQuotaRepo) Cleanup(context.Context, string) error { return nil }

func newTestService(agg Aggregator, limits ratelimit.Limits) *Service {
	engine := scoring.NewEngine(scoring.DefaultConfig())
	cache := resultcache.New(resultcache.NewMemoryStore(), resultcache.Config{TTL: time.Hour})
	limiter := ratelimit.NewService(&memoryQuotaRepo{counts: make(map[string]int)}, limits, nil)

	return NewService(agg, engine, rules.NewGenerator(), cache, limiter, Config{Timeout: 5 * time.Second})
}

func TestAnalyzeRejectsInvalidInput(t *testing.T) {
	s := newTestService(&fakeAggregator{}, ratelimit.DefaultLimits())

	_, err := s.Analyze(context.Background(), "not an ioc at all!!", "203.0.113.1")
	assert.ErrorIs(t, err, entity.ErrInvalidIndicator)
}

func TestAnalyzeAllSourcesClean(t *testing.T) {
	agg := &fakeAggregator{partials: []entity.PartialResult{
		{Source: "abuseipdb", Score: 0, Verdict: "clean"},
		{Source: "virustotal", Score: 0, Verdict: "clean"},
		{Source: "alienvault_otx", Score: 0, Verdict: "clean"},
	}}
	s := newTestService(agg, ratelimit.DefaultLimits())

	out, err := s.Analyze(context.Background(), "192.0.2.1", "203.0.113.1")
	require.NoError(t, err)

	assert.False(t, out.Cached)
	assert.Equal(t, 0, out.Result.NormalizedScore.FinalScore)
	assert.Equal(t, entity.SeverityMinimal, out.Result.NormalizedScore.Severity)
	assert.Zero(t, out.Result.DetectionRules.Count(), "clean indicator produces no rules")
	assert.Len(t, out.Result.IntelligenceSources, 3)
	assert.NotEmpty(t, out.Result.ID)
	assert.NotNil(t, out.Result.MalwareFamilies)
	assert.NotNil(t, out.Result.MitreTactics)
}

func TestAnalyzeDecisiveSourceForcesCritical(t *testing.T) {
	agg := &fakeAggregator{partials: []entity.PartialResult{
		{Source: "usom", Score: 100, Verdict: "blocklisted"},
	}}
	s := newTestService(agg, ratelimit.DefaultLimits())

	out, err := s.Analyze(context.Background(), "kotu-site.example", "203.0.113.1")
	require.NoError(t, err)

	assert.Equal(t, 100, out.Result.NormalizedScore.FinalScore)
	assert.Equal(t, entity.SeverityCritical, out.Result.NormalizedScore.Severity)
	assert.NotZero(t, out.Result.DetectionRules.Count())
}

func TestAnalyzeEntropyOnlyDomain(t *testing.T) {
	s := newTestService(&fakeAggregator{}, ratelimit.DefaultLimits())

	out, err := s.Analyze(context.Background(), "x7q9z1.example", "203.0.113.1")
	require.NoError(t, err)

	require.NotNil(t, out.Result.DomainAnalysis)
	assert.True(t, out.Result.DomainAnalysis.IsSuspicious)
	assert.Equal(t, 15, out.Result.NormalizedScore.FinalScore)
	assert.Equal(t, entity.SeverityLow, out.Result.NormalizedScore.Severity)
}

func TestAnalyzeRecordsSourceErrors(t *testing.T) {
	agg := &fakeAggregator{
		partials: []entity.PartialResult{{Source: "virustotal", Score: 80, Verdict: "malicious"}},
		failures: []*intel.SourceError{{Source: "abuseipdb", Kind: intel.ErrTimeout}},
	}
	s := newTestService(agg, ratelimit.DefaultLimits())

	out, err := s.Analyze(context.Background(), "198.51.100.7", "203.0.113.1")
	require.NoError(t, err)

	assert.Equal(t, string(intel.ErrTimeout), out.Result.SourceErrors["abuseipdb"])
}

func TestAnalyzeCacheHitSkipsFanOutAndQuota(t *testing.T) {
	agg := &fakeAggregator{partials: []entity.PartialResult{
		{Source: "abuseipdb", Score: 90, Verdict: "malicious"},
	}}
	s := newTestService(agg, ratelimit.DefaultLimits())
	ctx := context.Background()

	first, err := s.Analyze(ctx, "198.51.100.7", "203.0.113.1")
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := s.Analyze(ctx, "198.51.100.7", "203.0.113.1")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Result.ID, second.Result.ID)
	assert.Equal(t, int64(1), agg.calls.Load(), "cache hit must not refetch")

	// Only the computed analysis consumed quota.
	usage, err := s.limiter.Usage(ctx, "203.0.113.1")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.IdentityToday)
}

func TestAnalyzeQuotaDenied(t *testing.T) {
	s := newTestService(&fakeAggregator{}, ratelimit.Limits{
		PerIdentityDaily: 1, GlobalDaily: 100, GlobalMonthly: 500,
	})
	ctx := context.Background()

	_, err := s.Analyze(ctx, "192.0.2.10", "203.0.113.1")
	require.NoError(t, err)

	_, err = s.Analyze(ctx, "192.0.2.11", "203.0.113.1")
	var quotaErr *QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, entity.QuotaReasonIPDaily, quotaErr.Decision.Reason)
	assert.False(t, quotaErr.Decision.Allowed)
}

func TestAnalyzeCoalescesConcurrentRequests(t *testing.T) {
	agg := &fakeAggregator{
		partials: []entity.PartialResult{{Source: "abuseipdb", Score: 90, Verdict: "malicious"}},
		delay:    150 * time.Millisecond,
	}
	s := newTestService(agg, ratelimit.DefaultLimits())

	const n = 8
	var wg sync.WaitGroup
	outcomes := make([]*Outcome, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = s.Analyze(context.Background(), "198.51.100.7", "203.0.113.1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, outcomes[i].Result)
		assert.Equal(t, outcomes[0].Result.ID, outcomes[i].Result.ID, "all callers share one result")
	}
	assert.Equal(t, int64(1), agg.calls.Load(), "one fan-out for concurrent identical requests")

	// Only the leader was charged.
	usage, err := s.limiter.Usage(context.Background(), "203.0.113.1")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.IdentityToday)
}

func TestCachedLookupDoesNotFanOut(t *testing.T) {
	agg := &fakeAggregator{}
	s := newTestService(agg, ratelimit.DefaultLimits())

	_, err := s.Cached(context.Background(), "192.0.2.1")
	assert.ErrorIs(t, err, resultcache.ErrMiss)
	assert.Zero(t, agg.calls.Load())
}
