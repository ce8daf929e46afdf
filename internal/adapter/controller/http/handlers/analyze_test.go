package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ugurrates/threat-intel-web/internal/adapter/external/intel"
	"github.com/ugurrates/threat-intel-web/internal/entity"
	"github.com/ugurrates/threat-intel-web/internal/usecase/analysis"
	"github.com/ugurrates/threat-intel-web/internal/usecase/ratelimit"
	"github.com/ugurrates/threat-intel-web/internal/usecase/resultcache"
	"github.com/ugurrates/threat-intel-web/internal/usecase/rules"
	"github.com/ugurrates/threat-intel-web/internal/usecase/scoring"
)

type stubAggregator struct {
	partials []entity.PartialResult
}

func (s *stubAggregator) Analyze(context.Context, entity.Indicator) ([]entity.PartialResult, []*intel.SourceError) {
	return s.partials, nil
}

type memQuotaRepo struct {
	counts map[string]int
}

func (r *memQuotaRepo) Count(_ context.Context, scope, bucket, identity string) (int, error) {
	return r.counts[scope+"|"+bucket+"|"+identity], nil
}

func (r *memQuotaRepo) Increment(_ context.Context, scope, bucket, identity string) error {
	r.counts[scope+"|"+bucket+"|"+identity]++
	return nil
}

func (r *memQuotaRepo) Cleanup(context.Context, string) error { return nil }

func newAnalyzeService(agg analysis.Aggregator, limits ratelimit.Limits) *analysis.Service {
	return analysis.NewService(
		agg,
		scoring.NewEngine(scoring.DefaultConfig()),
		rules.NewGenerator(),
		resultcache.New(resultcache.NewMemoryStore(), resultcache.Config{TTL: time.Hour}),
		ratelimit.NewService(&memQuotaRepo{counts: make(map[string]int)}, limits, nil),
		analysis.Config{Timeout: 5 * time.Second},
	)
}

func postAnalyze(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewBufferString(body))
	req.RemoteAddr = "203.0.113.1:55511"
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestAnalyzeHandlerSuccess(t *testing.T) {
	svc := newAnalyzeService(&stubAggregator{partials: []entity.PartialResult{
		{Source: "abuseipdb", Score: 90, Verdict: "malicious"},
	}}, ratelimit.DefaultLimits())
	handler := Analyze(svc)

	rec := postAnalyze(t, handler, `{"ioc": "198.51.100.7"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Cached)
	assert.Equal(t, "198.51.100.7", resp.IOC)
	assert.Equal(t, entity.SeverityHigh, resp.Results.NormalizedScore.Severity)
	assert.Equal(t, 5, resp.RateLimit.Limit)
	assert.Equal(t, 4, resp.RateLimit.Remaining)

	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestAnalyzeHandlerCachedSecondCall(t *testing.T) {
	svc := newAnalyzeService(&stubAggregator{}, ratelimit.DefaultLimits())
	handler := Analyze(svc)

	first := postAnalyze(t, handler, `{"ioc": "192.0.2.1"}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := postAnalyze(t, handler, `{"ioc": "192.0.2.1"}`)
	require.Equal(t, http.StatusOK, second.Code)

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
}

func TestAnalyzeHandlerRejectsBadInput(t *testing.T) {
	svc := newAnalyzeService(&stubAggregator{}, ratelimit.DefaultLimits())
	handler := Analyze(svc)

	assert.Equal(t, http.StatusBadRequest, postAnalyze(t, handler, `{`).Code)
	assert.Equal(t, http.StatusBadRequest, postAnalyze(t, handler, `{"ioc": ""}`).Code)
	assert.Equal(t, http.StatusBadRequest, postAnalyze(t, handler, `{"ioc": "!!not-an-ioc!!"}`).Code)
}

func TestAnalyzeHandlerQuotaDenial(t *testing.T) {
	svc := newAnalyzeService(&stubAggregator{}, ratelimit.Limits{
		PerIdentityDaily: 1, GlobalDaily: 100, GlobalMonthly: 500,
	})
	handler := Analyze(svc)

	require.Equal(t, http.StatusOK, postAnalyze(t, handler, `{"ioc": "192.0.2.10"}`).Code)

	rec := postAnalyze(t, handler, `{"ioc": "192.0.2.11"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Rate limit exceeded", resp["error"])
	assert.Equal(t, entity.QuotaReasonIPDaily, resp["reason"])
	assert.Contains(t, resp, "reset_hours")
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}
