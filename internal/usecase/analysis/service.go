package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ugurrates/threat-intel-web/internal/adapter/external/intel"
	"github.com/ugurrates/threat-intel-web/internal/entity"
	"github.com/ugurrates/threat-intel-web/internal/metrics"
	"github.com/ugurrates/threat-intel-web/internal/usecase/ratelimit"
	"github.com/ugurrates/threat-intel-web/internal/usecase/resultcache"
	"github.com/ugurrates/threat-intel-web/internal/usecase/rules"
	"github.com/ugurrates/threat-intel-web/internal/usecase/scoring"
)

// Aggregator fans one indicator out to the intelligence sources.
type Aggregator interface {
	Analyze(ctx context.Context, ind entity.Indicator) ([]entity.PartialResult, []*intel.SourceError)
}

// QuotaError carries the denial decision for the HTTP layer, which
// turns it into a 429 with reset information.
type QuotaError struct {
	Decision entity.QuotaDecision
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exhausted: %s", e.Decision.Reason)
}

// Outcome is one served analysis: the composed result, whether it came
// from cache, and the caller's quota state after this request.
type Outcome struct {
	Result    *entity.AnalysisResult
	Cached    bool
	RateLimit entity.QuotaDecision
}

// Service orchestrates the full pipeline: parse, admit, cache lookup,
// coalesced aggregation, derivation, scoring, rule generation, cache
// write and quota charge. Concurrent requests for the same normalized
// indicator share one upstream fan-out via singleflight; only the
// request that actually ran the fan-out is charged against the quota.
type Service struct {
	aggregator Aggregator
	scorer     *scoring.Engine
	rules      *rules.Generator
	cache      *resultcache.Cache
	limiter    *ratelimit.Service
	metrics    *metrics.Metrics
	logger     *slog.Logger

	timeout time.Duration
	group   singleflight.Group

	now   func() time.Time
	newID func() string
}

// Config holds analysis service configuration.
type Config struct {
	// Timeout bounds one complete fan-out pass.
	Timeout time.Duration
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewService wires the pipeline stages together.
func NewService(
	aggregator Aggregator,
	scorer *scoring.Engine,
	generator *rules.Generator,
	cache *resultcache.Cache,
	limiter *ratelimit.Service,
	cfg Config,
) *Service {
	if cfg.Timeout == 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		aggregator: aggregator,
		scorer:     scorer,
		rules:      generator,
		cache:      cache,
		limiter:    limiter,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		timeout:    cfg.Timeout,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Analyze runs the pipeline for one raw IOC string on behalf of the
// given caller identity (client IP). Invalid input surfaces
// entity.ErrInvalidIndicator; quota denial surfaces *QuotaError.
func (s *Service) Analyze(ctx context.Context, raw, identity string) (*Outcome, error) {
	ind, err := entity.ParseIndicator(raw)
	if err != nil {
		return nil, err
	}

	decision, err := s.limiter.Admit(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("quota check: %w", err)
	}
	if !decision.Allowed {
		if s.metrics != nil {
			s.metrics.QuotaDenials.WithLabelValues(decision.Reason).Inc()
		}
		return nil, &QuotaError{Decision: decision}
	}

	key := string(ind.Kind) + ":" + ind.Value

	if cached, ok := s.cache.Get(ctx, key); ok {
		s.countOutcome("cached")
		if s.metrics != nil {
			s.metrics.CacheHits.Inc()
		}
		// Cache hits do not consume quota.
		return &Outcome{Result: cached, Cached: true, RateLimit: decision}, nil
	}
	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		// Detach from the triggering request: followers joined after
		// the leader must not lose the result when the leader's client
		// disconnects.
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		return s.compute(runCtx, ind, key), nil
	})
	if err != nil {
		return nil, err
	}
	result := v.(*entity.AnalysisResult)

	if shared {
		s.countOutcome("coalesced")
	} else {
		s.countOutcome("computed")
		// Charge the one fan-out that actually ran.
		if recErr := s.limiter.Record(ctx, identity); recErr != nil {
			s.logger.Warn("quota record failed", "identity", identity, "error", recErr)
		}
		if decision.Remaining > 0 {
			decision.Remaining--
		}
	}

	return &Outcome{Result: result, Cached: false, RateLimit: decision}, nil
}

// compute runs the non-cached pipeline stages and stores the result.
func (s *Service) compute(ctx context.Context, ind entity.Indicator, key string) *entity.AnalysisResult {
	started := s.now()

	partials, failures := s.aggregator.Analyze(ctx, ind)
	derived := s.scorer.Derive(ind, partials)
	score := s.scorer.Score(ind, partials, derived)
	detections := s.rules.Generate(ind, score, derived)

	sources := make(map[string]*entity.PartialResult, len(partials))
	for i := range partials {
		p := partials[i]
		sources[p.Source] = &p
	}

	var sourceErrors map[string]string
	if len(failures) > 0 {
		sourceErrors = make(map[string]string, len(failures))
		for _, f := range failures {
			sourceErrors[f.Source] = string(f.Kind)
			if s.metrics != nil {
				s.metrics.SourceErrors.WithLabelValues(f.Source, string(f.Kind)).Inc()
			}
		}
	}

	families := derived.MalwareFamilies
	if families == nil {
		families = []string{}
	}
	tactics := derived.MitreTactics
	if tactics == nil {
		tactics = []string{}
	}

	result := &entity.AnalysisResult{
		ID:                  s.newID(),
		IOC:                 ind.Value,
		IOCType:             ind.Kind,
		NormalizedScore:     score,
		IntelligenceSources: sources,
		DetectionRules:      detections,
		MalwareFamilies:     families,
		MitreTactics:        tactics,
		DomainAnalysis:      derived.DomainAnalysis,
		SourceErrors:        sourceErrors,
		AnalyzedAt:          s.now().UTC(),
	}

	s.cache.Put(ctx, key, result)

	elapsed := s.now().Sub(started)
	if s.metrics != nil {
		s.metrics.AnalysisDuration.Observe(elapsed.Seconds())
	}
	s.logger.Info("analysis completed",
		"ioc", ind.Value,
		"kind", ind.Kind,
		"score", score.FinalScore,
		"severity", score.Severity,
		"sources", len(partials),
		"failed_sources", len(failures),
		"duration", elapsed,
	)

	return result
}

// Cached returns the cached analysis for a raw IOC without consuming
// quota or triggering a fan-out. Used by the report endpoint.
func (s *Service) Cached(ctx context.Context, raw string) (*entity.AnalysisResult, error) {
	ind, err := entity.ParseIndicator(raw)
	if err != nil {
		return nil, err
	}
	key := string(ind.Kind) + ":" + ind.Value
	result, ok := s.cache.Get(ctx, key)
	if !ok {
		return nil, resultcache.ErrMiss
	}
	return result, nil
}

func (s *Service) countOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.AnalysesTotal.WithLabelValues(outcome).Inc()
	}
}
