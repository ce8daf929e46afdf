package intel

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// Aggregator fans out one indicator to every applicable provider
// concurrently and collects partial results. Partial failure is normal:
// slow or failing providers contribute a SourceError instead of
// aborting the request, and zero successes is still a valid outcome.
type Aggregator struct {
	providers        []Provider
	perSourceTimeout time.Duration
	logger           *slog.Logger
}

// AggregatorConfig holds aggregator configuration.
type AggregatorConfig struct {
	PerSourceTimeout time.Duration
	Logger           *slog.Logger
}

// NewAggregator creates an aggregator over the given providers.
func NewAggregator(providers []Provider, cfg AggregatorConfig) *Aggregator {
	if cfg.PerSourceTimeout == 0 {
		cfg.PerSourceTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Aggregator{
		providers:        providers,
		perSourceTimeout: cfg.PerSourceTimeout,
		logger:           cfg.Logger,
	}
}

// Analyze queries all configured providers that support the indicator's
// kind. Results are returned sorted by source name so downstream folding
// never depends on completion order. The caller bounds the whole pass
// with ctx; individual calls are additionally bounded per source.
func (a *Aggregator) Analyze(ctx context.Context, ind entity.Indicator) ([]entity.PartialResult, []*SourceError) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		partials []entity.PartialResult
		failures []*SourceError
	)

	for _, p := range a.providers {
		if !p.IsConfigured() || !p.Supports(ind.Kind) {
			continue
		}

		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, a.perSourceTimeout)
			defer cancel()

			result, err := p.Query(callCtx, ind)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				srcErr := a.classify(p.Name(), err)
				a.logger.Warn("intel source failed",
					"source", p.Name(),
					"ioc", ind.Value,
					"kind", srcErr.Kind,
					"error", srcErr.Err,
				)
				failures = append(failures, srcErr)
				return
			}

			partials = append(partials, *result)
		}(p)
	}

	wg.Wait()

	sort.Slice(partials, func(i, j int) bool { return partials[i].Source < partials[j].Source })
	sort.Slice(failures, func(i, j int) bool { return failures[i].Source < failures[j].Source })

	return partials, failures
}

// classify wraps a provider error into a typed SourceError.
func (a *Aggregator) classify(source string, err error) *SourceError {
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return srcErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &SourceError{Source: source, Kind: ErrTimeout, Err: err}
	}
	return &SourceError{Source: source, Kind: ErrUpstream, Err: err}
}

// ProviderStatus reports every provider with its configuration state.
func (a *Aggregator) ProviderStatus() []ProviderStatus {
	descriptions := map[string]string{
		"abuseipdb":         "IP abuse reports & confidence scoring",
		"virustotal":        "Multi-engine consensus & reputation",
		"alienvault_otx":    "Community pulse context & IOCs",
		"usom":              "National CERT blocklist (decisive)",
		"threatfox":         "C2 & malware distribution tracking",
		"urlhaus":           "Malware URL tracking",
		"shodan_internetdb": "Exposure context (ports, vulns)",
	}

	statuses := make([]ProviderStatus, 0, len(a.providers))
	for _, p := range a.providers {
		statuses = append(statuses, ProviderStatus{
			Name:        p.Name(),
			Configured:  p.IsConfigured(),
			Description: descriptions[p.Name()],
		})
	}
	return statuses
}

// ConfiguredSources returns the names of providers able to serve queries.
func (a *Aggregator) ConfiguredSources() []string {
	var names []string
	for _, p := range a.providers {
		if p.IsConfigured() {
			names = append(names, p.Name())
		}
	}
	sort.Strings(names)
	return names
}
