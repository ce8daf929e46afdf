package handlers

import (
	"net/http"
	"time"

	"github.com/ugurrates/threat-intel-web/internal/usecase/ratelimit"
	"github.com/ugurrates/threat-intel-web/internal/usecase/rules"
)

// Info returns the handler for the root endpoint: a service self
// description with endpoints and limits, so the API is explorable
// without documentation.
func Info(limits ratelimit.Limits, cacheTTL time.Duration, sources []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		JSONResponse(w, http.StatusOK, map[string]interface{}{
			"service":     "threat-intel-web",
			"description": "IOC analysis engine: multi-source aggregation, normalized scoring, detection rule generation",
			"endpoints": map[string]string{
				"POST /api/analyze":     "Analyze an IOC (IP, domain, URL or file hash)",
				"GET /api/health":       "Service health",
				"GET /api/stats":        "Cache and quota statistics",
				"GET /api/providers":    "Intelligence source status",
				"GET /api/report/{ioc}": "PDF report for a cached analysis",
				"GET /metrics":          "Prometheus metrics",
			},
			"ioc_types":      []string{"ipv4", "ipv6", "domain", "url", "md5", "sha1", "sha256"},
			"rule_platforms": rules.Platforms(),
			"sources":        sources,
			"cache_ttl":      cacheTTL.String(),
			"limits": map[string]int{
				"per_ip_daily":   limits.PerIdentityDaily,
				"global_daily":   limits.GlobalDaily,
				"global_monthly": limits.GlobalMonthly,
			},
		})
	}
}
