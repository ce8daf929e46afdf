package handlers

import (
	"net/http"

	"github.com/ugurrates/threat-intel-web/internal/usecase/ratelimit"
	"github.com/ugurrates/threat-intel-web/internal/usecase/resultcache"
)

// Stats returns the handler for GET /api/stats: result cache counters
// plus the caller's own quota consumption.
func Stats(cache *resultcache.Cache, limiter *ratelimit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		usage, err := limiter.Usage(r.Context(), ClientIP(r))
		if err != nil {
			ErrorResponse(w, http.StatusInternalServerError, "Failed to read quota state", err)
			return
		}

		JSONResponse(w, http.StatusOK, map[string]interface{}{
			"cache": cache.Stats(),
			"quota": usage,
		})
	}
}
