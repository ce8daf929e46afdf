package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ugurrates/threat-intel-web/internal/entity"
	"github.com/ugurrates/threat-intel-web/internal/usecase/analysis"
)

// AnalyzeRequest is the analyze endpoint's request body.
type AnalyzeRequest struct {
	IOC string `json:"ioc"`
}

// RateLimitInfo is the quota state echoed with every analyze response.
type RateLimitInfo struct {
	Remaining int `json:"remaining"`
	Limit     int `json:"limit"`
}

// AnalyzeResponse is the analyze endpoint's success body.
type AnalyzeResponse struct {
	Cached    bool                   `json:"cached"`
	IOC       string                 `json:"ioc"`
	Results   *entity.AnalysisResult `json:"results"`
	RateLimit RateLimitInfo          `json:"rate_limit"`
}

func setRateLimitHeaders(w http.ResponseWriter, d entity.QuotaDecision) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", d.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", d.Remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", d.ResetAt.Unix()))
}

// Analyze returns the handler for POST /api/analyze.
func Analyze(svc *analysis.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AnalyzeRequest
		if err := DecodeJSON(r, &req); err != nil {
			ErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		if req.IOC == "" {
			ErrorResponse(w, http.StatusBadRequest, "Missing 'ioc' field", nil)
			return
		}

		outcome, err := svc.Analyze(r.Context(), req.IOC, ClientIP(r))
		if err != nil {
			var quotaErr *analysis.QuotaError
			switch {
			case errors.Is(err, entity.ErrInvalidIndicator):
				ErrorResponse(w, http.StatusBadRequest, "Unrecognized IOC format", err)
			case errors.As(err, &quotaErr):
				d := quotaErr.Decision
				setRateLimitHeaders(w, d)
				JSONResponse(w, http.StatusTooManyRequests, map[string]interface{}{
					"error":       "Rate limit exceeded",
					"message":     fmt.Sprintf("Quota exhausted (%s), retry in %.1f hours", d.Reason, d.ResetHours(time.Now())),
					"reason":      d.Reason,
					"limit":       d.Limit,
					"remaining":   d.Remaining,
					"reset_hours": d.ResetHours(time.Now()),
				})
			default:
				ErrorResponse(w, http.StatusInternalServerError, "Analysis failed", err)
			}
			return
		}

		setRateLimitHeaders(w, outcome.RateLimit)
		JSONResponse(w, http.StatusOK, AnalyzeResponse{
			Cached:  outcome.Cached,
			IOC:     outcome.Result.IOC,
			Results: outcome.Result,
			RateLimit: RateLimitInfo{
				Remaining: outcome.RateLimit.Remaining,
				Limit:     outcome.RateLimit.Limit,
			},
		})
	}
}
