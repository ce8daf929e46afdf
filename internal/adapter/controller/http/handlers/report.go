package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/ugurrates/threat-intel-web/internal/entity"
	"github.com/ugurrates/threat-intel-web/internal/usecase/analysis"
	"github.com/ugurrates/threat-intel-web/internal/usecase/reports"
	"github.com/ugurrates/threat-intel-web/internal/usecase/resultcache"
)

// Report returns the handler for GET /api/report/{ioc}: a PDF render
// of an already-cached analysis. Reports never trigger a fan-out and
// never consume quota; analyze first, then fetch the report.
func Report(svc *analysis.Service, generator *reports.PDFGenerator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := url.PathUnescape(chi.URLParam(r, "ioc"))
		if err != nil {
			ErrorResponse(w, http.StatusBadRequest, "Malformed IOC parameter", err)
			return
		}

		result, err := svc.Cached(r.Context(), raw)
		if err != nil {
			switch {
			case errors.Is(err, entity.ErrInvalidIndicator):
				ErrorResponse(w, http.StatusBadRequest, "Unrecognized IOC format", err)
			case errors.Is(err, resultcache.ErrMiss):
				ErrorResponse(w, http.StatusNotFound, "No cached analysis for this IOC; run an analysis first", nil)
			default:
				ErrorResponse(w, http.StatusInternalServerError, "Report lookup failed", err)
			}
			return
		}

		pdf, err := generator.Generate(result)
		if err != nil {
			ErrorResponse(w, http.StatusInternalServerError, "Report generation failed", err)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ioc-report-%s.pdf"`, result.ID))
		w.WriteHeader(http.StatusOK)
		w.Write(pdf)
	}
}
