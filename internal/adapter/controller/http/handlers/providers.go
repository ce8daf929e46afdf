package handlers

import (
	"net/http"

	"github.com/ugurrates/threat-intel-web/internal/adapter/external/intel"
	"github.com/ugurrates/threat-intel-web/internal/usecase/scoring"
)

// Providers returns the handler for GET /api/providers: every
// intelligence source with its configuration state and scoring weight.
func Providers(agg *intel.Aggregator, scoringCfg scoring.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := agg.ProviderStatus()

		type providerInfo struct {
			intel.ProviderStatus
			Weight   float64 `json:"weight"`
			Decisive bool    `json:"decisive"`
		}

		infos := make([]providerInfo, 0, len(statuses))
		for _, s := range statuses {
			weight := scoringCfg.DefaultWeight
			if w, ok := scoringCfg.Weights[s.Name]; ok {
				weight = w
			}
			infos = append(infos, providerInfo{
				ProviderStatus: s,
				Weight:         weight,
				Decisive:       scoringCfg.DecisiveSources[s.Name],
			})
		}

		JSONResponse(w, http.StatusOK, map[string]interface{}{
			"providers": infos,
		})
	}
}
