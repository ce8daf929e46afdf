package intel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// VirusTotalClient queries the VirusTotal v3 API. It supports every
// indicator kind: IPs, domains, URLs and file hashes.
type VirusTotalClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// VirusTotalConfig holds VirusTotal client configuration.
type VirusTotalConfig struct {
	APIKey  string
	Timeout time.Duration
}

// NewVirusTotalClient creates a new VirusTotal client.
func NewVirusTotalClient(cfg VirusTotalConfig) *VirusTotalClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &VirusTotalClient{
		apiKey:  cfg.APIKey,
		baseURL: "https://www.virustotal.com/api/v3",
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		// Public API: 4 requests/minute.
		limiter: rate.NewLimiter(rate.Every(15*time.Second), 1),
	}
}

func (c *VirusTotalClient) Name() string { return "virustotal" }

func (c *VirusTotalClient) IsConfigured() bool { return c.apiKey != "" }

func (c *VirusTotalClient) Supports(entity.Kind) bool { return true }

type vtResponse struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
				Harmless   int `json:"harmless"`
				Undetected int `json:"undetected"`
			} `json:"last_analysis_stats"`
			Reputation int      `json:"reputation"`
			Tags       []string `json:"tags"`
			Country    string   `json:"country"`
			ASOwner    string   `json:"as_owner"`
			// File objects only
			PopularThreatClassification struct {
				SuggestedThreatLabel string `json:"suggested_threat_label"`
				PopularThreatName    []struct {
					Value string `json:"value"`
				} `json:"popular_threat_name"`
			} `json:"popular_threat_classification"`
		} `json:"attributes"`
	} `json:"data"`
}

func (c *VirusTotalClient) endpoint(ind entity.Indicator) string {
	switch ind.Kind {
	case entity.KindIPv4, entity.KindIPv6:
		return c.baseURL + "/ip_addresses/" + ind.Value
	case entity.KindDomain:
		return c.baseURL + "/domains/" + ind.Value
	case entity.KindURL:
		// VT identifies URLs by unpadded url-safe base64 of the URL itself.
		id := strings.TrimRight(base64.URLEncoding.EncodeToString([]byte(ind.Value)), "=")
		return c.baseURL + "/urls/" + id
	default:
		return c.baseURL + "/files/" + ind.Value
	}
}

// Query fetches the VT object for the indicator and maps multi-engine
// consensus into the common 0-100 scale.
func (c *VirusTotalClient) Query(ctx context.Context, ind entity.Indicator) (*entity.PartialResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(ind), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		// Unknown to VT: weak evidence of anything, score zero.
		return &entity.PartialResult{
			Source:    c.Name(),
			Verdict:   "unknown",
			FetchedAt: time.Now(),
		}, nil
	case http.StatusTooManyRequests:
		return nil, &SourceError{Source: c.Name(), Kind: ErrQuotaExhausted,
			Err: fmt.Errorf("request quota exhausted")}
	default:
		return nil, &SourceError{Source: c.Name(), Kind: ErrUpstream,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var apiResp vtResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &SourceError{Source: c.Name(), Kind: ErrParse,
			Err: fmt.Errorf("decode response: %w", err)}
	}

	attrs := apiResp.Data.Attributes
	stats := attrs.LastAnalysisStats
	total := stats.Malicious + stats.Suspicious + stats.Harmless + stats.Undetected

	score := 0
	if total > 0 {
		// Malicious verdicts dominate; suspicious ones count half.
		score = (stats.Malicious*100 + stats.Suspicious*50) / total
		if score > 100 {
			score = 100
		}
		// A handful of engines flagging is already a strong signal even
		// when diluted by dozens of undetected verdicts.
		if stats.Malicious >= 5 && score < 60 {
			score = 60
		}
	}

	result := &entity.PartialResult{
		Source:   c.Name(),
		Score:    score,
		RawScore: stats.Malicious,
		Verdict:  verdictForScore(score),
		Tags:     attrs.Tags,
		Metadata: map[string]string{
			"engines_total":     strconv.Itoa(total),
			"engines_malicious": strconv.Itoa(stats.Malicious),
			"country":           attrs.Country,
			"as_owner":          attrs.ASOwner,
		},
		FetchedAt: time.Now(),
	}

	if label := attrs.PopularThreatClassification.SuggestedThreatLabel; label != "" {
		result.MalwareFamilies = append(result.MalwareFamilies, label)
	}
	for _, name := range attrs.PopularThreatClassification.PopularThreatName {
		result.MalwareFamilies = append(result.MalwareFamilies, name.Value)
	}

	return result, nil
}
