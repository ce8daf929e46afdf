package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// AbuseIPDBClient queries the AbuseIPDB v2 check endpoint for IP reputation.
type AbuseIPDBClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// AbuseIPDBConfig holds AbuseIPDB client configuration.
type AbuseIPDBConfig struct {
	APIKey  string
	Timeout time.Duration
}

// NewAbuseIPDBClient creates a new AbuseIPDB client.
func NewAbuseIPDBClient(cfg AbuseIPDBConfig) *AbuseIPDBClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &AbuseIPDBClient{
		apiKey:  cfg.APIKey,
		baseURL: "https://api.abuseipdb.com/api/v2",
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		// Free tier allows 1000 checks/day; pace well under that.
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 3),
	}
}

func (c *AbuseIPDBClient) Name() string { return "abuseipdb" }

func (c *AbuseIPDBClient) IsConfigured() bool { return c.apiKey != "" }

func (c *AbuseIPDBClient) Supports(kind entity.Kind) bool {
	return kind == entity.KindIPv4 || kind == entity.KindIPv6
}

type abuseIPDBResponse struct {
	Data struct {
		IPAddress            string `json:"ipAddress"`
		AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
		CountryCode          string `json:"countryCode"`
		UsageType            string `json:"usageType"`
		ISP                  string `json:"isp"`
		Domain               string `json:"domain"`
		TotalReports         int    `json:"totalReports"`
		NumDistinctUsers     int    `json:"numDistinctUsers"`
		LastReportedAt       string `json:"lastReportedAt"`
		IsTor                bool   `json:"isTor"`
	} `json:"data"`
}

// Query checks an IP against AbuseIPDB. The abuse confidence score is
// already on a 0-100 scale.
func (c *AbuseIPDBClient) Query(ctx context.Context, ind entity.Indicator) (*entity.PartialResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/check?ipAddress=%s&maxAgeInDays=90&verbose=true",
		c.baseURL, url.QueryEscape(ind.Value))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &SourceError{Source: c.Name(), Kind: ErrQuotaExhausted,
			Err: fmt.Errorf("daily check quota exhausted")}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &SourceError{Source: c.Name(), Kind: ErrUpstream,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var apiResp abuseIPDBResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &SourceError{Source: c.Name(), Kind: ErrParse,
			Err: fmt.Errorf("decode response: %w", err)}
	}

	d := apiResp.Data
	result := &entity.PartialResult{
		Source:   c.Name(),
		Score:    d.AbuseConfidenceScore,
		RawScore: d.AbuseConfidenceScore,
		Verdict:  verdictForScore(d.AbuseConfidenceScore),
		Metadata: map[string]string{
			"country":        d.CountryCode,
			"isp":            d.ISP,
			"usage_type":     d.UsageType,
			"total_reports":  strconv.Itoa(d.TotalReports),
			"distinct_users": strconv.Itoa(d.NumDistinctUsers),
			"last_reported":  d.LastReportedAt,
		},
		FetchedAt: time.Now(),
	}
	if d.IsTor {
		result.Tags = append(result.Tags, "tor")
	}

	return result, nil
}

// verdictForScore maps a normalized score to a coarse source verdict.
func verdictForScore(score int) string {
	switch {
	case score >= 75:
		return "malicious"
	case score >= 25:
		return "suspicious"
	default:
		return "clean"
	}
}
