package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// URLHausClient queries abuse.ch URLhaus for malware-distribution URLs
// and hosts. Public API, no key required.
type URLHausClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// URLHausConfig holds URLhaus client configuration.
type URLHausConfig struct {
	Timeout time.Duration
}

// NewURLHausClient creates a new URLhaus client.
func NewURLHausClient(cfg URLHausConfig) *URLHausClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &URLHausClient{
		baseURL: "https://urlhaus-api.abuse.ch/v1",
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

func (c *URLHausClient) Name() string { return "urlhaus" }

func (c *URLHausClient) IsConfigured() bool { return true }

func (c *URLHausClient) Supports(kind entity.Kind) bool {
	return kind == entity.KindURL || kind == entity.KindDomain ||
		kind == entity.KindIPv4 || kind == entity.KindIPv6
}

type urlhausURLResponse struct {
	QueryStatus string `json:"query_status"`
	URLStatus   string `json:"url_status"`
	Threat      string `json:"threat"`
	Tags        []string `json:"tags"`
	Payloads    []struct {
		Signature string `json:"signature"`
	} `json:"payloads"`
}

type urlhausHostResponse struct {
	QueryStatus string `json:"query_status"`
	URLCount    int    `json:"url_count,string"`
	Blacklists  struct {
		SpamhausDBL string `json:"spamhaus_dbl"`
		SURBL       string `json:"surbl"`
	} `json:"blacklists"`
	URLs []struct {
		URLStatus string   `json:"url_status"`
		Threat    string   `json:"threat"`
		Tags      []string `json:"tags"`
	} `json:"urls"`
}

// Query checks the indicator against URLhaus: full URL lookup for URL
// kinds, host lookup for domains and IPs.
func (c *URLHausClient) Query(ctx context.Context, ind entity.Indicator) (*entity.PartialResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if ind.Kind == entity.KindURL {
		return c.queryURL(ctx, ind)
	}
	return c.queryHost(ctx, ind)
}

func (c *URLHausClient) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &SourceError{Source: c.Name(), Kind: ErrQuotaExhausted,
			Err: fmt.Errorf("request quota exhausted")}
	}
	if resp.StatusCode != http.StatusOK {
		return &SourceError{Source: c.Name(), Kind: ErrUpstream,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &SourceError{Source: c.Name(), Kind: ErrParse,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *URLHausClient) queryURL(ctx context.Context, ind entity.Indicator) (*entity.PartialResult, error) {
	var apiResp urlhausURLResponse
	if err := c.post(ctx, "/url/", url.Values{"url": {ind.Value}}, &apiResp); err != nil {
		return nil, err
	}

	result := &entity.PartialResult{
		Source:    c.Name(),
		Verdict:   "clean",
		FetchedAt: time.Now(),
	}
	if apiResp.QueryStatus != "ok" {
		return result, nil
	}

	// An active malware-distribution URL is near-certain risk; a taken
	// down one is still historical evidence.
	if apiResp.URLStatus == "online" {
		result.Score = 90
	} else {
		result.Score = 60
	}
	result.RawScore = result.Score
	result.Verdict = "malicious"
	result.Tags = append(result.Tags, apiResp.Tags...)
	if apiResp.Threat != "" {
		result.Tags = append(result.Tags, apiResp.Threat)
	}
	for _, p := range apiResp.Payloads {
		if p.Signature != "" {
			result.MalwareFamilies = append(result.MalwareFamilies, p.Signature)
		}
	}
	result.Metadata = map[string]string{"url_status": apiResp.URLStatus}

	return result, nil
}

func (c *URLHausClient) queryHost(ctx context.Context, ind entity.Indicator) (*entity.PartialResult, error) {
	var apiResp urlhausHostResponse
	if err := c.post(ctx, "/host/", url.Values{"host": {ind.Value}}, &apiResp); err != nil {
		return nil, err
	}

	result := &entity.PartialResult{
		Source:    c.Name(),
		Verdict:   "clean",
		FetchedAt: time.Now(),
	}
	if apiResp.QueryStatus != "ok" {
		return result, nil
	}

	online := 0
	for _, u := range apiResp.URLs {
		if u.URLStatus == "online" {
			online++
		}
		result.Tags = append(result.Tags, u.Tags...)
		if u.Threat != "" {
			result.Tags = append(result.Tags, u.Threat)
		}
	}

	switch {
	case online > 0:
		result.Score = 90
	case apiResp.URLCount > 0:
		result.Score = 55
	}
	result.RawScore = apiResp.URLCount
	if result.Score > 0 {
		result.Verdict = "malicious"
	}
	if apiResp.Blacklists.SpamhausDBL != "" && apiResp.Blacklists.SpamhausDBL != "not listed" {
		result.Tags = append(result.Tags, "spamhaus_dbl")
	}
	result.Metadata = map[string]string{
		"url_count": fmt.Sprintf("%d", apiResp.URLCount),
		"online":    fmt.Sprintf("%d", online),
	}

	return result, nil
}
