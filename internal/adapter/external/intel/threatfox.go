package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// ThreatFoxClient queries abuse.ch ThreatFox for IOC matches. ThreatFox
// tracks malware-distribution and C2 infrastructure with per-IOC
// confidence levels and malware attribution.
type ThreatFoxClient struct {
	baseURL    string
	authKey    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ThreatFoxConfig holds ThreatFox client configuration.
type ThreatFoxConfig struct {
	AuthKey string
	Timeout time.Duration
}

// NewThreatFoxClient creates a new ThreatFox client.
func NewThreatFoxClient(cfg ThreatFoxConfig) *ThreatFoxClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &ThreatFoxClient{
		baseURL: "https://threatfox-api.abuse.ch/api/v1/",
		authKey: cfg.AuthKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

func (c *ThreatFoxClient) Name() string { return "threatfox" }

func (c *ThreatFoxClient) IsConfigured() bool { return c.authKey != "" }

func (c *ThreatFoxClient) Supports(entity.Kind) bool { return true }

type threatFoxResponse struct {
	QueryStatus string `json:"query_status"`
	Data        []struct {
		IOC             string   `json:"ioc"`
		ThreatType      string   `json:"threat_type"`
		Malware         string   `json:"malware"`
		MalwarePrintable string  `json:"malware_printable"`
		ConfidenceLevel int      `json:"confidence_level"`
		Tags            []string `json:"tags"`
		FirstSeen       string   `json:"first_seen"`
	} `json:"data"`
}

// Query searches ThreatFox for the exact indicator value.
func (c *ThreatFoxClient) Query(ctx context.Context, ind entity.Indicator) (*entity.PartialResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{
		"query":       "search_ioc",
		"search_term": ind.Value,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Auth-Key", c.authKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &SourceError{Source: c.Name(), Kind: ErrQuotaExhausted,
			Err: fmt.Errorf("request quota exhausted")}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &SourceError{Source: c.Name(), Kind: ErrUpstream,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var apiResp threatFoxResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &SourceError{Source: c.Name(), Kind: ErrParse,
			Err: fmt.Errorf("decode response: %w", err)}
	}

	result := &entity.PartialResult{
		Source:    c.Name(),
		Verdict:   "clean",
		FetchedAt: time.Now(),
	}

	if apiResp.QueryStatus != "ok" || len(apiResp.Data) == 0 {
		// no_result means ThreatFox has never seen the IOC.
		return result, nil
	}

	maxConfidence := 0
	for _, entry := range apiResp.Data {
		if entry.ConfidenceLevel > maxConfidence {
			maxConfidence = entry.ConfidenceLevel
		}
		if entry.MalwarePrintable != "" && entry.MalwarePrintable != "Unknown malware" {
			result.MalwareFamilies = append(result.MalwareFamilies, entry.MalwarePrintable)
		}
		if entry.ThreatType != "" {
			result.Tags = append(result.Tags, strings.ToLower(entry.ThreatType))
		}
		result.Tags = append(result.Tags, entry.Tags...)
	}

	// Any ThreatFox listing means distribution/C2 infrastructure; the
	// confidence level refines the floor of 70.
	score := 70 + maxConfidence*30/100
	if score > 100 {
		score = 100
	}

	result.Score = score
	result.RawScore = maxConfidence
	result.Verdict = "malicious"
	result.Metadata = map[string]string{
		"matches":        strconv.Itoa(len(apiResp.Data)),
		"max_confidence": strconv.Itoa(maxConfidence),
	}

	return result, nil
}
