package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// OTXClient queries AlienVault OTX for pulse-based threat context.
type OTXClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// OTXConfig holds OTX client configuration.
type OTXConfig struct {
	APIKey  string
	Timeout time.Duration
}

// NewOTXClient creates a new AlienVault OTX client.
func NewOTXClient(cfg OTXConfig) *OTXClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &OTXClient{
		apiKey:  cfg.APIKey,
		baseURL: "https://otx.alienvault.com/api/v1/indicators",
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

func (c *OTXClient) Name() string { return "alienvault_otx" }

func (c *OTXClient) IsConfigured() bool { return c.apiKey != "" }

func (c *OTXClient) Supports(entity.Kind) bool { return true }

type otxResponse struct {
	PulseInfo struct {
		Count  int `json:"count"`
		Pulses []struct {
			Name            string   `json:"name"`
			Tags            []string `json:"tags"`
			MalwareFamilies []struct {
				DisplayName string `json:"display_name"`
			} `json:"malware_families"`
			AttackIDs []struct {
				ID          string `json:"id"`
				DisplayName string `json:"display_name"`
			} `json:"attack_ids"`
			Adversary string `json:"adversary"`
		} `json:"pulses"`
	} `json:"pulse_info"`
}

func (c *OTXClient) endpoint(ind entity.Indicator) string {
	switch ind.Kind {
	case entity.KindIPv4:
		return c.baseURL + "/IPv4/" + ind.Value + "/general"
	case entity.KindIPv6:
		return c.baseURL + "/IPv6/" + ind.Value + "/general"
	case entity.KindDomain:
		return c.baseURL + "/domain/" + ind.Value + "/general"
	case entity.KindURL:
		return c.baseURL + "/url/" + ind.Value + "/general"
	default:
		return c.baseURL + "/file/" + ind.Value + "/general"
	}
}

// Query fetches OTX pulse context. The score scales with the number of
// community pulses referencing the indicator.
func (c *OTXClient) Query(ctx context.Context, ind entity.Indicator) (*entity.PartialResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(ind), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-OTX-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return &entity.PartialResult{Source: c.Name(), Verdict: "unknown", FetchedAt: time.Now()}, nil
	case http.StatusTooManyRequests:
		return nil, &SourceError{Source: c.Name(), Kind: ErrQuotaExhausted,
			Err: fmt.Errorf("request quota exhausted")}
	default:
		return nil, &SourceError{Source: c.Name(), Kind: ErrUpstream,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var apiResp otxResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &SourceError{Source: c.Name(), Kind: ErrParse,
			Err: fmt.Errorf("decode response: %w", err)}
	}

	count := apiResp.PulseInfo.Count
	score := otxScore(count)

	result := &entity.PartialResult{
		Source:   c.Name(),
		Score:    score,
		RawScore: count,
		Verdict:  verdictForScore(score),
		Metadata: map[string]string{
			"pulse_count": strconv.Itoa(count),
		},
		FetchedAt: time.Now(),
	}

	for _, pulse := range apiResp.PulseInfo.Pulses {
		result.Tags = append(result.Tags, pulse.Tags...)
		for _, mf := range pulse.MalwareFamilies {
			result.MalwareFamilies = append(result.MalwareFamilies, mf.DisplayName)
		}
		for _, atk := range pulse.AttackIDs {
			result.Tags = append(result.Tags, "attack:"+atk.ID)
		}
		if pulse.Adversary != "" {
			result.Tags = append(result.Tags, "adversary:"+pulse.Adversary)
		}
	}

	return result, nil
}

// otxScore converts a pulse count into the common scale. Pulse counts
// follow a long tail: a couple of pulses is noise, dozens is consensus.
func otxScore(pulses int) int {
	switch {
	case pulses >= 30:
		return 90
	case pulses >= 10:
		return 75
	case pulses >= 5:
		return 60
	case pulses >= 2:
		return 40
	case pulses == 1:
		return 20
	default:
		return 0
	}
}
