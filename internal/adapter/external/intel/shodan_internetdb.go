package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// ShodanInternetDBClient queries Shodan's free InternetDB API for open
// ports, tags and known vulnerabilities. Keyless, but results change
// slowly, so lookups are cached locally with a long TTL (default 7 days)
// to stay friendly to the upstream.
type ShodanInternetDBClient struct {
	baseURL    string
	httpClient *http.Client
	cache      *subCache
}

// ShodanInternetDBConfig holds Shodan InternetDB client configuration.
type ShodanInternetDBConfig struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Ports commonly tied to C2 frameworks, backdoors and anonymization.
var suspiciousPorts = map[int]int{
	4444:  20, // Metasploit default
	5555:  15, // common backdoor / adb
	6666:  15, // IRC backdoors
	6667:  15, // IRC
	31337: 20, // classic backdoor
	1337:  15,
	9001:  10, // Tor
	9050:  10, // Tor
	4443:  10, // common C2
	8888:  10, // proxy / backdoor
	3389:  5,  // RDP exposure
	5900:  5,  // VNC exposure
}

// NewShodanInternetDBClient creates a new InternetDB client.
func NewShodanInternetDBClient(cfg ShodanInternetDBConfig) *ShodanInternetDBClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 7 * 24 * time.Hour
	}

	return &ShodanInternetDBClient{
		baseURL: "https://internetdb.shodan.io/",
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache: newSubCache(cfg.CacheTTL),
	}
}

func (c *ShodanInternetDBClient) Name() string { return "shodan_internetdb" }

func (c *ShodanInternetDBClient) IsConfigured() bool { return true }

func (c *ShodanInternetDBClient) Supports(kind entity.Kind) bool {
	return kind == entity.KindIPv4 || kind == entity.KindIPv6
}

type internetDBResponse struct {
	IP        string   `json:"ip"`
	Ports     []int    `json:"ports"`
	Hostnames []string `json:"hostnames"`
	Tags      []string `json:"tags"`
	Vulns     []string `json:"vulns"`
}

// Query returns exposure context for an IP, served from the local
// sub-cache when a fresh enough snapshot exists.
func (c *ShodanInternetDBClient) Query(ctx context.Context, ind entity.Indicator) (*entity.PartialResult, error) {
	if cached, ok := c.cache.get(ind.Value); ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+ind.Value, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	// 404 means InternetDB has no data for the IP, which is itself an answer.
	if resp.StatusCode == http.StatusNotFound {
		result := &entity.PartialResult{
			Source:    c.Name(),
			Verdict:   "unknown",
			FetchedAt: time.Now(),
		}
		c.cache.set(ind.Value, result)
		return result, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &SourceError{Source: c.Name(), Kind: ErrQuotaExhausted,
			Err: fmt.Errorf("request quota exhausted")}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &SourceError{Source: c.Name(), Kind: ErrUpstream,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var apiResp internetDBResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &SourceError{Source: c.Name(), Kind: ErrParse,
			Err: fmt.Errorf("decode response: %w", err)}
	}

	result := c.process(&apiResp)
	c.cache.set(ind.Value, result)
	return result, nil
}

func (c *ShodanInternetDBClient) process(resp *internetDBResponse) *entity.PartialResult {
	score := 0
	var tags []string

	for _, port := range resp.Ports {
		if points, ok := suspiciousPorts[port]; ok {
			score += points
		}
	}
	if len(resp.Ports) > 20 {
		score += 15
	} else if len(resp.Ports) > 10 {
		score += 10
	}

	if n := len(resp.Vulns); n > 0 {
		bonus := n * 5
		if bonus > 25 {
			bonus = 25
		}
		score += bonus
		tags = append(tags, "known_vulns")
	}

	for _, tag := range resp.Tags {
		lower := strings.ToLower(tag)
		tags = append(tags, lower)
		switch {
		case strings.Contains(lower, "tor"):
			score += 20
		case strings.Contains(lower, "proxy"):
			score += 15
		case strings.Contains(lower, "vpn"):
			score += 10
		case strings.Contains(lower, "honeypot"):
			score -= 20
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &entity.PartialResult{
		Source:   c.Name(),
		Score:    score,
		RawScore: len(resp.Vulns),
		Verdict:  verdictForScore(score),
		Tags:     tags,
		Metadata: map[string]string{
			"open_ports": strconv.Itoa(len(resp.Ports)),
			"vulns":      strconv.Itoa(len(resp.Vulns)),
			"hostnames":  strings.Join(resp.Hostnames, ","),
		},
		FetchedAt: time.Now(),
	}
}
