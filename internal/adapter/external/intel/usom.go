package intel

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// USOMClient checks indicators against the USOM (Turkish national CERT)
// malicious URL list. A hit on a national CERT blocklist is decisive:
// the scoring engine weights this source so a single hit forces the
// highest severity tier. The list is public, no API key required.
type USOMClient struct {
	listURL       string
	httpClient    *http.Client
	mu            sync.RWMutex
	entries       map[string]struct{}
	lastUpdate    time.Time
	refreshPeriod time.Duration
}

// USOMConfig holds USOM client configuration.
type USOMConfig struct {
	Timeout       time.Duration
	RefreshPeriod time.Duration
}

// NewUSOMClient creates a new USOM blocklist client.
func NewUSOMClient(cfg USOMConfig) *USOMClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RefreshPeriod == 0 {
		cfg.RefreshPeriod = 6 * time.Hour
	}

	return &USOMClient{
		listURL: "https://www.usom.gov.tr/url-list.txt",
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		entries:       make(map[string]struct{}),
		refreshPeriod: cfg.RefreshPeriod,
	}
}

func (c *USOMClient) Name() string { return "usom" }

// IsConfigured is always true; the list is public.
func (c *USOMClient) IsConfigured() bool { return true }

func (c *USOMClient) Supports(kind entity.Kind) bool {
	return kind.IsNetwork()
}

// Query checks the indicator's host against the blocklist snapshot,
// refreshing it first when stale.
func (c *USOMClient) Query(ctx context.Context, ind entity.Indicator) (*entity.PartialResult, error) {
	c.mu.RLock()
	stale := time.Since(c.lastUpdate) > c.refreshPeriod || len(c.entries) == 0
	c.mu.RUnlock()

	if stale {
		if err := c.refresh(ctx); err != nil {
			c.mu.RLock()
			empty := len(c.entries) == 0
			c.mu.RUnlock()
			if empty {
				return nil, &SourceError{Source: c.Name(), Kind: ErrUpstream,
					Err: fmt.Errorf("blocklist fetch failed: %w", err)}
			}
			// Stale snapshot beats no answer.
		}
	}

	host := ind.Host()

	c.mu.RLock()
	_, listed := c.entries[host]
	if !listed && ind.Kind == entity.KindURL {
		// The list mixes bare hosts and full URLs.
		_, listed = c.entries[strings.TrimPrefix(strings.TrimPrefix(ind.Value, "https://"), "http://")]
	}
	lastUpdate := c.lastUpdate
	c.mu.RUnlock()

	score := 0
	verdict := "clean"
	if listed {
		score = 100
		verdict = "blocklisted"
	}

	result := &entity.PartialResult{
		Source:   c.Name(),
		Score:    score,
		RawScore: score,
		Verdict:  verdict,
		Metadata: map[string]string{
			"list_updated": lastUpdate.Format(time.RFC3339),
		},
		FetchedAt: time.Now(),
	}
	if listed {
		result.Tags = append(result.Tags, "national_cert_blocklist")
	}

	return result, nil
}

// refresh downloads the URL list and replaces the snapshot wholesale.
func (c *USOMClient) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.listURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	entries := make(map[string]struct{})
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries[strings.ToLower(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read list: %w", err)
	}

	c.mu.Lock()
	c.entries = entries
	c.lastUpdate = time.Now()
	c.mu.Unlock()

	return nil
}
