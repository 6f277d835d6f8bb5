package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/curateworld/eventscout/internal/config"
	"github.com/curateworld/eventscout/pkg/types"
)

// SerpAPIClient queries the google_events engine. It is the legacy
// tier: structured event cards with venue and date already split out,
// but a narrower catalog than the search tiers.
type SerpAPIClient struct {
	cfg     config.ProviderConfig
	client  *http.Client
	breaker *CircuitBreaker
	limiter *rate.Limiter
	meter   callMeter
}

// NewSerpAPIClient creates a SerpAPI adapter.
func NewSerpAPIClient(cfg config.ProviderConfig) *SerpAPIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://serpapi.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.QPS == 0 {
		cfg.QPS = 1
	}
	return &SerpAPIClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker("serpapi"),
		limiter: rate.NewLimiter(rate.Limit(cfg.QPS), 1),
	}
}

// Name implements Provider.
func (c *SerpAPIClient) Name() string { return types.SourceSerpAPI }

// serpEventsResponse is the google_events engine response. Only the
// fields the pipeline consumes are decoded.
type serpEventsResponse struct {
	EventsResults []struct {
		Title string `json:"title"`
		Date  struct {
			StartDate string `json:"start_date"`
			When      string `json:"when"`
		} `json:"date"`
		Address     []string `json:"address"`
		Link        string   `json:"link"`
		Description string   `json:"description"`
		Venue       struct {
			Name string `json:"name"`
		} `json:"venue"`
	} `json:"events_results"`
}

// Fetch implements Provider.
func (c *SerpAPIClient) Fetch(ctx context.Context, q types.Query) ([]types.RawCandidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.search(ctx, q)
	})
	c.meter.record(err, c.cfg.CostPerCall)
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("serpapi circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([]types.RawCandidate), nil
}

func (c *SerpAPIClient) search(ctx context.Context, q types.Query) ([]types.RawCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	params := url.Values{}
	params.Set("engine", "google_events")
	params.Set("q", fmt.Sprintf("%s events in %s", q.Category, q.Location))
	params.Set("hl", "en")
	params.Set("api_key", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.BaseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("serpapi returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData serpEventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	candidates := make([]types.RawCandidate, 0, len(respData.EventsResults))
	for i, r := range respData.EventsResults {
		if c.cfg.MaxResults > 0 && i >= c.cfg.MaxResults {
			break
		}
		ts := r.Date.StartDate
		if ts == "" {
			ts = r.Date.When
		}
		venue := r.Venue.Name
		if venue == "" && len(r.Address) > 0 {
			venue = r.Address[0]
		}
		candidates = append(candidates, types.RawCandidate{
			SourceProvider: types.SourceSerpAPI,
			Title:          r.Title,
			SourceURL:      r.Link,
			FreeText:       r.Description,
			RawTimestamp:   ts,
			RawVenueText:   venue,
			Extra: map[string]interface{}{
				"address": strings.Join(r.Address, ", "),
				"when":    r.Date.When,
			},
		})
	}
	return candidates, nil
}

// HealthCheck implements Provider.
func (c *SerpAPIClient) HealthCheck(ctx context.Context) error {
	_, err := c.search(ctx, types.Query{Category: "music", Location: "San Francisco"})
	return err
}

// Stats implements StatsReporter.
func (c *SerpAPIClient) Stats() CallStats { return c.meter.stats() }
