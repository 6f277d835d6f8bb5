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

// sfRadiusQuery is the geo filter used for San Francisco queries; the
// API's free-text place matching is unreliable for it, so a radius
// around the city center is used instead.
const sfRadiusQuery = "10km@37.7749,-122.4194"

// PredictHQClient queries the PredictHQ events API. Part of the rich
// tier: results are already structured events, so its candidates skip
// text extraction entirely.
type PredictHQClient struct {
	cfg     config.ProviderConfig
	client  *http.Client
	breaker *CircuitBreaker
	limiter *rate.Limiter
	meter   callMeter
}

// NewPredictHQClient creates a PredictHQ adapter.
func NewPredictHQClient(cfg config.ProviderConfig) *PredictHQClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.predicthq.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 20
	}
	if cfg.QPS == 0 {
		cfg.QPS = 1
	}
	return &PredictHQClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker("predicthq"),
		limiter: rate.NewLimiter(rate.Limit(cfg.QPS), 1),
	}
}

// Name implements Provider.
func (c *PredictHQClient) Name() string { return types.SourcePredictHQ }

type predictHQResponse struct {
	Results []struct {
		ID          string   `json:"id"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Category    string   `json:"category"`
		Start       string   `json:"start"`
		End         string   `json:"end"`
		Entities    []struct {
			Name             string `json:"name"`
			Type             string `json:"type"`
			FormattedAddress string `json:"formatted_address"`
		} `json:"entities"`
		Location []float64 `json:"location"`
	} `json:"results"`
}

// Fetch implements Provider.
func (c *PredictHQClient) Fetch(ctx context.Context, q types.Query) ([]types.RawCandidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.search(ctx, q)
	})
	c.meter.record(err, c.cfg.CostPerCall)
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("predicthq circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([]types.RawCandidate), nil
}

func (c *PredictHQClient) search(ctx context.Context, q types.Query) ([]types.RawCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	params := url.Values{}
	if cat := types.PredictHQCategory(q.Category); cat != "" {
		params.Set("category", cat)
	}
	if isSanFrancisco(q.Location) {
		params.Set("location.within", sfRadiusQuery)
	} else {
		params.Set("q", q.Location)
	}
	params.Set("limit", fmt.Sprintf("%d", c.cfg.MaxResults))
	params.Set("sort", "start")

	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.BaseURL+"/v1/events?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("predicthq returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData predictHQResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	candidates := make([]types.RawCandidate, 0, len(respData.Results))
	for _, r := range respData.Results {
		var venue, address string
		for _, e := range r.Entities {
			if e.Type == "venue" {
				venue = e.Name
				address = e.FormattedAddress
				break
			}
		}
		candidates = append(candidates, types.RawCandidate{
			SourceProvider: types.SourcePredictHQ,
			Title:          r.Title,
			FreeText:       r.Description,
			RawTimestamp:   r.Start,
			RawVenueText:   venue,
			Extra: map[string]interface{}{
				"id":       r.ID,
				"category": r.Category,
				"end":      r.End,
				"address":  address,
			},
		})
	}
	return candidates, nil
}

// HealthCheck implements Provider.
func (c *PredictHQClient) HealthCheck(ctx context.Context) error {
	_, err := c.search(ctx, types.Query{Category: "music", Location: "San Francisco"})
	return err
}

// Stats implements StatsReporter.
func (c *PredictHQClient) Stats() CallStats { return c.meter.stats() }

func isSanFrancisco(location string) bool {
	l := strings.ToLower(strings.TrimSpace(location))
	return l == "san francisco" || l == "san francisco, ca" || l == "sf"
}
