package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/curateworld/eventscout/internal/config"
	"github.com/curateworld/eventscout/pkg/types"
)

// PerplexityClient queries the Perplexity search API. Responses carry
// narrative-leaning snippets, so its candidates go through the full
// structured/narrative extraction chain downstream.
type PerplexityClient struct {
	cfg     config.ProviderConfig
	client  *http.Client
	breaker *CircuitBreaker
	limiter *rate.Limiter
	meter   callMeter
}

// NewPerplexityClient creates a Perplexity adapter.
func NewPerplexityClient(cfg config.ProviderConfig) *PerplexityClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.perplexity.ai"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 10
	}
	if cfg.QPS == 0 {
		cfg.QPS = 1
	}
	return &PerplexityClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker("perplexity"),
		limiter: rate.NewLimiter(rate.Limit(cfg.QPS), 1),
	}
}

// Name implements Provider.
func (c *PerplexityClient) Name() string { return types.SourcePerplexity }

// perplexitySearchRequest is the body for POST /search. The API accepts
// up to five queries per call, so fetches fan phrasing variants into a
// single request.
type perplexitySearchRequest struct {
	Query            []string `json:"query"`
	MaxResults       int      `json:"max_results"`
	MaxTokensPerPage int      `json:"max_tokens_per_page,omitempty"`
	Country          string   `json:"country,omitempty"`
}

// perplexitySearchResponse is the body from POST /search.
type perplexitySearchResponse struct {
	Results []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Snippet     string `json:"snippet"`
		Date        string `json:"date"`
		LastUpdated string `json:"last_updated"`
	} `json:"results"`
}

// Fetch implements Provider.
func (c *PerplexityClient) Fetch(ctx context.Context, q types.Query) ([]types.RawCandidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.search(ctx, q)
	})
	c.meter.record(err, c.cfg.CostPerCall)
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("perplexity circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([]types.RawCandidate), nil
}

func (c *PerplexityClient) search(ctx context.Context, q types.Query) ([]types.RawCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reqBody := perplexitySearchRequest{
		Query:            buildQueryVariants(q),
		MaxResults:       c.cfg.MaxResults,
		MaxTokensPerPage: 512,
		Country:          "US",
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/search", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("perplexity returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData perplexitySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	candidates := make([]types.RawCandidate, 0, len(respData.Results))
	for _, r := range respData.Results {
		ts := r.Date
		if ts == "" {
			ts = r.LastUpdated
		}
		candidates = append(candidates, types.RawCandidate{
			SourceProvider: types.SourcePerplexity,
			Title:          r.Title,
			SourceURL:      r.URL,
			FreeText:       r.Snippet,
			RawTimestamp:   ts,
		})
	}
	return candidates, nil
}

// HealthCheck implements Provider with a minimal one-result query.
func (c *PerplexityClient) HealthCheck(ctx context.Context) error {
	_, err := c.search(ctx, types.Query{Category: "music", Location: "San Francisco"})
	return err
}

// Stats implements StatsReporter.
func (c *PerplexityClient) Stats() CallStats { return c.meter.stats() }

// buildQueryVariants produces the phrasing variants sent in one search
// call. A custom prompt suppresses fan-out and is sent alone.
func buildQueryVariants(q types.Query) []string {
	if q.CustomPrompt != "" {
		return []string{q.CustomPrompt}
	}
	return []string{
		buildSearchQuery(q),
		fmt.Sprintf("%s shows and performances in %s with venue and date", q.Category, q.Location),
		fmt.Sprintf("%s %s event calendar tickets", q.Location, q.Category),
	}
}

// buildSearchQuery renders a query into provider-neutral search text.
// A custom prompt wins outright when present.
func buildSearchQuery(q types.Query) string {
	if q.CustomPrompt != "" {
		return q.CustomPrompt
	}
	s := fmt.Sprintf("upcoming %s events in %s", q.Category, q.Location)
	if q.DateWindow != "" {
		s += " " + q.DateWindow
	}
	return s
}
