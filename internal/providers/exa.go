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

// ExaClient queries the Exa neural search API in fast mode. It is the
// fallback tier: cheaper and quicker than the rich tier, with page
// text included so the parser still has something to work with.
type ExaClient struct {
	cfg     config.ProviderConfig
	client  *http.Client
	breaker *CircuitBreaker
	limiter *rate.Limiter
	meter   callMeter
}

// NewExaClient creates an Exa adapter.
func NewExaClient(cfg config.ProviderConfig) *ExaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.exa.ai"
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
	return &ExaClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker("exa"),
		limiter: rate.NewLimiter(rate.Limit(cfg.QPS), 1),
	}
}

// Name implements Provider.
func (c *ExaClient) Name() string { return types.SourceExa }

type exaSearchRequest struct {
	Query      string      `json:"query"`
	Type       string      `json:"type"`
	NumResults int         `json:"numResults"`
	Contents   exaContents `json:"contents"`
}

type exaContents struct {
	Text    exaTextOptions `json:"text"`
	Summary bool           `json:"summary"`
}

type exaTextOptions struct {
	MaxCharacters int `json:"maxCharacters"`
}

type exaSearchResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		PublishedDate string `json:"publishedDate"`
		Text          string `json:"text"`
		Summary       string `json:"summary"`
	} `json:"results"`
}

// Fetch implements Provider.
func (c *ExaClient) Fetch(ctx context.Context, q types.Query) ([]types.RawCandidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.search(ctx, q)
	})
	c.meter.record(err, c.cfg.CostPerCall)
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("exa circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([]types.RawCandidate), nil
}

func (c *ExaClient) search(ctx context.Context, q types.Query) ([]types.RawCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reqBody := exaSearchRequest{
		Query:      buildSearchQuery(q),
		Type:       "fast",
		NumResults: c.cfg.MaxResults,
		Contents: exaContents{
			Text:    exaTextOptions{MaxCharacters: 1000},
			Summary: true,
		},
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
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("exa returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData exaSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	candidates := make([]types.RawCandidate, 0, len(respData.Results))
	for _, r := range respData.Results {
		text := r.Summary
		if text == "" {
			text = r.Text
		}
		candidates = append(candidates, types.RawCandidate{
			SourceProvider: types.SourceExa,
			Title:          r.Title,
			SourceURL:      r.URL,
			FreeText:       text,
			RawTimestamp:   r.PublishedDate,
		})
	}
	return candidates, nil
}

// HealthCheck implements Provider.
func (c *ExaClient) HealthCheck(ctx context.Context) error {
	_, err := c.search(ctx, types.Query{Category: "music", Location: "San Francisco"})
	return err
}

// Stats implements StatsReporter.
func (c *ExaClient) Stats() CallStats { return c.meter.stats() }
