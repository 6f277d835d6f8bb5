package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateworld/eventscout/internal/config"
	"github.com/curateworld/eventscout/pkg/types"
)

func providerCfg(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		MaxResults:  5,
		QPS:         1000, // no throttling in tests
		Timeout:     2 * time.Second,
		CostPerCall: 0.005,
		Enabled:     true,
	}
}

func TestPerplexityFetch(t *testing.T) {
	var gotAuth string
	var gotReq perplexitySearchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/search", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]string{
				{"title": "Cat Power at The Fillmore", "url": "https://thefillmore.com/event/cat-power", "snippet": "September 14 show", "date": "2026-09-14"},
				{"title": "Jazz roundup", "url": "https://sfstation.com/jazz", "snippet": "weekly picks", "last_updated": "2026-08-29"},
			},
		})
	}))
	defer srv.Close()

	c := NewPerplexityClient(providerCfg(srv.URL))
	got, err := c.Fetch(context.Background(), types.Query{Category: "music", Location: "San Francisco", DateWindow: "this weekend"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Bearer test-key", gotAuth)
	require.Len(t, gotReq.Query, 3)
	assert.Equal(t, "upcoming music events in San Francisco this weekend", gotReq.Query[0])
	assert.Equal(t, "music shows and performances in San Francisco with venue and date", gotReq.Query[1])
	assert.Equal(t, 5, gotReq.MaxResults)

	assert.Equal(t, types.SourcePerplexity, got[0].SourceProvider)
	assert.Equal(t, "https://thefillmore.com/event/cat-power", got[0].SourceURL)
	assert.Equal(t, "2026-09-14", got[0].RawTimestamp)
	// last_updated backfills a missing date field.
	assert.Equal(t, "2026-08-29", got[1].RawTimestamp)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Calls)
	assert.Equal(t, uint64(0), stats.Failures)
	assert.InDelta(t, 0.005, stats.CostUSD, 1e-9)
}

func TestPerplexityCustomPromptWins(t *testing.T) {
	var gotReq perplexitySearchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c := NewPerplexityClient(providerCfg(srv.URL))
	_, err := c.Fetch(context.Background(), types.Query{
		Category: "music", Location: "San Francisco",
		CustomPrompt: "list intimate jazz shows under $40",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"list intimate jazz shows under $40"}, gotReq.Query)
}

func TestExaFetch(t *testing.T) {
	var gotKey string
	var gotReq exaSearchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]string{
				{"title": "Fox Theater calendar", "url": "https://foxoakland.com/events/kamasi", "text": "full page text", "summary": "Kamasi Washington, Oct 2"},
			},
		})
	}))
	defer srv.Close()

	c := NewExaClient(providerCfg(srv.URL))
	got, err := c.Fetch(context.Background(), types.Query{Category: "music", Location: "Oakland"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "fast", gotReq.Type)
	assert.Equal(t, 5, gotReq.NumResults)
	assert.Equal(t, 1000, gotReq.Contents.Text.MaxCharacters)
	assert.True(t, gotReq.Contents.Summary)

	// Summary is preferred over raw page text.
	assert.Equal(t, "Kamasi Washington, Oct 2", got[0].FreeText)
}

func TestSerpAPIFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "google_events", q.Get("engine"))
		require.Equal(t, "en", q.Get("hl"))
		require.Equal(t, "test-key", q.Get("api_key"))
		require.Equal(t, "music events in San Francisco", q.Get("q"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"events_results": []map[string]interface{}{
				{
					"title":       "Cat Power",
					"date":        map[string]string{"start_date": "Sep 14", "when": "Mon, Sep 14, 8 PM"},
					"address":     []string{"The Fillmore", "1805 Geary Blvd, San Francisco, CA"},
					"link":        "https://thefillmore.com/event/cat-power",
					"description": "Live in concert",
					"venue":       map[string]string{"name": "The Fillmore"},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewSerpAPIClient(providerCfg(srv.URL))
	got, err := c.Fetch(context.Background(), types.Query{Category: "music", Location: "San Francisco"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, types.SourceSerpAPI, got[0].SourceProvider)
	assert.Equal(t, "The Fillmore", got[0].RawVenueText)
	assert.Equal(t, "Sep 14", got[0].RawTimestamp)
	assert.Equal(t, "The Fillmore, 1805 Geary Blvd, San Francisco, CA", got[0].Extra["address"])
}

func TestPredictHQFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/events", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		q := r.URL.Query()
		require.Equal(t, "concerts", q.Get("category"))
		require.Equal(t, sfRadiusQuery, q.Get("location.within"))
		require.Empty(t, q.Get("q"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{
					"id": "phq-1", "title": "Kamasi Washington", "category": "concerts",
					"start": "2026-10-02T19:00:00Z", "end": "2026-10-02T22:00:00Z",
					"entities": []map[string]string{
						{"name": "Fox Theater", "type": "venue", "formatted_address": "1807 Telegraph Ave, Oakland"},
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewPredictHQClient(providerCfg(srv.URL))
	got, err := c.Fetch(context.Background(), types.Query{Category: "music", Location: "San Francisco"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "Fox Theater", got[0].RawVenueText)
	assert.Equal(t, "2026-10-02T19:00:00Z", got[0].RawTimestamp)
	assert.Equal(t, "2026-10-02T22:00:00Z", got[0].Extra["end"])
}

func TestPredictHQNonSFUsesFreeText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "Portland", q.Get("q"))
		require.Empty(t, q.Get("location.within"))
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c := NewPredictHQClient(providerCfg(srv.URL))
	_, err := c.Fetch(context.Background(), types.Query{Category: "music", Location: "Portland"})
	require.NoError(t, err)
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewExaClient(providerCfg(srv.URL))
	_, err := c.Fetch(context.Background(), types.Query{Category: "music", Location: "SF"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Failures)
	assert.Zero(t, stats.CostUSD, "failed calls are not billed")
}

func TestCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewPerplexityClient(providerCfg(srv.URL))
	q := types.Query{Category: "music", Location: "SF"}

	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background(), q)
		require.Error(t, err)
	}

	_, err := c.Fetch(context.Background(), q)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, "open", c.breaker.State())
}

func TestBuildSkipsDisabled(t *testing.T) {
	got := Build(config.ProvidersConfig{
		Exa:       config.ProviderConfig{APIKey: "k", Enabled: true},
		SerpAPI:   config.ProviderConfig{Enabled: false},
		PredictHQ: config.ProviderConfig{Enabled: false},
	})

	require.Len(t, got, 1)
	require.Contains(t, got, "exa")
	assert.Equal(t, types.SourceExa, got["exa"].Name())
}
