package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateworld/eventscout/internal/config"
	"github.com/curateworld/eventscout/internal/providers"
	"github.com/curateworld/eventscout/pkg/types"
)

var testNow = time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)

func testQuery() types.Query {
	return types.Query{Category: "music", Location: "San Francisco, CA"}
}

// candidateBatch builds n distinct single-show candidates: unique URLs
// and dates so neither dedup pass collapses them.
func candidateBatch(prefix string, n int) []types.RawCandidate {
	out := make([]types.RawCandidate, n)
	for i := range out {
		out[i] = webCandidate(
			types.SourceExa,
			fmt.Sprintf("%s Concert %02d", prefix, i+1),
			fmt.Sprintf("https://venues.example.com/e/%s-%02d", prefix, i+1),
			fmt.Sprintf("2026-09-%02d", (i%27)+1),
		)
	}
	return out
}

func testEngine(t *testing.T, provs map[string]providers.Provider, tiers []Tier) *Engine {
	t.Helper()
	cache, err := NewResultCache(16, 5*time.Minute, 30*time.Second)
	require.NoError(t, err)

	eng, err := NewEngine(EngineOptions{
		Providers:  provs,
		Cache:      cache,
		Normalizer: NewNormalizerWith(func() time.Time { return testNow }, rand.New(rand.NewSource(1))),
		Tiers:      tiers,
		Pipeline: config.PipelineConfig{
			MaxInFlight:     4,
			ResultFloor:     5,
			DefaultLimit:    20,
			ProviderTimeout: time.Second,
		},
		CostPerCall: map[string]float64{"rich1": 0.005},
	})
	require.NoError(t, err)
	return eng
}

func TestCollectTieredFallback(t *testing.T) {
	rich := &fakeProvider{name: "rich1", candidates: candidateBatch("rich", 2)}
	fast := &fakeProvider{name: "fast1", candidates: candidateBatch("fast", 12)}
	legacy := &fakeProvider{name: "legacy1", candidates: candidateBatch("legacy", 3)}

	eng := testEngine(t,
		map[string]providers.Provider{"rich1": rich, "fast1": fast, "legacy1": legacy},
		[]Tier{
			{Name: "rich", Providers: []string{"rich1"}},
			{Name: "fast", Providers: []string{"fast1"}},
			{Name: "legacy", Providers: []string{"legacy1"}},
		})

	resp := eng.Collect(context.Background(), testQuery(), types.CollectOptions{})

	require.True(t, resp.Success)
	assert.GreaterOrEqual(t, resp.Count, 5, "fast tier should lift the count over the floor")
	assert.Equal(t, "fast", resp.Metadata.Tier)
	assert.Equal(t, []string{"rich", "fast"}, resp.Metadata.TiersTried)
	assert.Equal(t, int32(0), legacy.calls.Load(), "satisfied floor must not touch the next tier")
	assert.InDelta(t, 0.005, resp.Metadata.EstimatedCostUSD, 1e-9)
}

func TestCollectFirstTierSufficient(t *testing.T) {
	rich := &fakeProvider{name: "rich1", candidates: candidateBatch("rich", 8)}
	fast := &fakeProvider{name: "fast1"}

	eng := testEngine(t,
		map[string]providers.Provider{"rich1": rich, "fast1": fast},
		[]Tier{
			{Name: "rich", Providers: []string{"rich1"}},
			{Name: "fast", Providers: []string{"fast1"}},
		})

	resp := eng.Collect(context.Background(), testQuery(), types.CollectOptions{})

	require.True(t, resp.Success)
	assert.Equal(t, "rich", resp.Metadata.Tier)
	assert.Equal(t, int32(0), fast.calls.Load())
}

func TestCollectCacheHit(t *testing.T) {
	rich := &fakeProvider{name: "rich1", candidates: candidateBatch("rich", 6)}
	eng := testEngine(t,
		map[string]providers.Provider{"rich1": rich},
		[]Tier{{Name: "rich", Providers: []string{"rich1"}}})

	first := eng.Collect(context.Background(), testQuery(), types.CollectOptions{})
	require.True(t, first.Success)
	assert.False(t, first.Metadata.CacheHit)

	second := eng.Collect(context.Background(), testQuery(), types.CollectOptions{})
	require.True(t, second.Success)
	assert.True(t, second.Metadata.CacheHit)
	assert.Equal(t, first.Count, second.Count)
	assert.Equal(t, int32(1), rich.calls.Load(), "cache hit must not call providers")
}

func TestCollectValidationShortCircuit(t *testing.T) {
	rich := &fakeProvider{name: "rich1", candidates: candidateBatch("rich", 6)}
	eng := testEngine(t,
		map[string]providers.Provider{"rich1": rich},
		[]Tier{{Name: "rich", Providers: []string{"rich1"}}})

	resp := eng.Collect(context.Background(), types.Query{Location: "SF"}, types.CollectOptions{})

	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Violations)
	assert.Equal(t, int32(0), rich.calls.Load(), "invalid query must not reach providers")
}

func TestCollectSingleFlight(t *testing.T) {
	rich := &fakeProvider{name: "rich1", candidates: candidateBatch("rich", 6), delay: 100 * time.Millisecond}
	eng := testEngine(t,
		map[string]providers.Provider{"rich1": rich},
		[]Tier{{Name: "rich", Providers: []string{"rich1"}}})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := eng.Collect(context.Background(), testQuery(), types.CollectOptions{})
			assert.True(t, resp.Success)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), rich.calls.Load(), "concurrent misses must share one upstream run")
}

func TestCollectProviderFailureIsDegraded(t *testing.T) {
	rich := &fakeProvider{name: "rich1", err: fmt.Errorf("upstream down")}
	fast := &fakeProvider{name: "fast1", candidates: candidateBatch("fast", 6)}

	eng := testEngine(t,
		map[string]providers.Provider{"rich1": rich, "fast1": fast},
		[]Tier{
			{Name: "rich", Providers: []string{"rich1"}},
			{Name: "fast", Providers: []string{"fast1"}},
		})

	resp := eng.Collect(context.Background(), testQuery(), types.CollectOptions{})

	require.True(t, resp.Success, "one failing provider degrades, never fails, the response")
	assert.Equal(t, "upstream down", resp.Metadata.SourceStats["rich1"].Error)
	assert.GreaterOrEqual(t, resp.Count, 5)
}

func TestCollectNoProviders(t *testing.T) {
	eng := testEngine(t, map[string]providers.Provider{}, []Tier{{Name: "rich", Providers: []string{"rich1"}}})

	resp := eng.Collect(context.Background(), testQuery(), types.CollectOptions{})

	assert.False(t, resp.Success)
	assert.Equal(t, "no providers available", resp.Error)
	assert.NotNil(t, resp.Events, "failure responses still carry a well-formed events array")
}

func TestCollectLimitApplied(t *testing.T) {
	rich := &fakeProvider{name: "rich1", candidates: candidateBatch("rich", 12)}
	eng := testEngine(t,
		map[string]providers.Provider{"rich1": rich},
		[]Tier{{Name: "rich", Providers: []string{"rich1"}}})

	resp := eng.Collect(context.Background(), testQuery(), types.CollectOptions{Limit: 3})

	require.True(t, resp.Success)
	assert.Equal(t, 3, resp.Count)
	assert.Len(t, resp.Events, 3)

	// Events come back date-sorted.
	for i := 1; i < len(resp.Events); i++ {
		assert.False(t, resp.Events[i].StartDate.Before(resp.Events[i-1].StartDate))
	}
}

func TestCollectMinConfidenceFilter(t *testing.T) {
	rich := &fakeProvider{name: "rich1", candidates: candidateBatch("rich", 6)}
	eng := testEngine(t,
		map[string]providers.Provider{"rich1": rich},
		[]Tier{{Name: "rich", Providers: []string{"rich1"}}})

	resp := eng.Collect(context.Background(), testQuery(), types.CollectOptions{MinConfidence: 0.95})

	require.True(t, resp.Success)
	assert.Zero(t, resp.Count, "web-result confidence sits below 0.95")
}

func TestHealth(t *testing.T) {
	rich := &fakeProvider{name: "rich1", candidates: candidateBatch("rich", 6)}
	fast := &fakeProvider{name: "fast1", healthErr: fmt.Errorf("401 unauthorized")}
	eng := testEngine(t,
		map[string]providers.Provider{"rich1": rich, "fast1": fast},
		[]Tier{{Name: "rich", Providers: []string{"rich1"}}})

	resp := eng.Collect(context.Background(), testQuery(), types.CollectOptions{})
	require.True(t, resp.Success)

	report := eng.Health(context.Background())

	assert.True(t, report.Healthy, "one reachable provider keeps the service up")
	assert.Equal(t, "ok", report.Providers["rich1"].Status)
	assert.Equal(t, uint64(1), report.Providers["rich1"].Calls, "call accounting surfaces in health")
	assert.Contains(t, report.Providers["fast1"].Status, "401")
	assert.Equal(t, "ok", report.Parser)
}

func TestCollectRecoversPipelinePanic(t *testing.T) {
	rich := &fakeProvider{name: "rich1", candidates: []types.RawCandidate{
		webCandidate(types.SourceExa, "Mystery Show", "https://venues.example.com/e/mystery-01", "no date here"),
	}}
	cache, err := NewResultCache(16, 5*time.Minute, 30*time.Second)
	require.NoError(t, err)

	// A nil rng makes the unparseable-date fallback explode inside
	// normalization, standing in for an unexpected reduce-stage defect.
	eng, err := NewEngine(EngineOptions{
		Providers:  map[string]providers.Provider{"rich1": rich},
		Cache:      cache,
		Normalizer: NewNormalizerWith(func() time.Time { return testNow }, nil),
		Tiers:      []Tier{{Name: "rich", Providers: []string{"rich1"}}},
		Pipeline: config.PipelineConfig{
			MaxInFlight:     1,
			ResultFloor:     5,
			DefaultLimit:    20,
			ProviderTimeout: time.Second,
		},
	})
	require.NoError(t, err)

	resp := eng.Collect(context.Background(), testQuery(), types.CollectOptions{})

	require.False(t, resp.Success)
	assert.Contains(t, resp.Error, "internal pipeline failure")
	assert.NotNil(t, resp.Events)
}

func TestCollectLowersCategory(t *testing.T) {
	rich := &fakeProvider{name: "rich1", candidates: candidateBatch("rich", 6)}
	eng := testEngine(t,
		map[string]providers.Provider{"rich1": rich},
		[]Tier{{Name: "rich", Providers: []string{"rich1"}}})

	q := testQuery()
	q.Category = "Music"
	resp := eng.Collect(context.Background(), q, types.CollectOptions{})
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Events)
	assert.Equal(t, "music", resp.Events[0].Category)

	// The mixed-case query shares the lower-cased cache entry.
	resp = eng.Collect(context.Background(), testQuery(), types.CollectOptions{})
	require.True(t, resp.Success)
	assert.True(t, resp.Metadata.CacheHit)
	assert.Equal(t, int32(1), rich.calls.Load())
}

func TestHealthAllProvidersDown(t *testing.T) {
	provs := map[string]providers.Provider{
		"rich1": &fakeProvider{name: "rich1", healthErr: fmt.Errorf("timeout")},
	}
	eng := testEngine(t, provs, DefaultTiers())

	report := eng.Health(context.Background())
	assert.False(t, report.Healthy)
}
