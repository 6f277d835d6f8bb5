package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/curateworld/eventscout/internal/config"
	"github.com/curateworld/eventscout/internal/dedupe"
	"github.com/curateworld/eventscout/internal/parser"
	"github.com/curateworld/eventscout/internal/providers"
	"github.com/curateworld/eventscout/internal/rules"
	"github.com/curateworld/eventscout/pkg/types"
)

// Tier is one fallback stage of the provider escalation ladder.
type Tier struct {
	Name      string
	Providers []string
}

// DefaultTiers returns the standard escalation ladder: the rich tier
// first, then the fast tier, then the legacy structured tier. A tier
// is only tried when the ones before it left the result count under
// the floor.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "rich", Providers: []string{types.SourcePerplexity, types.SourcePredictHQ}},
		{Name: "fast", Providers: []string{types.SourceExa}},
		{Name: "legacy", Providers: []string{types.SourceSerpAPI}},
	}
}

// EngineOptions wires an Engine's dependencies explicitly so tests can
// inject fakes for every one of them.
type EngineOptions struct {
	Providers   map[string]providers.Provider
	Scorer      *rules.Scorer
	Cache       *ResultCache
	Normalizer  *Normalizer
	Pipeline    config.PipelineConfig
	Tiers       []Tier
	CostPerCall map[string]float64
}

// Engine is the collection orchestrator.
type Engine struct {
	providers   map[string]providers.Provider
	scorer      *rules.Scorer
	cache       *ResultCache
	normalizer  *Normalizer
	cfg         config.PipelineConfig
	tiers       []Tier
	costPerCall map[string]float64
	group       singleflight.Group
}

// NewEngine creates an Engine. Missing options get working defaults;
// only the provider set is genuinely required.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Scorer == nil {
		opts.Scorer = rules.NewScorer(nil)
	}
	if opts.Normalizer == nil {
		opts.Normalizer = NewNormalizer()
	}
	if opts.Cache == nil {
		cache, err := NewResultCache(256, 5*time.Minute, 30*time.Second)
		if err != nil {
			return nil, err
		}
		opts.Cache = cache
	}
	if len(opts.Tiers) == 0 {
		opts.Tiers = DefaultTiers()
	}
	if opts.Pipeline.MaxInFlight <= 0 {
		opts.Pipeline.MaxInFlight = 4
	}
	if opts.Pipeline.ResultFloor <= 0 {
		opts.Pipeline.ResultFloor = 5
	}
	if opts.Pipeline.DefaultLimit <= 0 {
		opts.Pipeline.DefaultLimit = 20
	}

	return &Engine{
		providers:   opts.Providers,
		scorer:      opts.Scorer,
		cache:       opts.Cache,
		normalizer:  opts.Normalizer,
		cfg:         opts.Pipeline,
		tiers:       opts.Tiers,
		costPerCall: opts.CostPerCall,
	}, nil
}

// Collect runs the full pipeline for one query. Failures come back as
// a well-formed response with Success=false, never as a bare error.
// Concurrent calls for the same key share a single upstream run.
func (e *Engine) Collect(ctx context.Context, q types.Query, opts types.CollectOptions) types.CollectResponse {
	start := time.Now()

	// Category is matched case-insensitively everywhere downstream
	// (cache key, provider category mapping), so lower it once here.
	q.Category = strings.ToLower(q.Category)

	if violations := q.Validate(); len(violations) > 0 {
		return types.CollectResponse{
			Success:    false,
			Events:     []types.CanonicalEvent{},
			Error:      "invalid query",
			Violations: violations,
		}
	}

	key := CacheKey(q, opts)
	if resp, ok := e.cache.Get(key); ok {
		resp.Metadata.CacheHit = true
		resp.ProcessingTimeMs = time.Since(start).Milliseconds()
		return resp
	}

	v, _, _ := e.group.Do(key, func() (v interface{}, err error) {
		// A panic anywhere in the reduce stages would otherwise tear
		// down every caller waiting on this key.
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[COLLECT] pipeline panicked: %v", r)
				v = types.CollectResponse{
					Success: false,
					Events:  []types.CanonicalEvent{},
					Error:   fmt.Sprintf("internal pipeline failure: %v", r),
				}
			}
		}()
		resp := e.collect(ctx, q, opts)
		if resp.Success {
			e.cache.Put(key, resp)
		}
		return resp, nil
	})

	resp := v.(types.CollectResponse)
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	return resp
}

// collect is the uncached pipeline body.
func (e *Engine) collect(ctx context.Context, q types.Query, opts types.CollectOptions) types.CollectResponse {
	floor := e.cfg.ResultFloor
	minConfidence := opts.MinConfidence
	if minConfidence == 0 {
		minConfidence = e.cfg.MinConfidence
	}

	meta := types.CollectMetadata{SourceStats: make(map[string]types.ProviderStats)}
	var candidates []types.RawCandidate

	for _, tier := range e.tiers {
		provs := e.tierProviders(tier)
		if len(provs) == 0 {
			continue
		}
		meta.TiersTried = append(meta.TiersTried, tier.Name)
		meta.Tier = tier.Name

		for _, res := range Dispatch(ctx, provs, q, e.cfg.MaxInFlight, e.cfg.ProviderTimeout) {
			stats := types.ProviderStats{
				Count:            len(res.Candidates),
				ProcessingTimeMs: res.Elapsed.Milliseconds(),
				EstimatedCostUSD: e.costPerCall[res.Provider],
			}
			if res.Err != nil {
				stats.Error = res.Err.Error()
				stats.EstimatedCostUSD = 0
			}
			meta.SourceStats[res.Provider] = stats
			meta.EstimatedCostUSD += stats.EstimatedCostUSD
			candidates = append(candidates, res.Candidates...)
		}

		events, dropped, duplicates := e.reduce(candidates, q, minConfidence)
		if len(events) >= floor {
			meta.Dropped = dropped
			meta.DuplicatesRemoved = duplicates
			return e.finalize(events, opts, meta)
		}
	}

	events, dropped, duplicates := e.reduce(candidates, q, minConfidence)
	meta.Dropped = dropped
	meta.DuplicatesRemoved = duplicates
	if len(events) == 0 && len(meta.TiersTried) == 0 {
		return types.CollectResponse{
			Success:  false,
			Events:   []types.CanonicalEvent{},
			Metadata: meta,
			Error:    "no providers available",
		}
	}
	return e.finalize(events, opts, meta)
}

// reduce runs score -> normalize -> dedupe over the accumulated
// candidates. It is re-run after each tier; scoring is deterministic
// so re-scoring already-seen candidates changes nothing.
func (e *Engine) reduce(candidates []types.RawCandidate, q types.Query, minConfidence float64) (events []types.CanonicalEvent, dropped, duplicates int) {
	normalized := make([]types.CanonicalEvent, 0, len(candidates))
	for _, c := range candidates {
		verdict := e.scorer.Score(c.SourceURL, c.Title, c.FreeText)
		if verdict.Drop {
			dropped++
			continue
		}
		normalized = append(normalized, e.normalizer.Normalize(c, q)...)
	}

	deduped := dedupe.Dedupe(normalized)
	duplicates = len(normalized) - len(deduped)

	events = deduped[:0]
	for _, ev := range deduped {
		if ev.Confidence >= minConfidence {
			events = append(events, ev)
		}
	}
	return events, dropped, duplicates
}

// finalize sorts, truncates, and wraps the surviving events.
func (e *Engine) finalize(events []types.CanonicalEvent, opts types.CollectOptions, meta types.CollectMetadata) types.CollectResponse {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].StartDate.Equal(events[j].StartDate) {
			return events[i].StartDate.Before(events[j].StartDate)
		}
		return events[i].Title < events[j].Title
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if len(events) > limit {
		events = events[:limit]
	}
	if events == nil {
		events = []types.CanonicalEvent{}
	}

	return types.CollectResponse{
		Success:  true,
		Events:   events,
		Count:    len(events),
		Metadata: meta,
	}
}

// tierProviders resolves a tier's provider names against the enabled
// set, preserving the tier's ordering.
func (e *Engine) tierProviders(tier Tier) []providers.Provider {
	out := make([]providers.Provider, 0, len(tier.Providers))
	for _, name := range tier.Providers {
		if p, ok := e.providers[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// healthCheckTimeout bounds each provider's reachability probe.
const healthCheckTimeout = 2 * time.Second

// healthFixture is a known narrative body the parser must always
// reconstruct; a regression in the extraction chain turns the whole
// service unhealthy rather than silently returning empty results.
const healthFixture = "- **Self Test Show** at The Fillmore\n  September 14, 2026"

// ProviderHealth is one provider's slice of the health report:
// reachability plus its lifetime call accounting.
type ProviderHealth struct {
	Status   string  `json:"status"`
	Calls    uint64  `json:"calls"`
	Failures uint64  `json:"failures"`
	CostUSD  float64 `json:"costUSD"`
}

// HealthReport is the pipeline's self-diagnosis.
type HealthReport struct {
	Healthy      bool                      `json:"healthy"`
	Providers    map[string]ProviderHealth `json:"providers"`
	Parser       string                    `json:"parser"`
	CacheEntries int                       `json:"cacheEntries"`
}

// Health probes every enabled provider and runs the parser self-test.
// The report is degraded, not failed, when some providers are down;
// only a parser failure or zero reachable providers mark it unhealthy.
func (e *Engine) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Providers:    make(map[string]ProviderHealth, len(e.providers)),
		Parser:       "ok",
		CacheEntries: e.cache.Len(),
	}

	reachable := 0
	for name, p := range e.providers {
		ph := ProviderHealth{Status: "ok"}
		if sr, ok := p.(providers.StatsReporter); ok {
			cs := sr.Stats()
			ph.Calls = cs.Calls
			ph.Failures = cs.Failures
			ph.CostUSD = cs.CostUSD
		}
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := p.HealthCheck(checkCtx)
		cancel()
		if err != nil {
			ph.Status = err.Error()
			log.Printf("[HEALTH] %s unreachable: %v", name, err)
		} else {
			reachable++
		}
		report.Providers[name] = ph
	}

	if got := parser.ExtractNarrative(healthFixture); len(got) != 1 || got[0].Venue != "The Fillmore" {
		report.Parser = "narrative extraction self-test failed"
	}

	report.Healthy = reachable > 0 && report.Parser == "ok"
	return report
}
