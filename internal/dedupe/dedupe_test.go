package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateworld/eventscout/pkg/types"
)

var showTime = time.Date(2026, time.September, 14, 19, 30, 0, 0, time.UTC)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://WWW.Example.com/Events/", "example.com/events"},
		{"http://example.com/events", "example.com/events"},
		{"https://example.com/events?utm_source=x#tickets", "example.com/events"},
		{"example.com/events", "example.com/events"},
		{"https://thefillmore.com/", "thefillmore.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CanonicalURL(tt.in); got != tt.want {
			t.Errorf("CanonicalURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKeyPrefersURL(t *testing.T) {
	withURL := Key("https://example.com/event/1", "Cat Power", showTime)
	sameURL := Key("http://www.example.com/event/1/", "Totally Different Title", showTime)
	assert.Equal(t, withURL, sameURL, "scheme, www, and trailing slash must not split the key")

	noURL := Key("", "Cat Power", showTime)
	sameHour := Key("", "  CAT  POWER ", showTime.Add(20*time.Minute))
	assert.Equal(t, noURL, sameHour, "title keys floor the date to the hour")

	nextHour := Key("", "Cat Power", showTime.Add(time.Hour))
	assert.NotEqual(t, noURL, nextHour)
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "cat power live", NormalizeTitle("  Cat Power: LIVE! "))
	assert.Equal(t, "jazz night 2026", NormalizeTitle("Jazz-Night (2026)"))
}

func TestDedupeHigherPriorityWins(t *testing.T) {
	direct := types.CanonicalEvent{
		ID: "a", Title: "Cat Power", ExternalURL: "https://thefillmore.com/event/cat-power",
		StartDate: showTime, Source: "exa", Priority: types.PriorityVenueDirect,
	}
	narrative := types.CanonicalEvent{
		ID: "b", Title: "Cat Power", ExternalURL: "http://www.thefillmore.com/event/cat-power/",
		StartDate: showTime, Source: "perplexity", Priority: types.PriorityLLMNarrative,
		Description: "An intimate evening with Cat Power.",
	}

	for name, input := range map[string][]types.CanonicalEvent{
		"direct first":    {direct, narrative},
		"narrative first": {narrative, direct},
	} {
		t.Run(name, func(t *testing.T) {
			got := Dedupe(input)
			require.Len(t, got, 1)
			assert.Equal(t, "a", got[0].ID, "higher source priority must win outright")
			assert.ElementsMatch(t, []string{"exa", "perplexity"}, got[0].Sources)
			// Loser fields are discarded, never merged in.
			assert.Empty(t, got[0].Description)
		})
	}
}

func TestDedupeTieBrokenByFieldCount(t *testing.T) {
	sparse := types.CanonicalEvent{
		ID: "sparse", Title: "Jazz Night", StartDate: showTime,
		Source: "exa", Priority: types.PriorityGenericSearch,
	}
	rich := types.CanonicalEvent{
		ID: "rich", Title: "Jazz Night", StartDate: showTime,
		Source: "serpapi", Priority: types.PriorityGenericSearch,
		Venue:       types.Venue{Name: "SFJAZZ Center"},
		Description: "A full evening of improvised sets from the resident ensemble.",
	}

	for name, input := range map[string][]types.CanonicalEvent{
		"rich first":   {rich, sparse},
		"sparse first": {sparse, rich},
	} {
		t.Run(name, func(t *testing.T) {
			got := Dedupe(input)
			require.Len(t, got, 1)
			assert.Equal(t, "rich", got[0].ID)
		})
	}
}

func TestDedupeFuzzyTitleMerge(t *testing.T) {
	a := types.CanonicalEvent{
		ID: "a", Title: "Kamasi Washington Live", StartDate: showTime,
		ExternalURL: "https://foxoakland.com/event/kamasi", Source: "exa",
		Priority: types.PriorityVenueDirect,
	}
	b := types.CanonicalEvent{
		ID: "b", Title: "Kamasi Washington - Live", StartDate: showTime.Add(10 * time.Minute),
		ExternalURL: "https://songkick.com/concerts/12345", Source: "serpapi",
		Priority: types.PriorityCuratedAggregator,
	}

	got := Dedupe([]types.CanonicalEvent{b, a})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.ElementsMatch(t, []string{"exa", "serpapi"}, got[0].Sources)
}

func TestDedupeDistinctEventsSurvive(t *testing.T) {
	events := []types.CanonicalEvent{
		{ID: "a", Title: "Cat Power", StartDate: showTime, Source: "exa", Priority: 2},
		{ID: "b", Title: "Kamasi Washington", StartDate: showTime, Source: "exa", Priority: 2},
		{ID: "c", Title: "Cat Power", StartDate: showTime.Add(48 * time.Hour), Source: "exa", Priority: 2},
	}

	got := Dedupe(events)
	assert.Len(t, got, 3, "different titles or different hours never collide")
}

func TestDedupeIdempotent(t *testing.T) {
	events := []types.CanonicalEvent{
		{ID: "a", Title: "Cat Power", StartDate: showTime, ExternalURL: "https://x.com/e/1", Source: "exa", Priority: 4},
		{ID: "b", Title: "Cat Power", StartDate: showTime, ExternalURL: "http://x.com/e/1/", Source: "perplexity", Priority: 1},
		{ID: "c", Title: "Jazz Night", StartDate: showTime, Source: "serpapi", Priority: 2},
	}

	once := Dedupe(events)
	twice := Dedupe(once)
	assert.Equal(t, once, twice)
}

func TestDedupeEmptyAndSingle(t *testing.T) {
	assert.Empty(t, Dedupe(nil))

	one := []types.CanonicalEvent{{ID: "a", Title: "Solo", Source: "exa"}}
	got := Dedupe(one)
	require.Len(t, got, 1)
}
