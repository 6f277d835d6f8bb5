// Package types defines the core data structures for the eventscout
// aggregation pipeline. These types represent queries, raw provider
// candidates, canonical events, and the scoring/dedup verdicts that
// flow between pipeline stages.
package types

// Source provider identifiers. Every RawCandidate and CanonicalEvent
// carries one of these.
const (
	// SourcePerplexity is the LLM-backed search provider (narrative or
	// embedded-JSON responses).
	SourcePerplexity = "perplexity"

	// SourceExa is the primary web-search provider ("fast" tier).
	SourceExa = "exa"

	// SourceSerpAPI is the legacy web-search provider (google_events engine).
	SourceSerpAPI = "serpapi"

	// SourcePredictHQ is the structured ticketing/events API.
	SourcePredictHQ = "predicthq"
)

// ValidSources is a slice of all valid source providers for validation.
var ValidSources = []string{
	SourcePerplexity,
	SourceExa,
	SourceSerpAPI,
	SourcePredictHQ,
}

// IsValidSource returns true if the given source provider is recognized.
func IsValidSource(source string) bool {
	for _, s := range ValidSources {
		if s == source {
			return true
		}
	}
	return false
}

// Source priority classes used by the deduplicator's tie-break.
// Higher wins outright on a key collision.
const (
	// PriorityVenueDirect: the event URL points at a venue or organizer's
	// own domain.
	PriorityVenueDirect = 5

	// PriorityTicketing: structured ticketing platforms (PredictHQ).
	PriorityTicketing = 4

	// PriorityCuratedAggregator: curated event-listing sites.
	PriorityCuratedAggregator = 3

	// PriorityGenericSearch: generic web-search results (Exa, SerpAPI).
	PriorityGenericSearch = 2

	// PriorityLLMNarrative: events reconstructed from LLM narrative text.
	PriorityLLMNarrative = 1
)

// SourcePriority returns the dedup priority class for a provider.
// venueDirect overrides the provider class: a result whose URL lands on
// a known venue domain is trusted above everything else regardless of
// which provider surfaced it.
func SourcePriority(source string, venueDirect bool) int {
	if venueDirect {
		return PriorityVenueDirect
	}
	switch source {
	case SourcePredictHQ:
		return PriorityTicketing
	case SourceExa, SourceSerpAPI:
		return PriorityGenericSearch
	case SourcePerplexity:
		return PriorityLLMNarrative
	default:
		return PriorityGenericSearch
	}
}

// Event category constants accepted by the inbound API.
const (
	CategoryMusic    = "music"
	CategoryTheatre  = "theatre"
	CategoryComedy   = "comedy"
	CategoryArt      = "art"
	CategoryFood     = "food"
	CategorySports   = "sports"
	CategoryLectures = "lectures"
)

// ValidCategories is a slice of all valid event categories for validation.
var ValidCategories = []string{
	CategoryMusic,
	CategoryTheatre,
	CategoryComedy,
	CategoryArt,
	CategoryFood,
	CategorySports,
	CategoryLectures,
}

// IsValidCategory returns true if the given category is recognized.
// "theater" is accepted as a spelling variant of "theatre".
func IsValidCategory(category string) bool {
	if category == "theater" {
		return true
	}
	for _, c := range ValidCategories {
		if c == category {
			return true
		}
	}
	return false
}

// PredictHQCategory maps an inbound category to PredictHQ's taxonomy.
// Unknown categories fall back to performing-arts.
func PredictHQCategory(category string) string {
	switch category {
	case CategoryMusic:
		return "concerts"
	case CategoryTheatre, "theater", CategoryComedy:
		return "performing-arts"
	case CategorySports:
		return "sports"
	case CategoryFood:
		return "festivals"
	case CategoryArt:
		return "expos"
	case CategoryLectures:
		return "conferences"
	default:
		return "performing-arts"
	}
}
