package types

import "time"

// RawCandidate is one unprocessed result from a single provider,
// pre-normalization. Provider-specific extras go in the Extra bag
// instead of being probed off a generic object.
type RawCandidate struct {
	SourceProvider string `json:"source_provider"` // Always set by the adapter
	Title          string `json:"title"`           // May be empty only if FreeText is non-empty
	SourceURL      string `json:"source_url,omitempty"`
	FreeText       string `json:"free_text,omitempty"`     // Snippet, summary, or full narrative body
	RawTimestamp   string `json:"raw_timestamp,omitempty"` // Provider-native date string, unparsed
	RawVenueText   string `json:"raw_venue_text,omitempty"`

	// Extra carries provider-specific fields (attendance rank,
	// published date, address parts, ...) without widening the shared
	// schema.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Venue is the place an event happens.
type Venue struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// PriceRange is the advertised ticket price band in USD.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// CanonicalEvent is the normalized, de-duplicated event record ready
// for display.
//
// Invariants: StartDate <= EndDate; ID is stable for the lifetime of
// one response; Confidence reflects extraction certainty, not
// popularity.
type CanonicalEvent struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Category    string      `json:"category"`
	Venue       Venue       `json:"venue"`
	City        string      `json:"city,omitempty"`
	State       string      `json:"state,omitempty"`
	StartDate   time.Time   `json:"startDate"`
	EndDate     time.Time   `json:"endDate"`
	PriceRange  *PriceRange `json:"priceRange,omitempty"`
	ExternalURL string      `json:"externalUrl,omitempty"`

	// Source is the provider that won the dedup tie-break; Sources
	// lists every provider that surfaced this event.
	Source  string   `json:"source"`
	Sources []string `json:"sources,omitempty"`

	// Confidence in [0,1], derived from how the event was extracted
	// (structured payload vs. narrative reconstruction) and how many
	// fields could be filled.
	Confidence float64 `json:"confidence"`

	// Priority is the dedup tie-break class (see SourcePriority).
	Priority int `json:"-"`
}

// PopulatedFieldCount counts the display-critical fields that are set:
// title, venue, date, description, url. Used as the dedup tie-break
// when two colliding events share a priority class. The per-field
// weights are a data table so the balance is a one-line tunable.
func (e CanonicalEvent) PopulatedFieldCount() int {
	n := 0
	for _, f := range fieldWeights {
		if f.present(e) {
			n += f.weight
		}
	}
	return n
}

// fieldWeights assigns one point per populated field. Venue presence is
// deliberately not weighted above description.
var fieldWeights = []struct {
	name    string
	weight  int
	present func(CanonicalEvent) bool
}{
	{"title", 1, func(e CanonicalEvent) bool { return e.Title != "" }},
	{"venue", 1, func(e CanonicalEvent) bool { return e.Venue.Name != "" }},
	{"date", 1, func(e CanonicalEvent) bool { return !e.StartDate.IsZero() }},
	{"description", 1, func(e CanonicalEvent) bool { return e.Description != "" }},
	{"url", 1, func(e CanonicalEvent) bool { return e.ExternalURL != "" }},
}

// ScoreResult is the rule-engine verdict for one candidate.
// Drop is monotonic: once true for a candidate it is never reconsidered
// in the same run.
type ScoreResult struct {
	Score    float64  `json:"score"`
	Reasons  []string `json:"reasons,omitempty"`
	Drop     bool     `json:"drop"`
	AllowHit bool     `json:"allow_hit"`
}
