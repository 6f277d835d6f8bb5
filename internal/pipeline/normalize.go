package pipeline

import (
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/curateworld/eventscout/internal/parser"
	"github.com/curateworld/eventscout/pkg/types"
)

// Confidence by extraction path. Structured payloads are trusted most;
// an event reconstructed from loose narrative text the least.
const (
	confidenceDirect     = 0.9
	confidenceStructured = 0.85
	confidenceWebResult  = 0.7
	confidenceNarrative  = 0.6
	confidenceFallback   = 0.4
)

// Normalizer turns raw provider candidates into canonical events. The
// clock and rng are injectable so date fallbacks are deterministic in
// tests.
type Normalizer struct {
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewNormalizer creates a Normalizer with the real clock and a
// time-seeded rng.
func NewNormalizer() *Normalizer {
	return NewNormalizerWith(time.Now, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewNormalizerWith creates a Normalizer with an injected clock and rng.
func NewNormalizerWith(now func() time.Time, rng *rand.Rand) *Normalizer {
	return &Normalizer{now: now, rng: rng}
}

// Normalize expands one raw candidate into zero or more canonical
// events. An LLM-narrative candidate may describe several events in a
// single body; a web or direct candidate maps to at most one.
func (n *Normalizer) Normalize(c types.RawCandidate, q types.Query) []types.CanonicalEvent {
	switch c.SourceProvider {
	case types.SourcePredictHQ:
		return n.normalizeDirect(c, q)
	case types.SourcePerplexity:
		return n.normalizeNarrative(c, q)
	default:
		return n.normalizeWebResult(c, q)
	}
}

// normalizeDirect maps an already-structured provider record.
func (n *Normalizer) normalizeDirect(c types.RawCandidate, q types.Query) []types.CanonicalEvent {
	if c.Title == "" {
		return nil
	}
	rawEnd, _ := c.Extra["end"].(string)
	address, _ := c.Extra["address"].(string)

	ev := n.baseEvent(c, q, confidenceDirect)
	ev.Venue = types.Venue{Name: c.RawVenueText, Address: address}
	ev.StartDate, ev.EndDate = n.parseRange(c.RawTimestamp, rawEnd)
	return []types.CanonicalEvent{ev}
}

// normalizeNarrative runs the extraction chain over an LLM-leaning
// candidate: structured JSON first, then narrative reconstruction,
// then a last-resort single event from the candidate envelope itself.
func (n *Normalizer) normalizeNarrative(c types.RawCandidate, q types.Query) []types.CanonicalEvent {
	extracted := parser.ExtractStructured(c.FreeText)
	confidence := confidenceStructured
	if len(extracted) == 0 {
		extracted = parser.ExtractNarrative(c.FreeText)
		confidence = confidenceNarrative
	}
	if len(extracted) == 0 {
		if c.Title == "" {
			return nil
		}
		return n.normalizeWebFallback(c, q, confidenceFallback)
	}

	events := make([]types.CanonicalEvent, 0, len(extracted))
	for _, ex := range extracted {
		ev := n.baseEvent(c, q, confidence)
		ev.Title = ex.Title
		ev.Description = firstNonEmpty(ex.Description, truncateText(c.FreeText))
		ev.Venue = types.Venue{Name: ex.Venue, Address: ex.Address}
		if ex.URL != "" {
			ev.ExternalURL = ex.URL
		}
		ev.StartDate, ev.EndDate = n.parseRange(firstNonEmpty(ex.RawDate, c.RawTimestamp), ex.RawEndDate)
		ev.Priority = eventPriority(c.SourceProvider, ev.ExternalURL)
		events = append(events, ev)
	}
	return events
}

// normalizeWebResult maps one search hit.
func (n *Normalizer) normalizeWebResult(c types.RawCandidate, q types.Query) []types.CanonicalEvent {
	if c.Title == "" && c.FreeText == "" {
		return nil
	}
	ex := parser.ExtractWebResult(parser.WebResult{
		Title:   c.Title,
		Snippet: c.FreeText,
		URL:     c.SourceURL,
		RawDate: c.RawTimestamp,
	})
	if c.RawVenueText != "" {
		ex.Venue = c.RawVenueText
	}

	ev := n.baseEvent(c, q, confidenceWebResult)
	ev.Title = ex.Title
	ev.Description = ex.Description
	ev.Venue = types.Venue{Name: ex.Venue}
	if address, ok := c.Extra["address"].(string); ok {
		ev.Venue.Address = address
	}
	ev.StartDate, ev.EndDate = n.parseRange(ex.RawDate, "")
	return []types.CanonicalEvent{ev}
}

func (n *Normalizer) normalizeWebFallback(c types.RawCandidate, q types.Query, confidence float64) []types.CanonicalEvent {
	events := n.normalizeWebResult(c, q)
	for i := range events {
		events[i].Confidence = confidence
	}
	return events
}

// baseEvent fills the fields every path shares.
func (n *Normalizer) baseEvent(c types.RawCandidate, q types.Query, confidence float64) types.CanonicalEvent {
	city, state := splitLocation(q.Location)
	return types.CanonicalEvent{
		ID:          uuid.NewString(),
		Title:       c.Title,
		Description: truncateText(c.FreeText),
		Category:    q.Category,
		City:        city,
		State:       state,
		ExternalURL: c.SourceURL,
		Source:      c.SourceProvider,
		Confidence:  confidence,
		Priority:    eventPriority(c.SourceProvider, c.SourceURL),
	}
}

func (n *Normalizer) parseRange(rawStart, rawEnd string) (time.Time, time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return parser.ParseEventDateRange(rawStart, rawEnd, n.now(), n.rng)
}

// eventPriority assigns the dedup priority class: a known venue domain
// beats everything, a curated aggregator domain beats the provider's
// own class.
func eventPriority(source, externalURL string) int {
	if parser.IsVenueHost(externalURL) {
		return types.PriorityVenueDirect
	}
	if parser.IsAggregatorHost(externalURL) {
		return types.PriorityCuratedAggregator
	}
	return types.SourcePriority(source, false)
}

// splitLocation splits "San Francisco, CA" into city and state.
func splitLocation(location string) (city, state string) {
	parts := strings.SplitN(location, ",", 2)
	city = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		state = strings.TrimSpace(parts[1])
	}
	return city, state
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// truncateText caps free text reused as a description, never splitting
// a multi-byte rune.
func truncateText(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 200 {
		return s
	}
	n := 200
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
