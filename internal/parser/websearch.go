package parser

import (
	"net/url"
	"regexp"
	"strings"
)

// venueHosts is the static host -> venue lookup table for web-search
// results. Hosts are registered without a "www." prefix. Seeded from
// the Bay Area venue registry; extending it is additive only.
var venueHosts = map[string]string{
	"thefillmore.com":       "The Fillmore",
	"gamh.com":              "Great American Music Hall",
	"slimspresents.com":     "Slim's",
	"theindependentsf.com":  "The Independent",
	"bottomofthehill.com":   "Bottom of the Hill",
	"thegreekberkeley.com":  "Greek Theatre Berkeley",
	"foxoakland.com":        "Fox Theater Oakland",
	"thewarfieldtheatre.com": "The Warfield",
	"billgrahamcivic.com":   "Bill Graham Civic Auditorium",
	"sfjazz.org":            "SFJAZZ Center",
	"sfsymphony.org":        "San Francisco Symphony",
	"sfopera.com":           "San Francisco Opera",
	"act-sf.org":            "American Conservatory Theater",
	"berkeleyrep.org":       "Berkeley Repertory Theatre",
	"cobbscomedy.com":       "Cobb's Comedy Club",
	"punchlinecomedyclub.com": "Punch Line Comedy Club",
	"chasecenter.com":       "Chase Center",
}

// aggregatorHosts identifies curated event-listing sites, which rank
// between ticketing platforms and generic search in dedup priority.
var aggregatorHosts = map[string]bool{
	"sf.funcheap.com":   true,
	"dothebay.com":      true,
	"sfstation.com":     true,
	"bandsintown.com":   true,
	"songkick.com":      true,
	"eventbrite.com":    true,
	"meetup.com":        true,
}

// titleVenueSuffixRe matches a trailing "- Venue" segment in a result
// title ("Cat Power - The Fillmore").
var titleVenueSuffixRe = regexp.MustCompile(`\s+[-–|]\s+([^-–|]{3,60})$`)

// titleAtVenueRe matches a trailing "at Venue" in a result title.
var titleAtVenueRe = regexp.MustCompile(`(?i)\s+at\s+([^,|]{3,60})$`)

// snippetVenueLabelRe matches a labeled venue token in snippet text.
var snippetVenueLabelRe = regexp.MustCompile(`(?i)(?:venue|location):\s*([^.;,|\n]{3,60})`)

// WebResult is a single web-search hit before normalization.
type WebResult struct {
	Title   string
	Snippet string
	URL     string
	RawDate string
}

// ExtractWebResult resolves title, venue, and date fields from a single
// web-search hit. Venue resolution order: static host table, trailing
// title suffix, labeled snippet token. No match leaves the venue empty
// (never a placeholder string) for the downstream scorer to penalize.
func ExtractWebResult(r WebResult) ExtractedEvent {
	ev := ExtractedEvent{
		Title:       strings.TrimSpace(r.Title),
		URL:         strings.TrimSpace(r.URL),
		RawDate:     strings.TrimSpace(r.RawDate),
		Description: truncate(strings.TrimSpace(r.Snippet), descriptionCap),
	}

	if host := NormalizeHost(ev.URL); host != "" {
		if name, ok := venueHosts[host]; ok {
			ev.Venue = name
		}
	}
	if ev.Venue == "" {
		if m := titleVenueSuffixRe.FindStringSubmatch(ev.Title); m != nil {
			ev.Venue = strings.TrimSpace(m[1])
			ev.Title = strings.TrimSpace(strings.TrimSuffix(ev.Title, m[0]))
		} else if m := titleAtVenueRe.FindStringSubmatch(ev.Title); m != nil {
			ev.Venue = strings.TrimSpace(m[1])
		}
	}
	if ev.Venue == "" {
		if m := snippetVenueLabelRe.FindStringSubmatch(r.Snippet); m != nil {
			ev.Venue = strings.TrimSpace(m[1])
		}
	}

	if ev.RawDate == "" {
		if m := monthNameRe.FindString(r.Snippet); m != "" {
			ev.RawDate = m
		} else if m := slashDateRe.FindString(r.Snippet); m != "" {
			ev.RawDate = m
		}
	}

	return ev
}

// NormalizeHost extracts the lower-cased host from a URL and strips a
// leading "www.". Returns "" for unparseable input.
func NormalizeHost(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// IsVenueHost reports whether the URL's host is in the static venue
// registry.
func IsVenueHost(rawURL string) bool {
	_, ok := venueHosts[NormalizeHost(rawURL)]
	return ok
}

// IsAggregatorHost reports whether the URL's host is a known curated
// event-listing site.
func IsAggregatorHost(rawURL string) bool {
	host := NormalizeHost(rawURL)
	if aggregatorHosts[host] {
		return true
	}
	// Subdomains of a registered aggregator count too.
	for h := range aggregatorHosts {
		if strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
