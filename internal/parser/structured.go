package parser

import (
	"encoding/json"
	"strings"
)

// structuredEvent is the tolerant decode target for an embedded JSON
// event array. LLMs are inconsistent about field naming, so common
// aliases are all declared and reconciled after unmarshalling.
type structuredEvent struct {
	Title       string `json:"title"`
	Name        string `json:"name"`
	Venue       string `json:"venue"`
	Location    string `json:"location"`
	Address     string `json:"address"`
	Date        string `json:"date"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Description string `json:"description"`
	URL         string `json:"url"`
	TicketURL   string `json:"ticketUrl"`
	Price       string `json:"price"`
}

// ExtractedEvent is one event pulled out of a narrative or embedded-JSON
// response, before normalization into a CanonicalEvent.
type ExtractedEvent struct {
	Title       string
	Venue       string
	Address     string
	RawDate     string
	RawEndDate  string
	Description string
	URL         string
	Price       string

	// Structured is true when the event came from an embedded JSON
	// payload rather than narrative reconstruction; normalization uses
	// it to set confidence.
	Structured bool
}

// ExtractStructured scans response text against the ordered JSON-location
// pattern table and decodes the first syntactically valid match. It
// returns nil when no pattern yields valid JSON; callers then fall back
// to narrative extraction.
func ExtractStructured(text string) []ExtractedEvent {
	for _, p := range jsonPatterns {
		for _, m := range p.Re.FindAllStringSubmatch(text, -1) {
			var decoded []structuredEvent
			if err := json.Unmarshal([]byte(m[1]), &decoded); err != nil {
				// Invalid JSON at this location; try the next match.
				continue
			}
			events := make([]ExtractedEvent, 0, len(decoded))
			for _, d := range decoded {
				ev, ok := reduceStructured(d)
				if !ok {
					continue
				}
				events = append(events, ev)
			}
			// First valid JSON wins even if every item in it was
			// unusable; falling through to a lower-priority pattern
			// would change which payload is authoritative.
			return events
		}
	}
	return nil
}

// reduceStructured reconciles alias fields into one ExtractedEvent.
// An item with neither title nor name is dropped.
func reduceStructured(d structuredEvent) (ExtractedEvent, bool) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		title = strings.TrimSpace(d.Name)
	}
	if title == "" {
		return ExtractedEvent{}, false
	}

	venue := strings.TrimSpace(d.Venue)
	if venue == "" {
		venue = strings.TrimSpace(d.Location)
	}

	date := strings.TrimSpace(d.StartDate)
	if date == "" {
		date = strings.TrimSpace(d.Date)
	}

	url := strings.TrimSpace(d.URL)
	if url == "" {
		url = strings.TrimSpace(d.TicketURL)
	}

	return ExtractedEvent{
		Title:       title,
		Venue:       venue,
		Address:     strings.TrimSpace(d.Address),
		RawDate:     date,
		RawEndDate:  strings.TrimSpace(d.EndDate),
		Description: strings.TrimSpace(d.Description),
		URL:         url,
		Price:       strings.TrimSpace(d.Price),
		Structured:  true,
	}, true
}
