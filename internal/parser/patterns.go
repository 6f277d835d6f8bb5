// Package parser extracts event records from provider responses.
// LLM/narrative providers get a two-strategy cascade: structured
// (embedded JSON) extraction first, then line-by-line narrative
// extraction. Web-search providers use a simpler single-pass extractor.
//
// All pattern priority orders live in data tables here so tests can
// enumerate them directly instead of mirroring code branches.
package parser

import "regexp"

// jsonPattern locates a JSON array inside a narrative response body.
type jsonPattern struct {
	// Tag names the location strategy for diagnostics and tests.
	Tag string
	// Re must capture the candidate JSON array in group 1.
	Re *regexp.Regexp
}

// jsonPatterns is tried in order; the first pattern whose capture is
// syntactically valid JSON wins and no further patterns are tried.
var jsonPatterns = []jsonPattern{
	{"fenced-json", regexp.MustCompile("(?s)```json\\s*(\\[.*?\\])\\s*```")},
	{"fenced", regexp.MustCompile("(?s)```\\s*(\\[.*?\\])\\s*```")},
	{"inline-array", regexp.MustCompile(`(?s)(\[\s*\{.*?\}\s*\])`)},
	{"line-array", regexp.MustCompile(`(?m)^[ \t]*(\[.+\])[ \t]*$`)},
}

// titlePattern recognizes a line that opens a new event in narrative
// text. Group 1 is the title; group 2, when present, is trailing detail
// kept on the same line.
type titlePattern struct {
	Tag string
	Re  *regexp.Regexp
}

// titlePatterns is tried in order per line; the first match wins.
var titlePatterns = []titlePattern{
	{"bold-bullet", regexp.MustCompile(`^[-*]\s+\*\*(.+?)\*\*:?\s*(.*)$`)},
	{"bold", regexp.MustCompile(`^\*\*(.+?)\*\*:?\s*(.*)$`)},
	{"numbered-bold", regexp.MustCompile(`^\d+[.)]\s+\*\*(.+?)\*\*:?\s*(.*)$`)},
	{"bullet-bold", regexp.MustCompile(`^•\s+\*\*(.+?)\*\*:?\s*(.*)$`)},
	{"bullet", regexp.MustCompile(`^•\s+(.+)$`)},
	{"dash-paren", regexp.MustCompile(`^-\s+([^(:]+?)\s*(?:\((.+)\))?$`)},
	{"numbered-colon", regexp.MustCompile(`^\d+[.)]\s*([^:]+):\s*(.*)$`)},
	{"dash-colon", regexp.MustCompile(`^-\s*([^:]+):\s*(.*)$`)},
}

// thinkingBlockRe strips chain-of-thought blocks some LLM providers
// leak ahead of the answer.
var thinkingBlockRe = regexp.MustCompile(`(?s)<think(?:ing)?>.*?</think(?:ing)?>`)

// venueLineRe pulls a venue from a detail line ("at The Fillmore",
// "Venue: Great American Music Hall", "Location: Fox Theater").
var venueLineRe = regexp.MustCompile(`(?i)(?:\bat\s+|venue:\s*|location:\s*)([^.;|]+)`)

// monthNameRe matches "August 14", "Aug 14th, 2026", "September 3 2026".
// Group 1 = month, 2 = day, 3 = optional year.
var monthNameRe = regexp.MustCompile(
	`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s*(\d{4}))?`)

// slashDateRe matches "9/14", "09/14/2026", "9/14/26".
// Group 1 = month, 2 = day, 3 = optional year.
var slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)

// isoDateRe matches "2026-09-14"; counted as a date-like token by the
// scorer's aggregator heuristic.
var isoDateRe = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)

// monthIndex maps a lower-cased three-letter month prefix to its
// time.Month ordinal.
var monthIndex = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// CountDateTokens counts date-like tokens (month-name, slash, ISO) in
// the given text. The scorer uses this: exactly one date token suggests
// a single-event page, three or more suggests an aggregator listing.
func CountDateTokens(text string) int {
	n := len(monthNameRe.FindAllString(text, -1))
	n += len(slashDateRe.FindAllString(text, -1))
	n += len(isoDateRe.FindAllString(text, -1))
	return n
}
