package rules

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/curateworld/eventscout/internal/parser"
	"github.com/curateworld/eventscout/pkg/types"
)

// Scoring weights. The accumulator is signed: block signals subtract,
// trust signals add, and the final drop decision compares against
// dropThreshold unless an allow path matched.
const (
	globalBlockWeight   = -0.5
	domainBlockWeight   = -0.7
	allowPathWeight     = 0.6
	penalizeWordWeight  = -0.3
	ticketKeywordWeight = 0.3
	singleDateWeight    = 0.3
	manyDatesWeight     = -0.4

	dropThreshold = -2.0
)

// manyDatesFloor is the date-token count at which a page reads like an
// aggregator listing rather than a single event.
const manyDatesFloor = 3

var ticketKeywordRe = regexp.MustCompile(`(?i)\b(tickets?|rsvp|register|registration|box office|on sale)\b`)

// Scorer evaluates candidates against a compiled RuleSet. The rule set
// is passed in explicitly so tests can pin a fixed configuration.
type Scorer struct {
	rules *RuleSet
}

// NewScorer creates a Scorer over the given rule set. A nil rule set
// falls back to the built-in defaults.
func NewScorer(rs *RuleSet) *Scorer {
	if rs == nil {
		rs = Default()
	}
	return &Scorer{rules: rs}
}

// Score runs the signed accumulator over one candidate. Every
// contribution is recorded in Reasons. An allow-path hit sets AllowHit
// and exempts the candidate from dropping regardless of how negative
// the accumulated score is.
func (s *Scorer) Score(candidateURL, title, snippet string) types.ScoreResult {
	var res types.ScoreResult

	host, path := splitURL(candidateURL)

	for _, re := range s.rules.globalBlock {
		if re.MatchString(path) {
			res.Score += globalBlockWeight
			res.Reasons = append(res.Reasons, fmt.Sprintf("global block %s (%.1f)", re.String(), globalBlockWeight))
		}
	}

	if cd, ok := s.rules.domainFor(host); ok {
		for _, re := range cd.block {
			if re.MatchString(path) {
				res.Score += domainBlockWeight
				res.Reasons = append(res.Reasons, fmt.Sprintf("block path %s (%.1f)", re.String(), domainBlockWeight))
			}
		}
		for _, re := range cd.allow {
			if re.MatchString(path) {
				res.Score += allowPathWeight
				res.AllowHit = true
				res.Reasons = append(res.Reasons, fmt.Sprintf("allow path %s (+%.1f)", re.String(), allowPathWeight))
			}
		}
		text := strings.ToLower(title + " " + snippet)
		for _, w := range cd.penalizeWords {
			if strings.Contains(text, w) {
				res.Score += penalizeWordWeight
				res.Reasons = append(res.Reasons, fmt.Sprintf("penalize word %q (%.1f)", w, penalizeWordWeight))
			}
		}
	}

	combined := title + " " + snippet
	if ticketKeywordRe.MatchString(combined) {
		res.Score += ticketKeywordWeight
		res.Reasons = append(res.Reasons, fmt.Sprintf("ticket keyword (+%.1f)", ticketKeywordWeight))
	}

	switch n := parser.CountDateTokens(combined); {
	case n == 1:
		res.Score += singleDateWeight
		res.Reasons = append(res.Reasons, fmt.Sprintf("single date token (+%.1f)", singleDateWeight))
	case n >= manyDatesFloor:
		res.Score += manyDatesWeight
		res.Reasons = append(res.Reasons, fmt.Sprintf("%d date tokens (%.1f)", n, manyDatesWeight))
	}

	res.Drop = res.Score < dropThreshold && !res.AllowHit
	return res
}

// splitURL returns the lower-cased host and path of a candidate URL.
// Unparseable or empty URLs yield empty host and path, which match no
// path rules.
func splitURL(raw string) (host, path string) {
	if raw == "" {
		return "", ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ""
	}
	return strings.ToLower(u.Hostname()), strings.ToLower(u.Path)
}
