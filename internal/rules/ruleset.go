// Package rules compiles the domain filtering configuration and scores
// raw candidates with a signed additive accumulator.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk YAML shape of the rules configuration.
type Document struct {
	GlobalBlockTokens []string               `yaml:"global_block_tokens"`
	Domains           map[string]DomainRules `yaml:"domains"`
}

// DomainRules holds the per-domain pattern lists. Allow and Block are
// regular expressions applied to the URL path; PenalizeWords are
// case-insensitive substrings applied to title and snippet text.
type DomainRules struct {
	Allow         []string `yaml:"allow"`
	Block         []string `yaml:"block"`
	PenalizeWords []string `yaml:"penalize_words"`
}

// RuleSet is the compiled, read-only form used during a run. It is
// loaded once per process lifetime and must not be mutated afterwards.
type RuleSet struct {
	globalBlock []*regexp.Regexp
	domains     map[string]compiledDomain
}

type compiledDomain struct {
	allow         []*regexp.Regexp
	block         []*regexp.Regexp
	penalizeWords []string
}

// Load reads and compiles a rules document from a YAML file.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return Parse(data)
}

// Parse compiles a rules document from raw YAML bytes.
func Parse(data []byte) (*RuleSet, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules document: %w", err)
	}
	return Compile(doc)
}

// Compile turns a Document into a RuleSet, validating every pattern.
func Compile(doc Document) (*RuleSet, error) {
	rs := &RuleSet{domains: make(map[string]compiledDomain, len(doc.Domains))}

	for _, tok := range doc.GlobalBlockTokens {
		re, err := regexp.Compile("(?i)" + tok)
		if err != nil {
			return nil, fmt.Errorf("invalid global block token %q: %w", tok, err)
		}
		rs.globalBlock = append(rs.globalBlock, re)
	}

	for host, dr := range doc.Domains {
		var cd compiledDomain
		for _, p := range dr.Allow {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("domain %s: invalid allow pattern %q: %w", host, p, err)
			}
			cd.allow = append(cd.allow, re)
		}
		for _, p := range dr.Block {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("domain %s: invalid block pattern %q: %w", host, p, err)
			}
			cd.block = append(cd.block, re)
		}
		for _, w := range dr.PenalizeWords {
			cd.penalizeWords = append(cd.penalizeWords, strings.ToLower(w))
		}
		rs.domains[normalizeRuleHost(host)] = cd
	}

	return rs, nil
}

// Default returns the built-in rule set used when no rules file is
// configured. The path patterns come from auditing venue and ticketing
// sites: detail pages live under /event/ or /shows/, while feed,
// calendar, and account paths are listing or utility pages.
func Default() *RuleSet {
	rs, err := Compile(defaultDocument)
	if err != nil {
		// The built-in document is compiled in tests; a failure here
		// is a programming error.
		panic(fmt.Sprintf("default rule set does not compile: %v", err))
	}
	return rs
}

var defaultDocument = Document{
	GlobalBlockTokens: []string{
		`/wp-json`,
		`/cart`,
		`/login`,
		`/signin`,
		`/account`,
		`/privacy`,
		`/terms`,
		`/feed/?$`,
		`\.xml$`,
	},
	Domains: map[string]DomainRules{
		"*": {
			Allow: []string{
				`/event/`,
				`/events/[a-z0-9-]+`,
				`/shows?/[a-z0-9-]+`,
				`/tickets?/`,
				`/e/`,
				`/performances?/`,
			},
			Block: []string{
				`/events/?$`,
				`/events/(feed|month|list|map|day|week|calendar)`,
				`/shows/?$`,
				`/calendar`,
				`/archive`,
				`/past-events`,
				`/venue-rental`,
				`/about`,
				`/contact`,
			},
			PenalizeWords: []string{
				"tbd",
				"tba",
				"untitled",
				"coming soon",
				"postponed",
				"cancelled",
				"canceled",
				"sold out archive",
			},
		},
	},
}

// wildcardHost is the catch-all domain entry applied when no exact or
// suffix match exists.
const wildcardHost = "*"

// domainFor resolves the rules for a host: exact match, then parent
// domain suffix, then the wildcard entry.
func (rs *RuleSet) domainFor(host string) (compiledDomain, bool) {
	host = normalizeRuleHost(host)
	if cd, ok := rs.domains[host]; ok {
		return cd, true
	}
	for h, cd := range rs.domains {
		if h != wildcardHost && strings.HasSuffix(host, "."+h) {
			return cd, true
		}
	}
	if cd, ok := rs.domains[wildcardHost]; ok {
		return cd, true
	}
	return compiledDomain{}, false
}

func normalizeRuleHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}
