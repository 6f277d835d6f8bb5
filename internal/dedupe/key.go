// Package dedupe collapses duplicate events discovered by different
// providers into a single winner per identity key.
package dedupe

import (
	"net/url"
	"strings"
	"time"
	"unicode"
)

// CanonicalURL normalizes a URL into a scheme-independent identity:
// host without "www.", lower-cased path with the trailing slash
// removed, query and fragment dropped. Returns "" when no usable host
// can be extracted.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.ToLower(u.Path)
	path = strings.TrimRight(path, "/")
	return host + path
}

// NormalizeTitle lowers the title, strips punctuation, and collapses
// runs of whitespace so near-identical titles compare equal.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	lastSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Key builds the identity key for one event: the canonical URL when
// one exists, otherwise the normalized title joined with the start
// date floored to the hour.
func Key(externalURL, title string, start time.Time) string {
	if k := CanonicalURL(externalURL); k != "" {
		return "u|" + k
	}
	return "t|" + NormalizeTitle(title) + "|" + start.Truncate(time.Hour).UTC().Format(time.RFC3339)
}
