package parser

import (
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// defaultEventDuration is assumed when a provider gives no end date.
const defaultEventDuration = 3 * time.Hour

// fallbackWindowDays bounds the random future date used when a raw date
// string cannot be parsed at all.
const fallbackWindowDays = 30

// ParseEventDate resolves a provider-native date string into a concrete
// time, reproducing the fixed fallback chain:
//
//  1. direct parse of the raw string (permissive, handles ISO, RFC,
//     "Sep 14 2026 7pm", slash dates with years, ...);
//  2. month-name/day/optional-year pattern, defaulting the year to the
//     current year when absent;
//  3. now plus a random number of days in [1, fallbackWindowDays].
//
// The rng is injected so tests can pin the seed.
func ParseEventDate(raw string, now time.Time, rng *rand.Rand) time.Time {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if t, err := dateparse.ParseAny(raw); err == nil {
			return t
		}
		if m := monthNameRe.FindStringSubmatch(raw); m != nil {
			month := monthIndex[strings.ToLower(m[1])]
			day, _ := strconv.Atoi(m[2])
			year := now.Year()
			if m[3] != "" {
				if y, err := strconv.Atoi(m[3]); err == nil {
					year = y
				}
			}
			if month >= 1 && day >= 1 && day <= 31 {
				return time.Date(year, time.Month(month), day, 19, 0, 0, 0, now.Location())
			}
		}
	}
	days := 1 + rng.Intn(fallbackWindowDays)
	return now.AddDate(0, 0, days)
}

// ParseEventDateRange resolves start and end. A missing end date
// defaults to start plus defaultEventDuration, and an end before start
// is clamped to the same default so StartDate <= EndDate always holds.
func ParseEventDateRange(rawStart, rawEnd string, now time.Time, rng *rand.Rand) (start, end time.Time) {
	start = ParseEventDate(rawStart, now, rng)
	if strings.TrimSpace(rawEnd) == "" {
		return start, start.Add(defaultEventDuration)
	}
	if t, err := dateparse.ParseAny(rawEnd); err == nil && !t.Before(start) {
		return start, t
	}
	return start, start.Add(defaultEventDuration)
}
