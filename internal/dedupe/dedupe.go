package dedupe

import (
	"sort"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/curateworld/eventscout/pkg/types"
)

// fuzzyTitleThreshold is the minimum normalized-title similarity for
// two events with the same date-hour to be treated as one.
const fuzzyTitleThreshold = 0.85

// Dedupe collapses duplicates within and across provider result sets.
// Events are ranked by source priority, then by populated-field count;
// for each identity key only the top-ranked event survives. The loser
// is discarded whole, never merged field by field, except that its
// source name is recorded on the winner's Sources list. A second pass
// catches near-duplicate titles that slipped past exact keying.
//
// The input slice is not modified. Output order is deterministic for a
// given input regardless of input ordering.
func Dedupe(events []types.CanonicalEvent) []types.CanonicalEvent {
	if len(events) <= 1 {
		return append([]types.CanonicalEvent(nil), events...)
	}

	ranked := append([]types.CanonicalEvent(nil), events...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Priority != ranked[j].Priority {
			return ranked[i].Priority > ranked[j].Priority
		}
		fi, fj := ranked[i].PopulatedFieldCount(), ranked[j].PopulatedFieldCount()
		if fi != fj {
			return fi > fj
		}
		return ranked[i].ID < ranked[j].ID
	})

	seen := make(map[string]int, len(ranked))
	var out []types.CanonicalEvent
	for _, ev := range ranked {
		key := Key(ev.ExternalURL, ev.Title, ev.StartDate)
		if idx, dup := seen[key]; dup {
			out[idx].Sources = mergeSources(out[idx].Sources, ev)
			continue
		}
		seen[key] = len(out)
		ev.Sources = mergeSources(ev.Sources, ev)
		out = append(out, ev)
	}

	return fuzzyPass(out)
}

// fuzzyPass merges surviving events whose normalized titles are nearly
// identical and whose start dates floor to the same hour. The list is
// already ranked, so the earlier entry is always the keeper.
func fuzzyPass(events []types.CanonicalEvent) []types.CanonicalEvent {
	if len(events) <= 1 {
		return events
	}

	titles := make([]string, len(events))
	hours := make([]time.Time, len(events))
	for i, ev := range events {
		titles[i] = NormalizeTitle(ev.Title)
		hours[i] = ev.StartDate.Truncate(time.Hour).UTC()
	}

	dropped := make([]bool, len(events))
	for i := range events {
		if dropped[i] {
			continue
		}
		for j := i + 1; j < len(events); j++ {
			if dropped[j] || !hours[i].Equal(hours[j]) {
				continue
			}
			if titleSimilarity(titles[i], titles[j]) >= fuzzyTitleThreshold {
				events[i].Sources = mergeSources(events[i].Sources, events[j])
				dropped[j] = true
			}
		}
	}

	out := events[:0]
	for i, ev := range events {
		if !dropped[i] {
			out = append(out, ev)
		}
	}
	return out
}

// titleSimilarity is 1 minus the edit distance normalized by the
// longer title's length.
func titleSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

func mergeSources(sources []string, ev types.CanonicalEvent) []string {
	add := func(s string) {
		if s == "" {
			return
		}
		for _, have := range sources {
			if have == s {
				return
			}
		}
		sources = append(sources, s)
	}
	add(ev.Source)
	for _, s := range ev.Sources {
		add(s)
	}
	return sources
}
