package parser

import (
	"strings"
	"unicode/utf8"
)

// descriptionCap is the maximum accumulated description length per
// narrative event.
const descriptionCap = 200

// minDescriptionLine is the minimum length for a line to qualify as the
// start of a description.
const minDescriptionLine = 40

// ExtractNarrative reconstructs events from free-form narrative text.
// It is the fallback strategy, used only when ExtractStructured yields
// zero items.
//
// The scanner walks line by line: a line matching one of the ordered
// title patterns closes out the previous accumulating event (if any)
// and opens a new one; subsequent non-title lines populate venue, date,
// and description for the currently open event. The last open event is
// flushed at end of input.
func ExtractNarrative(text string) []ExtractedEvent {
	text = thinkingBlockRe.ReplaceAllString(text, "")

	var events []ExtractedEvent
	var open *ExtractedEvent

	flush := func() {
		if open != nil && open.Title != "" {
			events = append(events, *open)
		}
		open = nil
	}

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		if title, detail, ok := matchTitle(line); ok {
			flush()
			open = &ExtractedEvent{Title: title}
			if detail != "" {
				populateDetail(open, detail)
			}
			continue
		}

		if open == nil {
			continue
		}
		populateDetail(open, line)
	}
	flush()

	return events
}

// matchTitle tries the ordered title-pattern table against one line.
func matchTitle(line string) (title, detail string, ok bool) {
	for _, p := range titlePatterns {
		m := p.Re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title = strings.TrimSpace(m[1])
		if title == "" {
			continue
		}
		if len(m) > 2 {
			detail = strings.TrimSpace(m[2])
		}
		return title, detail, true
	}
	return "", "", false
}

// populateDetail fills venue, date, and description on the open event
// from a non-title line. Venue and date each take the first match only;
// description starts with the first qualifying long line and then
// appends up to the cap.
func populateDetail(ev *ExtractedEvent, line string) {
	matched := false

	if ev.Venue == "" {
		if m := venueLineRe.FindStringSubmatch(line); m != nil {
			ev.Venue = strings.TrimSpace(m[1])
			matched = true
		}
	}

	if ev.RawDate == "" {
		if m := monthNameRe.FindString(line); m != "" {
			ev.RawDate = m
			matched = true
		} else if m := slashDateRe.FindString(line); m != "" {
			ev.RawDate = m
			matched = true
		}
	}

	if matched {
		return
	}

	if ev.Description == "" {
		if len(line) >= minDescriptionLine {
			ev.Description = truncate(line, descriptionCap)
		}
		return
	}
	if len(ev.Description) < descriptionCap {
		ev.Description = truncate(ev.Description+" "+line, descriptionCap)
	}
}

// truncate cuts s to at most n bytes, backing up so a multi-byte rune
// is never split.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
