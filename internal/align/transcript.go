package align

import (
	"strings"
	"unicode"
)

// ParseTranscript splits a transcript into lanes of characters. Lanes are
// separated by newlines or '|'. Whitespace and punctuation are not cells and
// are dropped. Empty lanes are removed.
func ParseTranscript(s string) [][]string {
	var lanes [][]string
	for _, raw := range strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '|' }) {
		var lane []string
		for _, r := range raw {
			if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsControl(r) {
				continue
			}
			lane = append(lane, string(r))
		}
		if len(lane) > 0 {
			lanes = append(lanes, lane)
		}
	}
	return lanes
}

// HasLaneBreaks reports whether s carries explicit lane separators.
func HasLaneBreaks(s string) bool {
	return len(ParseTranscript(s)) > 1
}

// Flatten joins transcript lanes into one reading-order sequence.
func Flatten(lanes [][]string) []string {
	var out []string
	for _, l := range lanes {
		out = append(out, l...)
	}
	return out
}

// LaneCounts derives per-lane cell counts. A transcript with lane breaks
// gives one count per lane. Otherwise the characters are dealt into `lanes`
// lanes of ceil(n/lanes) cells in reading order; trailing lanes may end up
// short or empty.
func LaneCounts(text [][]string, lanes int) []int {
	if len(text) > 1 {
		counts := make([]int, len(text))
		for i, l := range text {
			counts[i] = len(l)
		}
		return counts
	}
	n := len(Flatten(text))
	if lanes <= 1 {
		return []int{n}
	}
	per := (n + lanes - 1) / lanes
	counts := make([]int, lanes)
	left := n
	for i := range counts {
		counts[i] = min(per, left)
		left -= counts[i]
	}
	return counts
}
