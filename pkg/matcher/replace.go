package matcher

import (
	"sort"
	"strings"
)

// Resolve picks the matches a redaction keeps: matches are stably sorted
// by start, then scanned left to right; a match starting before the end
// of the last kept match is dropped. Equal starts keep generation order
// (exact, regex, fuzzy).
func Resolve(matches []MatchResult) []MatchResult {
	sorted := append([]MatchResult(nil), matches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	kept := make([]MatchResult, 0, len(sorted))
	cursor := 0
	for _, m := range sorted {
		if m.Start < cursor {
			continue
		}
		kept = append(kept, m)
		cursor = m.End + 1
	}
	return kept
}

// Splice replaces each span of kept (sorted, non-overlapping) with
// placeholder and copies everything else verbatim.
func Splice(text string, kept []MatchResult, placeholder string) string {
	if len(kept) == 0 {
		return text
	}
	var sb strings.Builder
	sb.Grow(len(text))
	cursor := 0
	for _, m := range kept {
		if m.Start < cursor || m.End >= len(text) {
			continue
		}
		sb.WriteString(text[cursor:m.Start])
		sb.WriteString(placeholder)
		cursor = m.End + 1
	}
	sb.WriteString(text[cursor:])
	return sb.String()
}
