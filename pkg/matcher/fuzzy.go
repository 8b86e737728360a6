package matcher

import (
	"unicode"
	"unicode/utf8"

	"github.com/PhucNguyen204/msgguard/pkg/keyword"
)

type fuzzyTarget struct {
	kw     keyword.Keyword
	folded []rune
}

// fuzzyMatcher compares every word token with every target keyword.
// Cost is O(tokens * targets * len^2); maxInput bounds it.
type fuzzyMatcher struct {
	maxDistance    int
	maxInput       int
	transpositions bool
	targets        []fuzzyTarget
}

func newFuzzyMatcher(kws []keyword.Keyword, maxDistance, maxInput int, transpositions bool) *fuzzyMatcher {
	f := &fuzzyMatcher{
		maxDistance:    maxDistance,
		maxInput:       maxInput,
		transpositions: transpositions,
		targets:        make([]fuzzyTarget, 0, len(kws)),
	}
	for _, kw := range kws {
		f.targets = append(f.targets, fuzzyTarget{kw: kw, folded: []rune(foldText(kw.Text))})
	}
	return f
}

// allows reports whether text is within the size guard.
func (f *fuzzyMatcher) allows(text string) bool {
	return f.maxInput <= 0 || len(text) <= f.maxInput
}

// scan reports (start, end inclusive, keyword) for every token within
// maxDistance of a target. Each token is reported at its own position.
func (f *fuzzyMatcher) scan(text string, fn func(start, end int, kw keyword.Keyword) bool) bool {
	if len(f.targets) == 0 {
		return true
	}
	return tokenize(text, func(start, end int) bool {
		tok := []rune(foldText(text[start:end]))
		for _, t := range f.targets {
			if withinDistance(tok, t.folded, f.maxDistance, f.transpositions) {
				if !fn(start, end-1, t.kw) {
					return false
				}
			}
		}
		return true
	})
}

func withinDistance(a, b []rune, max int, transpositions bool) bool {
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	if diff > max {
		return false
	}
	return editDistance(a, b, transpositions) <= max
}

// editDistance is the Levenshtein DP: insert, delete and substitute all
// cost 1. With transpositions, swapping two adjacent runes also costs 1
// (optimal string alignment).
func editDistance(a, b []rune, transpositions bool) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}
	prev2 := make([]int, len(b)+1)
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if transpositions && i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				curr[j] = min(curr[j], prev2[j-2]+1)
			}
		}
		prev2, prev, curr = prev, curr, prev2
	}
	return prev[len(b)]
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// tokenize yields maximal runs of word runes as [start, end) byte spans.
func tokenize(text string, fn func(start, end int) bool) bool {
	start := -1
	for off := 0; off < len(text); {
		r, size := utf8.DecodeRuneInString(text[off:])
		if isWordRune(r) {
			if start < 0 {
				start = off
			}
		} else if start >= 0 {
			if !fn(start, off) {
				return false
			}
			start = -1
		}
		off += size
	}
	if start >= 0 {
		return fn(start, len(text))
	}
	return true
}
