package matcher

import (
	"strings"
	"unicode/utf8"

	"github.com/PhucNguyen204/msgguard/pkg/keyword"
)

// exactMatcher wraps the keyword automaton and recovers original-text
// offsets for its hits.
type exactMatcher struct {
	ac            *automaton
	forms         map[int]string // keyword ID -> form inserted into the automaton
	caseSensitive bool
}

func newExactMatcher(kws []keyword.Keyword, caseSensitive bool) *exactMatcher {
	e := &exactMatcher{
		ac:            newAutomaton(),
		forms:         make(map[int]string, len(kws)),
		caseSensitive: caseSensitive,
	}
	for _, kw := range kws {
		form := kw.Text
		if !caseSensitive {
			form = foldText(kw.Text)
		}
		if form == "" {
			continue
		}
		e.forms[kw.ID] = form
		e.ac.add(form, kw.ID)
	}
	e.ac.build()
	return e
}

func (e *exactMatcher) empty() bool { return len(e.forms) == 0 }

// scan walks text once. For every accepted keyword it calls fn with the
// exclusive byte end in text (end of the original rune that completed the
// match) and the keyword ID. Hits that end inside the fold expansion of a
// rune are not reported; they cannot align with the original text.
func (e *exactMatcher) scan(text string, fn func(end, id int) bool) bool {
	state := 0
	for off := 0; off < len(text); {
		r, size := utf8.DecodeRuneInString(text[off:])
		off += size
		if e.caseSensitive {
			state = e.ac.step(state, r)
		} else {
			for _, fr := range keyword.FoldRune(r) {
				state = e.ac.step(state, fr)
			}
		}
		for _, id := range e.ac.outputs(state) {
			if !fn(off, id) {
				return false
			}
		}
	}
	return true
}

// locate recovers the start offset of keyword id ending at end (exclusive)
// by walking back rune by rune over the original text and comparing the
// folded span with the folded keyword.
func (e *exactMatcher) locate(text string, end, id int) (int, bool) {
	form, ok := e.forms[id]
	if !ok {
		return 0, false
	}
	if e.caseSensitive {
		start := end - len(form)
		if start < 0 || text[start:end] != form {
			return 0, false
		}
		return start, true
	}

	want := utf8.RuneCountInString(form)
	got := 0
	start := end
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
		got += utf8.RuneCountInString(keyword.FoldRune(r))
		switch {
		case got == want:
			if foldText(text[start:end]) == form {
				return start, true
			}
			return 0, false
		case got > want:
			return 0, false
		}
	}
	return 0, false
}

// foldText folds rune by rune, the same way scan feeds the automaton.
func foldText(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for off := 0; off < len(s); {
		r, size := utf8.DecodeRuneInString(s[off:])
		off += size
		sb.WriteString(keyword.FoldRune(r))
	}
	return sb.String()
}
