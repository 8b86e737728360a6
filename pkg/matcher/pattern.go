package matcher

import (
	"fmt"
	"regexp"
	"strings"
)

type compiledPattern struct {
	rule          PatternRule
	re            *regexp.Regexp
	caseSensitive bool
}

// compilePattern applies folding unless the rule or the matcher asks for
// case sensitivity.
func compilePattern(rule PatternRule, globalCaseSensitive bool) (compiledPattern, error) {
	if rule.Pattern == "" {
		return compiledPattern{}, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	caseSensitive := rule.Flags.CaseSensitive || globalCaseSensitive

	var flags strings.Builder
	if !caseSensitive {
		flags.WriteByte('i')
	}
	if rule.Flags.Multiline {
		flags.WriteByte('m')
	}
	if rule.Flags.DotAll {
		flags.WriteByte('s')
	}
	expr := rule.Pattern
	if flags.Len() > 0 {
		expr = "(?" + flags.String() + ")" + expr
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return compiledPattern{}, fmt.Errorf("%w %q: %v", ErrInvalidPattern, rule.Pattern, err)
	}
	return compiledPattern{rule: rule, re: re, caseSensitive: caseSensitive}, nil
}

// scan yields every non-overlapping match of one pattern with an inclusive
// end. Zero-width matches are skipped.
func (p compiledPattern) scan(text string, fn func(start, end int) bool) bool {
	for _, loc := range p.re.FindAllStringIndex(text, -1) {
		if loc[1] <= loc[0] {
			continue
		}
		if !fn(loc[0], loc[1]-1) {
			return false
		}
	}
	return true
}
