package matcher

import (
	"errors"
	"fmt"

	"github.com/PhucNguyen204/msgguard/pkg/keyword"
)

var (
	ErrEmptyKeyword    = errors.New("empty keyword")
	ErrInvalidPattern  = errors.New("invalid pattern")
	ErrInvalidDistance = errors.New("invalid edit distance")
	ErrInvalidState    = errors.New("invalid matcher state")
)

// Kind tells which strategy produced a match.
type Kind int

const (
	KindExact Kind = iota
	KindRegex
	KindFuzzy
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindRegex:
		return "regex"
	case KindFuzzy:
		return "fuzzy"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "exact":
		*k = KindExact
	case "regex":
		*k = KindRegex
	case "fuzzy":
		*k = KindFuzzy
	default:
		return fmt.Errorf("unknown match kind %q", string(b))
	}
	return nil
}

// MatchResult is one match. Start and End are byte offsets into the
// searched text and both are inclusive: text[Start:End+1] is the match.
type MatchResult struct {
	Start int  `json:"start"`
	End   int  `json:"end"`
	Kind  Kind `json:"kind"`
	// Keyword is set for exact and fuzzy matches.
	Keyword keyword.Keyword `json:"keyword"`
	// Pattern is the source pattern of a regex match.
	Pattern  string `json:"pattern,omitempty"`
	Category string `json:"category"`
}

// Source is the keyword text or the pattern string behind the match.
func (m MatchResult) Source() string {
	if m.Kind == KindRegex {
		return m.Pattern
	}
	return m.Keyword.Text
}

func (m MatchResult) Len() int { return m.End - m.Start + 1 }

// Text returns the matched slice of src.
func (m MatchResult) Text(src string) (string, bool) {
	if m.Start < 0 || m.End >= len(src) || m.Start > m.End {
		return "", false
	}
	return src[m.Start : m.End+1], true
}

func (m MatchResult) String() string {
	return fmt.Sprintf("[%s] %q (%s) at %d-%d", m.Kind, m.Source(), m.Category, m.Start, m.End)
}

// PatternFlags are explicit regex flags. CaseSensitive overrides the
// matcher's global folding for this pattern only.
type PatternFlags struct {
	CaseSensitive bool `json:"case_sensitive" yaml:"case_sensitive"`
	Multiline     bool `json:"multiline" yaml:"multiline"`
	DotAll        bool `json:"dot_all" yaml:"dot_all"`
}

// PatternRule is a registered regular expression.
type PatternRule struct {
	Pattern  string       `json:"pattern"`
	Category string       `json:"category"`
	Flags    PatternFlags `json:"flags"`
}
