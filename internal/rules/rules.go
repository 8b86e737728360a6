// Package rules loads keyword and pattern rule files and applies them to a
// matcher.
package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PhucNguyen204/msgguard/pkg/keyword"
	"github.com/PhucNguyen204/msgguard/pkg/matcher"
)

// RuleSet is the content of one rule file:
//
//	keywords:
//	  - text: 免费领取
//	    category: fraud
//	patterns:
//	  - pattern: '\d{3}-\d{3}-\d{4}'
//	    category: phone
//	fuzzy:
//	  enabled: true
//	  max_distance: 1
type RuleSet struct {
	Source   string          `yaml:"-"`
	Keywords []keyword.Entry `yaml:"keywords"`
	Patterns []Pattern       `yaml:"patterns"`
	Fuzzy    *Fuzzy          `yaml:"fuzzy"`
}

type Pattern struct {
	Pattern       string `yaml:"pattern"`
	Category      string `yaml:"category"`
	CaseSensitive bool   `yaml:"case_sensitive"`
	Multiline     bool   `yaml:"multiline"`
	DotAll        bool   `yaml:"dot_all"`
}

func (p Pattern) flags() matcher.PatternFlags {
	return matcher.PatternFlags{CaseSensitive: p.CaseSensitive, Multiline: p.Multiline, DotAll: p.DotAll}
}

type Fuzzy struct {
	Enabled     bool `yaml:"enabled"`
	MaxDistance int  `yaml:"max_distance"`
}

// Target is what Apply registers into; *matcher.Matcher implements it.
type Target interface {
	AddKeywords(entries []keyword.Entry) []int
	AddPattern(pattern, category string, flags matcher.PatternFlags) error
	EnableFuzzy(maxDistance int) error
	DisableFuzzy()
}

// LoadRuleYAML parses a rule file body.
func LoadRuleYAML(b []byte) (RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(b, &rs); err != nil {
		return RuleSet{}, err
	}
	for i, kw := range rs.Keywords {
		rs.Keywords[i].Text = strings.TrimSpace(kw.Text)
		if rs.Keywords[i].Text == "" {
			return RuleSet{}, fmt.Errorf("keyword %d: empty text", i)
		}
	}
	for i, p := range rs.Patterns {
		if p.Pattern == "" {
			return RuleSet{}, fmt.Errorf("pattern %d: empty pattern", i)
		}
	}
	if rs.Fuzzy != nil && rs.Fuzzy.MaxDistance < 0 {
		return RuleSet{}, fmt.Errorf("fuzzy.max_distance must be >= 0, got %d", rs.Fuzzy.MaxDistance)
	}
	return rs, nil
}

// Summary counts what Apply registered.
type Summary struct {
	Keywords int
	Patterns int
	Skipped  int
}

// Apply registers every rule set in order. A pattern that fails to compile
// is skipped and reported in the joined error; the rest still apply. The
// last fuzzy block wins.
func Apply(t Target, sets []RuleSet) (Summary, error) {
	var sum Summary
	var errs []error
	for _, rs := range sets {
		for _, id := range t.AddKeywords(rs.Keywords) {
			if id >= 0 {
				sum.Keywords++
			}
		}
		for _, p := range rs.Patterns {
			if err := t.AddPattern(p.Pattern, p.Category, p.flags()); err != nil {
				sum.Skipped++
				errs = append(errs, fmt.Errorf("%s: %w", sourceName(rs), err))
				continue
			}
			sum.Patterns++
		}
		if rs.Fuzzy != nil {
			if rs.Fuzzy.Enabled {
				if err := t.EnableFuzzy(rs.Fuzzy.MaxDistance); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", sourceName(rs), err))
				}
			} else {
				t.DisableFuzzy()
			}
		}
	}
	return sum, errors.Join(errs...)
}

func sourceName(rs RuleSet) string {
	if rs.Source == "" {
		return "<inline>"
	}
	return rs.Source
}

var defaultPatterns = map[string]string{
	"phone":     `\d{3}-\d{3}-\d{4}`,
	"email":     `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
	"url":       `https?://[^\s]+`,
	"id_card":   `\d{17}[\dXx]`,
	"bank_card": `\d{16,19}`,
}

// DefaultPatterns is the built-in pattern set, ordered by category.
func DefaultPatterns() RuleSet {
	cats := make([]string, 0, len(defaultPatterns))
	for c := range defaultPatterns {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	rs := RuleSet{Source: "builtin"}
	for _, c := range cats {
		rs.Patterns = append(rs.Patterns, Pattern{Pattern: defaultPatterns[c], Category: c})
	}
	return rs
}

// KeywordCategories maps keyword categories to display labels.
var KeywordCategories = map[string]string{
	keyword.DefaultCategory: "general keyword",
	"fraud":                 "fraud",
	"malware":               "malware",
	"spam":                  "spam",
	"adult":                 "adult content",
	"violence":              "violence",
	"politics":              "politically sensitive",
	"terrorism":             "terrorism",
}

// CategoryLabel falls back to the category itself.
func CategoryLabel(category string) string {
	if l, ok := KeywordCategories[category]; ok {
		return l
	}
	return category
}
