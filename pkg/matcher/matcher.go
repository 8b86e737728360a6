// Package matcher finds keywords, regular expressions and fuzzy keyword
// variants in message text and redacts them.
//
// A Matcher is safe for concurrent use. Mutations take a write lock and
// mark the compiled form stale; the next query (or an explicit Build)
// recompiles it. Queries run against an immutable compiled snapshot, so a
// caller may mutate the matcher while ranging over Search results.
package matcher

import (
	"fmt"
	"iter"
	"sync"

	"go.uber.org/zap"

	"github.com/PhucNguyen204/msgguard/pkg/keyword"
)

type Matcher struct {
	mu  sync.RWMutex
	cfg Config
	log *zap.Logger

	reg          *keyword.Registry
	patterns     []PatternRule
	fuzzyEnabled bool
	maxDistance  int

	compiled *compiled // nil when stale
}

// New returns an empty matcher. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		cfg:         cfg,
		log:         logger,
		reg:         keyword.NewRegistry(cfg.CaseSensitive),
		maxDistance: 1,
	}
}

// -------------------- Keywords --------------------

// AddKeyword registers text and returns its ID. Re-registering the same
// normalized text returns the existing ID. Blank text is rejected.
func (m *Matcher) AddKeyword(text, category string) (int, error) {
	if keyword.IsBlank(text) {
		return -1, ErrEmptyKeyword
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, created := m.reg.Register(text, category)
	if created {
		m.compiled = nil
	}
	return id, nil
}

// AddKeywords registers entries in order. Blank entries get ID -1.
func (m *Matcher) AddKeywords(entries []keyword.Entry) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := m.reg.Len()
	ids := m.reg.RegisterMany(entries)
	if m.reg.Len() != before {
		m.compiled = nil
	}
	return ids
}

// Keywords returns the registered keywords ordered by text.
func (m *Matcher) Keywords() []keyword.Keyword {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg.All()
}

func (m *Matcher) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg.Len()
}

// -------------------- Patterns --------------------

// AddPattern compiles and registers a regular expression. An invalid
// pattern is logged, skipped and returned as ErrInvalidPattern; the
// matcher keeps working with the other patterns.
func (m *Matcher) AddPattern(pattern, category string, flags PatternFlags) error {
	if category == "" {
		category = "regex"
	}
	rule := PatternRule{Pattern: pattern, Category: category, Flags: flags}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := compilePattern(rule, m.cfg.CaseSensitive); err != nil {
		m.log.Warn("skipping invalid pattern",
			zap.String("pattern", pattern),
			zap.String("category", category),
			zap.Error(err))
		return err
	}
	m.patterns = append(m.patterns, rule)
	m.compiled = nil
	return nil
}

func (m *Matcher) Patterns() []PatternRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]PatternRule(nil), m.patterns...)
}

// -------------------- Modes --------------------

// EnableFuzzy turns on fuzzy matching against every registered keyword,
// including keywords registered later.
func (m *Matcher) EnableFuzzy(maxDistance int) error {
	if maxDistance < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDistance, maxDistance)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fuzzyEnabled = true
	m.maxDistance = maxDistance
	m.compiled = nil
	return nil
}

func (m *Matcher) DisableFuzzy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fuzzyEnabled {
		m.fuzzyEnabled = false
		m.compiled = nil
	}
}

// Fuzzy reports whether fuzzy matching is on and its distance bound.
func (m *Matcher) Fuzzy() (enabled bool, maxDistance int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fuzzyEnabled, m.maxDistance
}

// SetCaseSensitive toggles case sensitivity. It forces a full rebuild, so
// batch registrations before toggling.
func (m *Matcher) SetCaseSensitive(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.CaseSensitive == on {
		return
	}
	m.cfg.CaseSensitive = on
	m.reg.SetCaseSensitive(on)
	m.compiled = nil
}

func (m *Matcher) CaseSensitive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.CaseSensitive
}

// Clear drops keywords, patterns and fuzzy mode. IDs restart at zero.
func (m *Matcher) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg.Clear()
	m.patterns = nil
	m.fuzzyEnabled = false
	m.maxDistance = 1
	m.compiled = nil
}

// -------------------- Build --------------------

// Build compiles the automaton, prefilter, regexes and fuzzy targets now
// instead of on the next query.
func (m *Matcher) Build() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.compiled == nil {
		m.compiled = m.compileLocked()
	}
	return m.compiled.stats
}

// Stats describes the compiled matcher.
type Stats struct {
	Keywords       int            `json:"keywords"`
	Patterns       int            `json:"patterns"`
	FuzzyEnabled   bool           `json:"fuzzy_enabled"`
	MaxDistance    int            `json:"max_distance"`
	CaseSensitive  bool           `json:"case_sensitive"`
	AutomatonNodes int            `json:"automaton_nodes"`
	Prefilter      PrefilterStats `json:"prefilter"`
}

func (m *Matcher) Stats() Stats { return m.current().stats }

func (m *Matcher) current() *compiled {
	m.mu.RLock()
	c := m.compiled
	m.mu.RUnlock()
	if c != nil {
		return c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.compiled == nil {
		m.compiled = m.compileLocked()
	}
	return m.compiled
}

func (m *Matcher) compileLocked() *compiled {
	c := compile(m.cfg, m.log, m.reg.ByID(), m.patterns, m.fuzzyEnabled, m.maxDistance)
	m.log.Debug("matcher compiled",
		zap.Int("keywords", c.stats.Keywords),
		zap.Int("patterns", c.stats.Patterns),
		zap.Bool("fuzzy", c.stats.FuzzyEnabled),
		zap.String("prefilter", c.stats.Prefilter.StrategyName()))
	return c
}

// -------------------- Queries --------------------

// Search returns a lazy, restartable sequence of matches: exact matches
// first, then regex matches, then fuzzy matches. Results are not sorted.
func (m *Matcher) Search(text string) iter.Seq[MatchResult] {
	return func(yield func(MatchResult) bool) {
		if text == "" {
			return
		}
		m.current().search(text, yield)
	}
}

// SearchAll collects Search.
func (m *Matcher) SearchAll(text string) []MatchResult {
	var out []MatchResult
	for r := range m.Search(text) {
		out = append(out, r)
	}
	return out
}

// ContainsAny stops at the first match.
func (m *Matcher) ContainsAny(text string) bool {
	for range m.Search(text) {
		return true
	}
	return false
}

// Replace redacts every kept match with placeholder ("" means the
// configured placeholder).
func (m *Matcher) Replace(text, placeholder string) string {
	out, _ := m.Redact(text, placeholder)
	return out
}

// Redact is Replace that also returns the matches it replaced.
func (m *Matcher) Redact(text, placeholder string) (string, []MatchResult) {
	if placeholder == "" {
		m.mu.RLock()
		placeholder = m.cfg.placeholder()
		m.mu.RUnlock()
	}
	kept := Resolve(m.SearchAll(text))
	return Splice(text, kept, placeholder), kept
}
