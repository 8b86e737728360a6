package matcher

import (
	"go.uber.org/zap"

	"github.com/PhucNguyen204/msgguard/pkg/keyword"
)

// compiled is an immutable snapshot of everything a query reads.
type compiled struct {
	log           *zap.Logger
	caseSensitive bool
	keywords      map[int]keyword.Keyword
	exact         *exactMatcher
	prefilter     *LiteralPrefilter
	patterns      []compiledPattern
	fuzzy         *fuzzyMatcher // nil when fuzzy mode is off
	stats         Stats
}

func compile(cfg Config, log *zap.Logger, kws []keyword.Keyword, rules []PatternRule, fuzzyEnabled bool, maxDistance int) *compiled {
	c := &compiled{
		log:           log,
		caseSensitive: cfg.CaseSensitive,
		keywords:      make(map[int]keyword.Keyword, len(kws)),
	}
	for _, kw := range kws {
		c.keywords[kw.ID] = kw
	}

	c.exact = newExactMatcher(kws, cfg.CaseSensitive)
	forms := make([]string, 0, len(c.exact.forms))
	for _, f := range c.exact.forms {
		forms = append(forms, f)
	}
	c.prefilter = newLiteralPrefilter(forms, cfg.EnablePrefilter)
	if cfg.EnablePrefilter {
		st := c.prefilter.Stats()
		log.Debug("prefilter built",
			zap.String("strategy", st.StrategyName()),
			zap.Bool("effective", st.IsEffective()),
			zap.Float64("selectivity", st.EstimatedSelectivity))
	}

	c.patterns = make([]compiledPattern, 0, len(rules))
	for _, rule := range rules {
		cp, err := compilePattern(rule, cfg.CaseSensitive)
		if err != nil {
			log.Warn("skipping invalid pattern", zap.String("pattern", rule.Pattern), zap.Error(err))
			continue
		}
		c.patterns = append(c.patterns, cp)
	}

	if fuzzyEnabled {
		c.fuzzy = newFuzzyMatcher(kws, maxDistance, cfg.MaxFuzzyInput, cfg.FuzzyTranspositions)
	}

	c.stats = Stats{
		Keywords:       len(kws),
		Patterns:       len(c.patterns),
		FuzzyEnabled:   fuzzyEnabled,
		MaxDistance:    maxDistance,
		CaseSensitive:  cfg.CaseSensitive,
		AutomatonNodes: c.exact.ac.size(),
		Prefilter:      c.prefilter.Stats(),
	}
	return c
}

// search streams exact, regex then fuzzy matches. It returns false when
// yield asked to stop.
func (c *compiled) search(text string, yield func(MatchResult) bool) bool {
	if !c.searchExact(text, yield) {
		return false
	}
	if !c.searchRegex(text, yield) {
		return false
	}
	return c.searchFuzzy(text, yield)
}

func (c *compiled) searchExact(text string, yield func(MatchResult) bool) bool {
	if c.exact.empty() {
		return true
	}
	normalized := text
	if !c.caseSensitive {
		normalized = foldText(text)
	}
	if !c.prefilter.MayMatch(normalized) {
		return true
	}
	return c.exact.scan(text, func(end, id int) bool {
		start, ok := c.exact.locate(text, end, id)
		if !ok {
			return true
		}
		kw := c.keywords[id]
		return yield(MatchResult{
			Start:    start,
			End:      end - 1,
			Kind:     KindExact,
			Keyword:  kw,
			Category: kw.Category,
		})
	})
}

func (c *compiled) searchRegex(text string, yield func(MatchResult) bool) bool {
	for _, p := range c.patterns {
		ok := p.scan(text, func(start, end int) bool {
			return yield(MatchResult{
				Start:    start,
				End:      end,
				Kind:     KindRegex,
				Pattern:  p.rule.Pattern,
				Category: p.rule.Category,
			})
		})
		if !ok {
			return false
		}
	}
	return true
}

func (c *compiled) searchFuzzy(text string, yield func(MatchResult) bool) bool {
	if c.fuzzy == nil {
		return true
	}
	if !c.fuzzy.allows(text) {
		c.log.Debug("fuzzy stage skipped: input over size guard",
			zap.Int("bytes", len(text)),
			zap.Int("max_fuzzy_input", c.fuzzy.maxInput))
		return true
	}
	return c.fuzzy.scan(text, func(start, end int, kw keyword.Keyword) bool {
		return yield(MatchResult{
			Start:    start,
			End:      end,
			Kind:     KindFuzzy,
			Keyword:  kw,
			Category: kw.Category,
		})
	})
}
