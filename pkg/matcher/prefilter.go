package matcher

import (
	"fmt"

	ac "github.com/petar-dambovaliev/aho-corasick"
)

//
// Literal prefilter: Aho–Corasick (thư viện) trên tập keyword đã chuẩn hoá.
// Chỉ dùng như bộ lọc âm: không literal nào xuất hiện => automaton chính khỏi chạy.
//

// -------------------- Statistics --------------------

type PrefilterStats struct {
	// Số pattern trong automaton (sau dedupe)
	PatternCount int `json:"pattern_count"`
	// Ước tính selectivity (0.0 = rất chọn lọc, 1.0 = khớp tất)
	EstimatedSelectivity float64 `json:"estimated_selectivity"`
	// Ước lượng footprint bộ nhớ
	MemoryUsage int `json:"memory_usage"`
}

// IsEffective reports whether the automaton is expected to reject enough
// inputs to pay for itself.
func (s PrefilterStats) IsEffective() bool {
	return s.PatternCount >= 5 && s.EstimatedSelectivity < 0.7
}

func (s PrefilterStats) StrategyName() string {
	return fmt.Sprintf("AhoCorasick (%d patterns)", s.PatternCount)
}

// -------------------- Prefilter --------------------

type LiteralPrefilter struct {
	// nil nếu disabled hoặc không có pattern
	ac       *ac.AhoCorasick
	patterns []string
	enabled  bool
	stats    PrefilterStats
}

// newLiteralPrefilter builds the library automaton over already normalized
// patterns. Index pattern của AC == index trong patterns.
func newLiteralPrefilter(forms []string, enabled bool) *LiteralPrefilter {
	p := &LiteralPrefilter{enabled: enabled}
	if !enabled {
		p.stats = PrefilterStats{EstimatedSelectivity: 1.0}
		return p
	}

	dedupe := make(map[string]struct{}, len(forms))
	for _, f := range forms {
		if f == "" {
			continue
		}
		if _, ok := dedupe[f]; ok {
			continue
		}
		dedupe[f] = struct{}{}
		p.patterns = append(p.patterns, f)
	}

	p.stats = PrefilterStats{
		PatternCount:         len(p.patterns),
		EstimatedSelectivity: estimateSelectivity(len(p.patterns)),
		MemoryUsage:          estimateMemoryUsage(len(p.patterns)),
	}
	if len(p.patterns) == 0 {
		return p
	}

	builder := ac.NewAhoCorasickBuilder(ac.Opts{
		AsciiCaseInsensitive: false, // text và pattern đã fold trước
		MatchKind:            ac.LeftMostLongestMatch,
	})
	built := builder.Build(p.patterns)
	p.ac = &built
	return p
}

func (p *LiteralPrefilter) Stats() PrefilterStats { return p.stats }

// MayMatch reports whether any literal occurs in the normalized text.
// Disabled prefilter => luôn cho qua.
func (p *LiteralPrefilter) MayMatch(normalized string) bool {
	if !p.enabled {
		return true
	}
	if p.ac == nil {
		return false
	}
	// Iter cấp state mới mỗi lần gọi, automaton chỉ đọc => không cần lock.
	return p.ac.Iter(normalized).Next() != nil
}

// -------------------- Heuristics --------------------

func estimateSelectivity(patternCount int) float64 {
	switch {
	case patternCount == 0:
		return 1.0
	case patternCount >= 50:
		return 0.05
	case patternCount >= 20:
		return 0.10
	case patternCount >= 10:
		return 0.20
	case patternCount >= 5:
		return 0.40
	default:
		return 0.70
	}
}

func estimateMemoryUsage(patternCount int) int {
	stateCount := patternCount * 2
	transitionOverhead := stateCount * 256
	stateOverhead := stateCount * 32
	patternOverhead := patternCount * 20
	return patternOverhead + transitionOverhead + stateOverhead
}
