package matcher

// Cấu hình matcher (value type, chain With*)

// DefaultPlaceholder is used by Replace when no placeholder is given.
const DefaultPlaceholder = "[***]"

// DefaultMaxFuzzyInput bounds the text size (bytes) the fuzzy stage scans.
const DefaultMaxFuzzyInput = 4096

type Config struct {
	// Case-sensitive matching for keywords and patterns without explicit flags
	CaseSensitive bool `json:"case_sensitive"`

	// Literal prefilter in front of the exact automaton
	EnablePrefilter bool `json:"enable_prefilter"`

	// Fuzzy stage is skipped for texts longer than this (bytes). 0 = no limit.
	MaxFuzzyInput int `json:"max_fuzzy_input"`

	// Adjacent transposition costs 1 in the fuzzy edit distance
	// ("pyhton" is one edit from "python"). Off = classic Levenshtein.
	FuzzyTranspositions bool `json:"fuzzy_transpositions"`

	// Replacement used by Replace when called with ""
	Placeholder string `json:"placeholder"`
}

func DefaultConfig() Config {
	return Config{
		CaseSensitive:       false,
		EnablePrefilter:     true,
		MaxFuzzyInput:       DefaultMaxFuzzyInput,
		FuzzyTranspositions: true,
		Placeholder:         DefaultPlaceholder,
	}
}

func (c Config) WithCaseSensitive(on bool) Config {
	c.CaseSensitive = on
	return c
}

func (c Config) WithPrefilter(enable bool) Config {
	c.EnablePrefilter = enable
	return c
}

func (c Config) WithMaxFuzzyInput(bytes int) Config {
	c.MaxFuzzyInput = bytes
	return c
}

func (c Config) WithTranspositions(on bool) Config {
	c.FuzzyTranspositions = on
	return c
}

func (c Config) WithPlaceholder(p string) Config {
	c.Placeholder = p
	return c
}

func (c Config) placeholder() string {
	if c.Placeholder == "" {
		return DefaultPlaceholder
	}
	return c.Placeholder
}
