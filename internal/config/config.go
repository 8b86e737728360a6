// Package config loads msgguard configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (MSGGUARD_MATCHER_FUZZY_ENABLED, MSGGUARD_STORE_DSN, ...)
//  2. YAML config file
//  3. Defaults
//
// Environment variables drop the MSGGUARD_ prefix and split on the first
// underscore only: MSGGUARD_BATCH_FLUSH_INTERVAL -> batch.flush_interval.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/PhucNguyen204/msgguard/internal/logging"
	"github.com/PhucNguyen204/msgguard/pkg/matcher"
)

const (
	EnvPrefix         = "MSGGUARD_"
	maxConfigFileSize = 1024 * 1024 // 1MB
)

type Config struct {
	Matcher  MatcherConfig  `koanf:"matcher"`
	Detect   DetectConfig   `koanf:"detect"`
	Store    StoreConfig    `koanf:"store"`
	Rules    RulesConfig    `koanf:"rules"`
	Snapshot SnapshotConfig `koanf:"snapshot"`
	Batch    BatchConfig    `koanf:"batch"`
	Server   ServerConfig   `koanf:"server"`
	Log      logging.Config `koanf:"log"`
}

type MatcherConfig struct {
	CaseSensitive       bool   `koanf:"case_sensitive"`
	Prefilter           bool   `koanf:"prefilter"`
	FuzzyEnabled        bool   `koanf:"fuzzy_enabled"`
	FuzzyMaxDistance    int    `koanf:"fuzzy_max_distance"`
	FuzzyTranspositions bool   `koanf:"fuzzy_transpositions"`
	MaxFuzzyInput       int    `koanf:"max_fuzzy_input"`
	Placeholder         string `koanf:"placeholder"`
	BuiltinPatterns     bool   `koanf:"builtin_patterns"`
}

// Options maps the section onto matcher.Config.
func (c MatcherConfig) Options() matcher.Config {
	return matcher.DefaultConfig().
		WithCaseSensitive(c.CaseSensitive).
		WithPrefilter(c.Prefilter).
		WithTranspositions(c.FuzzyTranspositions).
		WithMaxFuzzyInput(c.MaxFuzzyInput).
		WithPlaceholder(c.Placeholder)
}

type DetectConfig struct {
	// Messages are truncated to this many runes before inspection. 0 = no limit.
	MaxMessageLength int `koanf:"max_message_length"`
}

type StoreConfig struct {
	Driver string `koanf:"driver"` // postgres | sqlite | "" (no store)
	DSN    string `koanf:"dsn"`
}

type RulesConfig struct {
	Path string `koanf:"path"` // file or directory of YAML rule files
}

type SnapshotConfig struct {
	Path string `koanf:"path"` // JSON state file
	DB   string `koanf:"db"`   // bbolt database of named snapshots
	Name string `koanf:"name"`
}

type BatchConfig struct {
	Size          int           `koanf:"size"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

type ServerConfig struct {
	Addr        string `koanf:"addr"`         // HTTP API listen address
	MetricsAddr string `koanf:"metrics_addr"` // /metrics for watch; "" = off
	// Senders idle for this long are dropped from the activity tracker.
	SenderTTL time.Duration `koanf:"sender_ttl"`
}

func Default() Config {
	return Config{
		Matcher: MatcherConfig{
			Prefilter:           true,
			FuzzyEnabled:        true,
			FuzzyMaxDistance:    1,
			FuzzyTranspositions: true,
			MaxFuzzyInput:       matcher.DefaultMaxFuzzyInput,
			Placeholder:         matcher.DefaultPlaceholder,
			BuiltinPatterns:     true,
		},
		Detect:   DetectConfig{MaxMessageLength: 1000},
		Store:    StoreConfig{Driver: "sqlite", DSN: "msgguard.db"},
		Snapshot: SnapshotConfig{Name: "default"},
		Batch:    BatchConfig{Size: 10, FlushInterval: 5 * time.Second},
		Server:   ServerConfig{Addr: ":8080", SenderTTL: 24 * time.Hour},
		Log:      logging.DefaultConfig(),
	}
}

// Load reads path (skipped when empty) and applies environment overrides.
func Load(path string) (*Config, error) {
	var content []byte
	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}
		content, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return Parse(content)
}

// Parse is Load for YAML already in memory.
func Parse(content []byte) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// defaults stay for keys neither source sets
	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps MSGGUARD_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("store.driver must be 'postgres' or 'sqlite', got %q", c.Store.Driver)
	}
	if c.Matcher.FuzzyMaxDistance < 0 {
		return fmt.Errorf("matcher.fuzzy_max_distance must be >= 0, got %d", c.Matcher.FuzzyMaxDistance)
	}
	if c.Matcher.MaxFuzzyInput < 0 {
		return fmt.Errorf("matcher.max_fuzzy_input must be >= 0, got %d", c.Matcher.MaxFuzzyInput)
	}
	if c.Detect.MaxMessageLength < 0 {
		return fmt.Errorf("detect.max_message_length must be >= 0, got %d", c.Detect.MaxMessageLength)
	}
	if c.Batch.Size <= 0 {
		return fmt.Errorf("batch.size must be > 0, got %d", c.Batch.Size)
	}
	if c.Batch.FlushInterval <= 0 {
		return fmt.Errorf("batch.flush_interval must be > 0, got %s", c.Batch.FlushInterval)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	return c.Log.Validate()
}
