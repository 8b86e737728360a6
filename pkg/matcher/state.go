package matcher

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/PhucNguyen204/msgguard/pkg/keyword"
)

// StateVersion is the snapshot format written by Save.
const StateVersion = 1

// State is the canonical, serializable matcher state. Nothing derived
// (automaton, lookup tables, compiled regexes) is stored; Restore rebuilds
// all of it.
type State struct {
	Version         int               `json:"version"`
	Keywords        []keyword.Keyword `json:"keywords"`
	NextID          int               `json:"next_id"`
	CaseSensitive   bool              `json:"case_sensitive"`
	Patterns        []PatternRule     `json:"patterns"`
	FuzzyEnabled    bool              `json:"fuzzy_enabled"`
	MaxEditDistance int               `json:"max_edit_distance"`
}

// State copies the canonical state.
func (m *Matcher) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{
		Version:         StateVersion,
		Keywords:        m.reg.ByID(),
		NextID:          m.reg.NextID(),
		CaseSensitive:   m.cfg.CaseSensitive,
		Patterns:        append([]PatternRule(nil), m.patterns...),
		FuzzyEnabled:    m.fuzzyEnabled,
		MaxEditDistance: m.maxDistance,
	}
}

// Restore replaces the matcher's state with st. Everything is rebuilt
// before the swap; on error the matcher is left unchanged. Stored patterns
// that no longer compile are skipped with a warning.
func (m *Matcher) Restore(st State) error {
	if st.Version != 0 && st.Version != StateVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidState, st.Version)
	}
	if st.MaxEditDistance < 0 {
		return fmt.Errorf("%w: negative max_edit_distance %d", ErrInvalidState, st.MaxEditDistance)
	}
	reg, err := keyword.Restore(st.Keywords, st.NextID, st.CaseSensitive)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	m.mu.RLock()
	cfg, log := m.cfg, m.log
	m.mu.RUnlock()
	cfg.CaseSensitive = st.CaseSensitive

	patterns := make([]PatternRule, 0, len(st.Patterns))
	for _, rule := range st.Patterns {
		if _, err := compilePattern(rule, cfg.CaseSensitive); err != nil {
			log.Warn("skipping stored pattern", zap.String("pattern", rule.Pattern), zap.Error(err))
			continue
		}
		patterns = append(patterns, rule)
	}
	c := compile(cfg, log, reg.ByID(), patterns, st.FuzzyEnabled, st.MaxEditDistance)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.CaseSensitive = st.CaseSensitive
	m.reg = reg
	m.patterns = patterns
	m.fuzzyEnabled = st.FuzzyEnabled
	m.maxDistance = st.MaxEditDistance
	m.compiled = c
	return nil
}

// Save writes the state as JSON.
func (m *Matcher) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m.State()); err != nil {
		return fmt.Errorf("encode matcher state: %w", err)
	}
	return nil
}

// Load reads a state written by Save and restores it.
func (m *Matcher) Load(r io.Reader) error {
	var st State
	dec := json.NewDecoder(r)
	if err := dec.Decode(&st); err != nil {
		return fmt.Errorf("decode matcher state: %w", err)
	}
	return m.Restore(st)
}

// SaveFile writes the state to path atomically (temp file + rename).
// File I/O happens after the state is copied, outside the matcher lock.
func (m *Matcher) SaveFile(path string) error {
	st := m.State()
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode matcher state: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot %s: %w", path, err)
	}
	return nil
}

// LoadFile restores the state saved at path.
func (m *Matcher) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	if err := m.Load(f); err != nil {
		return fmt.Errorf("load snapshot %s: %w", path, err)
	}
	return nil
}
