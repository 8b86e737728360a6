package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PhucNguyen204/msgguard/internal/config"
	"github.com/PhucNguyen204/msgguard/internal/logging"
	"github.com/PhucNguyen204/msgguard/internal/rules"
	"github.com/PhucNguyen204/msgguard/internal/snapshot"
	"github.com/PhucNguyen204/msgguard/internal/store"
	"github.com/PhucNguyen204/msgguard/pkg/matcher"
)

// app carries what every command needs: config, logger and the optional
// keyword store.
type app struct {
	cfgPath string
	cfg     *config.Config
	log     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "msgguard",
		Short: "Flag and redact keywords, patterns and misspellings in chat messages",
		Long: `msgguard - multi-strategy message filter
  - exact keywords (Aho-Corasick, Unicode case folding)
  - regular expression patterns (phone, email, url, ...)
  - fuzzy keyword matching by edit distance`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "YAML config file (env MSGGUARD_* overrides it)")

	root.AddCommand(
		newScanCmd(a),
		newRedactCmd(a),
		newKeywordsCmd(a),
		newSnapshotCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
		newDetectionsCmd(a),
		newStatsCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// openStore returns nil when no store is configured.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	if a.cfg.Store.Driver == "" {
		return nil, nil
	}
	st, err := store.Open(a.cfg.Store.Driver, a.cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return st, nil
}

func (a *app) requireStore(ctx context.Context) (*store.Store, error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errors.New("no keyword store configured (store.driver)")
	}
	return st, nil
}

// buildMatcher assembles a matcher from, in order: a saved snapshot (file
// or bbolt), built-in patterns, rule files, stored keywords and the fuzzy
// settings. A snapshot replaces everything before it, so it comes first.
func (a *app) buildMatcher(ctx context.Context, st *store.Store) (*matcher.Matcher, error) {
	cfg := a.cfg
	m := matcher.New(cfg.Matcher.Options(), a.log.Named("matcher"))

	restored, err := a.restoreSnapshot(m)
	if err != nil {
		return nil, err
	}

	if !restored && cfg.Matcher.BuiltinPatterns {
		if _, err := rules.Apply(m, []rules.RuleSet{rules.DefaultPatterns()}); err != nil {
			return nil, err
		}
	}

	if cfg.Rules.Path != "" {
		sets, err := rules.LoadDir(cfg.Rules.Path)
		if err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
		sum, err := rules.Apply(m, sets)
		if err != nil {
			a.log.Warn("some rules were skipped", zap.Error(err))
		}
		a.log.Info("rules loaded",
			zap.String("path", cfg.Rules.Path),
			zap.Int("files", len(sets)),
			zap.Int("keywords", sum.Keywords),
			zap.Int("patterns", sum.Patterns),
			zap.Int("skipped", sum.Skipped))
	}

	if st != nil {
		recs, err := st.ListKeywords(ctx)
		if err != nil {
			return nil, err
		}
		m.AddKeywords(store.Entries(recs))
	}

	if !restored {
		if cfg.Matcher.FuzzyEnabled {
			if err := m.EnableFuzzy(cfg.Matcher.FuzzyMaxDistance); err != nil {
				return nil, err
			}
		} else {
			m.DisableFuzzy()
		}
	}

	stats := m.Build()
	a.log.Debug("matcher ready",
		zap.Int("keywords", stats.Keywords),
		zap.Int("patterns", stats.Patterns),
		zap.Bool("fuzzy", stats.FuzzyEnabled))
	return m, nil
}

func (a *app) restoreSnapshot(m *matcher.Matcher) (bool, error) {
	sc := a.cfg.Snapshot
	switch {
	case sc.Path != "":
		if _, err := os.Stat(sc.Path); errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		if err := m.LoadFile(sc.Path); err != nil {
			return false, err
		}
		return true, nil
	case sc.DB != "":
		snaps, err := snapshot.Open(sc.DB)
		if err != nil {
			return false, err
		}
		defer snaps.Close()
		if err := snaps.Restore(sc.Name, m); err != nil {
			if errors.Is(err, snapshot.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// withMatcher opens the store (if any), builds the matcher and runs fn.
func (a *app) withMatcher(ctx context.Context, fn func(m *matcher.Matcher, st *store.Store) error) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}
	m, err := a.buildMatcher(ctx, st)
	if err != nil {
		return err
	}
	return fn(m, st)
}
