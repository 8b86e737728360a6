package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/PhucNguyen204/msgguard/internal/snapshot"
	"github.com/PhucNguyen204/msgguard/internal/store"
	"github.com/PhucNguyen204/msgguard/pkg/matcher"
)

type snapshotFlags struct {
	file string
	db   string
	name string
}

func (f *snapshotFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "file", "", "JSON state file")
	cmd.Flags().StringVar(&f.db, "db", "", "bbolt snapshot database (default snapshot.db from config)")
	cmd.Flags().StringVar(&f.name, "name", "", "snapshot name inside --db (default snapshot.name from config)")
}

// resolve fills empty flags from the config. --file wins over --db.
func (f snapshotFlags) resolve(a *app) snapshotFlags {
	if f.db == "" {
		f.db = a.cfg.Snapshot.DB
	}
	if f.name == "" {
		f.name = a.cfg.Snapshot.Name
	}
	if f.file == "" && f.db == "" {
		f.file = a.cfg.Snapshot.Path
	}
	return f
}

func (f snapshotFlags) target() string {
	if f.file != "" {
		return f.file
	}
	return f.db + "#" + f.name
}

func newSnapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, inspect and delete matcher snapshots",
	}

	var saveFlags snapshotFlags
	save := &cobra.Command{
		Use:   "save",
		Short: "Build the matcher from config and save its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := saveFlags.resolve(a)
			if f.file == "" && f.db == "" {
				return errors.New("need --file or --db")
			}
			return a.withMatcher(cmd.Context(), func(m *matcher.Matcher, _ *store.Store) error {
				if f.file != "" {
					if err := m.SaveFile(f.file); err != nil {
						return err
					}
				} else {
					snaps, err := snapshot.Open(f.db)
					if err != nil {
						return err
					}
					defer snaps.Close()
					if err := snaps.Save(f.name, m); err != nil {
						return err
					}
				}
				st := m.Stats()
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s: %d keywords, %d patterns\n", f.target(), st.Keywords, st.Patterns)
				return nil
			})
		},
	}
	saveFlags.register(save)

	var showFlags snapshotFlags
	show := &cobra.Command{
		Use:   "show",
		Short: "Load a snapshot and print its statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := showFlags.resolve(a)
			m := matcher.New(a.cfg.Matcher.Options(), a.log.Named("matcher"))
			switch {
			case f.file != "":
				if err := m.LoadFile(f.file); err != nil {
					return err
				}
			case f.db != "":
				snaps, err := snapshot.Open(f.db)
				if err != nil {
					return err
				}
				defer snaps.Close()
				if err := snaps.Restore(f.name, m); err != nil {
					return err
				}
			default:
				return errors.New("need --file or --db")
			}
			return writeJSONLine(cmd.OutOrStdout(), m.Build())
		},
	}
	showFlags.register(show)

	var dbPath string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the snapshots in a bbolt database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snaps, err := openSnapshots(a, dbPath)
			if err != nil {
				return err
			}
			defer snaps.Close()
			infos, err := snaps.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, "no snapshots")
			}
			for _, info := range infos {
				fmt.Fprintf(out, "%s\t%s\t%d keywords\t%d patterns\n",
					info.Name, info.SavedAt.Format(time.RFC3339), info.Keywords, info.Patterns)
			}
			return nil
		},
	}
	list.Flags().StringVar(&dbPath, "db", "", "bbolt snapshot database (default snapshot.db from config)")

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a named snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snaps, err := openSnapshots(a, dbPath)
			if err != nil {
				return err
			}
			defer snaps.Close()
			if err := snaps.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
	del.Flags().StringVar(&dbPath, "db", "", "bbolt snapshot database (default snapshot.db from config)")

	cmd.AddCommand(save, show, list, del)
	return cmd
}

func openSnapshots(a *app, path string) (*snapshot.Store, error) {
	if path == "" {
		path = a.cfg.Snapshot.DB
	}
	if path == "" {
		return nil, errors.New("need --db or snapshot.db")
	}
	return snapshot.Open(path)
}
