package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PhucNguyen204/msgguard/internal/rules"
	"github.com/PhucNguyen204/msgguard/internal/store"
)

func newKeywordsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "keywords",
		Aliases: []string{"kw"},
		Short:   "Manage keywords in the store",
	}

	var category string
	add := &cobra.Command{
		Use:   "add <keyword>...",
		Short: "Add keywords (existing ones are ignored)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.requireStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			for _, text := range args {
				added, err := st.AddKeyword(cmd.Context(), text, category)
				if err != nil {
					return err
				}
				status := "exists"
				if added {
					status = "added"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", status, text)
			}
			return nil
		},
	}
	add.Flags().StringVar(&category, "category", "keyword", "keyword category")

	importCmd := &cobra.Command{
		Use:   "import <rules.yaml|dir>",
		Short: "Import the keywords of rule files into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sets, err := rules.LoadDir(args[0])
			if err != nil {
				return err
			}
			st, err := a.requireStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			total := 0
			for _, rs := range sets {
				n, err := st.AddKeywords(cmd.Context(), rs.Keywords)
				if err != nil {
					return err
				}
				total += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d keywords from %d files\n", total, len(sets))
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List keywords ordered by text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd, func(st *store.Store) ([]store.Record, error) {
				return st.ListKeywords(cmd.Context())
			})
		},
	}

	search := &cobra.Command{
		Use:   "search <pattern>",
		Short: "Find keywords with a LIKE pattern (plain text is wrapped in %)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(st *store.Store) ([]store.Record, error) {
				return st.SearchKeywords(cmd.Context(), args[0])
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <keyword>...",
		Short: "Remove keywords",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.requireStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			for _, text := range args {
				removed, err := st.RemoveKeyword(cmd.Context(), text)
				if err != nil {
					return err
				}
				status := "missing"
				if removed {
					status = "removed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", status, text)
			}
			return nil
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every keyword",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear keywords without --yes")
			}
			st, err := a.requireStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			n, err := st.ClearKeywords(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d keywords\n", n)
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&yes, "yes", false, "confirm")

	cmd.AddCommand(add, importCmd, list, search, remove, clearCmd)
	return cmd
}

func (a *app) withStore(cmd *cobra.Command, fn func(st *store.Store) ([]store.Record, error)) error {
	st, err := a.requireStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()
	recs, err := fn(st)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, r := range recs {
		fmt.Fprintf(out, "%s\t%s\t%s\n", r.Text, r.Category, rules.CategoryLabel(r.Category))
	}
	if len(recs) == 0 {
		fmt.Fprintln(out, "no keywords")
	}
	return nil
}
