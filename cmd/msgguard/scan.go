package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PhucNguyen204/msgguard/internal/store"
	"github.com/PhucNguyen204/msgguard/pkg/matcher"
)

// inputs returns the joined args, or one text per stdin line.
func inputs(cmd *cobra.Command, args []string) ([]string, error) {
	if len(args) > 0 {
		return []string{strings.Join(args, " ")}, nil
	}
	var out []string
	sc := bufio.NewScanner(cmd.InOrStdin())
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out, sc.Err()
}

type scanOutput struct {
	Text    string                `json:"text"`
	Matches []matcher.MatchResult `json:"matches"`
}

func newScanCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "scan [text...]",
		Short: "Print every match in the text (or each stdin line)",
		Example: `  msgguard scan "my number is 123-456-7890"
  cat messages.txt | msgguard scan --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			texts, err := inputs(cmd, args)
			if err != nil {
				return err
			}
			return a.withMatcher(cmd.Context(), func(m *matcher.Matcher, _ *store.Store) error {
				out := cmd.OutOrStdout()
				for _, text := range texts {
					matches := m.SearchAll(text)
					if asJSON {
						if err := writeJSONLine(out, scanOutput{Text: text, Matches: matches}); err != nil {
							return err
						}
						continue
					}
					printMatches(out, text, matches)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output one JSON object per text")
	return cmd
}

func printMatches(w io.Writer, text string, matches []matcher.MatchResult) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "no matches")
		return
	}
	for _, m := range matches {
		s, _ := m.Text(text)
		fmt.Fprintf(w, "%s\t%d-%d\t%s\t%s\t%q\n", m.Kind, m.Start, m.End, m.Source(), m.Category, s)
	}
}

func newRedactCmd(a *app) *cobra.Command {
	var placeholder string
	cmd := &cobra.Command{
		Use:   "redact [text...]",
		Short: "Replace matches with a placeholder",
		Example: `  msgguard redact "I love pyhton and 北京"
  msgguard redact --placeholder "***" < messages.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			texts, err := inputs(cmd, args)
			if err != nil {
				return err
			}
			return a.withMatcher(cmd.Context(), func(m *matcher.Matcher, _ *store.Store) error {
				for _, text := range texts {
					fmt.Fprintln(cmd.OutOrStdout(), m.Replace(text, placeholder))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&placeholder, "placeholder", "", "replacement text (default from config)")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show matcher and store statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withMatcher(cmd.Context(), func(m *matcher.Matcher, st *store.Store) error {
				out := map[string]any{"matcher": m.Stats()}
				if st != nil {
					s, err := st.Stats(cmd.Context())
					if err != nil {
						return err
					}
					out["store"] = s
				}
				return writeJSONLine(cmd.OutOrStdout(), out)
			})
		},
	}
}

func writeJSONLine(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
