package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PhucNguyen204/msgguard/internal/detect"
	"github.com/PhucNguyen204/msgguard/internal/store"
	"github.com/PhucNguyen204/msgguard/pkg/matcher"
)

// parseLine splits "user<TAB>message". Lines without a tab have no user.
func parseLine(line string) detect.Message {
	msg := detect.Message{Text: line, ReceivedAt: time.Now().UTC()}
	if user, text, ok := strings.Cut(line, "\t"); ok {
		msg.User, msg.Text = user, text
	}
	return msg
}

func newWatchCmd(a *app) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Inspect a stream of messages from stdin and record detections",
		Long: `watch reads one message per line ("user<TAB>message" or just the message),
prints the redacted text of every flagged message and stores the detections
in batches when a store is configured.`,
		Example: `  tail -f chat.log | msgguard watch --metrics-addr :9100`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if metricsAddr == "" {
				metricsAddr = a.cfg.Server.MetricsAddr
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			return a.withMatcher(ctx, func(m *matcher.Matcher, st *store.Store) error {
				p := a.newPipeline(ctx, m, st)
				defer p.close()

				if metricsAddr != "" {
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
					go func() {
						if err := serveHTTP(ctx, metricsAddr, mux, a.log); err != nil {
							a.log.Error("metrics server stopped", zap.Error(err))
						}
					}()
				}

				out := cmd.OutOrStdout()
				inspected, flagged := 0, 0
				sc := bufio.NewScanner(cmd.InOrStdin())
				sc.Buffer(make([]byte, 64*1024), 1024*1024)
				for sc.Scan() {
					line := sc.Text()
					if strings.TrimSpace(line) == "" {
						continue
					}
					inspected++
					d, ok, err := p.inspect(ctx, parseLine(line))
					if err != nil {
						a.log.Warn("detection not stored", zap.String("id", d.ID), zap.Error(err))
					}
					if !ok {
						continue
					}
					flagged++
					fmt.Fprintf(out, "%s\t%s\t%s\n", d.User, d.Redacted, strings.Join(d.Sources(), ","))
				}
				if err := sc.Err(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "inspected %d messages, flagged %d\n", inspected, flagged)
				for _, rec := range p.senders.List(5, true) {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s\t%d/%d flagged\n", rec.User, rec.Flagged, rec.Messages)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address while watching")
	return cmd
}

func newDetectionsCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "detections",
		Short: "List recent detections from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.requireStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			ds, err := st.ListDetections(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range ds {
				if asJSON {
					if err := writeJSONLine(out, d); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", d.DetectedAt.Format(time.RFC3339), d.User, d.Redacted, strings.Join(d.Sources(), ","))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", store.DefaultDetectionLimit, "maximum detections to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output one JSON object per detection")
	return cmd
}
