package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PhucNguyen204/msgguard/internal/server"
	"github.com/PhucNguyen204/msgguard/internal/store"
	"github.com/PhucNguyen204/msgguard/pkg/matcher"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (scan, redact, ingest, keywords, rules, /metrics)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.withMatcher(ctx, func(m *matcher.Matcher, st *store.Store) error {
				p := a.newPipeline(ctx, m, st)
				defer p.close()

				var ks server.KeywordStore
				if st != nil {
					ks = st
				}
				s := server.NewAppServer(m, p.detector, ks, p.registry, a.log.Named("server"))
				s.SetSenders(p.senders)
				go p.expireSenders(ctx, time.Minute)
				return serveHTTP(ctx, addr, s.Router(), a.log)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr from config)")
	return cmd
}
