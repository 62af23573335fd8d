package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gauthierbraillon/infographic/internal/facebook"
	"github.com/gauthierbraillon/infographic/internal/logging"
	"github.com/gauthierbraillon/infographic/internal/server"
	"github.com/gauthierbraillon/infographic/internal/statistics"
	"github.com/gauthierbraillon/infographic/internal/store"
	"github.com/gauthierbraillon/infographic/pkg/oauth"
)

// newServeCmd creates the serve subcommand.
func newServeCmd() *cobra.Command {
	var addr string
	var noHistory bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the statistics over HTTP",
		Long: "Start the HTTP server: /login signs in with Facebook, /statistics returns " +
			"the JSON envelope for the signed-in user, /metrics exposes Prometheus metrics.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireCredentials(); err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.ListenAddr
			}

			opts := []server.Option{
				server.WithLogger(logger),
				server.WithFeedLimit(cfg.FeedLimit),
				server.WithSessions(server.NewSessionStore(0, cfg.SessionTTL)),
				server.WithVersion(buildVersion()),
			}
			if !noHistory {
				db, err := store.Open(cfg.Database)
				if err != nil {
					return err
				}
				defer db.Close()
				opts = append(opts, server.WithHistory(db))
			}

			clients := func(token *oauth.Token) server.FeedClient {
				return facebook.NewClient(token, facebook.WithBaseURL(cfg.APIURL))
			}
			engine := statistics.NewEngine(statistics.WithLocation(cfg.Location()))
			srv := server.New(oauth.NewFlow(cfg.OAuth()), clients, engine, opts...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.WithFields(logging.Fields{
				"addr":     addr,
				"history":  !noHistory,
				"timezone": cfg.Timezone,
			}).Info("Starting infographic server")
			return srv.Run(ctx, addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default: listen_addr setting)")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not save computed statistics")

	return cmd
}
