package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gauthierbraillon/infographic/internal/config"
	"github.com/gauthierbraillon/infographic/internal/display"
	"github.com/gauthierbraillon/infographic/internal/facebook"
	"github.com/gauthierbraillon/infographic/internal/feed"
	"github.com/gauthierbraillon/infographic/internal/logging"
	"github.com/gauthierbraillon/infographic/internal/statistics"
	"github.com/gauthierbraillon/infographic/internal/store"
)

const (
	formatText = "text"
	formatJSON = "json"

	fetchTimeout = 60 * time.Second
)

// newStatsCmd creates the stats subcommand.
func newStatsCmd() *cobra.Command {
	var input string
	var format string
	var save bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Compute statistics from your feed",
		Long: "Fetch your Facebook feed, or read a saved feed with --input, and compute " +
			"top friends, post types, weekday and month frequencies and top words.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatText && format != formatJSON {
				return fmt.Errorf("invalid format %q: must be 'text' or 'json'", format)
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), fetchTimeout)
			defer cancel()

			var owner feed.User
			var posts []feed.Post
			if input != "" {
				owner, posts, err = readFeedFile(input)
			} else {
				owner, posts, err = fetchFeed(ctx, cfg)
			}
			if err != nil {
				return err
			}
			logger.WithFields(logging.Fields{
				"owner": logging.Anonymize(owner.Name),
				"posts": len(posts),
			}).Debug("Feed loaded")

			engine := statistics.NewEngine(statistics.WithLocation(cfg.Location()))
			env, err := engine.Run(ctx, owner, posts)
			if err != nil {
				return fmt.Errorf("failed to compute statistics: %w", err)
			}

			data, err := env.MarshalJSON()
			if err != nil {
				return fmt.Errorf("failed to encode statistics: %w", err)
			}

			if format == formatJSON {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			} else {
				fmt.Fprint(cmd.OutOrStdout(), display.NewTerminalFormatter().FormatEnvelope(env))
			}

			if !save {
				return nil
			}
			if env.Empty() {
				fmt.Fprintln(cmd.ErrOrStderr(), "Nothing to save: the feed has no posts.")
				return nil
			}
			snap, err := saveSnapshot(ctx, cfg, store.Snapshot{
				OwnerID:   owner.ID,
				OwnerName: owner.Name,
				PostCount: len(posts),
				Envelope:  data,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Saved snapshot #%d to %s\n", snap.ID, cfg.Database)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Read a saved Graph API feed (JSON with an \"owner\" object) instead of calling Facebook")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format (text, json)")
	cmd.Flags().BoolVar(&save, "save", false, "Save the statistics to the history database")

	return cmd
}

func readFeedFile(path string) (feed.User, []feed.Post, error) {
	f, err := os.Open(path) // #nosec G304 -- path is supplied by the user on purpose
	if err != nil {
		return feed.User{}, nil, fmt.Errorf("failed to open feed file: %w", err)
	}
	defer f.Close()
	return facebook.ReadDump(f)
}

func newFacebookClient(cfg *config.Config) (*facebook.Client, error) {
	token, err := loadToken(cfg)
	if err != nil {
		return nil, err
	}
	return facebook.NewClient(token, facebook.WithBaseURL(cfg.APIURL)), nil
}

func fetchFeed(ctx context.Context, cfg *config.Config) (feed.User, []feed.Post, error) {
	client, err := newFacebookClient(cfg)
	if err != nil {
		return feed.User{}, nil, err
	}
	owner, err := client.FetchProfile(ctx)
	if err != nil {
		return feed.User{}, nil, err
	}
	posts, err := client.FetchFeed(ctx, cfg.FeedLimit)
	if err != nil {
		return feed.User{}, nil, err
	}
	return owner, posts, nil
}

func saveSnapshot(ctx context.Context, cfg *config.Config, snap store.Snapshot) (store.Snapshot, error) {
	db, err := store.Open(cfg.Database)
	if err != nil {
		return store.Snapshot{}, err
	}
	defer db.Close()
	return db.Save(ctx, snap)
}

// newHistoryCmd creates the history subcommand.
func newHistoryCmd() *cobra.Command {
	var limit int
	var ownerID int64
	var format string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved statistics",
		Long:  "List statistics snapshots saved with 'infographic stats --save', newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatText && format != formatJSON {
				return fmt.Errorf("invalid format %q: must be 'text' or 'json'", format)
			}

			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), fetchTimeout)
			defer cancel()

			if ownerID == 0 {
				client, err := newFacebookClient(cfg)
				if err != nil {
					return fmt.Errorf("%w, or pass --owner", err)
				}
				owner, err := client.FetchProfile(ctx)
				if err != nil {
					return err
				}
				ownerID = owner.ID
			}

			db, err := store.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			snaps, err := db.List(ctx, ownerID, limit)
			if err != nil {
				return err
			}

			if format == formatJSON {
				data, err := json.Marshal(snaps)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), display.NewTerminalFormatter().FormatHistory(snaps))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Maximum number of snapshots to list")
	cmd.Flags().Int64Var(&ownerID, "owner", 0, "Facebook user id (default: the authenticated user)")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format (text, json)")

	return cmd
}
