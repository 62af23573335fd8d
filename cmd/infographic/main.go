// Package main provides the infographic CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gauthierbraillon/infographic/internal/config"
	"github.com/gauthierbraillon/infographic/internal/logging"
	"github.com/gauthierbraillon/infographic/pkg/browser"
	"github.com/gauthierbraillon/infographic/pkg/oauth"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// provider names the stored token file.
const provider = "facebook"

const authTimeout = 5 * time.Minute

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveVersion prefers the ldflags version and falls back to the module
// version recorded by go install.
func resolveVersion(v string, bi *debug.BuildInfo) string {
	if v != "dev" {
		return v
	}
	if bi == nil || bi.Main.Version == "" || bi.Main.Version == "(devel)" {
		return "dev"
	}
	return bi.Main.Version
}

func buildVersion() string {
	bi, _ := debug.ReadBuildInfo()
	return resolveVersion(version, bi)
}

// newRootCmd creates the root command for infographic CLI.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "infographic",
		Short: "Turn your Facebook feed into statistics",
		Long: "Infographic reads your Facebook feed and computes your top friends, " +
			"post types, posting rhythm and most used words.",
		Version:      buildVersion(),
		SilenceUsage: true,
	}

	rootCmd.SetVersionTemplate("infographic version {{.Version}}\n")

	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// loadConfig resolves the configuration and the logger shared by commands.
func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newAuthCmd creates the auth subcommand.
func newAuthCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with Facebook",
		Long:  "Initiate the OAuth flow with Facebook and store a long-lived access token.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireCredentials(); err != nil {
				return err
			}

			if port > 0 {
				cfg.RedirectURL = fmt.Sprintf("http://localhost:%d/callback", port)
			} else if port, err = oauth.CallbackPort(cfg.RedirectURL); err != nil {
				return err
			}

			flow := oauth.NewFlow(cfg.OAuth())
			authURL, state := flow.GenerateAuthURL()

			fmt.Fprintf(cmd.OutOrStdout(), "Authenticating with Facebook...\n")
			fmt.Fprintf(cmd.OutOrStdout(), "Opening browser for authorization...\n")

			if err := browser.Open(authURL); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Could not open browser. Please visit:\n%s\n", authURL)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Waiting for authorization...\n")
			callbackServer := oauth.NewCallbackServer(port)
			ctx, cancel := context.WithTimeout(cmd.Context(), authTimeout)
			defer cancel()

			code, err := callbackServer.WaitForCallback(ctx, state, authTimeout)
			if err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exchanging authorization code...\n")
			token, err := flow.ExchangeCode(ctx, code)
			if err != nil {
				return fmt.Errorf("token exchange failed: %w", err)
			}

			if extended, err := flow.ExtendToken(ctx, token); err != nil {
				logger.WithError(err).Warn("Could not extend access token, keeping the short-lived one")
			} else {
				token = extended
			}

			storage := oauth.NewTokenStorage(cfg.ConfigDir)
			if err := storage.Save(provider, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.WithField("token", logging.Anonymize(token.AccessToken)).Debug("Access token stored")
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully authenticated with Facebook!\n")
			fmt.Fprintf(cmd.OutOrStdout(), "Token saved to: %s\n", cfg.ConfigDir)
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port for OAuth callback server (default: port of the redirect URL)")

	return cmd
}

// loadToken reads the stored access token or tells the user how to get one.
func loadToken(cfg *config.Config) (*oauth.Token, error) {
	token, err := oauth.NewTokenStorage(cfg.ConfigDir).Load(provider)
	switch {
	case errors.Is(err, oauth.ErrTokenNotFound):
		return nil, errors.New("not authenticated (run 'infographic auth')")
	case errors.Is(err, oauth.ErrTokenExpired):
		return nil, fmt.Errorf("access token expired on %s (run 'infographic auth' again)",
			token.ExpiresAt().UTC().Format("Jan 2, 2006"))
	}
	return token, err
}

// newConfigCmd creates the config subcommand.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		Long:  "Show the resolved infographic configuration and where it was loaded from.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config directory: %s\n", cfg.ConfigDir)
			if len(cfg.Sources) > 0 {
				fmt.Fprintf(out, "Loaded from: %s\n", strings.Join(cfg.Sources, ", "))
			}

			rows := []struct{ key, value string }{
				{"client_id", cfg.ClientID},
				{"client_secret", logging.Anonymize(cfg.ClientSecret)},
				{"redirect_url", cfg.RedirectURL},
				{"api_url", cfg.APIURL},
				{"feed_limit", fmt.Sprint(cfg.FeedLimit)},
				{"timezone", cfg.Timezone},
				{"database", cfg.Database},
				{"listen_addr", cfg.ListenAddr},
				{"session_ttl", cfg.SessionTTL.String()},
				{"log_level", cfg.LogLevel},
				{"log_format", cfg.LogFormat},
			}
			for _, r := range rows {
				value := r.value
				if value == "" {
					value = "(not set)"
				}
				fmt.Fprintf(out, "  %-14s %s\n", r.key, value)
			}
			return nil
		},
	}

	return cmd
}
