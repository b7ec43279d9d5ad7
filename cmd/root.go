// Package cmd defines the CLI commands for the follower tracker.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/follower-tracker/internal/config"
	"github.com/JakeFAU/follower-tracker/internal/server"
	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

// App is the application surface the commands use. Tests inject a fake.
type App interface {
	Run(ctx context.Context) error
	RefreshAll(ctx context.Context) (tracker.Job, error)
	RefreshProfile(ctx context.Context, profileID string) (tracker.Job, error)
	AddProfile(ctx context.Context, name, profileURL string) (tracker.Profile, error)
	ScrapeURL(ctx context.Context, profileURL string) tracker.Outcome
	Profiles() tracker.ProfileStore
	Close() error
}

// newApp is the application factory, replaced in tests.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return server.Build(ctx, cfg)
}

// session holds the App built by the root pre-run hook for the subcommand.
type session struct {
	app App
}

func (s *session) resolve() (App, error) {
	if s.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return s.app, nil
}

func (s *session) close() error {
	if s.app == nil {
		return nil
	}
	return s.app.Close()
}

func newRootCmd(s *session) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Tracks follower counts and avatars of public social profiles.",
		Long: `tracker loads JavaScript-rendered profile pages, extracts follower counts
and avatar images, and records them over time. Run "serve" for the HTTP API
and background worker, or "refresh" and "scrape" for one-off runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			s.app, err = newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newServeCmd(s), newRefreshCmd(s), newScrapeCmd(s), newProfilesCmd(s))
	return cmd
}

// run executes the command tree for args and always closes the App it built.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	s := &session{}
	root := newRootCmd(s)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if cerr := s.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Execute runs the CLI with the process arguments and exits non-zero on failure.
func Execute() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
