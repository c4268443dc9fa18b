// Package cmd implements the podrag command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/koopa0/podrag/internal/app"
	"github.com/koopa0/podrag/internal/config"
	"github.com/koopa0/podrag/internal/log"
)

var (
	flagVerbose bool
	flagLogJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "podrag",
	Short: "Podcast transcript chatbot",
	Long: `podrag scrapes podcast episode transcripts, indexes them with vector
embeddings and answers questions grounded on episode content.

Typical workflow:

  podrag scrape                 # discover episodes and fetch transcripts
  podrag process 289            # chunk, embed and store one episode
  podrag ask 289 "what was discussed about index funds?"
  podrag serve                  # expose the same operations over HTTP`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "write logs as JSON")
}

func newLogger() log.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: flagLogJSON})
}

// setupApp loads and validates configuration, then builds the
// application container. Callers must Close the returned App.
func setupApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	a, err := app.Setup(ctx, cfg, newLogger())
	if err != nil {
		return nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, nil
}
