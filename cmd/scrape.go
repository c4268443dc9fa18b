package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var flagSkipTranscripts bool

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Discover episodes and fetch transcripts",
	Long: `Scrape crawls the podcast directory page, saves every discovered
episode and downloads transcripts for episodes that do not have one yet.
Fetched transcripts still need 'podrag process' before they can be
queried.`,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().BoolVar(&flagSkipTranscripts, "skip-transcripts", false,
		"only save episode metadata, do not fetch transcripts")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	result, err := a.Sync(ctx, !flagSkipTranscripts)
	if err != nil {
		return fmt.Errorf("scraping: %w", err)
	}

	fmt.Printf("Discovered %d episodes, fetched %d transcripts", result.Discovered, result.Fetched)
	if result.Failed > 0 {
		fmt.Printf(" (%d pages failed)", result.Failed)
	}
	fmt.Println()
	return nil
}
