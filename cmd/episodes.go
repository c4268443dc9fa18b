package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var episodesCmd = &cobra.Command{
	Use:   "episodes",
	Short: "List stored episodes",
	RunE:  runEpisodes,
}

var summaryCmd = &cobra.Command{
	Use:   "summary <episode-number>",
	Short: "Show an episode summary, generating it on first use",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(episodesCmd)
	rootCmd.AddCommand(summaryCmd)
}

func runEpisodes(cmd *cobra.Command, _ []string) error {
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

	episodes, err := a.Episodes.List(ctx)
	if err != nil {
		return err
	}
	if len(episodes) == 0 {
		fmt.Println("No episodes stored yet. Run: podrag scrape")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tTITLE\tTRANSCRIPT\tPROCESSED")
	for _, ep := range episodes {
		fmt.Fprintf(w, "%d\t%s\t%v\t%v\n",
			ep.EpisodeNumber, ep.Title, ep.HasTranscript(), ep.Processed)
	}
	return w.Flush()
}

func runSummary(cmd *cobra.Command, args []string) error {
	number, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || number < 1 {
		return fmt.Errorf("invalid episode number %q", args[0])
	}

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

	summary, err := a.Pipeline.Summary(ctx, number)
	if err != nil {
		return err
	}
	fmt.Println(summary)
	return nil
}
