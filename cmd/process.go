package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koopa0/podrag/internal/app"
	"github.com/koopa0/podrag/internal/rag"
)

var (
	flagReprocess  bool
	flagProcessAll bool
)

var processCmd = &cobra.Command{
	Use:   "process [episode-number...]",
	Short: "Chunk, embed and store episode transcripts",
	Long: `Process ingests episode transcripts into the vector store. Episodes
that are already processed are skipped unless --reprocess is given, in
which case their chunks are rebuilt from scratch.`,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().BoolVar(&flagReprocess, "reprocess", false,
		"rebuild chunks for already processed episodes")
	processCmd.Flags().BoolVar(&flagProcessAll, "all", false,
		"process every episode that has a transcript")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	if !flagProcessAll && len(args) == 0 {
		return errors.New("pass episode numbers or --all")
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

	numbers, err := episodeNumbers(ctx, a, args)
	if err != nil {
		return err
	}

	var failed int
	for _, number := range numbers {
		if err := ctx.Err(); err != nil {
			return err
		}

		status, err := a.Pipeline.Process(ctx, number, flagReprocess)
		if err != nil {
			if errors.Is(err, rag.ErrValidation) {
				a.Logger.Warn("skipping episode", "episode", number, "reason", err)
				failed++
				continue
			}
			return fmt.Errorf("processing episode %d: %w", number, err)
		}
		fmt.Printf("episode %d: %s (%d chunks)\n", number, status.State, status.Chunks)
	}

	if failed > 0 {
		fmt.Printf("%d episodes skipped\n", failed)
	}
	return nil
}

func episodeNumbers(ctx context.Context, a *app.App, args []string) ([]int64, error) {
	if !flagProcessAll {
		numbers := make([]int64, 0, len(args))
		for _, arg := range args {
			number, err := strconv.ParseInt(arg, 10, 64)
			if err != nil || number < 1 {
				return nil, fmt.Errorf("invalid episode number %q", arg)
			}
			numbers = append(numbers, number)
		}
		return numbers, nil
	}

	episodes, err := a.Episodes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing episodes: %w", err)
	}
	var numbers []int64
	for _, ep := range episodes {
		if ep.HasTranscript() {
			numbers = append(numbers, ep.EpisodeNumber)
		}
	}
	return numbers, nil
}
