package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koopa0/podrag/internal/rag"
)

var chatCmd = &cobra.Command{
	Use:   "chat <episode-number>",
	Short: "Chat interactively about one episode",
	Long: `Chat starts an interactive conversation about a processed episode.
History within the conversation is kept, so follow-up questions work.
Type /quit to exit and /clear to forget the conversation so far.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
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

	ep, err := a.Episodes.Get(ctx, number)
	if err != nil {
		return err
	}
	if !ep.Processed {
		return fmt.Errorf("episode %d is not processed yet, run: podrag process %d", number, number)
	}

	sess := a.Sessions.Create()
	defer a.Sessions.Delete(sess.ID)

	fmt.Printf("Chatting about episode %d: %s\n", ep.EpisodeNumber, ep.Title)
	fmt.Println("Type /quit to exit, /clear to reset the conversation.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())

		switch input {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			sess.Clear()
			fmt.Println("Conversation cleared.")
			continue
		}

		answer, _, err := a.Pipeline.Ask(ctx, number, input, sess)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, rag.ErrValidation) || errors.Is(err, rag.ErrGenerationProvider) {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			return err
		}
		fmt.Println(answer)
		fmt.Println()
	}
	return scanner.Err()
}
