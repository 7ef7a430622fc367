package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"

	"github.com/tunedesk/tunedesk/internal/tracing"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the support agents in the terminal",
	Long: `Start an interactive support conversation. All messages go
through one thread, so identity and preferences stick for the whole
session. Type 'exit' or press Ctrl-D to quit.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	threadID, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate thread id: %w", err)
	}

	fmt.Println("Tunedesk support. Ask about our music catalog or your invoices.")
	fmt.Printf("Thread: %s\n\n", threadID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "exit" || message == "quit" {
			break
		}

		ctx := tracing.NewRequestContext(context.Background())
		result, err := rt.engine.Turn(ctx, threadID, message, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Printf("%s> %s\n\n", result.AgentName, result.Message)
	}

	fmt.Println("\nBye.")
	return scanner.Err()
}
