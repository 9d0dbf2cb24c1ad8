package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taskmindhq/taskmind/internal/output"
)

var (
	chatInteractive bool
	chatKeepThread  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message through the assistant",
	Long: `Send a message to the remote assistant and print its reply.

The assistant can call back into the local registries: it may create and
update tasks, record learnings, and search the context store while handling
the message. With --interactive, messages are read from stdin until "exit".`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return chatRun(strings.Join(args, " "))
	},
}

func init() {
	chatCmd.Flags().BoolVarP(&chatInteractive, "interactive", "i", false, "Read messages from stdin until exit")
	chatCmd.Flags().BoolVar(&chatKeepThread, "keep-thread", false, "Leave the remote thread in place on exit")
	rootCmd.AddCommand(chatCmd)
}

func chatRun(message string) error {
	if message == "" && !chatInteractive {
		return fmt.Errorf("provide a message or use --interactive")
	}

	orch, err := getOrchestrator()
	if err != nil {
		return err
	}
	ctx := context.Background()

	defer func() {
		if chatKeepThread {
			if sess := orch.CurrentSession(); sess != nil {
				ui.Info("Thread kept: %s", output.Cyan(sess.ThreadID))
			}
			return
		}
		if err := orch.Close(ctx); err != nil {
			ui.Warning("Session cleanup failed: %v", err)
		}
	}()

	if message != "" {
		reply := orch.ProcessMessage(ctx, message)
		fmt.Fprintln(ui.Out, reply)
	}

	if !chatInteractive {
		return nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(ui.Out, output.Cyan("you> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		reply := orch.ProcessMessage(ctx, line)
		fmt.Fprintf(ui.Out, "%s %s\n", output.Green("assistant>"), reply)
	}
	return scanner.Err()
}
