package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskmindhq/taskmind/internal/archive"
	"github.com/taskmindhq/taskmind/internal/mcp"
)

var mcpArchivePath string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server over the registries",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets external agents work against the same task and learning
registries. Configure with:

  {
    "mcpServers": {
      "taskmind": { "command": "taskmind", "args": ["mcp"] }
    }
  }

With --archive, a snapshot is loaded on startup and saved on shutdown;
otherwise the registries start empty and vanish with the process.

Available tools: taskmind_create_task, taskmind_update_task,
taskmind_list_tasks, taskmind_complete_task, taskmind_task_stats,
taskmind_record_learning, taskmind_similar_learnings,
taskmind_learning_report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpArchivePath, "archive", "", "Snapshot archive to load on start and save on exit")
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var a *archive.Archive
	if mcpArchivePath != "" {
		var err error
		a, err = archive.Open(mcpArchivePath)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.Migrate(ctx); err != nil {
			return err
		}

		snap, err := a.LoadSnapshot(ctx)
		if err != nil {
			return err
		}
		loadSnapshot(taskRegistry, learningRegistry, snap)
		ui.VerboseLog("Loaded %d task(s), %d learning(s) from %s",
			len(snap.Tasks), len(snap.Learnings), mcpArchivePath)
	}

	srv := mcp.NewServer(taskRegistry, learningRegistry)
	serveErr := srv.ServeStdio(ctx)

	if a != nil {
		saveCtx := context.Background()
		err := a.SaveSnapshot(saveCtx, archive.Snapshot{
			Tasks:     taskRegistry.Snapshot(),
			Learnings: learningRegistry.Entries(),
			Metrics:   learningRegistry.Metrics(),
		})
		if err != nil {
			ui.Warning("Snapshot save failed: %v", err)
		}
	}
	return serveErr
}
