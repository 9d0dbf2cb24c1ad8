package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskmindhq/taskmind/internal/archive"
	"github.com/taskmindhq/taskmind/internal/learning"
	"github.com/taskmindhq/taskmind/internal/tasks"
)

var (
	dataTasksPath     string
	dataLearningsPath string
	dataArchivePath   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export an archive snapshot to JSON files",
	Long: `Export the registries stored in a snapshot archive to JSON files.

Tasks export as a bare JSON array of task records; learnings export as a
{"learnings": [...], "metrics": {...}} envelope. Dates are ISO-8601.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import JSON files into a snapshot archive",
	Long: `Import task/learning JSON files and persist them as a snapshot
archive. Malformed payloads import zero records rather than failing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return importRun()
	},
}

func init() {
	exportCmd.Flags().StringVar(&dataArchivePath, "archive", "", "Snapshot archive to export from (required)")
	exportCmd.Flags().StringVar(&dataTasksPath, "tasks", "", "Write tasks JSON to this path")
	exportCmd.Flags().StringVar(&dataLearningsPath, "learnings", "", "Write learnings JSON to this path")
	_ = exportCmd.MarkFlagRequired("archive")

	importCmd.Flags().StringVar(&dataArchivePath, "archive", "", "Snapshot archive to import into (required)")
	importCmd.Flags().StringVar(&dataTasksPath, "tasks", "", "Read tasks JSON from this path")
	importCmd.Flags().StringVar(&dataLearningsPath, "learnings", "", "Read learnings JSON from this path")
	_ = importCmd.MarkFlagRequired("archive")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func exportRun() error {
	if dataTasksPath == "" && dataLearningsPath == "" {
		return fmt.Errorf("specify --tasks and/or --learnings output paths")
	}

	ctx := context.Background()
	a, err := archive.Open(dataArchivePath)
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

	// Round the snapshot through fresh registries so the JSON matches the
	// canonical export shape.
	tr := tasks.NewRegistry()
	lr := learning.NewRegistry()
	loadSnapshot(tr, lr, snap)

	if dataTasksPath != "" {
		data, err := tr.Export()
		if err != nil {
			return err
		}
		if err := os.WriteFile(dataTasksPath, data, 0644); err != nil {
			return fmt.Errorf("write tasks export: %w", err)
		}
		ui.Success("Exported %d task(s) to %s", tr.Len(), dataTasksPath)
	}

	if dataLearningsPath != "" {
		data, err := lr.Export()
		if err != nil {
			return err
		}
		if err := os.WriteFile(dataLearningsPath, data, 0644); err != nil {
			return fmt.Errorf("write learnings export: %w", err)
		}
		ui.Success("Exported %d learning(s) to %s", lr.Len(), dataLearningsPath)
	}
	return nil
}

func importRun() error {
	if dataTasksPath == "" && dataLearningsPath == "" {
		return fmt.Errorf("specify --tasks and/or --learnings input paths")
	}

	tr := tasks.NewRegistry()
	lr := learning.NewRegistry()

	if dataTasksPath != "" {
		data, err := os.ReadFile(dataTasksPath)
		if err != nil {
			return fmt.Errorf("read tasks file: %w", err)
		}
		n := tr.Import(data)
		ui.Info("Imported %d task(s)", n)
	}

	if dataLearningsPath != "" {
		data, err := os.ReadFile(dataLearningsPath)
		if err != nil {
			return fmt.Errorf("read learnings file: %w", err)
		}
		n := lr.Import(data)
		ui.Info("Imported %d learning(s)", n)
	}

	ctx := context.Background()
	a, err := archive.Open(dataArchivePath)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Migrate(ctx); err != nil {
		return err
	}

	if err := a.SaveSnapshot(ctx, archive.Snapshot{
		Tasks:     tr.Snapshot(),
		Learnings: lr.Entries(),
		Metrics:   lr.Metrics(),
	}); err != nil {
		return err
	}
	ui.Success("Snapshot saved to %s", dataArchivePath)
	return nil
}

// loadSnapshot fills registries from an archive snapshot.
func loadSnapshot(tr *tasks.Registry, lr *learning.Registry, snap *archive.Snapshot) {
	for _, t := range snap.Tasks {
		tr.Put(t)
	}
	lr.Load(snap.Learnings, snap.Metrics)
}
