package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taskmindhq/taskmind/internal/models"
	"github.com/taskmindhq/taskmind/internal/output"
)

var (
	learningOutcome     string
	learningTask        string
	learningFeedback    string
	learningImprovement string
	learningLimit       int
)

var learningCmd = &cobra.Command{
	Use:   "learning",
	Short: "Manage the learning registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return learningListRun()
	},
}

var learningRecordCmd = &cobra.Command{
	Use:   "record <pattern>",
	Short: "Record a lesson learned",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return learningRecordRun(strings.Join(args, " "))
	},
}

var learningListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded learnings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return learningListRun()
	},
}

var learningSimilarCmd = &cobra.Command{
	Use:   "similar <query>",
	Short: "Find learnings whose pattern shares words with the query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return learningSimilarRun(strings.Join(args, " "))
	},
}

var learningReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a learning and metrics summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(ui.Out, learningRegistry.Report())
		return nil
	},
}

func init() {
	learningRecordCmd.Flags().StringVarP(&learningOutcome, "outcome", "o", "success", "Outcome: success, failure, partial")
	learningRecordCmd.Flags().StringVar(&learningTask, "task", "", "Originating task ID")
	learningRecordCmd.Flags().StringVar(&learningFeedback, "feedback", "", "Additional feedback")
	learningRecordCmd.Flags().StringVar(&learningImprovement, "improvement", "", "Suggested improvement")

	learningSimilarCmd.Flags().IntVar(&learningLimit, "limit", 5, "Max entries to show")

	learningCmd.AddCommand(learningRecordCmd)
	learningCmd.AddCommand(learningListCmd)
	learningCmd.AddCommand(learningSimilarCmd)
	learningCmd.AddCommand(learningReportCmd)
	rootCmd.AddCommand(learningCmd)
}

func learningRecordRun(pattern string) error {
	e := learningRegistry.Record(models.LearningEntry{
		TaskID:      learningTask,
		Pattern:     pattern,
		Outcome:     models.LearningOutcome(learningOutcome),
		Feedback:    learningFeedback,
		Improvement: learningImprovement,
	})
	ui.Success("Recorded learning %s (%s)", output.Cyan(shortID(e.ID)), e.Outcome)
	return nil
}

func learningListRun() error {
	entries := learningRegistry.Entries()
	if len(entries) == 0 {
		ui.Info("No learnings recorded.")
		return nil
	}

	table := ui.Table([]string{"ID", "Outcome", "Pattern", "Recorded"})
	for _, e := range entries {
		table.Append([]string{
			shortID(e.ID),
			output.StatusColor(string(e.Outcome)),
			truncateText(e.Pattern, 60),
			timeAgo(e.Timestamp),
		})
	}
	table.Render()
	return nil
}

func learningSimilarRun(query string) error {
	entries := learningRegistry.Similar(query, learningLimit)
	if len(entries) == 0 {
		ui.Info("No similar learnings.")
		return nil
	}

	for _, e := range entries {
		fmt.Fprintf(ui.Out, "%s [%s] %s\n", output.Cyan(shortID(e.ID)),
			output.StatusColor(string(e.Outcome)), e.Pattern)
		if e.Improvement != "" {
			fmt.Fprintf(ui.Out, "    improvement: %s\n", e.Improvement)
		}
	}
	return nil
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
