package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskmindhq/taskmind/internal/models"
	"github.com/taskmindhq/taskmind/internal/output"
	"github.com/taskmindhq/taskmind/internal/tasks"
)

var (
	taskDescription string
	taskPriority    string
	taskCategory    string
	taskParent      string
	taskDeps        []string

	taskListStatus   string
	taskListCategory string
	taskListPriority string
	taskListLimit    int

	taskFailed string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks in the local registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskListRun()
	},
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskAddRun(strings.Join(args, " "))
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks sorted by priority then recency",
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskListRun()
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a task with its subtasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskShowRun(args[0])
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <id> [result]",
	Short: "Mark a task completed (or failed with --failed)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskCompleteRun(args[0], strings.Join(args[1:], " "))
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task and its subtasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskDeleteRun(args[0])
	},
}

var taskStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskStatsRun()
	},
}

func init() {
	taskAddCmd.Flags().StringVarP(&taskDescription, "desc", "d", "", "Task description")
	taskAddCmd.Flags().StringVarP(&taskPriority, "priority", "p", "", "Priority: low, medium, high, critical (default medium)")
	taskAddCmd.Flags().StringVarP(&taskCategory, "category", "c", "", "Category (default development)")
	taskAddCmd.Flags().StringVar(&taskParent, "parent", "", "Parent task ID")
	taskAddCmd.Flags().StringSliceVar(&taskDeps, "depends-on", nil, "IDs of tasks this task depends on")

	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "Filter by status")
	taskListCmd.Flags().StringVar(&taskListCategory, "category", "", "Filter by category")
	taskListCmd.Flags().StringVar(&taskListPriority, "priority", "", "Filter by priority")
	taskListCmd.Flags().IntVar(&taskListLimit, "limit", 0, "Max tasks to show")

	taskCompleteCmd.Flags().StringVar(&taskFailed, "failed", "", "Mark as failed with the given reason")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskCompleteCmd)
	taskCmd.AddCommand(taskDeleteCmd)
	taskCmd.AddCommand(taskStatsCmd)
	rootCmd.AddCommand(taskCmd)
}

func taskAddRun(title string) error {
	parentID := ""
	if taskParent != "" {
		parent, err := resolveTask(taskParent)
		if err != nil {
			return err
		}
		parentID = parent.ID
	}

	t, err := taskRegistry.Create(title, taskDescription, tasks.CreateOptions{
		Priority:      models.TaskPriority(taskPriority),
		Category:      models.TaskCategory(taskCategory),
		ParentID:      parentID,
		DependencyIDs: taskDeps,
	})
	if err != nil {
		return err
	}

	ui.Success("Created task %s: %s", output.Cyan(shortID(t.ID)), t.Title)
	return nil
}

func taskListRun() error {
	list := taskRegistry.List(tasks.ListFilter{
		Status:   models.TaskStatus(taskListStatus),
		Category: models.TaskCategory(taskListCategory),
		Priority: models.TaskPriority(taskListPriority),
		Limit:    taskListLimit,
	})

	if len(list) == 0 {
		ui.Info("No tasks.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Status", "Priority", "Category", "Created"})
	for _, t := range list {
		table.Append([]string{
			shortID(t.ID),
			t.Title,
			output.StatusColor(string(t.Status)),
			output.PriorityColor(string(t.Priority)),
			string(t.Category),
			timeAgo(t.CreatedAt),
		})
	}
	table.Render()
	return nil
}

func taskShowRun(ref string) error {
	t, err := resolveTask(ref)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s %s\n", output.Cyan(t.ID), t.Title)
	if t.Description != "" {
		fmt.Fprintf(ui.Out, "  %s\n", t.Description)
	}
	fmt.Fprintf(ui.Out, "  status:   %s\n", output.StatusColor(string(t.Status)))
	fmt.Fprintf(ui.Out, "  priority: %s\n", output.PriorityColor(string(t.Priority)))
	fmt.Fprintf(ui.Out, "  category: %s\n", t.Category)
	fmt.Fprintf(ui.Out, "  created:  %s\n", t.CreatedAt.Format(time.RFC3339))
	if t.CompletedAt != nil {
		fmt.Fprintf(ui.Out, "  finished: %s\n", t.CompletedAt.Format(time.RFC3339))
	}
	if len(t.DependencyIDs) > 0 {
		fmt.Fprintf(ui.Out, "  depends:  %s\n", strings.Join(t.DependencyIDs, ", "))
	}
	if t.Result != "" {
		fmt.Fprintf(ui.Out, "  result:   %s\n", t.Result)
	}

	subs := taskRegistry.Subtasks(t.ID)
	if len(subs) > 0 {
		fmt.Fprintln(ui.Out, "  subtasks:")
		for _, sub := range subs {
			fmt.Fprintf(ui.Out, "    %s %s [%s]\n", shortID(sub.ID), sub.Title,
				output.StatusColor(string(sub.Status)))
		}
	}
	return nil
}

func taskCompleteRun(ref, result string) error {
	t, err := resolveTask(ref)
	if err != nil {
		return err
	}

	success := taskFailed == ""
	if !success && result == "" {
		result = taskFailed
	}

	t, err = taskRegistry.Complete(t.ID, success, result)
	if err != nil {
		return err
	}
	ui.Success("Task %s marked %s", output.Cyan(shortID(t.ID)), output.StatusColor(string(t.Status)))
	return nil
}

func taskDeleteRun(ref string) error {
	t, err := resolveTask(ref)
	if err != nil {
		return err
	}

	subs := taskRegistry.Subtasks(t.ID)
	if err := taskRegistry.Delete(t.ID); err != nil {
		return err
	}
	if len(subs) > 0 {
		ui.Success("Deleted task %s and %d subtask(s)", output.Cyan(shortID(t.ID)), len(subs))
	} else {
		ui.Success("Deleted task %s", output.Cyan(shortID(t.ID)))
	}
	return nil
}

func taskStatsRun() error {
	counts := taskRegistry.CountsByStatus()
	if len(counts) == 0 {
		ui.Info("No tasks.")
		return nil
	}

	table := ui.Table([]string{"Status", "Count"})
	for _, status := range []models.TaskStatus{
		models.TaskStatusPending,
		models.TaskStatusInProgress,
		models.TaskStatusCompleted,
		models.TaskStatusFailed,
		models.TaskStatusCancelled,
	} {
		if n, ok := counts[status]; ok {
			table.Append([]string{output.StatusColor(string(status)), fmt.Sprintf("%d", n)})
		}
	}
	table.Render()
	fmt.Fprintf(ui.Out, "total: %d\n", taskRegistry.Len())
	return nil
}

// resolveTask finds a task by full ID or unique ID prefix.
func resolveTask(ref string) (*models.Task, error) {
	if t, err := taskRegistry.Get(ref); err == nil {
		return t, nil
	}

	var matches []*models.Task
	for _, t := range taskRegistry.List(tasks.ListFilter{}) {
		if strings.HasPrefix(t.ID, strings.ToUpper(ref)) || strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("task not found: %s", ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous task ID %s: matches %d tasks", ref, len(matches))
	}
}

// shortID returns a truncated ULID for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// timeAgo returns a human-readable duration from a time.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
