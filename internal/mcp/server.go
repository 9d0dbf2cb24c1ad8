// Package mcp exposes the task and learning registries as MCP tools over
// stdio, so external agents can work against the same in-process state.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/taskmindhq/taskmind/internal/learning"
	"github.com/taskmindhq/taskmind/internal/models"
	"github.com/taskmindhq/taskmind/internal/tasks"
)

// Server wraps the registries and exposes them as MCP tools.
type Server struct {
	tasks     *tasks.Registry
	learnings *learning.Registry
}

// NewServer creates the MCP server wrapper over the given registries.
func NewServer(tr *tasks.Registry, lr *learning.Registry) *Server {
	return &Server{tasks: tr, learnings: lr}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("taskmind", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.createTaskTool())
	srv.AddTool(s.updateTaskTool())
	srv.AddTool(s.listTasksTool())
	srv.AddTool(s.completeTaskTool())
	srv.AddTool(s.taskStatsTool())
	srv.AddTool(s.recordLearningTool())
	srv.AddTool(s.similarLearningsTool())
	srv.AddTool(s.learningReportTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// taskmind_create_task
func (s *Server) createTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("taskmind_create_task",
		mcp.WithDescription("Create a task. Status starts as pending; priority defaults to medium and category to development. Returns the created task as JSON."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("priority", mcp.Description("Priority: low, medium, high, critical")),
		mcp.WithString("category", mcp.Description("Category: development, testing, documentation, refactoring, research, deployment, bug_fix, review, optimization")),
		mcp.WithString("parent_id", mcp.Description("Parent task ID, for subtasks")),
	)
	return tool, s.handleCreateTask
}

func (s *Server) handleCreateTask(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}

	t, err := s.tasks.Create(title, request.GetString("description", ""), tasks.CreateOptions{
		Priority: models.TaskPriority(request.GetString("priority", "")),
		Category: models.TaskCategory(request.GetString("category", "")),
		ParentID: request.GetString("parent_id", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create task: %v", err)), nil
	}
	return jsonResult(t)
}

// taskmind_update_task
func (s *Server) updateTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("taskmind_update_task",
		mcp.WithDescription("Update fields of an existing task. Only provided fields change. Returns the updated task as JSON."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("status", mcp.Description("New status: pending, in_progress, completed, failed, cancelled")),
		mcp.WithString("priority", mcp.Description("New priority: low, medium, high, critical")),
		mcp.WithString("result", mcp.Description("Result payload to attach")),
	)
	return tool, s.handleUpdateTask
}

func (s *Server) handleUpdateTask(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: task_id"), nil
	}

	var u tasks.Updates
	if v := request.GetString("title", ""); v != "" {
		u.Title = &v
	}
	if v := request.GetString("description", ""); v != "" {
		u.Description = &v
	}
	if v := request.GetString("status", ""); v != "" {
		status := models.TaskStatus(v)
		u.Status = &status
	}
	if v := request.GetString("priority", ""); v != "" {
		priority := models.TaskPriority(v)
		u.Priority = &priority
	}
	if v := request.GetString("result", ""); v != "" {
		u.Result = &v
	}

	t, err := s.tasks.Update(id, u)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update task: %v", err)), nil
	}
	return jsonResult(t)
}

// taskmind_list_tasks
func (s *Server) listTasksTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("taskmind_list_tasks",
		mcp.WithDescription("List tasks sorted by priority (critical first) then recency. Returns a JSON array."),
		mcp.WithString("status", mcp.Description("Status filter: pending, in_progress, completed, failed, cancelled")),
		mcp.WithString("category", mcp.Description("Category filter")),
		mcp.WithString("priority", mcp.Description("Priority filter: low, medium, high, critical")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of tasks to return")),
	)
	return tool, s.handleListTasks
}

func (s *Server) handleListTasks(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list := s.tasks.List(tasks.ListFilter{
		Status:   models.TaskStatus(request.GetString("status", "")),
		Category: models.TaskCategory(request.GetString("category", "")),
		Priority: models.TaskPriority(request.GetString("priority", "")),
		Limit:    request.GetInt("limit", 0),
	})
	return jsonResult(list)
}

// taskmind_complete_task
func (s *Server) completeTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("taskmind_complete_task",
		mcp.WithDescription("Mark a task finished: completed on success, failed otherwise. Stamps the completion time and attaches the result."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithBoolean("success", mcp.Description("Whether the task succeeded (default true)")),
		mcp.WithString("result", mcp.Description("Result payload")),
	)
	return tool, s.handleCompleteTask
}

func (s *Server) handleCompleteTask(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: task_id"), nil
	}

	t, err := s.tasks.Complete(id, request.GetBool("success", true), request.GetString("result", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to complete task: %v", err)), nil
	}
	return jsonResult(t)
}

// taskmind_task_stats
func (s *Server) taskStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("taskmind_task_stats",
		mcp.WithDescription("Aggregate task counts by status, plus the total."),
	)
	return tool, s.handleTaskStats
}

func (s *Server) handleTaskStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	counts := s.tasks.CountsByStatus()
	out := map[string]any{
		"total":     s.tasks.Len(),
		"by_status": counts,
	}
	return jsonResult(out)
}

// taskmind_record_learning
func (s *Server) recordLearningTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("taskmind_record_learning",
		mcp.WithDescription("Record a lesson learned. Updates the running agent metrics. Returns the stored entry as JSON."),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("The pattern or lesson observed")),
		mcp.WithString("outcome", mcp.Required(), mcp.Description("Outcome: success, failure, partial")),
		mcp.WithString("task_id", mcp.Description("Originating task ID")),
		mcp.WithString("feedback", mcp.Description("Additional feedback")),
		mcp.WithString("improvement", mcp.Description("Suggested improvement")),
	)
	return tool, s.handleRecordLearning
}

func (s *Server) handleRecordLearning(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pattern, err := request.RequireString("pattern")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: pattern"), nil
	}
	outcome, err := request.RequireString("outcome")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: outcome"), nil
	}

	e := s.learnings.Record(models.LearningEntry{
		TaskID:      request.GetString("task_id", ""),
		Pattern:     pattern,
		Outcome:     models.LearningOutcome(outcome),
		Feedback:    request.GetString("feedback", ""),
		Improvement: request.GetString("improvement", ""),
	})
	return jsonResult(e)
}

// taskmind_similar_learnings
func (s *Server) similarLearningsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("taskmind_similar_learnings",
		mcp.WithDescription("Find past learnings whose pattern shares words with the query, ranked by match count. Returns a JSON array."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum entries to return (default 5)")),
	)
	return tool, s.handleSimilarLearnings
}

func (s *Server) handleSimilarLearnings(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	entries := s.learnings.Similar(query, request.GetInt("limit", 5))
	return jsonResult(entries)
}

// taskmind_learning_report
func (s *Server) learningReportTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("taskmind_learning_report",
		mcp.WithDescription("Human-readable summary of recorded learnings and agent metrics."),
	)
	return tool, s.handleLearningReport
}

func (s *Server) handleLearningReport(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.learnings.Report()), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
