package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/taskmindhq/taskmind/internal/assistant"
	"github.com/taskmindhq/taskmind/internal/models"
	"github.com/taskmindhq/taskmind/internal/tasks"
)

// Tool names exposed to the assistant. Each maps to exactly one registry
// operation or a fixed "not available" stub.
const (
	toolCreateTask      = "create_task"
	toolUpdateTask      = "update_task"
	toolListTasks       = "list_tasks"
	toolSearchContext   = "search_context"
	toolRecordLearning  = "record_learning"
	toolSyncVectorStore = "sync_vector_store"
)

const notAvailable = "not available in this runtime"

// ToolDefinitions returns the fixed tool schema advertised to the assistant
// on every run.
func ToolDefinitions() []assistant.ToolDefinition {
	return []assistant.ToolDefinition{
		{
			Name:        toolCreateTask,
			Description: "Create a task in the local task registry. Status starts as pending.",
			Parameters: objectSchema(map[string]any{
				"title":       stringProp("Short task title"),
				"description": stringProp("What the task involves"),
				"priority":    enumProp("Task priority", "low", "medium", "high", "critical"),
				"category": enumProp("Kind of work", "development", "testing", "documentation",
					"refactoring", "research", "deployment", "bug_fix", "review", "optimization"),
				"parent_id": stringProp("ID of the parent task, for subtasks"),
				"dependency_ids": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "IDs of tasks this task depends on",
				},
			}, "title"),
		},
		{
			Name:        toolUpdateTask,
			Description: "Update fields of an existing task, or mark it complete/failed with a result.",
			Parameters: objectSchema(map[string]any{
				"task_id":     stringProp("ID of the task to update"),
				"title":       stringProp("New title"),
				"description": stringProp("New description"),
				"status":      enumProp("New status", "pending", "in_progress", "completed", "failed", "cancelled"),
				"priority":    enumProp("New priority", "low", "medium", "high", "critical"),
				"result":      stringProp("Result payload to attach"),
			}, "task_id"),
		},
		{
			Name:        toolListTasks,
			Description: "List tasks, optionally filtered by status, category, or priority. Sorted by priority then recency.",
			Parameters: objectSchema(map[string]any{
				"status":   enumProp("Filter by status", "pending", "in_progress", "completed", "failed", "cancelled"),
				"category": stringProp("Filter by category"),
				"priority": enumProp("Filter by priority", "low", "medium", "high", "critical"),
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of tasks to return",
				},
			}),
		},
		{
			Name:        toolSearchContext,
			Description: "Search the external context store for snippets relevant to a query.",
			Parameters: objectSchema(map[string]any{
				"query": stringProp("Search query"),
			}, "query"),
		},
		{
			Name:        toolRecordLearning,
			Description: "Record a lesson learned from the current task for use in future prompts.",
			Parameters: objectSchema(map[string]any{
				"task_id":     stringProp("ID of the originating task"),
				"pattern":     stringProp("The pattern or lesson observed"),
				"outcome":     enumProp("How it turned out", "success", "failure", "partial"),
				"feedback":    stringProp("Additional feedback"),
				"improvement": stringProp("Suggested improvement for next time"),
			}, "pattern", "outcome"),
		},
		{
			Name:        toolSyncVectorStore,
			Description: "Trigger a sync of local documents into the vector store.",
			Parameters:  objectSchema(map[string]any{}),
		},
	}
}

// dispatchTool routes a tool call from the assistant to the matching
// registry operation. It always returns text; errors become error strings
// the assistant can read.
func (o *Orchestrator) dispatchTool(ctx context.Context, call assistant.ToolCall) string {
	switch call.Name {
	case toolCreateTask:
		return o.toolCreateTask(call.Arguments)
	case toolUpdateTask:
		return o.toolUpdateTask(call.Arguments)
	case toolListTasks:
		return o.toolListTasks(call.Arguments)
	case toolSearchContext:
		return o.toolSearchContext(ctx, call.Arguments)
	case toolRecordLearning:
		return o.toolRecordLearning(call.Arguments)
	case toolSyncVectorStore:
		return fmt.Sprintf("vector store sync is %s", notAvailable)
	default:
		return fmt.Sprintf("unknown tool: %s", call.Name)
	}
}

func (o *Orchestrator) toolCreateTask(args string) string {
	var params struct {
		Title         string   `json:"title"`
		Description   string   `json:"description"`
		Priority      string   `json:"priority"`
		Category      string   `json:"category"`
		ParentID      string   `json:"parent_id"`
		DependencyIDs []string `json:"dependency_ids"`
	}
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return fmt.Sprintf("invalid create_task arguments: %v", err)
	}

	t, err := o.tasks.Create(params.Title, params.Description, tasks.CreateOptions{
		Priority:      models.TaskPriority(params.Priority),
		Category:      models.TaskCategory(params.Category),
		ParentID:      params.ParentID,
		DependencyIDs: params.DependencyIDs,
	})
	if err != nil {
		return fmt.Sprintf("create task: %v", err)
	}
	if o.session != nil {
		o.session.TaskIDs = append(o.session.TaskIDs, t.ID)
	}
	return marshalResult(t)
}

func (o *Orchestrator) toolUpdateTask(args string) string {
	var params struct {
		TaskID      string  `json:"task_id"`
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
		Priority    *string `json:"priority"`
		Result      *string `json:"result"`
	}
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return fmt.Sprintf("invalid update_task arguments: %v", err)
	}

	u := tasks.Updates{
		Title:       params.Title,
		Description: params.Description,
		Result:      params.Result,
	}
	if params.Status != nil {
		s := models.TaskStatus(*params.Status)
		u.Status = &s
	}
	if params.Priority != nil {
		p := models.TaskPriority(*params.Priority)
		u.Priority = &p
	}

	t, err := o.tasks.Update(params.TaskID, u)
	if err != nil {
		return fmt.Sprintf("update task: %v", err)
	}
	return marshalResult(t)
}

func (o *Orchestrator) toolListTasks(args string) string {
	var params struct {
		Status   string `json:"status"`
		Category string `json:"category"`
		Priority string `json:"priority"`
		Limit    int    `json:"limit"`
	}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &params); err != nil {
			return fmt.Sprintf("invalid list_tasks arguments: %v", err)
		}
	}

	list := o.tasks.List(tasks.ListFilter{
		Status:   models.TaskStatus(params.Status),
		Category: models.TaskCategory(params.Category),
		Priority: models.TaskPriority(params.Priority),
		Limit:    params.Limit,
	})
	if len(list) == 0 {
		return "no tasks match"
	}
	return marshalResult(list)
}

func (o *Orchestrator) toolSearchContext(ctx context.Context, args string) string {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return fmt.Sprintf("invalid search_context arguments: %v", err)
	}

	if _, ok := o.search.(NoContext); ok {
		return fmt.Sprintf("context search is %s", notAvailable)
	}
	snippets, err := o.search.Search(ctx, params.Query, contextSnippetLimit)
	if err != nil {
		return fmt.Sprintf("search context: %v", err)
	}
	if len(snippets) == 0 {
		return "no matching context found"
	}
	return strings.Join(snippets, "\n---\n")
}

func (o *Orchestrator) toolRecordLearning(args string) string {
	var params struct {
		TaskID      string `json:"task_id"`
		Pattern     string `json:"pattern"`
		Outcome     string `json:"outcome"`
		Feedback    string `json:"feedback"`
		Improvement string `json:"improvement"`
	}
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return fmt.Sprintf("invalid record_learning arguments: %v", err)
	}
	if params.Pattern == "" {
		return "record learning: pattern is required"
	}

	e := o.learnings.Record(models.LearningEntry{
		TaskID:      params.TaskID,
		Pattern:     params.Pattern,
		Outcome:     models.LearningOutcome(params.Outcome),
		Feedback:    params.Feedback,
		Improvement: params.Improvement,
	})
	return marshalResult(e)
}

func marshalResult(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("marshal result: %v", err)
	}
	return string(data)
}

// --- JSON schema helpers ---

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func enumProp(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}
