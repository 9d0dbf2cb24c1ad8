package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmindhq/taskmind/internal/learning"
	"github.com/taskmindhq/taskmind/internal/models"
	"github.com/taskmindhq/taskmind/internal/tasks"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (*Server, *tasks.Registry, *learning.Registry) {
	t.Helper()

	tr := tasks.NewRegistry()
	lr := learning.NewRegistry()
	srv := NewServer(tr, lr)
	require.NotNil(t, srv)

	return srv, tr, lr
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

// ---------------------------------------------------------------------------
// Tests: taskmind_create_task
// ---------------------------------------------------------------------------

func TestHandleCreateTask(t *testing.T) {
	srv, tr, _ := newTestServer(t)
	ctx := context.Background()

	req := callToolReq("taskmind_create_task", map[string]any{
		"title":       "Implement caching",
		"description": "Add a read-through cache",
		"priority":    "high",
		"category":    "development",
	})

	result, err := srv.handleCreateTask(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	var created models.Task
	resultJSON(t, result, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Implement caching", created.Title)
	assert.Equal(t, models.TaskPriorityHigh, created.Priority)
	assert.Equal(t, models.TaskStatusPending, created.Status)

	assert.Equal(t, 1, tr.Len())
}

func TestHandleCreateTask_MissingTitle(t *testing.T) {
	srv, tr, _ := newTestServer(t)

	result, err := srv.handleCreateTask(context.Background(), callToolReq("taskmind_create_task", nil))
	require.NoError(t, err, "handler should not return Go error; should wrap in result")
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "title")

	assert.Equal(t, 0, tr.Len())
}

func TestHandleCreateTask_UnknownParent(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := callToolReq("taskmind_create_task", map[string]any{
		"title":     "orphan",
		"parent_id": "does-not-exist",
	})

	result, err := srv.handleCreateTask(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
}

// ---------------------------------------------------------------------------
// Tests: taskmind_update_task
// ---------------------------------------------------------------------------

func TestHandleUpdateTask_ChangeStatus(t *testing.T) {
	srv, tr, _ := newTestServer(t)
	ctx := context.Background()

	task, err := tr.Create("fix bug", "", tasks.CreateOptions{})
	require.NoError(t, err)

	req := callToolReq("taskmind_update_task", map[string]any{
		"task_id": task.ID,
		"status":  "in_progress",
	})

	result, err := srv.handleUpdateTask(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	var updated models.Task
	resultJSON(t, result, &updated)
	assert.Equal(t, models.TaskStatusInProgress, updated.Status)
}

func TestHandleUpdateTask_MissingID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := callToolReq("taskmind_update_task", map[string]any{"status": "completed"})
	result, err := srv.handleUpdateTask(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError, "should error when task_id is missing")
}

func TestHandleUpdateTask_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := callToolReq("taskmind_update_task", map[string]any{
		"task_id": "nonexistent",
		"status":  "completed",
	})
	result, err := srv.handleUpdateTask(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
}

// ---------------------------------------------------------------------------
// Tests: taskmind_list_tasks
// ---------------------------------------------------------------------------

func TestHandleListTasks_FilterByStatus(t *testing.T) {
	srv, tr, _ := newTestServer(t)
	ctx := context.Background()

	open, err := tr.Create("open task", "", tasks.CreateOptions{})
	require.NoError(t, err)
	done, err := tr.Create("done task", "", tasks.CreateOptions{})
	require.NoError(t, err)
	_, err = tr.Complete(done.ID, true, "")
	require.NoError(t, err)

	req := callToolReq("taskmind_list_tasks", map[string]any{"status": "pending"})
	result, err := srv.handleListTasks(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	var list []models.Task
	resultJSON(t, result, &list)
	require.Len(t, list, 1)
	assert.Equal(t, open.ID, list[0].ID)
}

func TestHandleListTasks_Empty(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleListTasks(context.Background(), callToolReq("taskmind_list_tasks", nil))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
	assert.Equal(t, "null", resultText(t, result))
}

// ---------------------------------------------------------------------------
// Tests: taskmind_complete_task
// ---------------------------------------------------------------------------

func TestHandleCompleteTask(t *testing.T) {
	srv, tr, _ := newTestServer(t)
	ctx := context.Background()

	task, err := tr.Create("to finish", "", tasks.CreateOptions{})
	require.NoError(t, err)

	req := callToolReq("taskmind_complete_task", map[string]any{
		"task_id": task.ID,
		"success": true,
		"result":  "all good",
	})

	result, err := srv.handleCompleteTask(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	var completed models.Task
	resultJSON(t, result, &completed)
	assert.Equal(t, models.TaskStatusCompleted, completed.Status)
	assert.Equal(t, "all good", completed.Result)
	assert.NotNil(t, completed.CompletedAt)
}

func TestHandleCompleteTask_Failure(t *testing.T) {
	srv, tr, _ := newTestServer(t)

	task, err := tr.Create("doomed", "", tasks.CreateOptions{})
	require.NoError(t, err)

	req := callToolReq("taskmind_complete_task", map[string]any{
		"task_id": task.ID,
		"success": false,
	})

	result, err := srv.handleCompleteTask(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var failed models.Task
	resultJSON(t, result, &failed)
	assert.Equal(t, models.TaskStatusFailed, failed.Status)
}

// ---------------------------------------------------------------------------
// Tests: taskmind_task_stats
// ---------------------------------------------------------------------------

func TestHandleTaskStats(t *testing.T) {
	srv, tr, _ := newTestServer(t)
	ctx := context.Background()

	_, err := tr.Create("a", "", tasks.CreateOptions{})
	require.NoError(t, err)
	b, err := tr.Create("b", "", tasks.CreateOptions{})
	require.NoError(t, err)
	_, err = tr.Complete(b.ID, true, "")
	require.NoError(t, err)

	result, err := srv.handleTaskStats(ctx, callToolReq("taskmind_task_stats", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var stats struct {
		Total    int                      `json:"total"`
		ByStatus map[models.TaskStatus]int `json:"by_status"`
	}
	resultJSON(t, result, &stats)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[models.TaskStatusPending])
	assert.Equal(t, 1, stats.ByStatus[models.TaskStatusCompleted])
}

// ---------------------------------------------------------------------------
// Tests: taskmind_record_learning
// ---------------------------------------------------------------------------

func TestHandleRecordLearning(t *testing.T) {
	srv, _, lr := newTestServer(t)
	ctx := context.Background()

	req := callToolReq("taskmind_record_learning", map[string]any{
		"pattern":     "incremental rollouts reduce blast radius",
		"outcome":     "success",
		"improvement": "automate the canary step",
	})

	result, err := srv.handleRecordLearning(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var entry models.LearningEntry
	resultJSON(t, result, &entry)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, models.OutcomeSuccess, entry.Outcome)

	assert.Equal(t, 1, lr.Len())
	assert.Equal(t, 1, lr.Metrics().CompletedTasks)
}

func TestHandleRecordLearning_MissingFields(t *testing.T) {
	srv, _, lr := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleRecordLearning(ctx, callToolReq("taskmind_record_learning", map[string]any{
		"outcome": "success",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "pattern")

	result, err = srv.handleRecordLearning(ctx, callToolReq("taskmind_record_learning", map[string]any{
		"pattern": "something",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "outcome")

	assert.Equal(t, 0, lr.Len())
}

// ---------------------------------------------------------------------------
// Tests: taskmind_similar_learnings
// ---------------------------------------------------------------------------

func TestHandleSimilarLearnings(t *testing.T) {
	srv, _, lr := newTestServer(t)
	ctx := context.Background()

	lr.Record(models.LearningEntry{Pattern: "database retry with backoff works", Outcome: models.OutcomeSuccess})
	lr.Record(models.LearningEntry{Pattern: "frontend styling is unrelated", Outcome: models.OutcomeSuccess})

	req := callToolReq("taskmind_similar_learnings", map[string]any{"query": "database retry"})
	result, err := srv.handleSimilarLearnings(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var entries []models.LearningEntry
	resultJSON(t, result, &entries)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Pattern, "database retry")
}

func TestHandleSimilarLearnings_MissingQuery(t *testing.T) {
	srv, _, _ := newTestServer(t)

	result, err := srv.handleSimilarLearnings(context.Background(), callToolReq("taskmind_similar_learnings", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ---------------------------------------------------------------------------
// Tests: taskmind_learning_report
// ---------------------------------------------------------------------------

func TestHandleLearningReport(t *testing.T) {
	srv, _, lr := newTestServer(t)

	lr.Record(models.LearningEntry{Pattern: "p", Outcome: models.OutcomeSuccess})

	result, err := srv.handleLearningReport(context.Background(), callToolReq("taskmind_learning_report", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Learning Report")
}

// ---------------------------------------------------------------------------
// Tests: Integration -- verify all tools are registered via HandleMessage
// ---------------------------------------------------------------------------

func TestMCPIntegration_ListTools(t *testing.T) {
	srv, _, _ := newTestServer(t)

	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv)

	ctx := context.Background()
	reqJSON := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	respMsg := mcpSrv.HandleMessage(ctx, reqJSON)
	require.NotNil(t, respMsg)

	respBytes, err := json.Marshal(respMsg)
	require.NoError(t, err)

	var rpcResp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	err = json.Unmarshal(respBytes, &rpcResp)
	require.NoError(t, err)

	toolNames := make(map[string]bool)
	for _, tool := range rpcResp.Result.Tools {
		toolNames[tool.Name] = true
	}

	expectedTools := []string{
		"taskmind_create_task",
		"taskmind_update_task",
		"taskmind_list_tasks",
		"taskmind_complete_task",
		"taskmind_task_stats",
		"taskmind_record_learning",
		"taskmind_similar_learnings",
		"taskmind_learning_report",
	}
	for _, name := range expectedTools {
		assert.True(t, toolNames[name], "expected tool %q to be registered", name)
	}
}
