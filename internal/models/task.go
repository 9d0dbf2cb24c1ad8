package models

import "time"

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskPriority represents the urgency of a task.
type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

// PriorityRank orders priorities for sorting: critical sorts first, low last.
// Unknown priorities sort after low.
func PriorityRank(p TaskPriority) int {
	switch p {
	case TaskPriorityCritical:
		return 0
	case TaskPriorityHigh:
		return 1
	case TaskPriorityMedium:
		return 2
	case TaskPriorityLow:
		return 3
	default:
		return 4
	}
}

// TaskCategory tags the kind of work a task tracks.
type TaskCategory string

const (
	TaskCategoryDevelopment   TaskCategory = "development"
	TaskCategoryTesting       TaskCategory = "testing"
	TaskCategoryDocumentation TaskCategory = "documentation"
	TaskCategoryRefactoring   TaskCategory = "refactoring"
	TaskCategoryResearch      TaskCategory = "research"
	TaskCategoryDeployment    TaskCategory = "deployment"
	TaskCategoryBugFix        TaskCategory = "bug_fix"
	TaskCategoryReview        TaskCategory = "review"
	TaskCategoryOptimization  TaskCategory = "optimization"
)

// Task represents a unit of work tracked for the agent.
//
// Subtasks are not embedded: a child task carries ParentID and is resolved
// by parent-reference lookup in the registry, so every task has exactly one
// authoritative record.
type Task struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Description   string       `json:"description,omitempty"`
	Status        TaskStatus   `json:"status"`
	Priority      TaskPriority `json:"priority"`
	Category      TaskCategory `json:"category"`
	ParentID      string       `json:"parent_id,omitempty"`
	DependencyIDs []string     `json:"dependency_ids,omitempty"`
	Result        string       `json:"result,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}
