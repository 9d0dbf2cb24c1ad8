package models

import "time"

// LearningOutcome classifies how a recorded pattern turned out.
type LearningOutcome string

const (
	OutcomeSuccess LearningOutcome = "success"
	OutcomeFailure LearningOutcome = "failure"
	OutcomePartial LearningOutcome = "partial"
)

// LearningEntry is a self-reported lesson from a past task, used to bias
// future prompts.
type LearningEntry struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	TaskID      string          `json:"task_id,omitempty"`
	Pattern     string          `json:"pattern"`
	Outcome     LearningOutcome `json:"outcome"`
	Feedback    string          `json:"feedback,omitempty"`
	Improvement string          `json:"improvement,omitempty"`
}

// AgentMetrics holds running counters recomputed incrementally on each
// recorded learning.
type AgentMetrics struct {
	TotalTasks           int       `json:"total_tasks"`
	CompletedTasks       int       `json:"completed_tasks"`
	FailedTasks          int       `json:"failed_tasks"`
	AvgCompletionSeconds float64   `json:"avg_completion_seconds"`
	SuccessRate          float64   `json:"success_rate"`
	TokensUsed           int64     `json:"tokens_used"`
	LastActive           time.Time `json:"last_active"`
}
