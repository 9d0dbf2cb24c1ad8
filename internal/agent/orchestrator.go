// Package agent composes the remote conversation client with the local task
// and learning registries. One orchestrator owns one session and one remote
// thread; calls on it are serialized.
package agent

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/taskmindhq/taskmind/internal/assistant"
	"github.com/taskmindhq/taskmind/internal/learning"
	"github.com/taskmindhq/taskmind/internal/models"
	"github.com/taskmindhq/taskmind/internal/tasks"
)

// Conversation is the remote client surface the orchestrator needs. The
// assistant.Client satisfies it; tests substitute a fake.
type Conversation interface {
	CreateThread(ctx context.Context) (string, error)
	AddMessage(ctx context.Context, threadID, text string) error
	StartRun(ctx context.Context, threadID, extraInstructions string) (string, error)
	WaitForRun(ctx context.Context, threadID, runID string, handler assistant.ToolHandler) (*assistant.RunResult, error)
	Messages(ctx context.Context, threadID string) ([]assistant.ChatMessage, error)
	DeleteThread(ctx context.Context, threadID string) error
}

// ContextSearcher is the external code/document search collaborator.
// assistant.VectorStoreSearcher implements it when a vector store is
// configured; NoContext is the default.
type ContextSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// NoContext is a ContextSearcher that finds nothing. Used when no vector
// store is configured.
type NoContext struct{}

// Search always returns no results.
func (NoContext) Search(context.Context, string, int) ([]string, error) { return nil, nil }

const (
	contextSnippetLimit = 3
	similarLessonLimit  = 3
)

// Orchestrator routes user messages through the remote assistant,
// dispatching requested tool calls to the local registries.
type Orchestrator struct {
	conv      Conversation
	search    ContextSearcher
	tasks     *tasks.Registry
	learnings *learning.Registry

	mu      sync.Mutex
	session *models.AgentSession
}

// New creates an orchestrator. search may be nil, in which case NoContext
// is used.
func New(conv Conversation, search ContextSearcher, tr *tasks.Registry, lr *learning.Registry) *Orchestrator {
	if search == nil {
		search = NoContext{}
	}
	return &Orchestrator{
		conv:      conv,
		search:    search,
		tasks:     tr,
		learnings: lr,
	}
}

// Session returns the orchestrator's session, creating it and its remote
// thread on first use.
func (o *Orchestrator) Session(ctx context.Context) (*models.AgentSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionLocked(ctx)
}

// CurrentSession returns the session if one exists, or nil. Unlike Session
// it never creates a remote thread.
func (o *Orchestrator) CurrentSession() *models.AgentSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

func (o *Orchestrator) sessionLocked(ctx context.Context) (*models.AgentSession, error) {
	if o.session != nil {
		return o.session, nil
	}

	threadID, err := o.conv.CreateThread(ctx)
	if err != nil {
		return nil, fmt.Errorf("create session thread: %w", err)
	}

	now := time.Now().UTC()
	entropy := rand.New(rand.NewSource(now.UnixNano()))
	o.session = &models.AgentSession{
		ID:           ulid.MustNew(ulid.Timestamp(now), entropy).String(),
		ThreadID:     threadID,
		Status:       models.SessionStatusActive,
		StartedAt:    now,
		LastActiveAt: now,
	}
	return o.session, nil
}

// ProcessMessage sends a user message through the assistant and returns the
// final assistant text. Failures never surface as errors: they are recorded
// as failure-outcome learnings and returned as a formatted error string.
func (o *Orchestrator) ProcessMessage(ctx context.Context, text string) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	started := time.Now()

	sess, err := o.sessionLocked(ctx)
	if err != nil {
		return o.failLocked("create session", text, err)
	}
	sess.Status = models.SessionStatusProcessing

	if err := o.conv.AddMessage(ctx, sess.ThreadID, text); err != nil {
		return o.failLocked("send message", text, err)
	}
	sess.MessageCount++

	runID, err := o.conv.StartRun(ctx, sess.ThreadID, o.extraInstructions(ctx, text))
	if err != nil {
		return o.failLocked("start run", text, err)
	}

	result, err := o.conv.WaitForRun(ctx, sess.ThreadID, runID, o.dispatchTool)
	if err != nil {
		return o.failLocked("complete run", text, err)
	}
	if result.TokensUsed > 0 {
		o.learnings.AddTokens(result.TokensUsed)
	}

	reply, err := o.lastAssistantMessage(ctx, sess.ThreadID)
	if err != nil {
		return o.failLocked("fetch reply", text, err)
	}
	sess.MessageCount++
	sess.Status = models.SessionStatusActive
	sess.LastActiveAt = time.Now().UTC()

	o.learnings.RecordCompletion(time.Since(started))
	return reply
}

// Close deletes the remote thread and marks the session idle. Safe to call
// without an active session.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return nil
	}
	if err := o.conv.DeleteThread(ctx, o.session.ThreadID); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	o.session.Status = models.SessionStatusIdle
	o.session = nil
	return nil
}

// extraInstructions assembles the per-run additional instructions from a
// best-effort context search and textually-similar past learnings. Search
// failures are ignored; they only cost context.
func (o *Orchestrator) extraInstructions(ctx context.Context, text string) string {
	snippets, err := o.search.Search(ctx, text, contextSnippetLimit)
	if err != nil {
		snippets = nil
	}
	lessons := o.learnings.Similar(text, similarLessonLimit)
	return buildExtraInstructions(snippets, lessons)
}

// lastAssistantMessage returns the text of the newest assistant message in
// the thread.
func (o *Orchestrator) lastAssistantMessage(ctx context.Context, threadID string) (string, error) {
	msgs, err := o.conv.Messages(ctx, threadID)
	if err != nil {
		return "", err
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" && msgs[i].Text != "" {
			return msgs[i].Text, nil
		}
	}
	return "", fmt.Errorf("no assistant reply in thread %s", threadID)
}

// failLocked records the failure as a learning entry, flags the session,
// and formats the user-visible error string.
func (o *Orchestrator) failLocked(op, userText string, err error) string {
	if o.session != nil {
		o.session.Status = models.SessionStatusError
	}
	o.learnings.Record(models.LearningEntry{
		Pattern:  fmt.Sprintf("%s failed while handling %q", op, truncate(userText, 120)),
		Outcome:  models.OutcomeFailure,
		Feedback: err.Error(),
	})
	return fmt.Sprintf("Sorry, I could not %s: %v", op, err)
}

// truncate shortens s to at most n bytes without splitting a UTF-8 rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
