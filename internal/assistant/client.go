// Package assistant wraps the vendor's conversation API: threads, messages,
// runs with tool-call interception, and vector-store search.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Sentinel errors for run outcomes. Callers branch on these with errors.Is.
var (
	// ErrRunFailed marks a run that reached a non-completed terminal state
	// (failed, cancelled, expired). The wrapping error carries the vendor's
	// message.
	ErrRunFailed = errors.New("run failed")

	// ErrRunTimeout marks a run that did not reach a terminal state within
	// the configured run timeout.
	ErrRunTimeout = errors.New("run timed out")
)

// Config holds the vendor connection settings. Values come from viper in
// cmd/root.go; the fallbacks live there too.
type Config struct {
	APIKey        string
	Organization  string
	Project       string
	AssistantID   string
	VectorStoreID string
	Model         string
	Temperature   float64
	MaxTokens     int64
	PollInterval  time.Duration
	RunTimeout    time.Duration

	// BaseURL overrides the vendor endpoint. Used by tests.
	BaseURL string
}

// ToolCall is a structured request from the assistant to execute a named
// local operation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// ToolHandler executes one tool call and returns its textual output. The
// output is submitted back to the vendor keyed by the call ID.
type ToolHandler func(ctx context.Context, call ToolCall) string

// ToolDefinition describes one tool exposed to the assistant, with
// JSON-schema parameters.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatMessage is one ordered message from a conversation thread.
type ChatMessage struct {
	ID        string
	Role      string
	Text      string
	CreatedAt time.Time
}

// RunResult summarizes a completed run.
type RunResult struct {
	ID         string
	Status     string
	TokensUsed int64
}

// Client talks to the vendor's thread/run/message endpoints. It attempts no
// retries of its own; a failed call surfaces immediately.
type Client struct {
	api   openai.Client
	cfg   Config
	tools []ToolDefinition
}

// NewClient validates the configuration and constructs the vendor client.
// A missing API key or assistant ID is fatal here rather than at first use.
func NewClient(cfg Config, tools []ToolDefinition) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required (set OPENAI_API_KEY)")
	}
	if cfg.AssistantID == "" {
		return nil, fmt.Errorf("assistant id is required (set assistant.id)")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Organization != "" {
		opts = append(opts, option.WithOrganization(cfg.Organization))
	}
	if cfg.Project != "" {
		opts = append(opts, option.WithProject(cfg.Project))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		api:   openai.NewClient(opts...),
		cfg:   cfg,
		tools: tools,
	}, nil
}

// CreateThread opens a new conversation thread and returns its ID.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.api.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

// AddMessage appends a user message to the thread.
func (c *Client) AddMessage(ctx context.Context, threadID, text string) error {
	_, err := c.api.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// StartRun begins a run of the configured assistant against the thread.
// extraInstructions, when non-empty, are appended to the assistant's base
// instructions for this run only.
func (c *Client) StartRun(ctx context.Context, threadID, extraInstructions string) (string, error) {
	params := openai.BetaThreadRunNewParams{
		AssistantID: c.cfg.AssistantID,
		Tools:       toolParams(c.tools),
	}
	if c.cfg.Model != "" {
		params.Model = shared.ChatModel(c.cfg.Model)
	}
	if c.cfg.Temperature > 0 {
		params.Temperature = openai.Float(c.cfg.Temperature)
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.cfg.MaxTokens)
	}
	if extraInstructions != "" {
		params.AdditionalInstructions = openai.String(extraInstructions)
	}

	run, err := c.api.Beta.Threads.Runs.New(ctx, threadID, params)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return run.ID, nil
}

// WaitForRun polls the run at the configured interval until it reaches a
// terminal state, the configured run timeout elapses, or ctx is cancelled.
// Each poll is a suspension point: cancellation is observed between polls,
// not only at timeout.
//
// When the run requires tool outputs, handler is invoked once per requested
// call and the string outputs are submitted keyed by call ID.
func (c *Client) WaitForRun(ctx context.Context, threadID, runID string, handler ToolHandler) (*RunResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.cfg.RunTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		run, err := c.api.Beta.Threads.Runs.Get(runCtx, threadID, runID)
		if err != nil {
			if werr := waitErr(ctx, runCtx, runID); werr != nil {
				return nil, werr
			}
			return nil, fmt.Errorf("poll run: %w", err)
		}

		switch run.Status {
		case openai.RunStatusCompleted:
			return &RunResult{
				ID:         run.ID,
				Status:     string(run.Status),
				TokensUsed: run.Usage.TotalTokens,
			}, nil

		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired:
			msg := run.LastError.Message
			if msg == "" {
				msg = "no error detail from vendor"
			}
			return nil, fmt.Errorf("%w: %s (status %s)", ErrRunFailed, msg, run.Status)

		case openai.RunStatusRequiresAction:
			if err := c.submitToolOutputs(runCtx, threadID, run, handler); err != nil {
				if werr := waitErr(ctx, runCtx, runID); werr != nil {
					return nil, werr
				}
				return nil, err
			}
			// Poll again immediately; outputs usually unblock the run.
			continue
		}

		select {
		case <-runCtx.Done():
			return nil, waitErr(ctx, runCtx, runID)
		case <-ticker.C:
		}
	}
}

// waitErr translates context termination into the caller-facing error:
// caller cancellation propagates as-is, an elapsed deadline becomes
// ErrRunTimeout. Returns nil if neither context is done.
func waitErr(parent, runCtx context.Context, runID string) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("run %s: %w", runID, ErrRunTimeout)
	}
	return nil
}

// submitToolOutputs dispatches each requested tool call to the handler and
// submits the outputs in one batch.
func (c *Client) submitToolOutputs(ctx context.Context, threadID string, run *openai.Run, handler ToolHandler) error {
	calls := run.RequiredAction.SubmitToolOutputs.ToolCalls
	if len(calls) == 0 {
		return fmt.Errorf("%w: run requires action but requested no tool calls", ErrRunFailed)
	}

	outputs := make([]openai.BetaThreadRunSubmitToolOutputsParamsToolOutput, 0, len(calls))
	for _, call := range calls {
		var result string
		if handler == nil {
			result = fmt.Sprintf("tool %q is not available in this runtime", call.Function.Name)
		} else {
			result = handler(ctx, ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
		outputs = append(outputs, openai.BetaThreadRunSubmitToolOutputsParamsToolOutput{
			ToolCallID: openai.String(call.ID),
			Output:     openai.String(result),
		})
	}

	_, err := c.api.Beta.Threads.Runs.SubmitToolOutputs(ctx, threadID, run.ID,
		openai.BetaThreadRunSubmitToolOutputsParams{ToolOutputs: outputs})
	if err != nil {
		return fmt.Errorf("submit tool outputs: %w", err)
	}
	return nil
}

// Messages fetches the thread's messages in chronological order.
func (c *Client) Messages(ctx context.Context, threadID string) ([]ChatMessage, error) {
	page, err := c.api.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderAsc,
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var out []ChatMessage
	for _, m := range page.Data {
		out = append(out, ChatMessage{
			ID:        m.ID,
			Role:      string(m.Role),
			Text:      messageText(m),
			CreatedAt: time.Unix(m.CreatedAt, 0).UTC(),
		})
	}
	return out, nil
}

// DeleteThread removes the thread on the vendor side.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := c.api.Beta.Threads.Delete(ctx, threadID); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}

// messageText concatenates the text blocks of a vendor message.
func messageText(m openai.Message) string {
	var text string
	for _, block := range m.Content {
		if block.Type == "text" {
			if text != "" {
				text += "\n"
			}
			text += block.Text.Value
		}
	}
	return text
}

// toolParams converts tool definitions to the vendor's function-tool params.
func toolParams(tools []ToolDefinition) []openai.AssistantToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.AssistantToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.AssistantToolUnionParam{
			OfFunction: &openai.FunctionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  shared.FunctionParameters(t.Parameters),
				},
			},
		})
	}
	return out
}
