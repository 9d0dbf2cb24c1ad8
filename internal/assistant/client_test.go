package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vendorStub is a minimal fake of the vendor's thread/run endpoints.
type vendorStub struct {
	mu sync.Mutex

	// runStates is the sequence of run payloads returned by successive
	// GET .../runs/{id} calls; the last one repeats.
	runStates []string
	getCalls  int

	submittedOutputs []map[string]string
}

func (v *vendorStub) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"id":"t1","object":"thread","created_at":1}`)
	})
	mux.HandleFunc("DELETE /v1/threads/t1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"id":"t1","object":"thread.deleted","deleted":true}`)
	})
	mux.HandleFunc("POST /v1/threads/t1/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"id":"m1","object":"thread.message","created_at":1,"thread_id":"t1","role":"user","content":[]}`)
	})
	mux.HandleFunc("GET /v1/threads/t1/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"object":"list","data":[
			{"id":"m1","object":"thread.message","created_at":10,"thread_id":"t1","role":"user",
			 "content":[{"type":"text","text":{"value":"hello","annotations":[]}}]},
			{"id":"m2","object":"thread.message","created_at":20,"thread_id":"t1","role":"assistant",
			 "content":[{"type":"text","text":{"value":"hi there","annotations":[]}}]}
		],"has_more":false}`)
	})
	mux.HandleFunc("POST /v1/threads/t1/runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, runJSON("queued", ""))
	})
	mux.HandleFunc("GET /v1/threads/t1/runs/r1", func(w http.ResponseWriter, r *http.Request) {
		v.mu.Lock()
		defer v.mu.Unlock()
		i := v.getCalls
		if i >= len(v.runStates) {
			i = len(v.runStates) - 1
		}
		v.getCalls++
		writeJSON(w, v.runStates[i])
	})
	mux.HandleFunc("POST /v1/threads/t1/runs/r1/submit_tool_outputs", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ToolOutputs []struct {
				ToolCallID string `json:"tool_call_id"`
				Output     string `json:"output"`
			} `json:"tool_outputs"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		v.mu.Lock()
		for _, o := range body.ToolOutputs {
			v.submittedOutputs = append(v.submittedOutputs, map[string]string{
				"tool_call_id": o.ToolCallID,
				"output":       o.Output,
			})
		}
		v.mu.Unlock()

		writeJSON(w, runJSON("in_progress", ""))
	})

	return mux
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func runJSON(status, extra string) string {
	return fmt.Sprintf(`{"id":"r1","object":"thread.run","created_at":1,"thread_id":"t1","assistant_id":"a1","status":%q%s}`, status, extra)
}

func newTestClient(t *testing.T, stub *vendorStub, timeout time.Duration) *Client {
	t.Helper()

	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		APIKey:       "test-key",
		AssistantID:  "a1",
		PollInterval: 5 * time.Millisecond,
		RunTimeout:   timeout,
		BaseURL:      srv.URL + "/v1/",
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{AssistantID: "a1"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")

	_, err = NewClient(Config{APIKey: "k"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assistant id")
}

func TestThreadLifecycle(t *testing.T) {
	c := newTestClient(t, &vendorStub{}, time.Second)
	ctx := context.Background()

	threadID, err := c.CreateThread(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", threadID)

	require.NoError(t, c.AddMessage(ctx, "t1", "hello"))

	runID, err := c.StartRun(ctx, "t1", "")
	require.NoError(t, err)
	assert.Equal(t, "r1", runID)

	require.NoError(t, c.DeleteThread(ctx, "t1"))
}

func TestWaitForRun_PollsUntilCompleted(t *testing.T) {
	stub := &vendorStub{runStates: []string{
		runJSON("queued", ""),
		runJSON("in_progress", ""),
		runJSON("completed", `,"usage":{"prompt_tokens":20,"completion_tokens":22,"total_tokens":42}`),
	}}
	c := newTestClient(t, stub, time.Second)

	result, err := c.WaitForRun(context.Background(), "t1", "r1", nil)
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, int64(42), result.TokensUsed)
	assert.GreaterOrEqual(t, stub.getCalls, 3)
}

func TestWaitForRun_DispatchesToolCalls(t *testing.T) {
	requiresAction := runJSON("requires_action", `,"required_action":{"type":"submit_tool_outputs","submit_tool_outputs":{"tool_calls":[{"id":"call_1","type":"function","function":{"name":"create_task","arguments":"{\"title\":\"x\"}"}}]}}`)
	stub := &vendorStub{runStates: []string{
		requiresAction,
		runJSON("completed", ""),
	}}
	c := newTestClient(t, stub, time.Second)

	var got ToolCall
	handler := func(_ context.Context, call ToolCall) string {
		got = call
		return "created task 123"
	}

	_, err := c.WaitForRun(context.Background(), "t1", "r1", handler)
	require.NoError(t, err)

	assert.Equal(t, "call_1", got.ID)
	assert.Equal(t, "create_task", got.Name)
	assert.JSONEq(t, `{"title":"x"}`, got.Arguments)

	require.Len(t, stub.submittedOutputs, 1)
	assert.Equal(t, "call_1", stub.submittedOutputs[0]["tool_call_id"])
	assert.Equal(t, "created task 123", stub.submittedOutputs[0]["output"])
}

func TestWaitForRun_TerminalFailureCarriesVendorMessage(t *testing.T) {
	stub := &vendorStub{runStates: []string{
		runJSON("failed", `,"last_error":{"code":"server_error","message":"model overloaded"}`),
	}}
	c := newTestClient(t, stub, time.Second)

	_, err := c.WaitForRun(context.Background(), "t1", "r1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestWaitForRun_Timeout(t *testing.T) {
	stub := &vendorStub{runStates: []string{runJSON("in_progress", "")}}
	c := newTestClient(t, stub, 30*time.Millisecond)

	_, err := c.WaitForRun(context.Background(), "t1", "r1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunTimeout)
}

func TestWaitForRun_Cancellation(t *testing.T) {
	stub := &vendorStub{runStates: []string{runJSON("in_progress", "")}}
	c := newTestClient(t, stub, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()

	_, err := c.WaitForRun(ctx, "t1", "r1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMessages_OrderedWithText(t *testing.T) {
	c := newTestClient(t, &vendorStub{}, time.Second)

	msgs, err := c.Messages(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "hi there", msgs[1].Text)
	assert.True(t, msgs[0].CreatedAt.Before(msgs[1].CreatedAt))
}
