package openai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/germanamz/babycode/pkg/chats/content"
	"github.com/germanamz/babycode/pkg/chats/message"
	"github.com/germanamz/babycode/pkg/chats/role"
	"github.com/germanamz/babycode/pkg/modeladapter"
	"github.com/germanamz/babycode/pkg/modeladapter/usage"
	"github.com/germanamz/babycode/pkg/providers/openai"
	"github.com/germanamz/babycode/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *openai.Adapter) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := openai.New(srv.URL+"/v1", "test-key", "gpt-4o-mini", srv.Client())

	return srv, a
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func writeChunks(t *testing.T, w http.ResponseWriter, chunks ...string) {
	t.Helper()

	w.Header().Set("Content-Type", "text/event-stream")
	for _, c := range chunks {
		_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
}

func readBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("failed to unmarshal body: %v", err)
	}

	return req
}

func userRequest(text string) modeladapter.Request {
	return modeladapter.Request{
		System:   "You are helpful.",
		Messages: []message.Message{message.NewText(role.User, text)},
	}
}

func TestComplete_SimpleText(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		req := readBody(t, r)

		assert.Equal(t, "gpt-4o-mini", req["model"])
		assert.InDelta(t, 4096, req["max_completion_tokens"], 0)

		msgs, ok := req["messages"].([]any)
		require.True(t, ok)
		require.Len(t, msgs, 2)

		first, _ := msgs[0].(map[string]any)
		assert.Equal(t, "system", first["role"])
		assert.Equal(t, "You are helpful.", first["content"])

		writeJSON(t, w, map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": "Hello there!"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{
				"prompt_tokens":     10,
				"completion_tokens": 5,
				"total_tokens":      15,
			},
		})
	})

	msg, err := modeladapter.Collect(context.Background(), adapter, userRequest("Hi"))
	require.NoError(t, err)

	assert.Equal(t, role.Assistant, msg.Role)
	assert.Equal(t, "Hello there!", msg.TextContent())

	last, ok := adapter.Usage.Last()
	require.True(t, ok)
	assert.Equal(t, usage.TokenCount{InputTokens: 10, OutputTokens: 5}, last)
}

func TestComplete_ToolCallRoundTrip(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)

		tools, ok := req["tools"].([]any)
		require.True(t, ok)
		require.Len(t, tools, 1)
		fn := tools[0].(map[string]any)["function"].(map[string]any)
		assert.Equal(t, "read_file", fn["name"])
		assert.Equal(t, "Read a file", fn["description"])
		assert.Equal(t, "object", fn["parameters"].(map[string]any)["type"])

		msgs := req["messages"].([]any)
		require.Len(t, msgs, 4)

		assistant := msgs[2].(map[string]any)
		assert.Equal(t, "assistant", assistant["role"])
		calls := assistant["tool_calls"].([]any)
		require.Len(t, calls, 1)
		call := calls[0].(map[string]any)
		assert.Equal(t, "call_1", call["id"])
		assert.Equal(t, "function", call["type"])

		tool := msgs[3].(map[string]any)
		assert.Equal(t, "tool", tool["role"])
		assert.Equal(t, "call_1", tool["tool_call_id"])
		assert.Equal(t, "file body", tool["content"])

		writeJSON(t, w, map[string]any{
			"id":      "chatcmpl-2",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": nil,
					"tool_calls": []map[string]any{{
						"id":       "call_2",
						"type":     "function",
						"function": map[string]any{"name": "list_files", "arguments": `{"path":"."}`},
					}},
				},
				"finish_reason": "tool_calls",
			}},
		})
	})

	req := modeladapter.Request{
		System: "sys",
		Tools: []toolbox.Schema{{
			Name:        "read_file",
			Description: "Read a file",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}}}`),
		}},
		Messages: []message.Message{
			message.NewText(role.User, "read a.txt"),
			message.New(role.Assistant, content.ToolCall{ID: "call_1", Name: "read_file", Arguments: `{"path":"a.txt"}`}),
			message.New(role.Tool, content.ToolResult{ToolCallID: "call_1", Content: "file body"}),
		},
	}

	msg, err := modeladapter.Collect(context.Background(), adapter, req)
	require.NoError(t, err)

	assert.Equal(t, []content.ToolCall{{ID: "call_2", Name: "list_files", Arguments: `{"path":"."}`}}, msg.ToolCalls())
}

func TestComplete_EmptyAssistantTurnKeepsContent(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		msgs := readBody(t, r)["messages"].([]any)
		require.Len(t, msgs, 4)

		assistant := msgs[2].(map[string]any)
		assert.Equal(t, "assistant", assistant["role"])
		require.Contains(t, assistant, "content")
		assert.Empty(t, assistant["content"])
		assert.NotContains(t, assistant, "tool_calls")

		writeJSON(t, w, map[string]any{
			"id":      "chatcmpl-3",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "ok"},
				"finish_reason": "stop",
			}},
		})
	})

	req := modeladapter.Request{
		System: "sys",
		Messages: []message.Message{
			message.NewText(role.User, "hi"),
			message.New(role.Assistant),
			message.NewText(role.User, "still there?"),
		},
	}

	msg, err := modeladapter.Collect(context.Background(), adapter, req)
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.TextContent())
}

func TestComplete_EmptyChoices(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"id": "x", "object": "chat.completion", "choices": []any{}})
	})

	_, err := modeladapter.Collect(context.Background(), adapter, userRequest("Hi"))
	assert.ErrorContains(t, err, "empty choices")
}

func TestComplete_HTTPError(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"internal error","type":"server_error"}}`))
	})

	_, err := modeladapter.Collect(context.Background(), adapter, userRequest("Hi"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai:")
	assert.Contains(t, err.Error(), "500")
}

func TestComplete_RateLimitMapped(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_error"}}`))
	})

	_, err := modeladapter.Collect(context.Background(), adapter, userRequest("Hi"))

	var rle *modeladapter.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "slow down", rle.Body)
}

func TestCompleteStream_TextAndToolCalls(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)
		assert.Equal(t, true, req["stream"])

		const head = `"id":"c","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini"`
		writeChunks(t, w,
			`{`+head+`,"choices":[{"index":0,"delta":{"role":"assistant","content":"Writ"}}]}`,
			`{`+head+`,"choices":[{"index":0,"delta":{"content":"ing."}}]}`,
			`{`+head+`,"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"write_file","arguments":""}}]}}]}`,
			`{`+head+`,"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"path\":\"out.txt\","}}]}}]}`,
			`{`+head+`,"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"content\":\"hi\"}"}}]}}]}`,
			`{`+head+`,"choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"list_files","arguments":"{}"}}]}}]}`,
			`{`+head+`,"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
			`{`+head+`,"choices":[],"usage":{"prompt_tokens":7,"completion_tokens":9,"total_tokens":16}}`,
		)
	})
	adapter.Stream = true

	var fragments []string
	msg, err := modeladapter.Collect(context.Background(), adapter, userRequest("write"), func(ev modeladapter.Event) {
		if d, ok := ev.(modeladapter.EventTextDelta); ok {
			fragments = append(fragments, d.Text)
		}
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Writ", "ing."}, fragments)
	assert.Equal(t, "Writing.", msg.TextContent())
	assert.Equal(t, []content.ToolCall{
		{ID: "call_a", Name: "write_file", Arguments: `{"path":"out.txt","content":"hi"}`},
		{ID: "call_b", Name: "list_files", Arguments: `{}`},
	}, msg.ToolCalls())

	last, ok := adapter.Usage.Last()
	require.True(t, ok)
	assert.Equal(t, usage.TokenCount{InputTokens: 7, OutputTokens: 9}, last)
}

func TestCompleteStream_NoFinishReasonIsIncomplete(t *testing.T) {
	_, adapter := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeChunks(t, w,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"cut"}}]}`,
		)
	})
	adapter.Stream = true

	_, err := modeladapter.Collect(context.Background(), adapter, userRequest("Hi"))

	assert.ErrorIs(t, err, modeladapter.ErrIncompleteStream)
}
