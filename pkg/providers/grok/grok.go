// Package grok implements modeladapter.Completer for xAI's Grok models over
// their OpenAI-compatible chat completions endpoint. Replies are not
// streamed.
package grok

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/germanamz/babycode/pkg/chats/content"
	"github.com/germanamz/babycode/pkg/chats/message"
	"github.com/germanamz/babycode/pkg/chats/role"
	"github.com/germanamz/babycode/pkg/modeladapter"
	"github.com/germanamz/babycode/pkg/modeladapter/usage"
	"github.com/germanamz/babycode/pkg/tools/toolbox"
)

// DefaultBaseURL is the base URL for the xAI API.
const DefaultBaseURL = "https://api.x.ai/v1"

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter sends chat completions to the xAI API.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter. An empty baseURL uses DefaultBaseURL; a nil client
// falls back to the ModelAdapter default.
func New(baseURL, apiKey, model string, client *http.Client) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	a := &Adapter{
		ModelAdapter: modeladapter.New(baseURL, modeladapter.Auth{Key: apiKey}, client),
	}
	a.Name = model
	a.MaxTokens = 4096
	a.RateLimitHeaders = modeladapter.ParseOpenAIRateLimitHeaders

	return a
}

// Complete sends the request to /chat/completions and emits the reply.
func (a *Adapter) Complete(ctx context.Context, req modeladapter.Request, emit modeladapter.Sink) error {
	body := chatRequest{
		Model:       a.Name,
		Messages:    convertMessages(req),
		Temperature: a.Temperature,
		MaxTokens:   a.MaxTokens,
		Tools:       convertTools(req.Tools),
	}

	var resp chatResponse
	if err := a.PostJSON(ctx, "/chat/completions", body, &resp); err != nil {
		return fmt.Errorf("grok: %w", err)
	}

	if len(resp.Choices) == 0 {
		return fmt.Errorf("grok: empty choices in response")
	}

	tc := usage.TokenCount{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	a.Usage.Add(tc)

	choice := resp.Choices[0]
	return modeladapter.EmitMessage(convertResponse(choice.Message), choice.FinishReason, tc, emit)
}

// --- API types ---

type chatRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Tools       []apiTool    `json:"tools,omitempty"`
}

type apiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type apiToolCall struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Function apiFunction `json:"function"`
}

type apiFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type apiTool struct {
	Type     string     `json:"type"`
	Function apiToolDef `json:"function"`
}

type apiToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      apiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// --- conversion helpers ---

func convertTools(tools []toolbox.Schema) []apiTool {
	out := make([]apiTool, 0, len(tools))
	for _, t := range tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		out = append(out, apiTool{
			Type:     "function",
			Function: apiToolDef{Name: t.Name, Description: t.Description, Parameters: schema},
		})
	}
	return out
}

// convertMessages puts the system prompt first and expands each tool turn
// into one tool message per result.
func convertMessages(req modeladapter.Request) []apiMessage {
	msgs := make([]apiMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, apiMessage{Role: "system", Content: req.System})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case role.Assistant:
			am := apiMessage{Role: "assistant", Content: m.TextContent()}
			for _, tc := range m.ToolCalls() {
				args := tc.Arguments
				if args == "" {
					args = "{}"
				}
				am.ToolCalls = append(am.ToolCalls, apiToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: apiFunction{Name: tc.Name, Arguments: args},
				})
			}
			msgs = append(msgs, am)
		case role.Tool:
			for _, tr := range m.ToolResults() {
				msgs = append(msgs, apiMessage{Role: "tool", Content: tr.Content, ToolCallID: tr.ToolCallID})
			}
		default:
			msgs = append(msgs, apiMessage{Role: "user", Content: m.TextContent()})
		}
	}

	return msgs
}

func convertResponse(am apiMessage) message.Message {
	var parts []content.Part

	if am.Content != "" {
		parts = append(parts, content.Text{Text: am.Content})
	}

	for _, tc := range am.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		parts = append(parts, content.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return message.New(role.Assistant, parts...)
}
