// Package openai provides a Completer implementation for the OpenAI Chat
// Completions API, built on the official openai-go SDK.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/germanamz/babycode/pkg/chats/content"
	"github.com/germanamz/babycode/pkg/chats/message"
	"github.com/germanamz/babycode/pkg/chats/role"
	"github.com/germanamz/babycode/pkg/modeladapter"
	"github.com/germanamz/babycode/pkg/modeladapter/usage"
	"github.com/germanamz/babycode/pkg/tools/toolbox"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter implements modeladapter.Completer for the OpenAI Chat Completions API.
// Model settings and usage tracking come from the embedded ModelAdapter; the
// HTTP transport is the SDK client.
type Adapter struct {
	modeladapter.ModelAdapter
	// Stream selects streaming completions.
	Stream bool

	client oai.Client
}

// New creates an Adapter. An empty baseURL uses the SDK default
// ("https://api.openai.com/v1/"). A nil httpClient uses the SDK default client.
// SDK-level retries are disabled; wrap the adapter in a
// modeladapter.RetryCompleter instead.
func New(baseURL, apiKey, model string, httpClient *http.Client) *Adapter {
	a := &Adapter{}

	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithMiddleware(func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
			resp, err := next(req)
			if resp != nil {
				a.RecordRateLimit(resp.Header)
			}
			return resp, err
		}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	a.client = oai.NewClient(opts...)
	a.BaseURL = baseURL
	a.RateLimitHeaders = modeladapter.ParseOpenAIRateLimitHeaders
	a.Auth = modeladapter.Auth{Key: apiKey}
	a.Name = model
	a.MaxTokens = 4096

	return a
}

// Complete sends the request to the Chat Completions API and emits the reply.
func (a *Adapter) Complete(ctx context.Context, req modeladapter.Request, emit modeladapter.Sink) error {
	params, err := a.buildParams(req)
	if err != nil {
		return fmt.Errorf("openai: %w", err)
	}

	if a.Stream {
		if err := a.completeStream(ctx, params, emit); err != nil {
			return fmt.Errorf("openai: %w", mapError(err))
		}
		return nil
	}

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return fmt.Errorf("openai: %w", mapError(err))
	}

	if len(completion.Choices) == 0 {
		return fmt.Errorf("openai: empty choices in response")
	}

	tc := usage.TokenCount{
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}
	a.Usage.Add(tc)

	choice := completion.Choices[0]

	return modeladapter.EmitMessage(parseMessage(choice.Message), choice.FinishReason, tc, emit)
}

// completeStream reads a streaming completion. Text goes to block 0 and the
// tool call at SDK index i to block i+1.
func (a *Adapter) completeStream(ctx context.Context, params oai.ChatCompletionNewParams, emit modeladapter.Sink) error {
	params.StreamOptions = oai.ChatCompletionStreamOptionsParam{IncludeUsage: oai.Bool(true)}

	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var (
		tc           usage.TokenCount
		finishReason string
		begun        = map[int64]bool{}
	)

	for stream.Next() {
		chunk := stream.Current()

		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			tc = usage.TokenCount{
				InputTokens:  int(chunk.Usage.PromptTokens),
				OutputTokens: int(chunk.Usage.CompletionTokens),
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			if err := emit(modeladapter.EventTextDelta{Index: 0, Text: choice.Delta.Content}); err != nil {
				return err
			}
		}

		for _, call := range choice.Delta.ToolCalls {
			index := int(call.Index) + 1
			if !begun[call.Index] {
				begun[call.Index] = true
				if err := emit(modeladapter.EventToolCallBegin{Index: index, ToolID: call.ID, ToolName: call.Function.Name}); err != nil {
					return err
				}
			}
			if call.Function.Arguments != "" {
				if err := emit(modeladapter.EventToolCallDelta{Index: index, Text: call.Function.Arguments}); err != nil {
					return err
				}
			}
		}

		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
	}

	if err := stream.Err(); err != nil {
		return err
	}

	// A stream without a finish reason was cut short; leaving EventDone out
	// lets the accumulator report it as incomplete.
	if finishReason == "" {
		return nil
	}

	a.Usage.Add(tc)
	if err := emit(modeladapter.EventUsage{Usage: tc}); err != nil {
		return err
	}

	return emit(modeladapter.EventDone{StopReason: finishReason})
}

// mapError converts SDK 429 responses into *modeladapter.RateLimitError so
// they can be retried.
func mapError(err error) error {
	var apiErr *oai.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		return err
	}

	rle := &modeladapter.RateLimitError{Body: apiErr.Message}
	if apiErr.Response != nil {
		rle.RetryAfter = modeladapter.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
	}

	return rle
}

// --- conversion helpers ---

func (a *Adapter) buildParams(req modeladapter.Request) (oai.ChatCompletionNewParams, error) {
	params := oai.ChatCompletionNewParams{
		Model: oai.ChatModel(a.Name),
	}

	if a.MaxTokens > 0 {
		params.MaxCompletionTokens = oai.Int(int64(a.MaxTokens))
	}
	if a.Temperature != 0 {
		params.Temperature = oai.Float(a.Temperature)
	}

	if req.System != "" {
		params.Messages = append(params.Messages, oai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, toParams(m)...)
	}

	for _, s := range req.Tools {
		tool, err := toolParam(s)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		params.Tools = append(params.Tools, tool)
	}

	return params, nil
}

func toolParam(s toolbox.Schema) (oai.ChatCompletionToolParam, error) {
	var parameters oai.FunctionParameters
	if err := json.Unmarshal(s.InputSchema, &parameters); err != nil {
		return oai.ChatCompletionToolParam{}, fmt.Errorf("tool %s: invalid input schema: %w", s.Name, err)
	}

	return oai.ChatCompletionToolParam{
		Function: oai.FunctionDefinitionParam{
			Name:        s.Name,
			Description: oai.String(s.Description),
			Parameters:  parameters,
		},
	}, nil
}

// toParams converts a turn into API messages. A tool turn becomes one tool
// message per result.
func toParams(m message.Message) []oai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case role.Assistant:
		assistant := oai.ChatCompletionAssistantMessageParam{}
		// The API rejects an assistant message with neither content nor tool
		// calls, so an empty reply is sent as empty text.
		if text := m.TextContent(); text != "" || !m.HasToolCalls() {
			assistant.Content.OfString = oai.String(text)
		}
		for _, tc := range m.ToolCalls() {
			args := tc.Arguments
			if args == "" {
				args = "{}"
			}
			assistant.ToolCalls = append(assistant.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		return []oai.ChatCompletionMessageParamUnion{{OfAssistant: &assistant}}
	case role.Tool:
		results := m.ToolResults()
		out := make([]oai.ChatCompletionMessageParamUnion, 0, len(results))
		for _, tr := range results {
			out = append(out, oai.ToolMessage(tr.Content, tr.ToolCallID))
		}
		return out
	default:
		return []oai.ChatCompletionMessageParamUnion{oai.UserMessage(m.TextContent())}
	}
}

func parseMessage(msg oai.ChatCompletionMessage) message.Message {
	var parts []content.Part

	if msg.Content != "" {
		parts = append(parts, content.Text{Text: msg.Content})
	}

	for _, tc := range msg.ToolCalls {
		parts = append(parts, content.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return message.New(role.Assistant, parts...)
}
