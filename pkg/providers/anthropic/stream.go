package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/germanamz/babycode/pkg/modeladapter"
	"github.com/germanamz/babycode/pkg/modeladapter/usage"
)

// streamEvent covers the payloads of every Messages API stream event.
type streamEvent struct {
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Message *struct {
		Usage apiUsage `json:"usage"`
	} `json:"message,omitempty"`
	ContentBlock *apiContent `json:"content_block,omitempty"`
	Delta        *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta,omitempty"`
	Usage *apiUsage `json:"usage,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

// completeStream posts the request with streaming enabled and translates the
// server-sent events into completion events.
func (a *Adapter) completeStream(ctx context.Context, body apiRequest, emit modeladapter.Sink) error {
	var (
		tc         usage.TokenCount
		stopReason string
	)

	err := a.PostStream(ctx, messagesPath, body, func(event, data string) error {
		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("decode %s event: %w", event, err)
		}
		if ev.Type == "" {
			ev.Type = event
		}

		switch ev.Type {
		case "message_start":
			if ev.Message != nil {
				tc.InputTokens = ev.Message.Usage.InputTokens
				tc.OutputTokens = ev.Message.Usage.OutputTokens
			}
		case "content_block_start":
			if ev.ContentBlock == nil {
				return nil
			}
			switch ev.ContentBlock.Type {
			case "text":
				if ev.ContentBlock.Text != "" {
					return emit(modeladapter.EventTextDelta{Index: ev.Index, Text: ev.ContentBlock.Text})
				}
			case "tool_use":
				return emit(modeladapter.EventToolCallBegin{
					Index:    ev.Index,
					ToolID:   ev.ContentBlock.ID,
					ToolName: ev.ContentBlock.Name,
				})
			}
		case "content_block_delta":
			if ev.Delta == nil {
				return nil
			}
			switch ev.Delta.Type {
			case "text_delta":
				return emit(modeladapter.EventTextDelta{Index: ev.Index, Text: ev.Delta.Text})
			case "input_json_delta":
				return emit(modeladapter.EventToolCallDelta{Index: ev.Index, Text: ev.Delta.PartialJSON})
			}
		case "content_block_stop":
			return emit(modeladapter.EventBlockEnd{Index: ev.Index})
		case "message_delta":
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				stopReason = ev.Delta.StopReason
			}
			if ev.Usage != nil && ev.Usage.OutputTokens > 0 {
				tc.OutputTokens = ev.Usage.OutputTokens
			}
		case "message_stop":
			a.Usage.Add(tc)
			if err := emit(modeladapter.EventUsage{Usage: tc}); err != nil {
				return err
			}
			return emit(modeladapter.EventDone{StopReason: stopReason})
		case "error":
			if ev.Error != nil {
				return ev.Error
			}
			return &APIError{Type: "error", Message: data}
		}

		return nil
	})

	return err
}
