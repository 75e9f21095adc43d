package agent

import (
	"context"
	"time"

	"github.com/germanamz/babycode/pkg/chats/content"
	"github.com/germanamz/babycode/pkg/chats/message"
)

// Observer is notified of loop progress. With Options.ParallelTools the tool
// callbacks may be invoked from several goroutines at once.
type Observer interface {
	OnStateChange(ctx context.Context, s State)
	OnTextDelta(ctx context.Context, text string)
	OnMessage(ctx context.Context, m message.Message)
	OnToolStart(ctx context.Context, tc content.ToolCall)
	OnToolEnd(ctx context.Context, tc content.ToolCall, result content.ToolResult, d time.Duration)
}

// NopObserver ignores every notification. Embed it to implement only some
// callbacks.
type NopObserver struct{}

func (NopObserver) OnStateChange(context.Context, State)                                           {}
func (NopObserver) OnTextDelta(context.Context, string)                                            {}
func (NopObserver) OnMessage(context.Context, message.Message)                                     {}
func (NopObserver) OnToolStart(context.Context, content.ToolCall)                                  {}
func (NopObserver) OnToolEnd(context.Context, content.ToolCall, content.ToolResult, time.Duration) {}
