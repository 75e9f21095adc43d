// Package agent runs the reason-act-observe loop. An Agent sends the
// conversation to a model, executes every tool call the model asks for,
// feeds the results back, and repeats until the model answers without
// requesting tools.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/germanamz/babycode/pkg/chats/chat"
	"github.com/germanamz/babycode/pkg/chats/content"
	"github.com/germanamz/babycode/pkg/chats/message"
	"github.com/germanamz/babycode/pkg/chats/role"
	"github.com/germanamz/babycode/pkg/modeladapter"
	"github.com/germanamz/babycode/pkg/tools/toolbox"
)

// ErrMaxIterations is returned when the loop exceeds MaxIterations model calls
// without the model producing a final answer.
var ErrMaxIterations = errors.New("agent: max iterations reached")

// Options configures an Agent.
type Options struct {
	SystemPrompt  string       // Sent with every model request.
	MaxIterations int          // Model calls per Run (0 = unlimited).
	ParallelTools bool         // Dispatch the tool calls of one reply concurrently.
	Observer      Observer     // Notified of loop progress; nil means none.
	Middleware    []Middleware // Applied around each Run.
	Logger        *slog.Logger // nil discards logs.

	// BeforeComplete is called with each request right before it is sent to the
	// model. An error aborts the run like a transport failure.
	BeforeComplete func(ctx context.Context, req modeladapter.Request) error
}

// Agent owns one conversation and drives it with a model and a tool registry.
// Run must not be called concurrently; History and Chat reads are safe at any
// time.
type Agent struct {
	completer modeladapter.Completer
	tools     *toolbox.ToolBox
	chat      *chat.Chat
	options   Options
	observer  Observer
	log       *slog.Logger
	state     atomic.Int32
}

// New creates an Agent. A nil tools box means the model is offered no tools.
func New(completer modeladapter.Completer, tools *toolbox.ToolBox, opts Options) *Agent {
	if tools == nil {
		tools = toolbox.New()
	}

	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Agent{
		completer: completer,
		tools:     tools,
		chat:      chat.New(),
		options:   opts,
		observer:  observer,
		log:       log,
	}
}

// Chat returns the agent's conversation.
func (a *Agent) Chat() *chat.Chat { return a.chat }

// Tools returns the agent's tool registry.
func (a *Agent) Tools() *toolbox.ToolBox { return a.tools }

// State returns the current loop state.
func (a *Agent) State() State { return State(a.state.Load()) }

// History returns a snapshot of the conversation.
func (a *Agent) History() []message.Message { return a.chat.Messages() }

// ClearHistory discards the conversation.
func (a *Agent) ClearHistory() { a.chat.Reset() }

// Run appends userMessage as a user turn and loops until the model replies
// without tool calls. It returns that final reply. On a model or transport
// failure the user turn and any completed rounds stay in the conversation and
// the error is returned.
func (a *Agent) Run(ctx context.Context, userMessage string) (message.Message, error) {
	a.append(ctx, message.NewText(role.User, userMessage))

	runner := Chain(a.options.Middleware...)(RunnerFunc(a.loop))

	defer a.setState(ctx, StateDone)

	return runner.Run(ctx)
}

func (a *Agent) loop(ctx context.Context) (message.Message, error) {
	for i := 0; a.options.MaxIterations == 0 || i < a.options.MaxIterations; i++ {
		a.setState(ctx, StateAwaitingModel)

		req := modeladapter.Request{
			System:   a.options.SystemPrompt,
			Tools:    a.tools.Schemas(),
			Messages: a.chat.Messages(),
		}

		if i > 0 {
			a.log.DebugContext(ctx, "running the model with tool outputs", "iteration", i+1, "turns", len(req.Messages))
		}

		if a.options.BeforeComplete != nil {
			if err := a.options.BeforeComplete(ctx, req); err != nil {
				return message.Message{}, fmt.Errorf("agent: before complete: %w", err)
			}
		}

		reply, err := modeladapter.Collect(ctx, a.completer, req, a.observeEvent(ctx))
		if err != nil {
			return message.Message{}, fmt.Errorf("agent: model call: %w", err)
		}

		a.append(ctx, reply)

		calls := reply.ToolCalls()
		if len(calls) == 0 {
			a.log.InfoContext(ctx, "react loop complete", "iterations", i+1)
			return reply, nil
		}

		a.setState(ctx, StateAwaitingToolResults)

		results := a.dispatch(ctx, calls)

		parts := make([]content.Part, len(results))
		for j, r := range results {
			parts[j] = r
		}
		a.append(ctx, message.New(role.Tool, parts...))
	}

	return message.Message{}, ErrMaxIterations
}

// dispatch executes calls and returns one result per call, in call order.
func (a *Agent) dispatch(ctx context.Context, calls []content.ToolCall) []content.ToolResult {
	results := make([]content.ToolResult, len(calls))

	if !a.options.ParallelTools || len(calls) == 1 {
		for i, tc := range calls {
			results[i] = a.callTool(ctx, tc)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Go(func() {
			results[i] = a.callTool(ctx, tc)
		})
	}
	wg.Wait()

	return results
}

func (a *Agent) callTool(ctx context.Context, tc content.ToolCall) content.ToolResult {
	a.observer.OnToolStart(ctx, tc)

	start := time.Now()
	result := a.tools.Call(ctx, tc)
	duration := time.Since(start)

	a.log.InfoContext(ctx, "executed tool",
		"tool", tc.Name,
		"id", tc.ID,
		"duration", duration,
	)
	a.observer.OnToolEnd(ctx, tc, result, duration)

	return result
}

func (a *Agent) append(ctx context.Context, m message.Message) {
	a.chat.Append(m)
	a.observer.OnMessage(ctx, m)
}

func (a *Agent) setState(ctx context.Context, s State) {
	if State(a.state.Swap(int32(s))) != s {
		a.observer.OnStateChange(ctx, s)
	}
}

func (a *Agent) observeEvent(ctx context.Context) func(modeladapter.Event) {
	return func(ev modeladapter.Event) {
		if d, ok := ev.(modeladapter.EventTextDelta); ok && d.Text != "" {
			a.observer.OnTextDelta(ctx, d.Text)
		}
	}
}
