package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/germanamz/babycode/pkg/chats/message"
)

// Runner executes the ReAct loop for one user turn and returns the final
// reply.
type Runner interface {
	Run(ctx context.Context) (message.Message, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context) (message.Message, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context) (message.Message, error) {
	return f(ctx)
}

// Middleware decorates a Runner.
type Middleware func(next Runner) Runner

// Chain composes middleware so that the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Runner) Runner {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Timeout bounds a whole run, every model call and tool call included. A
// non-positive d leaves the run unbounded.
func Timeout(d time.Duration) Middleware {
	return func(next Runner) Runner {
		if d <= 0 {
			return next
		}
		return RunnerFunc(func(ctx context.Context) (message.Message, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			msg, err := next.Run(ctx)
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("agent: run exceeded %s: %w", d, err)
			}
			return msg, err
		})
	}
}

// Recovery turns a panic inside the loop into an error so a broken provider
// or tool cannot take the shell down.
func Recovery() Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context) (msg message.Message, err error) {
			defer func() {
				if r := recover(); r != nil {
					msg, err = message.Message{}, fmt.Errorf("agent: react loop panicked: %v", r)
				}
			}()

			return next.Run(ctx)
		})
	}
}

// Logger records the start and outcome of each run under the given session
// name.
func Logger(log *slog.Logger, session string) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context) (message.Message, error) {
			log := log.With("session", session)
			log.DebugContext(ctx, "react loop started")

			start := time.Now()
			msg, err := next.Run(ctx)
			elapsed := time.Since(start)

			switch {
			case err == nil:
				log.InfoContext(ctx, "react loop finished", "elapsed", elapsed, "reply_chars", len(msg.TextContent()))
			case errors.Is(err, context.Canceled):
				log.WarnContext(ctx, "react loop cancelled", "elapsed", elapsed)
			default:
				log.ErrorContext(ctx, "react loop failed", "elapsed", elapsed, "error", err)
			}

			return msg, err
		})
	}
}
