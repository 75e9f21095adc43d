package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/germanamz/babycode/pkg/agent"
	"github.com/germanamz/babycode/pkg/codingtoolbox/filesystem"
	"github.com/germanamz/babycode/pkg/modeladapter"
	"github.com/germanamz/babycode/pkg/modeladapter/usage"
	"github.com/germanamz/babycode/pkg/tools/mcpclient"
	"github.com/germanamz/babycode/pkg/tools/toolbox"
)

// Engine is the composition root that assembles all components from
// configuration and exposes them through a frontend-agnostic API.
type Engine struct {
	cfg        Config
	events     *EventBus
	log        *slog.Logger
	completer  modeladapter.Completer
	tools      *toolbox.ToolBox
	mcpClients []*mcpclient.Client
	timeout    time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	nextID   int
}

// New creates an Engine from the given configuration. It validates the config,
// creates the provider adapter, registers the file tools and connects MCP
// clients.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	timeout, err := cfg.RunTimeout()
	if err != nil {
		return nil, err
	}

	completer, err := buildCompleter(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("engine: provider %q: %w", cfg.Provider.Kind, err)
	}

	e := &Engine{
		cfg:       cfg,
		events:    NewEventBus(),
		log:       log,
		completer: completer,
		tools:     toolbox.New(),
		timeout:   timeout,
		sessions:  make(map[string]*Session),
	}

	fs := filesystem.New(cfg.Filesystem.Root, e.notifyFileChange)
	e.tools.Merge(fs.Tools())

	for _, mc := range cfg.MCPServers {
		client, err := mcpclient.New(ctx, mc.Command, mc.Args...)
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("engine: mcp %q: %w", mc.Name, err)
		}
		e.mcpClients = append(e.mcpClients, client)

		tools, err := client.ListTools(ctx)
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("engine: mcp %q: list tools: %w", mc.Name, err)
		}

		for _, t := range tools {
			if _, dup := e.tools.Get(t.Name); dup {
				log.WarnContext(ctx, "mcp tool replaces existing tool", "server", mc.Name, "tool", t.Name)
			}
		}
		e.tools.Register(tools...)

		log.InfoContext(ctx, "connected mcp server", "server", mc.Name, "tools", len(tools))
	}

	return e, nil
}

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus { return e.events }

// Tools returns the tool registry shared by all sessions.
func (e *Engine) Tools() *toolbox.ToolBox { return e.tools }

// Config returns the configuration the engine was built from.
func (e *Engine) Config() Config { return e.cfg }

// Usage returns the total token usage reported by the provider so far. The
// second value is false when the provider does not report usage.
func (e *Engine) Usage() (usage.TokenCount, bool) {
	ur, ok := e.completer.(modeladapter.UsageReporter)
	if !ok {
		return usage.TokenCount{}, false
	}
	return ur.UsageTracker().Total(), true
}

// NewSession creates a new interactive session with an empty transcript.
func (e *Engine) NewSession() *Session {
	e.mu.Lock()
	e.nextID++
	id := fmt.Sprintf("session-%d", e.nextID)
	e.mu.Unlock()

	s := newSession(id, e.events)

	middleware := []agent.Middleware{agent.Recovery(), agent.Logger(e.log, id)}
	if e.timeout > 0 {
		middleware = append(middleware, agent.Timeout(e.timeout))
	}

	opts := agent.Options{
		SystemPrompt:  e.cfg.SystemPrompt,
		MaxIterations: e.cfg.MaxIterations,
		ParallelTools: e.cfg.ParallelTools,
		Observer:      observer{s: s},
		Middleware:    middleware,
		Logger:        e.log.With("session", id),
	}
	if e.cfg.DemoMode {
		opts.BeforeComplete = s.inspect
	}

	s.agent = agent.New(e.completer, e.tools, opts)

	e.mu.Lock()
	e.sessions[id] = s
	e.mu.Unlock()

	return s
}

// Session returns an existing session by ID.
func (e *Engine) Session(id string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	return s, ok
}

// Close shuts down MCP clients and releases resources.
func (e *Engine) Close() error {
	var firstErr error
	for _, c := range e.mcpClients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// notifyFileChange publishes the diff of a file written by a tool.
func (e *Engine) notifyFileChange(ctx context.Context, path, diff string) {
	sid, _ := sessionIDFromContext(ctx)
	e.events.Publish(Event{
		Kind:      EventFileChange,
		SessionID: sid,
		Timestamp: time.Now(),
		Data:      FileChangeData{Path: path, Diff: diff},
	})
}
