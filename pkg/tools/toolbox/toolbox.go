package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/germanamz/babycode/pkg/chats/content"
	"github.com/google/jsonschema-go/jsonschema"
)

// entry pairs a registered tool with its resolved argument schema. resolved
// is nil when the tool declares no schema or the schema cannot be resolved,
// in which case arguments are only checked to be a JSON object.
type entry struct {
	tool     Tool
	resolved *jsonschema.Resolved
}

// ToolBox is the tool registry of a session. It keeps tools in registration
// order, exposes their schemas to the model, and dispatches tool calls.
type ToolBox struct {
	mu    sync.RWMutex
	order []string
	tools map[string]entry
}

// New creates a new ToolBox ready for use.
func New() *ToolBox {
	return &ToolBox{
		tools: make(map[string]entry),
	}
}

// Register adds one or more tools. A tool with an already registered name
// replaces the previous one but keeps its position in the registration order.
func (tb *ToolBox) Register(tools ...Tool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	for _, t := range tools {
		if _, exists := tb.tools[t.Name]; !exists {
			tb.order = append(tb.order, t.Name)
		}
		tb.tools[t.Name] = entry{tool: t, resolved: resolveSchema(t.InputSchema)}
	}
}

// Get returns a tool by name and a boolean indicating whether it was found.
func (tb *ToolBox) Get(name string) (Tool, bool) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	e, ok := tb.tools[name]
	return e.tool, ok
}

// Merge registers all tools from another ToolBox into this one, in the other
// box's registration order.
func (tb *ToolBox) Merge(other *ToolBox) {
	tb.Register(other.Tools()...)
}

// Tools returns all registered tools in registration order.
func (tb *ToolBox) Tools() []Tool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	result := make([]Tool, 0, len(tb.order))
	for _, name := range tb.order {
		result = append(result, tb.tools[name].tool)
	}
	return result
}

// Names returns the registered tool names in registration order.
func (tb *ToolBox) Names() []string {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	names := make([]string, len(tb.order))
	copy(names, tb.order)
	return names
}

// Len returns the number of registered tools.
func (tb *ToolBox) Len() int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	return len(tb.order)
}

// Schemas returns the declarations of all tools in registration order.
func (tb *ToolBox) Schemas() []Schema {
	tools := tb.Tools()

	schemas := make([]Schema, len(tools))
	for i, t := range tools {
		schemas[i] = t.Schema()
	}
	return schemas
}

// Call executes a tool call and returns its result. Call never fails: an
// unknown tool, invalid arguments, a handler error, or a handler panic are
// all reported as descriptive text in the result so the model can adapt.
func (tb *ToolBox) Call(ctx context.Context, tc content.ToolCall) content.ToolResult {
	tb.mu.RLock()
	e, ok := tb.tools[tc.Name]
	tb.mu.RUnlock()

	if !ok {
		return content.ToolResult{
			ToolCallID: tc.ID,
			Content:    fmt.Sprintf("Error: Unknown tool: %s", tc.Name),
		}
	}

	out, err := e.run(ctx, tc.Arguments)
	if err != nil {
		return content.ToolResult{
			ToolCallID: tc.ID,
			Content:    fmt.Sprintf("Error executing %s: %v", tc.Name, err),
		}
	}

	return content.ToolResult{
		ToolCallID: tc.ID,
		Content:    out,
	}
}

// run validates the arguments and invokes the handler, converting a panic
// into an error.
func (e entry) run(ctx context.Context, arguments string) (out string, err error) {
	input, err := e.validate(arguments)
	if err != nil {
		return "", err
	}

	if e.tool.Handler == nil {
		return "", fmt.Errorf("no handler")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return e.tool.Handler(ctx, input)
}

// validate checks that arguments is a JSON object satisfying the tool's
// schema and returns it as raw JSON. Empty arguments mean "no arguments".
func (e entry) validate(arguments string) (json.RawMessage, error) {
	if arguments == "" {
		arguments = "{}"
	}

	var instance map[string]any
	if err := json.Unmarshal([]byte(arguments), &instance); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if instance == nil {
		return nil, fmt.Errorf("invalid arguments: expected a JSON object")
	}

	if e.resolved != nil {
		if err := e.resolved.Validate(instance); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	return json.RawMessage(arguments), nil
}

// resolveSchema compiles a tool's JSON Schema for argument validation.
func resolveSchema(raw json.RawMessage) *jsonschema.Resolved {
	if len(raw) == 0 {
		return nil
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}

	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil
	}
	return resolved
}
