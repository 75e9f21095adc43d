// Package content defines the typed blocks that make up a turn.
package content

// Part is a single block within a turn.
type Part interface {
	PartKind() string
}

// Text is a plain text block.
type Text struct {
	Text string
}

func (t Text) PartKind() string { return "text" }

// ToolCall is a model-emitted request to run a tool. Arguments holds the raw
// JSON object exactly as the model produced it; it is decoded only by the
// tool that receives it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

func (tc ToolCall) PartKind() string { return "tool_call" }

// ToolResult carries the output of a tool call back to the model. Failures
// are reported in Content as human-readable text; there is no separate error
// flag.
type ToolResult struct {
	ToolCallID string
	Content    string
}

func (tr ToolResult) PartKind() string { return "tool_result" }
