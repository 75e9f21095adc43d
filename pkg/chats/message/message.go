// Package message defines a single transcript turn.
package message

import (
	"strings"

	"github.com/germanamz/babycode/pkg/chats/content"
	"github.com/germanamz/babycode/pkg/chats/role"
)

// Message is one turn of a conversation: a role and an ordered list of
// content blocks. Messages are treated as immutable once appended to a chat.
type Message struct {
	Role  role.Role
	Parts []content.Part
}

// New creates a Message with the given role and parts.
func New(r role.Role, parts ...content.Part) Message {
	return Message{Role: r, Parts: parts}
}

// NewText creates a Message holding a single text block.
func NewText(r role.Role, text string) Message {
	return New(r, content.Text{Text: text})
}

// TextContent concatenates all text blocks of the message.
func (m Message) TextContent() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(content.Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool-call blocks in declaration order.
func (m Message) ToolCalls() []content.ToolCall {
	var calls []content.ToolCall
	for _, p := range m.Parts {
		if tc, ok := p.(content.ToolCall); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// ToolResults returns the tool-result blocks in order.
func (m Message) ToolResults() []content.ToolResult {
	var results []content.ToolResult
	for _, p := range m.Parts {
		if tr, ok := p.(content.ToolResult); ok {
			results = append(results, tr)
		}
	}
	return results
}

// HasToolCalls reports whether the message requests at least one tool.
func (m Message) HasToolCalls() bool {
	for _, p := range m.Parts {
		if _, ok := p.(content.ToolCall); ok {
			return true
		}
	}
	return false
}
