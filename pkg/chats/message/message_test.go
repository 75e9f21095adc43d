package message

import (
	"testing"

	"github.com/germanamz/babycode/pkg/chats/content"
	"github.com/germanamz/babycode/pkg/chats/role"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	msg := New(role.User, content.Text{Text: "hello"}, content.Text{Text: "again"})

	assert.Equal(t, role.User, msg.Role)
	assert.Len(t, msg.Parts, 2)
}

func TestNewText(t *testing.T) {
	msg := NewText(role.Assistant, "hi there")

	assert.Equal(t, role.Assistant, msg.Role)
	assert.Len(t, msg.Parts, 1)
	assert.Equal(t, "hi there", msg.Parts[0].(content.Text).Text)
}

func TestMessage_TextContent(t *testing.T) {
	msg := New(role.Assistant,
		content.Text{Text: "hello "},
		content.ToolCall{ID: "1", Name: "list_files"},
		content.Text{Text: "world"},
	)

	assert.Equal(t, "hello world", msg.TextContent())
}

func TestMessage_TextContent_NoParts(t *testing.T) {
	assert.Empty(t, New(role.User).TextContent())
}

func TestMessage_ToolCalls(t *testing.T) {
	tc1 := content.ToolCall{ID: "1", Name: "read_file", Arguments: `{"path":"go.mod"}`}
	tc2 := content.ToolCall{ID: "2", Name: "list_files", Arguments: `{}`}
	msg := New(role.Assistant, content.Text{Text: "let me look"}, tc1, tc2)

	calls := msg.ToolCalls()
	assert.Equal(t, []content.ToolCall{tc1, tc2}, calls)
	assert.True(t, msg.HasToolCalls())
}

func TestMessage_ToolCalls_None(t *testing.T) {
	msg := NewText(role.Assistant, "done")

	assert.Empty(t, msg.ToolCalls())
	assert.False(t, msg.HasToolCalls())
}

func TestMessage_ToolResults(t *testing.T) {
	r1 := content.ToolResult{ToolCallID: "1", Content: "a"}
	r2 := content.ToolResult{ToolCallID: "2", Content: "b"}
	msg := New(role.Tool, r1, r2)

	assert.Equal(t, []content.ToolResult{r1, r2}, msg.ToolResults())
}
