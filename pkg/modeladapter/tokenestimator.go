package modeladapter

import (
	"github.com/germanamz/babycode/pkg/chats/content"
	"github.com/germanamz/babycode/pkg/chats/message"
	"github.com/germanamz/babycode/pkg/tools/toolbox"
)

const (
	// perMessageOverhead covers the role and delimiters around each turn.
	perMessageOverhead = 4
	// perToolOverhead covers the JSON wrapping of each tool declaration.
	perToolOverhead = 10
)

// TokenEstimator approximates token counts without a tokenizer, at roughly
// one token per four characters plus structural overhead. It is used where a
// provider reports no usage. The zero value is ready to use.
type TokenEstimator struct{}

// charsToTokens rounds up.
func charsToTokens(chars int) int {
	return (chars + 3) / 4
}

// EstimateMessages estimates the tokens of the turns themselves.
func (TokenEstimator) EstimateMessages(msgs []message.Message) int {
	tokens := 0
	for _, m := range msgs {
		tokens += perMessageOverhead
		for _, p := range m.Parts {
			switch v := p.(type) {
			case content.Text:
				tokens += charsToTokens(len(v.Text))
			case content.ToolCall:
				tokens += charsToTokens(len(v.ID) + len(v.Name) + len(v.Arguments))
			case content.ToolResult:
				tokens += charsToTokens(len(v.ToolCallID) + len(v.Content))
			}
		}
	}
	return tokens
}

// EstimateTools estimates the cost of declaring tools.
func (TokenEstimator) EstimateTools(tools []toolbox.Schema) int {
	tokens := 0
	for _, t := range tools {
		tokens += charsToTokens(len(t.Name)+len(t.Description)+len(t.InputSchema)) + perToolOverhead
	}
	return tokens
}

// EstimateRequest estimates the input tokens of a whole request: system
// prompt, tools and history.
func (e TokenEstimator) EstimateRequest(req Request) int {
	tokens := e.EstimateMessages(req.Messages) + e.EstimateTools(req.Tools)
	if req.System != "" {
		tokens += charsToTokens(len(req.System)) + perMessageOverhead
	}
	return tokens
}

// EstimateText estimates the tokens of generated text.
func (TokenEstimator) EstimateText(s string) int {
	return charsToTokens(len(s))
}
