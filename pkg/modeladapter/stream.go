package modeladapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/germanamz/babycode/pkg/chats/content"
	"github.com/germanamz/babycode/pkg/chats/message"
	"github.com/germanamz/babycode/pkg/chats/role"
	"github.com/germanamz/babycode/pkg/modeladapter/usage"
)

var (
	// ErrIncompleteStream is returned when a completion ends without EventDone.
	ErrIncompleteStream = errors.New("modeladapter: stream ended before completion")
	// ErrMalformedToolCall is returned when tool call arguments are not a JSON
	// object or refer to an undeclared block.
	ErrMalformedToolCall = errors.New("modeladapter: malformed tool call")
)

// Event is one element of a completion stream.
type Event interface {
	isEvent()
}

// EventTextDelta carries a fragment of the text block at Index.
type EventTextDelta struct {
	Index int
	Text  string
}

// EventToolCallBegin opens a tool call block at Index.
type EventToolCallBegin struct {
	Index    int
	ToolID   string
	ToolName string
}

// EventToolCallDelta carries a fragment of the JSON arguments of the tool
// call block at Index.
type EventToolCallDelta struct {
	Index int
	Text  string
}

// EventBlockEnd closes the block at Index.
type EventBlockEnd struct {
	Index int
}

// EventUsage reports token usage for the completion. It may arrive more than
// once; later values replace earlier ones field by field when non-zero.
type EventUsage struct {
	Usage usage.TokenCount
}

// EventDone ends the stream.
type EventDone struct {
	StopReason string
}

func (EventTextDelta) isEvent()     {}
func (EventToolCallBegin) isEvent() {}
func (EventToolCallDelta) isEvent() {}
func (EventBlockEnd) isEvent()      {}
func (EventUsage) isEvent()         {}
func (EventDone) isEvent()          {}

type blockKind int

const (
	blockText blockKind = iota
	blockToolCall
)

type block struct {
	kind blockKind
	id   string
	name string
	buf  strings.Builder
}

// Accumulator consumes completion events and builds the assistant message.
// Blocks keep the order in which they were first seen. The zero value is ready
// to use.
type Accumulator struct {
	blocks     []*block
	byIndex    map[int]*block
	done       bool
	stopReason string
	usage      usage.TokenCount
}

// Add consumes one event. Events after EventDone are ignored.
func (a *Accumulator) Add(ev Event) error {
	if a.done {
		return nil
	}
	if a.byIndex == nil {
		a.byIndex = make(map[int]*block)
	}

	switch e := ev.(type) {
	case EventTextDelta:
		b, ok := a.byIndex[e.Index]
		if !ok {
			b = a.open(e.Index, blockText)
		}
		if b.kind != blockText {
			return fmt.Errorf("%w: text delta for tool call block %d", ErrMalformedToolCall, e.Index)
		}
		b.buf.WriteString(e.Text)
	case EventToolCallBegin:
		b := a.open(e.Index, blockToolCall)
		b.id = e.ToolID
		b.name = e.ToolName
	case EventToolCallDelta:
		b, ok := a.byIndex[e.Index]
		if !ok || b.kind != blockToolCall {
			return fmt.Errorf("%w: arguments for unknown block %d", ErrMalformedToolCall, e.Index)
		}
		b.buf.WriteString(e.Text)
	case EventBlockEnd:
	case EventUsage:
		if e.Usage.InputTokens > 0 {
			a.usage.InputTokens = e.Usage.InputTokens
		}
		if e.Usage.OutputTokens > 0 {
			a.usage.OutputTokens = e.Usage.OutputTokens
		}
	case EventDone:
		a.done = true
		a.stopReason = e.StopReason
	}

	return nil
}

func (a *Accumulator) open(index int, kind blockKind) *block {
	b := &block{kind: kind}
	a.byIndex[index] = b
	a.blocks = append(a.blocks, b)

	return b
}

// Done reports whether EventDone was received.
func (a *Accumulator) Done() bool { return a.done }

// StopReason returns the reason carried by EventDone.
func (a *Accumulator) StopReason() string { return a.stopReason }

// Usage returns the token usage reported by the stream.
func (a *Accumulator) Usage() usage.TokenCount { return a.usage }

// Message materializes the assistant message. Tool calls only exist once the
// stream is complete, so it fails with ErrIncompleteStream before EventDone.
// Empty tool arguments are read as an empty object.
func (a *Accumulator) Message() (message.Message, error) {
	if !a.done {
		return message.Message{}, ErrIncompleteStream
	}

	parts := make([]content.Part, 0, len(a.blocks))
	for _, b := range a.blocks {
		switch b.kind {
		case blockText:
			if b.buf.Len() > 0 {
				parts = append(parts, content.Text{Text: b.buf.String()})
			}
		case blockToolCall:
			args := strings.TrimSpace(b.buf.String())
			if args == "" {
				args = "{}"
			}
			if !isJSONObject(args) {
				return message.Message{}, fmt.Errorf("%w: %s arguments are not a JSON object: %q", ErrMalformedToolCall, b.name, args)
			}
			parts = append(parts, content.ToolCall{ID: b.id, Name: b.name, Arguments: args})
		}
	}

	return message.New(role.Assistant, parts...), nil
}

func isJSONObject(s string) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &obj) == nil && obj != nil
}

// Collect runs one completion and returns the assistant message. Every event
// is fed to an Accumulator and, in the same order, to each observer. Observers
// see text fragments as they arrive; tool calls are only read from the final
// message.
func Collect(ctx context.Context, c Completer, req Request, observers ...func(Event)) (message.Message, error) {
	var acc Accumulator

	err := c.Complete(ctx, req, func(ev Event) error {
		if err := acc.Add(ev); err != nil {
			return err
		}
		for _, obs := range observers {
			obs(ev)
		}
		return nil
	})
	if err != nil {
		return message.Message{}, err
	}

	return acc.Message()
}

// EmitMessage replays a complete assistant message as an event sequence. It is
// used by non-streaming completers and test fakes.
func EmitMessage(msg message.Message, stopReason string, u usage.TokenCount, emit Sink) error {
	for i, p := range msg.Parts {
		var events []Event
		switch v := p.(type) {
		case content.Text:
			events = []Event{EventTextDelta{Index: i, Text: v.Text}, EventBlockEnd{Index: i}}
		case content.ToolCall:
			events = []Event{
				EventToolCallBegin{Index: i, ToolID: v.ID, ToolName: v.Name},
				EventToolCallDelta{Index: i, Text: v.Arguments},
				EventBlockEnd{Index: i},
			}
		default:
			continue
		}

		for _, ev := range events {
			if err := emit(ev); err != nil {
				return err
			}
		}
	}

	if u.Total() > 0 {
		if err := emit(EventUsage{Usage: u}); err != nil {
			return err
		}
	}

	return emit(EventDone{StopReason: stopReason})
}
