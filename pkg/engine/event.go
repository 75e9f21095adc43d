package engine

import (
	"sync"
	"time"

	"github.com/germanamz/babycode/pkg/chats/message"
	"github.com/germanamz/babycode/pkg/tools/toolbox"
)

// EventKind identifies the type of engine event.
type EventKind string

const (
	EventMessageAdded  EventKind = "message_added"
	EventTextDelta     EventKind = "text_delta"
	EventToolCallStart EventKind = "tool_call_start"
	EventToolCallEnd   EventKind = "tool_call_end"
	EventStateChange   EventKind = "state_change"
	EventAgentStart    EventKind = "agent_start"
	EventAgentEnd      EventKind = "agent_end"
	EventFileChange    EventKind = "file_change"
	EventInspect       EventKind = "inspect"
	EventError         EventKind = "error"
)

// Event is an immutable notification of engine activity. Data holds one of the
// payload types below, or nil for agent_start and agent_end.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// MessageData is the payload of message_added and the turn format used by
// inspections.
type MessageData struct {
	Role        string           `json:"role"`
	Text        string           `json:"text,omitempty"`
	ToolCalls   []ToolCallData   `json:"tool_calls,omitempty"`
	ToolResults []ToolResultData `json:"tool_results,omitempty"`
}

// ToolCallData describes one tool call. Result and Duration are only set on
// tool_call_end.
type ToolCallData struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Arguments string        `json:"arguments"`
	Result    string        `json:"result,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// ToolResultData is one tool result inside a tool turn.
type ToolResultData struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

// TextDeltaData is the payload of text_delta.
type TextDeltaData struct {
	Text string `json:"text"`
}

// StateChangeData is the payload of state_change.
type StateChangeData struct {
	State string `json:"state"`
}

// FileChangeData is the payload of file_change.
type FileChangeData struct {
	Path string `json:"path"`
	Diff string `json:"diff"`
}

// InspectData is the payload of inspect: the full context about to be sent to
// the model and a rough count of its input tokens. The run stays paused until
// Session.Resume is called with ID.
type InspectData struct {
	ID              string           `json:"id"`
	System          string           `json:"system"`
	Tools           []toolbox.Schema `json:"tools"`
	Messages        []MessageData    `json:"messages"`
	EstimatedTokens int              `json:"estimated_tokens"`
}

// ErrorData is the payload of error.
type ErrorData struct {
	Message string `json:"message"`
}

// NewMessageData converts a turn into its event representation.
func NewMessageData(m message.Message) MessageData {
	d := MessageData{
		Role: m.Role.String(),
		Text: m.TextContent(),
	}

	for _, tc := range m.ToolCalls() {
		d.ToolCalls = append(d.ToolCalls, ToolCallData{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
	}
	for _, tr := range m.ToolResults() {
		d.ToolResults = append(d.ToolResults, ToolResultData{ToolCallID: tr.ToolCallID, Content: tr.Content})
	}

	return d
}

// Droppable reports whether a subscriber that has fallen behind may miss
// events of this kind. Only streamed text is droppable: the full reply always
// follows as message_added.
func (k EventKind) Droppable() bool {
	return k == EventTextDelta
}

// Subscription receives events from an EventBus in publish order.
//
// Each subscription owns a queue drained into C by its own goroutine, so
// Publish never blocks on a slow reader. Once limit events are queued,
// droppable events are discarded; every other kind is always delivered.
type Subscription struct {
	C  <-chan Event
	ch chan Event

	mu    sync.Mutex
	queue []Event
	limit int
	wake  chan struct{}
	done  chan struct{}
}

func (s *Subscription) push(e Event) {
	s.mu.Lock()
	if e.Kind.Droppable() && len(s.queue) >= s.limit {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.ch)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		e := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- e:
		case <-s.done:
			return
		}
	}
}

// EventBus fans out events to all active subscribers. It is safe for
// concurrent use.
type EventBus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewEventBus creates an EventBus ready for use.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe creates a new subscription that queues up to bufSize droppable
// events for a reader that falls behind. The caller should read from sub.C
// and eventually call Unsubscribe.
func (b *EventBus) Subscribe(bufSize int) *Subscription {
	ch := make(chan Event)
	sub := &Subscription{
		C:     ch,
		ch:    ch,
		limit: max(bufSize, 1),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go sub.pump()

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscription, discards anything still queued and
// closes its channel.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.done)
	}
}

// Publish queues an event for every subscriber and returns without waiting
// for any of them to read it.
func (b *EventBus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		sub.push(e)
	}
}
