package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/germanamz/babycode/pkg/agent"
	"github.com/germanamz/babycode/pkg/chats/chat"
	"github.com/germanamz/babycode/pkg/chats/content"
	"github.com/germanamz/babycode/pkg/chats/message"
	"github.com/germanamz/babycode/pkg/modeladapter"
)

var (
	// ErrSessionBusy is returned when a session is asked to do something while
	// a Send is in progress.
	ErrSessionBusy = errors.New("engine: session is busy")
	// ErrUnknownInspection is returned by Resume for an ID that is not paused.
	ErrUnknownInspection = errors.New("engine: unknown inspection")
)

// Session represents one interactive conversation. It owns an agent and its
// transcript. Only one Send call may be active at a time.
type Session struct {
	id     string
	agent  *agent.Agent
	events *EventBus

	mu          sync.Mutex
	active      bool
	pending     map[string]chan struct{}
	nextInspect int
}

// newSession creates a session with the given ID and event bus. The agent is
// attached by the engine afterwards because its options refer back to the
// session.
func newSession(id string, events *EventBus) *Session {
	return &Session{
		id:      id,
		events:  events,
		pending: make(map[string]chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Chat returns the underlying transcript.
func (s *Session) Chat() *chat.Chat { return s.agent.Chat() }

// History returns a snapshot of the transcript.
func (s *Session) History() []message.Message { return s.agent.History() }

// State returns the agent's loop state.
func (s *Session) State() agent.State { return s.agent.State() }

// Send appends text as a user turn and runs the agent's ReAct loop until the
// model answers without tool calls. It returns that reply. A second Send while
// one is active fails with ErrSessionBusy.
func (s *Session) Send(ctx context.Context, text string) (message.Message, error) {
	if err := s.acquire(); err != nil {
		return message.Message{}, err
	}
	defer s.release()

	ctx = withSessionID(ctx, s.id)

	s.publish(EventAgentStart, nil)

	reply, err := s.agent.Run(ctx, text)
	if err != nil {
		s.publish(EventError, ErrorData{Message: err.Error()})
	}

	s.publish(EventAgentEnd, nil)

	return reply, err
}

// Clear discards the transcript.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return ErrSessionBusy
	}
	s.agent.ClearHistory()

	return nil
}

// Resume releases a run paused by an inspect event.
func (s *Session) Resume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.pending[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInspection, id)
	}
	delete(s.pending, id)
	close(ch)

	return nil
}

// inspect publishes the request about to be sent and blocks until Resume is
// called with the published ID or ctx is done.
func (s *Session) inspect(ctx context.Context, req modeladapter.Request) error {
	s.mu.Lock()
	s.nextInspect++
	id := fmt.Sprintf("%s/inspect-%d", s.id, s.nextInspect)
	ch := make(chan struct{})
	s.pending[id] = ch
	s.mu.Unlock()

	msgs := make([]MessageData, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = NewMessageData(m)
	}

	s.publish(EventInspect, InspectData{
		ID:              id,
		System:          req.System,
		Tools:           req.Tools,
		Messages:        msgs,
		EstimatedTokens: modeladapter.TokenEstimator{}.EstimateRequest(req),
	})

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *Session) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return fmt.Errorf("%w: %s", ErrSessionBusy, s.id)
	}
	s.active = true
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
}

func (s *Session) publish(kind EventKind, data any) {
	s.events.Publish(Event{
		Kind:      kind,
		SessionID: s.id,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// observer forwards agent notifications to the event bus.
type observer struct {
	s *Session
}

func (o observer) OnStateChange(_ context.Context, st agent.State) {
	o.s.publish(EventStateChange, StateChangeData{State: st.String()})
}

func (o observer) OnTextDelta(_ context.Context, text string) {
	o.s.publish(EventTextDelta, TextDeltaData{Text: text})
}

func (o observer) OnMessage(_ context.Context, m message.Message) {
	o.s.publish(EventMessageAdded, NewMessageData(m))
}

func (o observer) OnToolStart(_ context.Context, tc content.ToolCall) {
	o.s.publish(EventToolCallStart, ToolCallData{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
}

func (o observer) OnToolEnd(_ context.Context, tc content.ToolCall, result content.ToolResult, d time.Duration) {
	o.s.publish(EventToolCallEnd, ToolCallData{
		ID:        tc.ID,
		Name:      tc.Name,
		Arguments: tc.Arguments,
		Result:    result.Content,
		Duration:  d,
	})
}

type sessionIDKey struct{}

func withSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

func sessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey{}).(string)
	return id, ok
}
