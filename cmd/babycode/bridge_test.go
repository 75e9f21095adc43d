package main

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/germanamz/babycode/pkg/chats/chat"
	"github.com/germanamz/babycode/pkg/chats/message"
	"github.com/germanamz/babycode/pkg/chats/role"
	"github.com/germanamz/babycode/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowSender records messages, taking delay per Send the way a busy program
// would.
type slowSender struct {
	delay time.Duration

	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *slowSender) Send(msg tea.Msg) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *slowSender) snapshot() []tea.Msg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tea.Msg(nil), r.msgs...)
}

// gatedSender blocks every Send until open is closed.
type gatedSender struct {
	open chan struct{}
	slowSender
}

func (g *gatedSender) Send(msg tea.Msg) {
	<-g.open
	g.slowSender.Send(msg)
}

func TestEventMsg(t *testing.T) {
	tests := []struct {
		name string
		ev   engine.Event
		want tea.Msg
	}{
		{"delta", engine.Event{Kind: engine.EventTextDelta, Data: engine.TextDeltaData{Text: "h"}}, textDeltaMsg{text: "h"}},
		{"tool start", engine.Event{Kind: engine.EventToolCallStart, Data: engine.ToolCallData{Name: "read_file"}},
			toolStartMsg{call: engine.ToolCallData{Name: "read_file"}}},
		{"tool end", engine.Event{Kind: engine.EventToolCallEnd, Data: engine.ToolCallData{Name: "read_file", Result: "x"}},
			toolEndMsg{call: engine.ToolCallData{Name: "read_file", Result: "x"}}},
		{"file change", engine.Event{Kind: engine.EventFileChange, Data: engine.FileChangeData{Path: "a"}},
			fileChangeMsg{change: engine.FileChangeData{Path: "a"}}},
		{"inspect", engine.Event{Kind: engine.EventInspect, Data: engine.InspectData{ID: "i"}}, inspectMsg{data: engine.InspectData{ID: "i"}}},
		{"message comes from the chat", engine.Event{Kind: engine.EventMessageAdded, Data: engine.MessageData{Role: "assistant", Text: "hi"}}, nil},
		{"agent start", engine.Event{Kind: engine.EventAgentStart}, nil},
		{"state", engine.Event{Kind: engine.EventStateChange, Data: engine.StateChangeData{State: "done"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eventMsg(tt.ev))
		})
	}
}

func TestStartBridge_FiltersBySession(t *testing.T) {
	bus := engine.NewEventBus()
	rec := &slowSender{}

	b := startBridge(context.Background(), rec, bus, chat.New(), "session-1")

	// The bridge subscribes synchronously, so publishing right away is safe.
	bus.Publish(engine.Event{Kind: engine.EventTextDelta, SessionID: "session-2", Data: engine.TextDeltaData{Text: "other"}})
	bus.Publish(engine.Event{Kind: engine.EventTextDelta, SessionID: "session-1", Data: engine.TextDeltaData{Text: "mine"}})

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	b.stop()

	assert.Equal(t, []tea.Msg{textDeltaMsg{text: "mine"}}, rec.snapshot())
}

func TestStartBridge_DeliversTurnsFromChat(t *testing.T) {
	c := chat.New(message.NewText(role.User, "earlier"))
	rec := &slowSender{}

	b := startBridge(context.Background(), rec, engine.NewEventBus(), c, "session-1")
	defer b.stop()

	c.Append(message.NewText(role.User, "hi"), message.NewText(role.Assistant, "hello"))

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, time.Second, 10*time.Millisecond)

	// Turns already in the chat when the bridge starts are not replayed.
	assert.Equal(t, []tea.Msg{
		messageAddedMsg{msg: engine.MessageData{Role: "user", Text: "hi"}},
		messageAddedMsg{msg: engine.MessageData{Role: "assistant", Text: "hello"}},
	}, rec.snapshot())
}

func TestStartBridge_SlowProgramStillGetsReplyAndInspection(t *testing.T) {
	bus := engine.NewEventBus()
	c := chat.New()
	rec := &slowSender{delay: time.Millisecond}

	b := startBridge(context.Background(), rec, bus, c, "session-1")
	defer b.stop()

	// A long streamed reply arrives far faster than the program drains it.
	for range 400 {
		bus.Publish(engine.Event{Kind: engine.EventTextDelta, SessionID: "session-1", Data: engine.TextDeltaData{Text: "tok "}})
	}
	final := message.NewText(role.Assistant, "the final answer")
	c.Append(final)
	bus.Publish(engine.Event{Kind: engine.EventMessageAdded, SessionID: "session-1", Data: engine.NewMessageData(final)})
	bus.Publish(engine.Event{Kind: engine.EventInspect, SessionID: "session-1", Data: engine.InspectData{ID: "session-1/inspect-1"}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.flush(ctx))

	require.Eventually(t, func() bool {
		for _, msg := range rec.snapshot() {
			if _, ok := msg.(inspectMsg); ok {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	var replies []string
	for _, msg := range rec.snapshot() {
		if added, ok := msg.(messageAddedMsg); ok {
			replies = append(replies, added.msg.Text)
		}
	}
	assert.Equal(t, []string{"the final answer"}, replies)
}

func TestBridge_FlushWaitsForDelivery(t *testing.T) {
	c := chat.New()
	rec := &gatedSender{open: make(chan struct{})}

	b := startBridge(context.Background(), rec, engine.NewEventBus(), c, "session-1")
	defer b.stop()

	c.Append(message.NewText(role.Assistant, "reply"))

	flushed := make(chan error, 1)
	go func() { flushed <- b.flush(context.Background()) }()

	select {
	case <-flushed:
		t.Fatal("flush returned before the reply was sent")
	case <-time.After(50 * time.Millisecond):
	}

	close(rec.open)

	select {
	case err := <-flushed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("flush did not return")
	}
	assert.Equal(t, []tea.Msg{messageAddedMsg{msg: engine.MessageData{Role: "assistant", Text: "reply"}}}, rec.snapshot())
}

func TestBridge_FlushHonoursContext(t *testing.T) {
	c := chat.New()
	rec := &gatedSender{open: make(chan struct{})}

	b := startBridge(context.Background(), rec, engine.NewEventBus(), c, "session-1")
	defer func() {
		close(rec.open)
		b.stop()
	}()

	c.Append(message.NewText(role.Assistant, "reply"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.flush(ctx), context.DeadlineExceeded)
}

func TestBridge_FollowsReset(t *testing.T) {
	c := chat.New()
	rec := &slowSender{}

	b := startBridge(context.Background(), rec, engine.NewEventBus(), c, "session-1")
	defer b.stop()

	c.Append(message.NewText(role.User, "one"), message.NewText(role.Assistant, "two"))
	require.NoError(t, b.flush(context.Background()))

	c.Reset()
	require.NoError(t, b.flush(context.Background()))

	c.Append(message.NewText(role.User, "three"))
	require.NoError(t, b.flush(context.Background()))

	var texts []string
	for _, msg := range rec.snapshot() {
		texts = append(texts, msg.(messageAddedMsg).msg.Text)
	}
	assert.Equal(t, "one two three", strings.Join(texts, " "))
}

func TestStartBridge_StopsOnContextCancel(t *testing.T) {
	bus := engine.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())

	b := startBridge(ctx, &slowSender{}, bus, chat.New(), "session-1")
	cancel()

	done := make(chan struct{})
	go func() {
		b.stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop")
	}
}
