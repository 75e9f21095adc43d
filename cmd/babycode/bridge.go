package main

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/germanamz/babycode/pkg/chats/chat"
	"github.com/germanamz/babycode/pkg/engine"
)

// sender is the part of *tea.Program the bridge uses.
type sender interface {
	Send(msg tea.Msg)
}

// bridge forwards session activity to the program. Finished turns come from
// the chat itself, so the shell never misses one; the event bus only supplies
// the live parts (streamed text, tool progress, inspections).
type bridge struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	chat   *chat.Chat

	mu        sync.Mutex
	delivered int
	synced    chan struct{}
}

// startBridge starts the chat and event watchers. Both goroutines only call
// p.Send; they never touch model state.
func startBridge(ctx context.Context, p sender, events *engine.EventBus, c *chat.Chat, sessionID string) *bridge {
	bridgeCtx, cancel := context.WithCancel(ctx)

	b := &bridge{
		cancel:    cancel,
		chat:      c,
		delivered: c.Len(),
		synced:    make(chan struct{}),
	}

	// Subscribe before returning so nothing published afterwards is missed.
	sub := events.Subscribe(256)

	b.wg.Go(func() { b.watchChat(bridgeCtx, p) })
	b.wg.Go(func() {
		defer events.Unsubscribe(sub)
		for {
			select {
			case <-bridgeCtx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if ev.SessionID != "" && ev.SessionID != sessionID {
					continue
				}
				if msg := eventMsg(ev); msg != nil {
					p.Send(msg)
				}
			}
		}
	})

	return b
}

func (b *bridge) watchChat(ctx context.Context, p sender) {
	cursor := b.chat.Len()
	for {
		n, err := b.chat.Wait(ctx, cursor)
		if n < cursor {
			cursor = 0
		}
		for _, m := range b.chat.Since(cursor) {
			p.Send(messageAddedMsg{msg: engine.NewMessageData(m)})
			cursor++
		}
		b.setDelivered(cursor)
		if err != nil {
			return
		}
	}
}

func (b *bridge) setDelivered(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.delivered == n {
		return
	}
	b.delivered = n
	close(b.synced)
	b.synced = make(chan struct{})
}

// flush blocks until every turn currently in the chat has been handed to the
// program, or ctx ends.
func (b *bridge) flush(ctx context.Context) error {
	for {
		b.mu.Lock()
		done := b.delivered == b.chat.Len()
		synced := b.synced
		b.mu.Unlock()

		if done {
			return nil
		}

		select {
		case <-synced:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// stop ends both watchers and waits for them to exit.
func (b *bridge) stop() {
	b.cancel()
	b.wg.Wait()
}

// eventMsg converts an engine event into the message the model handles, or
// nil for events the shell does not display. Finished turns are read from the
// chat, so message_added is ignored here.
func eventMsg(ev engine.Event) tea.Msg {
	switch d := ev.Data.(type) {
	case engine.TextDeltaData:
		return textDeltaMsg{text: d.Text}
	case engine.ToolCallData:
		if ev.Kind == engine.EventToolCallEnd {
			return toolEndMsg{call: d}
		}
		return toolStartMsg{call: d}
	case engine.FileChangeData:
		return fileChangeMsg{change: d}
	case engine.InspectData:
		return inspectMsg{data: d}
	}
	return nil
}
