// Package chat provides the conversation state: an ordered, append-only list
// of turns that can only be reset as a whole.
package chat

import (
	"context"
	"sync"

	"github.com/germanamz/babycode/pkg/chats/message"
)

// Chat is the ordered transcript. The zero value is ready to use.
//
// Only one writer is expected (the agent loop, or the clear command between
// runs), but readers such as the shell or the event feed may take snapshots
// from other goroutines while a run is in progress.
type Chat struct {
	mu       sync.RWMutex
	messages []message.Message
	changed  chan struct{}
}

// New creates a Chat pre-populated with the given messages.
func New(msgs ...message.Message) *Chat {
	return &Chat{messages: msgs}
}

// Append adds one or more messages to the end of the conversation.
func (c *Chat) Append(msgs ...message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, msgs...)
	c.notify()
}

// Reset discards every message.
func (c *Chat) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = nil
	c.notify()
}

// notify wakes every Wait call. The caller must hold the write lock.
func (c *Chat) notify() {
	if c.changed != nil {
		close(c.changed)
		c.changed = nil
	}
}

// Wait blocks until the conversation no longer holds exactly n messages, then
// returns the new length. A length below n means the chat was reset. If ctx
// ends first, Wait returns the current length and the context error.
func (c *Chat) Wait(ctx context.Context, n int) (int, error) {
	for {
		c.mu.Lock()
		if l := len(c.messages); l != n {
			c.mu.Unlock()
			return l, nil
		}
		if c.changed == nil {
			c.changed = make(chan struct{})
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return c.Len(), ctx.Err()
		}
	}
}

// Since returns a copy of the messages from index n onwards, or nil when n is
// at or past the end.
func (c *Chat) Since(n int) []message.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n >= len(c.messages) {
		return nil
	}
	cp := make([]message.Message, len(c.messages)-n)
	copy(cp, c.messages[n:])
	return cp
}

// Len returns the number of messages in the conversation.
func (c *Chat) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.messages)
}

// At returns the message at the given index.
// It panics if the index is out of range.
func (c *Chat) At(index int) message.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.messages[index]
}

// Last returns the most recent message and true, or a zero Message and false
// if the conversation is empty.
func (c *Chat) Last() (message.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.messages) == 0 {
		return message.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Messages returns a copy of all messages in the conversation.
func (c *Chat) Messages() []message.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cp := make([]message.Message, len(c.messages))
	copy(cp, c.messages)
	return cp
}

// Each iterates over a snapshot of the messages, calling fn for each one.
// If fn returns false, iteration stops early.
func (c *Chat) Each(fn func(int, message.Message) bool) {
	for i, m := range c.Messages() {
		if !fn(i, m) {
			return
		}
	}
}
