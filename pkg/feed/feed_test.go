package feed

import (
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/germanamz/babycode/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func dialTest(t *testing.T, url string) *Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func next(t *testing.T, c *Conn) Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m, err := c.Next(ctx)
	require.NoError(t, err)

	return m
}

func TestHandler_StreamsEvents(t *testing.T) {
	bus := engine.NewEventBus()
	srv := httptest.NewServer(NewHandler(bus, nil))
	t.Cleanup(srv.Close)

	c := dialTest(t, wsURL(srv.URL))

	bus.Publish(engine.Event{Kind: engine.EventAgentStart, SessionID: "session-1"})
	bus.Publish(engine.Event{
		Kind:      engine.EventToolCallStart,
		SessionID: "session-1",
		Data:      engine.ToolCallData{ID: "t1", Name: "read_file", Arguments: `{"path":"a.txt"}`},
	})

	m := next(t, c)
	assert.Equal(t, engine.EventAgentStart, m.Kind)
	assert.Equal(t, "session-1", m.SessionID)
	assert.False(t, m.Timestamp.IsZero())

	m = next(t, c)
	assert.Equal(t, engine.EventToolCallStart, m.Kind)

	var data engine.ToolCallData
	require.NoError(t, json.Unmarshal(m.Data, &data))
	assert.Equal(t, "read_file", data.Name)
	assert.JSONEq(t, `{"path":"a.txt"}`, data.Arguments)
}

func TestHandler_SessionFilter(t *testing.T) {
	bus := engine.NewEventBus()
	srv := httptest.NewServer(NewHandler(bus, nil))
	t.Cleanup(srv.Close)

	c := dialTest(t, wsURL(srv.URL)+"?session=session-2")

	bus.Publish(engine.Event{Kind: engine.EventAgentStart, SessionID: "session-1"})
	bus.Publish(engine.Event{Kind: engine.EventAgentEnd, SessionID: "session-2"})

	m := next(t, c)
	assert.Equal(t, engine.EventAgentEnd, m.Kind)
	assert.Equal(t, "session-2", m.SessionID)
}

func TestHandler_FanOut(t *testing.T) {
	bus := engine.NewEventBus()
	srv := httptest.NewServer(NewHandler(bus, nil))
	t.Cleanup(srv.Close)

	c1 := dialTest(t, wsURL(srv.URL))
	c2 := dialTest(t, wsURL(srv.URL))

	bus.Publish(engine.Event{Kind: engine.EventFileChange, Data: engine.FileChangeData{Path: "a.txt", Diff: "+x"}})

	for _, c := range []*Conn{c1, c2} {
		m := next(t, c)
		assert.Equal(t, engine.EventFileChange, m.Kind)
		assert.JSONEq(t, `{"path":"a.txt","diff":"+x"}`, string(m.Data))
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	bus := engine.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, bus, nil) }()

	c := dialTest(t, "ws://"+ln.Addr().String()+Path)
	bus.Publish(engine.Event{Kind: engine.EventAgentStart})
	assert.Equal(t, engine.EventAgentStart, next(t, c).Kind)
	require.NoError(t, c.Close())

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestListenAndServe_BadAddress(t *testing.T) {
	err := ListenAndServe(context.Background(), "not-an-address", engine.NewEventBus(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed: listen")
}
