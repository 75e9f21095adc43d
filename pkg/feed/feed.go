// Package feed streams engine events to websocket clients as JSON, one
// message per event. It lets external tools watch a session live.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/germanamz/babycode/pkg/engine"
)

const (
	// Path is the endpoint served by ListenAndServe.
	Path = "/events"

	bufSize      = 256
	writeTimeout = 5 * time.Second
)

// Handler upgrades requests to websocket connections and forwards every event
// published on the bus. A "session" query parameter limits the feed to one
// session. Streamed text may be skipped for clients that fall behind; every
// other event is delivered in order.
type Handler struct {
	bus *engine.EventBus
	log *slog.Logger
}

// NewHandler creates a Handler for bus. A nil log discards logs.
func NewHandler(bus *engine.EventBus, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Handler{bus: bus, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake completes so a client that has finished
	// dialing never misses an event.
	sub := h.bus.Subscribe(bufSize)
	defer h.bus.Unsubscribe(sub)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.WarnContext(r.Context(), "feed handshake failed", "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	session := r.URL.Query().Get("session")

	// The feed is write-only; CloseRead handles control frames and cancels ctx
	// when the client goes away.
	ctx := conn.CloseRead(r.Context())

	h.log.InfoContext(ctx, "feed client connected", "remote", r.RemoteAddr, "session", session)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "feed closed")
				return
			}
			if session != "" && ev.SessionID != session {
				continue
			}
			if err := write(ctx, conn, ev); err != nil {
				h.log.InfoContext(ctx, "feed client dropped", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, ev engine.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return wsjson.Write(ctx, conn, ev)
}

// ListenAndServe serves the feed on addr at Path until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, bus *engine.EventBus, log *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("feed: listen: %w", err)
	}

	return Serve(ctx, ln, bus, log)
}

// Serve serves the feed on ln until ctx is cancelled.
func Serve(ctx context.Context, ln net.Listener, bus *engine.EventBus, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(Path, NewHandler(bus, log))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return fmt.Errorf("feed: serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("feed: serve: %w", err)
		}
		return nil
	}
}

// Message is an event as received by a feed client. Data is left undecoded
// because its shape depends on Kind.
type Message struct {
	Kind      engine.EventKind `json:"kind"`
	SessionID string           `json:"session_id"`
	Timestamp time.Time        `json:"timestamp"`
	Data      json.RawMessage  `json:"data,omitempty"`
}

// Conn is a client connection to a feed.
type Conn struct {
	conn *websocket.Conn
}

// Dial connects to a feed at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: dial: %w", err)
	}

	return &Conn{conn: conn}, nil
}

// Next blocks until the next event arrives.
func (c *Conn) Next(ctx context.Context) (Message, error) {
	var m Message
	if err := wsjson.Read(ctx, c.conn, &m); err != nil {
		return Message{}, fmt.Errorf("feed: read: %w", err)
	}

	return m, nil
}

// Close closes the connection normally.
func (c *Conn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
