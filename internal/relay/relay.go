// Package relay publishes completed transcriptions to websocket clients,
// matching the message shape the consultation backend emits:
// {"type":"transcription","text":"...","timestamp":<unix seconds>}.
package relay

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// Message is one transcription frame sent to clients.
type Message struct {
	Type      string  `json:"type"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"`
}

// Relay broadcasts transcriptions to connected websocket clients. It
// implements the scheduler's Sink: relay failures are transient I/O,
// logged and never raised into the decode pipeline.
type Relay struct {
	upgrader websocket.Upgrader
	server   *http.Server

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New creates a relay serving on addr.
func New(addr string) *Relay {
	r := &Relay{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Transcripts are broadcast-only; any local client may attach.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}

	mux := chi.NewRouter()
	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Get("/ws", r.handleWS)

	r.server = &http.Server{Addr: addr, Handler: mux}
	return r
}

// Handler exposes the router, mainly for httptest.
func (r *Relay) Handler() http.Handler {
	return r.server.Handler
}

// ListenAndServe blocks serving websocket clients until Shutdown.
func (r *Relay) ListenAndServe() error {
	slog.Info("transcript relay listening", "addr", r.server.Addr)
	err := r.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and drops all clients.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for c := range r.conns {
		c.Close()
	}
	r.conns = make(map[*websocket.Conn]struct{})
	r.mu.Unlock()

	return r.server.Shutdown(ctx)
}

func (r *Relay) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}

	r.mu.Lock()
	r.conns[conn] = struct{}{}
	n := len(r.conns)
	r.mu.Unlock()
	slog.Info("relay client connected", "clients", n)

	// Drain reads so pings/closes are processed; drop on first error.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				r.drop(conn)
				return
			}
		}
	}()
}

// OnTranscription implements transcribe.Sink. The raw audio is not
// forwarded; clients get text frames only.
func (r *Relay) OnTranscription(text string, _ []byte) {
	r.Broadcast(text)
}

// Broadcast sends a transcription frame to every connected client. Slow or
// dead clients are dropped so delivery never blocks the pipeline.
func (r *Relay) Broadcast(text string) {
	msg := Message{
		Type:      "transcription",
		Text:      text,
		Timestamp: float64(time.Now().UnixMilli()) / 1000,
	}

	r.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteJSON(msg); err != nil {
			slog.Warn("relay send failed, dropping client", "err", err)
			r.drop(c)
		}
	}
}

func (r *Relay) drop(c *websocket.Conn) {
	c.Close()
	r.mu.Lock()
	delete(r.conns, c)
	r.mu.Unlock()
}
