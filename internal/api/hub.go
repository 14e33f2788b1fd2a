package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// writeTimeout bounds a single event delivery to one subscriber.
const writeTimeout = 5 * time.Second

// Event is one message fanned out to websocket subscribers.
type Event struct {
	Kind string `json:"kind"`
	Data any    `json:"data,omitempty"`
	Time string `json:"time"`
}

// Hub fans events out to connected websocket clients. A slow client drops
// its own events; it never blocks the broadcaster or other subscribers.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		logger: logger,
		subs:   make(map[*websocket.Conn]struct{}),
	}
}

// Broadcast delivers an event to every subscriber.
func (h *Hub) Broadcast(kind string, data any) {
	ev := Event{
		Kind: kind,
		Data: data,
		Time: time.Now().UTC().Format(time.RFC3339),
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.subs))
	for c := range h.subs {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)

		if err := wsjson.Write(ctx, c, ev); err != nil {
			h.logger.Debug("dropping slow websocket subscriber",
				slog.String("error", err.Error()),
			)
			h.remove(c)
		}

		cancel()
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// handleEvents upgrades the request to a websocket and holds it open until
// the client disconnects. Clients only receive; inbound frames are drained
// and discarded.
func (h *Hub) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	h.add(conn)
	defer h.remove(conn)

	ctx := r.Context()

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (h *Hub) add(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subs[c] = struct{}{}
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs, c)
}
