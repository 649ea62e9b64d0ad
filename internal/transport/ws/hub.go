// Package ws is an optional real-time push adapter over
// github.com/gorilla/websocket. It is strictly additive: nothing in the
// core (registry, match, engine) depends on it, and a deployment that
// never imports this package behaves identically. Grounded on the pack's
// websocket-hub pattern (LukeAtkinz-dashdice's per-connection writer
// goroutine fed by a buffered channel, one hub keyed by room/match id).
package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans a named event out to every connection subscribed to a matchId.
// It holds no game-state opinions of its own; it marshals whatever payload
// the caller passes. The registry passes only a {matchId, event} change
// ping, never match content.
type Hub struct {
	logger *zap.Logger

	mu    sync.RWMutex
	conns map[string]map[*connection]struct{} // matchId -> set of subscribers
}

type connection struct {
	ws   *websocket.Conn
	send chan []byte
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{logger: logger, conns: make(map[string]map[*connection]struct{})}
}

// ServeMatch upgrades the HTTP request and subscribes the connection to
// matchID until it disconnects.
func (h *Hub) ServeMatch(w http.ResponseWriter, r *http.Request, matchID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	c := &connection{ws: conn, send: make(chan []byte, 16)}
	h.subscribe(matchID, c)
	defer h.unsubscribe(matchID, c)

	go c.writeLoop()
	c.readLoop() // blocks until the client disconnects; discards inbound frames
}

func (c *connection) writeLoop() {
	defer c.ws.Close()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *connection) readLoop() {
	defer close(c.send)
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) subscribe(matchID string, c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[matchID] == nil {
		h.conns[matchID] = make(map[*connection]struct{})
	}
	h.conns[matchID][c] = struct{}{}
}

func (h *Hub) unsubscribe(matchID string, c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[matchID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, matchID)
		}
	}
}

// Broadcast pushes view, marshalled as JSON, to every connection currently
// subscribed to matchID. Slow consumers are dropped rather than allowed to
// block a match's other subscribers.
func (h *Hub) Broadcast(matchID string, view any) {
	data, err := json.Marshal(view)
	if err != nil {
		h.logger.Warn("ws broadcast marshal failed", zap.String("matchId", matchID), zap.Error(err))
		return
	}

	h.mu.RLock()
	subs := h.conns[matchID]
	targets := make([]*connection, 0, len(subs))
	for c := range subs {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("ws subscriber too slow, dropping message", zap.String("matchId", matchID))
		}
	}
}
