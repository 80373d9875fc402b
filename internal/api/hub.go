package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"traderelay/internal/metrics"
	"traderelay/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub fans out HMA updates to connected WebSocket clients. Each fresh
// recompute produces one broadcast; cache hits do not.
type Hub struct {
	prom *metrics.Metrics

	mu      sync.RWMutex
	clients map[*wsClient]bool
	latest  map[string]json.RawMessage // symbol → last update envelope
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub. prom may be nil in tests.
func NewHub(prom *metrics.Metrics) *Hub {
	return &Hub{
		prom:    prom,
		clients: make(map[*wsClient]bool),
		latest:  make(map[string]json.RawMessage),
	}
}

// BroadcastHMA sends a compact update for symbol to every connected client
// and remembers it as the symbol's latest for late joiners. Slow clients
// are skipped, not waited on.
func (h *Hub) BroadcastHMA(symbol string, res *model.HMAResult) {
	envelope, err := json.Marshal(map[string]interface{}{
		"type":   "hma_update",
		"symbol": symbol,
		"hma":    res.CurrentHMA,
		"ts":     res.LastUpdate.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	h.latest[symbol] = envelope
	h.mu.Unlock()

	// Fan out under the read lock: drop closes send channels under the
	// write lock, so a close can never interleave with an in-flight send.
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- envelope:
		default:
		}
	}
	h.mu.RUnlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and serves the client until it disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", slog.Any("err", err))
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, 64)}

	h.mu.Lock()
	h.clients[c] = true
	// Replay the latest update per symbol so a new client starts warm.
	for _, envelope := range h.latest {
		select {
		case c.send <- envelope:
		default:
		}
	}
	h.mu.Unlock()

	if h.prom != nil {
		h.prom.WSClients.Inc()
	}

	go c.writePump()
	go c.readPump(h)
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		if h.prom != nil {
			h.prom.WSClients.Dec()
		}
	}
	h.mu.Unlock()
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages; the stream is one-way. It exists to
// notice disconnects and unregister the client.
func (c *wsClient) readPump(h *Hub) {
	defer func() {
		h.drop(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
