package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatproof/internal/checkpoint"
	"chatproof/internal/logging"
	"chatproof/internal/metrics"
)

// EventCheckpointClosed is the type of every feed event.
const EventCheckpointClosed = "checkpoint_closed"

const writeWait = 5 * time.Second

// FeedEvent announces a closed checkpoint. Message contents are never sent.
type FeedEvent struct {
	Type      string `json:"type"`
	Timestamp uint64 `json:"timestamp"`
	Hash      string `json:"hash"`
	Messages  int    `json:"messages"`
}

// Hub fans closed checkpoints out to websocket clients.
type Hub struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	mu        sync.RWMutex
	broadcast chan FeedEvent
	metrics   *metrics.Metrics
	log       *logging.Logger
}

// NewHub creates a hub accepting browser connections from allowedOrigins.
// "*" allows any origin.
func NewHub(allowedOrigins []string, m *metrics.Metrics, log *logging.Logger) *Hub {
	if log == nil {
		log = logging.Discard()
	}
	return &Hub{
		upgrader:  createUpgrader(allowedOrigins),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan FeedEvent, 100),
		metrics:   m,
		log:       log.WithComponent("feed"),
	}
}

func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool)
	anyOrigin := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			anyOrigin = true
		}
		allowed[origin] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			return anyOrigin || origin == "" || allowed[origin]
		},
	}
}

// CheckpointClosed queues an event for every connected client. It never
// blocks; events are dropped when the queue is full.
func (h *Hub) CheckpointClosed(cp *checkpoint.Checkpoint) {
	event := FeedEvent{
		Type:      EventCheckpointClosed,
		Timestamp: cp.Timestamp,
		Hash:      cp.HashHex(),
		Messages:  len(cp.Messages),
	}
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn("feed queue full, dropping event", "timestamp", cp.Timestamp)
	}
}

// Run delivers queued events until ctx is done, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-h.broadcast:
			h.send(event)
		}
	}
}

func (h *Hub) send(event FeedEvent) {
	// Snapshot so writes happen without holding the lock.
	h.mu.RLock()
	snapshot := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		snapshot = append(snapshot, client)
	}
	h.mu.RUnlock()

	for _, client := range snapshot {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteJSON(event); err != nil {
			h.log.Debug("feed write failed", "remote", client.RemoteAddr().String(), "error", err)
			client.Close()
			h.remove(client)
		}
	}
}

// ServeHTTP upgrades the request and keeps the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mu.Unlock()
	h.setGauge(total)

	h.log.Info("feed client connected", "remote", conn.RemoteAddr().String(), "clients", total)

	// Clients only ever send keepalives; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("feed client closed unexpectedly", "error", err)
			}
			break
		}
	}

	h.remove(conn)
	h.log.Info("feed client disconnected", "remote", conn.RemoteAddr().String(), "clients", h.Len())
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	total := len(h.clients)
	h.mu.Unlock()
	h.setGauge(total)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for conn := range h.clients {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	h.setGauge(0)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) setGauge(n int) {
	if h.metrics != nil {
		h.metrics.FeedClients.Set(float64(n))
	}
}
