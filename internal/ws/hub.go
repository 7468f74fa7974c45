package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"metals_go/internal/domain"
	"metals_go/internal/infra"
)

// Hub owns the set of live subscribers. Connections register on upgrade and
// are removed on read error, heartbeat expiry or send failure; one failing
// subscriber never affects the others.
type Hub struct {
	heartbeatTimeout time.Duration
	maxConnections   int

	mu      sync.Mutex
	clients map[*Client]struct{}

	upgrader websocket.Upgrader
	snapshot func() []byte // initial frame for new connections, set by the Broadcaster
	logger   *slog.Logger
	metrics  *infra.Metrics
}

// NewHub creates an empty hub.
func NewHub(heartbeatTimeout time.Duration, maxConnections int) *Hub {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = 90 * time.Second
	}
	if maxConnections <= 0 {
		maxConnections = 256
	}
	return &Hub{
		heartbeatTimeout: heartbeatTimeout,
		maxConnections:   maxConnections,
		clients:          make(map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Routes sit behind the dashboard's own origin handling.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  slog.Default().With("module", "ws_hub"),
		metrics: infra.GlobalMetrics,
	}
}

// SetSnapshot installs the provider of the initial full-state frame sent to
// every new connection before any incremental update.
func (h *Hub) SetSnapshot(fn func() []byte) {
	h.snapshot = fn
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWS upgrades an HTTP request into a subscriber connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	if h.Count() >= h.maxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", slog.Any("error", err))
		return
	}

	client := newClient(uuid.NewString(), h, conn)

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.metrics.IncrementConnections()
	h.logger.Info("ws client connected", slog.String("client", client.id))

	go client.writeLoop()

	// Initial snapshot before any incremental update.
	if h.snapshot != nil {
		if payload := h.snapshot(); payload != nil {
			client.enqueue(payload)
		}
	}

	client.readLoop()
}

// drop removes a client and shuts it down. Idempotent: both loops may report
// the same dead connection, and a broadcast may race a disconnect — the send
// queue is never closed so a concurrent enqueue fails instead of panicking.
func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()

	c.shutdown()
	c.conn.Close()
	h.metrics.DecrementConnections()
	h.logger.Info("ws client disconnected", slog.String("client", c.id))
}

// Broadcast delivers a frame to every subscriber watching any of the changed
// instruments. A failed enqueue drops that subscriber and the loop continues.
func (h *Hub) Broadcast(payload []byte, changed []domain.Instrument) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.IsSubscribedToAny(changed) {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		if !c.enqueue(payload) {
			h.logger.Warn("ws send queue full, dropping subscriber", slog.String("client", c.id))
			h.drop(c)
		}
	}
}
