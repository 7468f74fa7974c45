package ws

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"metals_go/internal/domain"
)

const (
	writeTimeout  = 10 * time.Second
	sendQueueSize = 16
)

// Client is one live websocket connection and its subscription. The
// subscription set is owned here and mutated only by the connection's own
// read loop; the hub reads it through Subscriptions.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// done signals shutdown to enqueue and the write loop. send is never
	// closed: a broadcast may race a disconnect, and a send on a closed
	// channel would panic the broadcaster goroutine.
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.RWMutex
	subscribed map[domain.Instrument]struct{}
}

func newClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:         id,
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendQueueSize),
		done:       make(chan struct{}),
		subscribed: make(map[domain.Instrument]struct{}),
	}
}

// shutdown stops the write loop and fails all future enqueues. Idempotent.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// IsSubscribedToAny reports whether the client watches any of the given
// instruments.
func (c *Client) IsSubscribedToAny(instruments []domain.Instrument) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, in := range instruments {
		if _, ok := c.subscribed[in]; ok {
			return true
		}
	}
	return false
}

// Subscriptions returns a copy of the client's instrument set.
func (c *Client) Subscriptions() []domain.Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Instrument, 0, len(c.subscribed))
	for in := range c.subscribed {
		out = append(out, in)
	}
	return out
}

// enqueue hands a frame to the write loop. A full queue or a client already
// shut down counts as a send failure: the subscriber cannot stall or panic
// the broadcast.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// readLoop consumes client messages until the connection errors or goes
// silent longer than the heartbeat timeout.
func (c *Client) readLoop() {
	defer c.hub.drop(c)

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.hub.heartbeatTimeout)); err != nil {
			return
		}
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleMessage(raw)
	}
}

func (c *Client) handleMessage(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("malformed message")
		return
	}

	switch msg.Type {
	case msgPing:
		if payload, err := json.Marshal(pongMessage{Type: msgPong}); err == nil {
			c.enqueue(payload)
		}
	case msgSubscribe:
		c.updateSubscriptions(msg.Instruments, true)
	case msgUnsubscribe:
		c.updateSubscriptions(msg.Instruments, false)
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

// updateSubscriptions applies the valid instrument names and rejects unknown
// ones with an error frame, without closing the connection.
func (c *Client) updateSubscriptions(names []string, add bool) {
	var unknown []string

	c.mu.Lock()
	for _, name := range names {
		instrument, err := domain.ParseInstrument(name)
		if err != nil {
			unknown = append(unknown, name)
			continue
		}
		if add {
			c.subscribed[instrument] = struct{}{}
		} else {
			delete(c.subscribed, instrument)
		}
	}
	c.mu.Unlock()

	if len(unknown) > 0 {
		c.sendError("unknown instruments: " + strings.Join(unknown, ", "))
	}
}

func (c *Client) sendError(msg string) {
	if payload, err := json.Marshal(errorMessage{Type: msgError, Error: msg}); err == nil {
		c.enqueue(payload)
	}
}

// writeLoop flushes queued frames. It exits when the client is shut down by
// the hub or a write fails.
func (c *Client) writeLoop() {
	defer c.conn.Close()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				slog.Debug("ws write failed", slog.String("client", c.id), slog.Any("error", err))
				c.hub.drop(c)
				return
			}
		}
	}
}
