package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"pulse-chat/domain"
	"pulse-chat/transport"
)

// Conn is one authenticated websocket connection. The read goroutine
// feeds inbound frames to the hub; the write goroutine drains the send
// channel back to the peer. Separating the two avoids head-of-line
// blocking when a client is slow.
type Conn struct {
	ID   string
	Cred domain.Credential

	socket *websocket.Conn
	send   chan []byte
	log    *slog.Logger

	mu     sync.Mutex
	closed bool
}

func newConn(id string, cred domain.Credential, socket *websocket.Conn, bufferSize int, log *slog.Logger) *Conn {
	return &Conn{
		ID:     id,
		Cred:   cred,
		socket: socket,
		send:   make(chan []byte, bufferSize),
		log:    log,
	}
}

func (c *Conn) read(h *Hub) {
	defer func() {
		h.dropConn(c)
		_ = c.socket.Close()
	}()

	for {
		_, raw, err := c.socket.ReadMessage()
		if err != nil {
			return
		}
		var frame transport.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Warn("dropping malformed frame", "conn_id", c.ID, "error", err)
			continue
		}
		h.handleFrame(c, frame)
	}
}

// trySend queues a frame without blocking. A full buffer means the
// client is too slow; the frame is dropped (attempt once, no retry).
func (c *Conn) trySend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Conn) write() {
	defer c.socket.Close()

	for message := range c.send {
		if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}
