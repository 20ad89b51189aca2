package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chachabrian/mooveit-dispatch/internal/logger"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Transport is the socket under a connection. *websocket.Conn implements
// it.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Conn is one live socket of an authenticated user.
type Conn struct {
	OwnerID   string
	Role      models.UserType
	SessionID string
	Channel   Channel

	transport Transport
	send      chan []byte

	mu     sync.Mutex
	closed bool
}

func NewConn(ownerID string, role models.UserType, sessionID string, ch Channel, t Transport, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 256
	}
	return &Conn{
		OwnerID:   ownerID,
		Role:      role,
		SessionID: sessionID,
		Channel:   ch,
		transport: t,
		send:      make(chan []byte, buffer),
	}
}

// enqueue queues b for writing. A full buffer closes the connection.
func (c *Conn) enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		c.closed = true
		close(c.send)
		return false
	}
}

// kick queues a final frame, if given, and closes the connection once it
// has been written.
func (c *Conn) kick(final []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if final != nil {
		select {
		case c.send <- final:
		default:
		}
	}
	c.closed = true
	close(c.send)
}

// Closed reports whether the connection stopped accepting messages.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// writePump pumps messages from the send queue to the socket.
func (c *Conn) writePump(log logger.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.transport.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.transport.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.transport.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.transport.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debugf("write to %s %s: %v", c.Channel, c.OwnerID, err)
				return
			}
		case <-ticker.C:
			_ = c.transport.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.transport.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump hands every inbound frame to handle until the socket fails.
func (c *Conn) readPump(log logger.Logger, handle func([]byte)) {
	c.transport.SetReadLimit(maxMessageSize)
	_ = c.transport.SetReadDeadline(time.Now().Add(pongWait))
	c.transport.SetPongHandler(func(string) error {
		return c.transport.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, message, err := c.transport.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("websocket error from %s %s: %v", c.Channel, c.OwnerID, err)
			}
			return
		}
		handle(message)
	}
}
