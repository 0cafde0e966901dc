package signal

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/halden/backstage/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// wsConn is one client endpoint. Writes go through a buffered channel drained
// by the write pump; TrySend never blocks.
type wsConn struct {
	id   domain.ConnID
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWSConn(id domain.ConnID, conn *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		id:   id,
		conn: conn,
		send: make(chan []byte, buffer),
	}
}

func (c *wsConn) ID() domain.ConnID { return c.id }

func (c *wsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}
