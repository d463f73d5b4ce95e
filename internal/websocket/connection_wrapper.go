package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// connWrapper adapts *websocket.Conn to Connection
type connWrapper struct {
	conn *websocket.Conn
}

func wrapConn(conn *websocket.Conn) Connection {
	return &connWrapper{conn: conn}
}

func (c *connWrapper) WriteMessage(messageType int, data []byte) error {
	return c.conn.WriteMessage(messageType, data)
}

func (c *connWrapper) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

func (c *connWrapper) Close() error { return c.conn.Close() }

func (c *connWrapper) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

func (c *connWrapper) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

func (c *connWrapper) SetReadLimit(limit int64) { c.conn.SetReadLimit(limit) }

func (c *connWrapper) SetPongHandler(h func(string) error) { c.conn.SetPongHandler(h) }

func (c *connWrapper) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
