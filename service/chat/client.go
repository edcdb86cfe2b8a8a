package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Transport is the slice of *websocket.Conn the registry needs to deliver
// and tear down. Tests substitute a recording implementation.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// WsConn represents one live client connection owned by the registry.
// All writes funnel through WriteJSON under a per-connection mutex:
// gorilla conns do not tolerate concurrent writers, and a handler on this
// connection may race a broadcast triggered elsewhere.
type WsConn struct {
	ConnID    string
	UserID    int64
	CreatedAt time.Time

	conn      Transport
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func NewWsConn(connID string, userID int64, t Transport, now time.Time) *WsConn {
	return &WsConn{
		ConnID:    connID,
		UserID:    userID,
		CreatedAt: now,
		conn:      t,
	}
}

// WriteJSON marshals v and writes it as one text frame with a write
// deadline, serialized against every other writer on this connection.
func (c *WsConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// CloseWithCode sends a close frame (best effort) and closes the
// underlying transport. Safe to call more than once.
func (c *WsConn) CloseWithCode(code int, reason string) {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}
