package protocol

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConn carries one envelope per websocket text message.
type WebSocketConn struct {
	conn *websocket.Conn
}

// NewWebSocketConn wraps an upgraded websocket connection. maxFrame <= 0 selects
// DefaultMaxFrameBytes.
func NewWebSocketConn(conn *websocket.Conn, maxFrame int) *WebSocketConn {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameBytes
	}
	conn.SetReadLimit(int64(maxFrame))
	return &WebSocketConn{conn: conn}
}

// ReadEnvelope blocks until one message arrives. Close frames surface as io.EOF-like
// *websocket.CloseError values.
func (c *WebSocketConn) ReadEnvelope() (Envelope, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return Envelope{}, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 {
			return Envelope{}, &FrameError{Err: errors.New("empty message")}
		}
		return parseFrame(data)
	}
}

func (c *WebSocketConn) WriteEnvelope(env Envelope) error {
	return c.conn.WriteJSON(env)
}

func (c *WebSocketConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *WebSocketConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *WebSocketConn) RemoteAddr() string                 { return c.conn.RemoteAddr().String() }

// Close sends a normal-closure frame before closing the socket.
func (c *WebSocketConn) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

// IsNormalClose reports peer-initiated closes that should not be logged as failures.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
