package stream

import (
	"io"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes sent to stream clients.
const (
	CloseNormal          = websocket.CloseNormalClosure
	CloseGoingAway       = websocket.CloseGoingAway
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseInternalError   = websocket.CloseInternalServerErr
	// CloseSuperseded tells a client that the same user opened a newer session.
	CloseSuperseded = 4000
)

// Conn is the transport a Session writes to. Implementations must allow
// Ping, Close and Terminate concurrently with WriteJSON; WriteJSON itself is
// only ever called by one goroutine at a time.
type Conn interface {
	WriteJSON(v any) error
	Ping() error
	// Close sends a close frame with code and reason, then releases the
	// transport.
	Close(code int, reason string) error
	// Terminate releases the transport without a close handshake.
	Terminate() error
	// ReadLoop consumes inbound frames until the transport fails, calling
	// onPong for every pong received.
	ReadLoop(onPong func()) error
}

// wsConn adapts a gorilla websocket connection to Conn.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWebSocketConn wraps c. Every write is bounded by writeTimeout.
func NewWebSocketConn(c *websocket.Conn, writeTimeout time.Duration) Conn {
	return &wsConn{conn: c, writeTimeout: writeTimeout}
}

func (c *wsConn) deadline() time.Time {
	return time.Now().Add(c.writeTimeout)
}

func (c *wsConn) WriteJSON(v any) error {
	if err := c.conn.SetWriteDeadline(c.deadline()); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, c.deadline())
}

func (c *wsConn) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	werr := c.conn.WriteControl(websocket.CloseMessage, msg, c.deadline())
	cerr := c.conn.Close()
	if werr != nil && werr != websocket.ErrCloseSent {
		return werr
	}
	return cerr
}

func (c *wsConn) Terminate() error {
	return c.conn.Close()
}

func (c *wsConn) ReadLoop(onPong func()) error {
	c.conn.SetPongHandler(func(string) error {
		onPong()
		return nil
	})
	for {
		_, r, err := c.conn.NextReader()
		if err != nil {
			return err
		}
		// Clients have nothing to say on this stream; drain and ignore.
		if _, err := io.Copy(io.Discard, r); err != nil {
			return err
		}
	}
}
