// Package relay is the chat server the client talks to. It authenticates each
// connection by its first frame, stamps identity onto every later envelope and
// broadcasts it to everyone connected.
package relay

import (
	"context"
	"errors"
	"io"

	"nhooyr.io/websocket"
)

// Conn abstracts an accepted client connection.
type Conn interface {
	// Read reads a single text frame. Returns io.EOF when the client closes
	// normally.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single text frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// wsConn adapts nhooyr.io/websocket to Conn.
type wsConn struct {
	conn       *websocket.Conn
	remoteAddr string
}

// NewConn wraps an accepted websocket.Conn.
func NewConn(conn *websocket.Conn, addr string) Conn {
	return &wsConn{conn: conn, remoteAddr: addr}
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return nil
	}
	return err
}

func (c *wsConn) RemoteAddr() string {
	return c.remoteAddr
}
