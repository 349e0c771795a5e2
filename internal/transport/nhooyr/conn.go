// Package nhooyr provides a transport on top of nhooyr.io/websocket.
package nhooyr

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/omochice/wschat/internal/transport"
	"nhooyr.io/websocket"
)

// Name is the registry key of this transport.
const Name = "nhooyr"

func init() {
	transport.Register(Name, func() transport.Dialer { return Dialer{} })
}

// Dialer dials with websocket.Dial.
type Dialer struct{}

// Dial implements transport.Dialer.
func (Dialer) Dial(ctx context.Context, uri string, protocols []string) (transport.Conn, error) {
	conn, resp, err := websocket.Dial(ctx, uri, &websocket.DialOptions{Subprotocols: protocols})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewConn(conn), nil
}

// Conn adapts *websocket.Conn to transport.Conn.
type Conn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established websocket.Conn.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// Read implements transport.Conn.
// Text and binary frames are both returned as raw bytes; a normal closure
// is reported as io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
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

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close(websocket.StatusNormalClosure, "")
	})
	return c.closeErr
}

// Subprotocol implements transport.Conn.
func (c *Conn) Subprotocol() string {
	return c.conn.Subprotocol()
}
