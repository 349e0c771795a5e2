// Package gorilla provides the default transport on top of gorilla/websocket.
package gorilla

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/omochice/wschat/internal/transport"
)

// Name is the registry key of this transport.
const Name = "gorilla"

const closeWriteTimeout = time.Second

func init() {
	transport.Register(Name, func() transport.Dialer { return NewDialer() })
}

// Dialer dials with a gorilla websocket.Dialer.
type Dialer struct {
	dialer websocket.Dialer
}

// NewDialer returns a dialer with gorilla's default handshake settings.
func NewDialer() *Dialer {
	return &Dialer{dialer: *websocket.DefaultDialer}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, uri string, protocols []string) (transport.Conn, error) {
	dialer := d.dialer
	dialer.Subprotocols = protocols
	conn, resp, err := dialer.DialContext(ctx, uri, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return &Conn{conn: conn}, nil
}

// Conn adapts *websocket.Conn to transport.Conn.
type Conn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Read implements transport.Conn. A normal closure is reported as io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
	}
	_, data, err := c.conn.ReadMessage()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil, io.EOF
	}
	return data, err
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	} else {
		c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close implements transport.Conn. The close frame is best effort; the
// underlying connection is always released.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Subprotocol implements transport.Conn.
func (c *Conn) Subprotocol() string {
	return c.conn.Subprotocol()
}
