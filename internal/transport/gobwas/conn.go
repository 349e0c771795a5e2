// Package gobwas provides a low-allocation transport on top of gobwas/ws.
package gobwas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/wschat/internal/transport"
)

// Name is the registry key of this transport.
const Name = "gobwas"

func init() {
	transport.Register(Name, func() transport.Dialer { return Dialer{} })
}

// Dialer dials with ws.Dialer.
type Dialer struct{}

// Dial implements transport.Dialer.
func (Dialer) Dial(ctx context.Context, uri string, protocols []string) (transport.Conn, error) {
	d := ws.Dialer{Protocols: protocols}
	conn, br, hs, err := d.Dial(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	var src io.Reader = conn
	if br != nil {
		// The server may have sent frames together with the handshake response.
		src = br
	}
	return newConn(conn, src, hs.Protocol), nil
}

// Conn speaks client-side WebSocket framing over a raw net.Conn.
type Conn struct {
	conn        net.Conn
	reader      *wsutil.Reader
	subprotocol string

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newConn(conn net.Conn, src io.Reader, subprotocol string) *Conn {
	c := &Conn{conn: conn, subprotocol: subprotocol}
	c.reader = &wsutil.Reader{
		Source:    src,
		State:     ws.StateClientSide,
		CheckUTF8: true,
	}
	c.reader.OnIntermediate = c.handleControl
	return c
}

// Read implements transport.Conn. Control frames are answered inline; a
// normal close frame from the server ends the read with io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
	}
	for {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return nil, closeError(err)
		}
		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, c.reader); err != nil {
				return nil, closeError(err)
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := c.reader.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(c.reader)
	}
}

func closeError(err error) error {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		switch closed.Code {
		case ws.StatusNormalClosure, ws.StatusGoingAway:
			return io.EOF
		}
	}
	return err
}

// handleControl replies to ping and close frames while holding the write
// lock so replies never interleave with a data frame.
func (c *Conn) handleControl(hdr ws.Header, r io.Reader) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.ControlFrameHandler(c.conn, ws.StateClientSide)(hdr, r)
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
	return wsutil.WriteClientText(c.conn, data)
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, body)
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Subprotocol implements transport.Conn.
func (c *Conn) Subprotocol() string {
	return c.subprotocol
}
