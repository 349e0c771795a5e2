// Package transporttest provides in-memory transport fakes for tests.
package transporttest

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/omochice/wschat/internal/transport"
)

// Conn is a scripted transport.Conn. Frames pushed with Deliver are returned
// by Read; frames written by the client are recorded.
type Conn struct {
	Subproto string

	incoming chan []byte
	done     chan struct{}
	endOnce  sync.Once
	endErr   error

	mu       sync.Mutex
	written  []string
	writeErr error
	closes   int
}

// NewConn returns an open fake connection.
func NewConn() *Conn {
	return &Conn{
		incoming: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

// Deliver queues a frame from the server.
func (c *Conn) Deliver(data string) {
	c.incoming <- []byte(data)
}

// Hangup simulates a normal close initiated by the server.
func (c *Conn) Hangup() {
	c.end(io.EOF)
}

// Fail simulates an abnormal end of the connection.
func (c *Conn) Fail(err error) {
	c.end(err)
}

// SetWriteError makes subsequent writes fail with err.
func (c *Conn) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Written returns a copy of the frames written so far.
func (c *Conn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes > 0
}

func (c *Conn) end(err error) {
	c.endOnce.Do(func() {
		c.endErr = err
		close(c.done)
	})
}

// Read implements transport.Conn. Queued frames are drained before the end
// of the connection is reported.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.incoming:
		return data, nil
	default:
	}
	select {
	case data := <-c.incoming:
		return data, nil
	case <-c.done:
		return nil, c.endErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return net.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, string(data))
	return nil
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.end(net.ErrClosed)
	return nil
}

// Subprotocol implements transport.Conn.
func (c *Conn) Subprotocol() string {
	return c.Subproto
}

// Dialer hands out a fresh Conn per Dial and remembers every call.
type Dialer struct {
	// Err, when set, fails every Dial.
	Err error
	// Gate, when set, holds Dial until it receives or is closed.
	Gate chan struct{}

	mu        sync.Mutex
	conns     []*Conn
	uris      []string
	protocols [][]string
	dialed    chan *Conn
}

// NewDialer returns a Dialer that succeeds immediately.
func NewDialer() *Dialer {
	return &Dialer{dialed: make(chan *Conn, 16)}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, uri string, protocols []string) (transport.Conn, error) {
	d.mu.Lock()
	d.uris = append(d.uris, uri)
	d.protocols = append(d.protocols, protocols)
	gate, dialErr := d.Gate, d.Err
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if dialErr != nil {
		return nil, dialErr
	}

	conn := NewConn()
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	if d.dialed != nil {
		select {
		case d.dialed <- conn:
		default:
		}
	}
	return conn, nil
}

// Dialed delivers every connection the dialer creates.
func (d *Dialer) Dialed() <-chan *Conn {
	return d.dialed
}

// Conns returns the connections created so far.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Calls returns how many times Dial was invoked.
func (d *Dialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.uris)
}

// LastURI returns the URI of the most recent Dial.
func (d *Dialer) LastURI() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.uris) == 0 {
		return ""
	}
	return d.uris[len(d.uris)-1]
}

// LastProtocols returns the subprotocols of the most recent Dial.
func (d *Dialer) LastProtocols() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.protocols) == 0 {
		return nil
	}
	return d.protocols[len(d.protocols)-1]
}

var _ transport.Conn = (*Conn)(nil)
var _ transport.Dialer = (*Dialer)(nil)
