// Package connection wraps a single WebSocket behind a small state-aware API.
package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omochice/wschat/internal/config"
	"github.com/omochice/wschat/internal/logger"
	"github.com/omochice/wschat/internal/transport"
)

var (
	// ErrNoSocket is returned by Close and Send before the first Open.
	ErrNoSocket = errors.New("connection has never been opened")
	// ErrNotOpen is returned by Send when the socket is not in the open state.
	ErrNotOpen = errors.New("connection is not open")
	// ErrInvalidURI is returned by Open when the URI cannot be dialed.
	ErrInvalidURI = errors.New("invalid websocket uri")
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultEventBuffer  = 64
)

// Option configures a Handle.
type Option func(*Handle)

// WithLogger sets the diagnostic logger.
func WithLogger(l *logger.Logger) Option {
	return func(h *Handle) { h.log = l }
}

// WithWriteTimeout bounds a single Send.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handle) { h.writeTimeout = d }
}

// WithEventBuffer sets the capacity of the event channel.
func WithEventBuffer(n int) Option {
	return func(h *Handle) { h.bufferSize = n }
}

// Handle owns at most one live socket at a time. Lifecycle notifications of
// every socket it created are delivered on Events in order.
type Handle struct {
	uri          string
	protocols    []string
	dialer       transport.Dialer
	log          *logger.Logger
	writeTimeout time.Duration
	bufferSize   int
	events       chan Event

	mu     sync.Mutex
	socket *socket
}

// New returns a handle for the endpoint described by cfg. No connection is
// attempted until Open.
func New(cfg config.Connection, dialer transport.Dialer, opts ...Option) *Handle {
	h := &Handle{
		uri:          cfg.URI(),
		protocols:    append([]string(nil), cfg.Protocols...),
		dialer:       dialer,
		log:          logger.Nop(),
		writeTimeout: defaultWriteTimeout,
		bufferSize:   defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.events = make(chan Event, h.bufferSize)
	return h
}

// URI returns the endpoint address.
func (h *Handle) URI() string {
	return h.uri
}

// Protocols returns the requested subprotocols.
func (h *Handle) Protocols() []string {
	return append([]string(nil), h.protocols...)
}

// Events returns the lifecycle notification channel. It has one consumer.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// State returns the ready state of the current socket, or Closed when no
// socket exists.
func (h *Handle) State() ReadyState {
	s := h.current()
	if s == nil {
		return Closed
	}
	return s.State()
}

// IsOpened reports whether a socket exists and is open.
func (h *Handle) IsOpened() bool {
	s := h.current()
	return s != nil && s.State() == Open
}

// IsClosed is the negation of IsOpened.
func (h *Handle) IsClosed() bool {
	return !h.IsOpened()
}

// CurrentID returns the ID of the current socket, or "" before Open.
func (h *Handle) CurrentID() string {
	s := h.current()
	if s == nil {
		return ""
	}
	return s.id
}

// Subprotocol returns the subprotocol the server selected for the current
// socket, or "" when it is not open.
func (h *Handle) Subprotocol() string {
	s := h.current()
	if s == nil {
		return ""
	}
	conn, ok := s.openConn()
	if !ok {
		return ""
	}
	return conn.Subprotocol()
}

// Open starts a new socket and returns immediately. Any previous socket is
// closed first. EventOpened follows when the handshake completes, or
// EventClosed if it fails. ctx bounds the lifetime of the socket.
func (h *Handle) Open(ctx context.Context) error {
	if err := validateURI(h.uri); err != nil {
		return err
	}

	s := &socket{id: uuid.NewString(), state: Connecting}
	sockCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	h.mu.Lock()
	prev := h.socket
	h.socket = s
	h.mu.Unlock()

	if prev != nil {
		h.log.WithField("conn_id", prev.id).Debug("Releasing previous socket")
		prev.close()
	}

	h.log.WithFields(map[string]interface{}{
		"conn_id": s.id,
		"uri":     h.uri,
	}).Info("Opening connection")

	go h.run(ctx, sockCtx, s)
	return nil
}

// Close starts the closing handshake of the current socket. EventClosed
// follows. Closing a socket that is already closing or closed does nothing.
func (h *Handle) Close() error {
	s := h.current()
	if s == nil {
		return ErrNoSocket
	}
	h.log.WithField("conn_id", s.id).Info("Closing connection")
	s.close()
	return nil
}

// Send writes data as one text frame on the current socket.
func (h *Handle) Send(data string) error {
	s := h.current()
	if s == nil {
		return ErrNoSocket
	}
	conn, ok := s.openConn()
	if !ok {
		return fmt.Errorf("%w (state %s)", ErrNotOpen, s.State())
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, []byte(data)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (h *Handle) current() *socket {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.socket
}

// run dials, then pumps frames into events until the socket ends. Events are
// dropped only once the parent context is done.
func (h *Handle) run(parent, ctx context.Context, s *socket) {
	defer s.cancel()
	log := h.log.WithField("conn_id", s.id)

	conn, err := h.dialer.Dial(ctx, h.uri, h.protocols)
	if err != nil {
		s.setState(Closed)
		if s.requested() {
			err = nil
		}
		log.WithError(err).Warn("Connection attempt ended")
		h.emit(parent, Event{Type: EventClosed, ConnID: s.id, Err: err})
		return
	}

	if !s.attach(conn) {
		conn.Close()
		s.setState(Closed)
		log.Info("Connection closed before it opened")
		h.emit(parent, Event{Type: EventClosed, ConnID: s.id})
		return
	}
	// Not every backend watches ctx while blocked in Read.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log.WithField("subprotocol", conn.Subprotocol()).Info("Connection opened")
	h.emit(parent, Event{Type: EventOpened, ConnID: s.id})

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			conn.Close()
			s.setState(Closed)
			if errors.Is(err, io.EOF) || s.requested() {
				err = nil
			}
			log.WithError(err).Info("Connection closed")
			h.emit(parent, Event{Type: EventClosed, ConnID: s.id, Err: err})
			return
		}
		log.Debugf("Received %d bytes", len(data))
		h.emit(parent, Event{Type: EventMessage, ConnID: s.id, Data: data})
	}
}

func (h *Handle) emit(ctx context.Context, ev Event) {
	select {
	case h.events <- ev:
	case <-ctx.Done():
	}
}

func validateURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURI, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURI)
	}
	return nil
}

// socket is one transport resource and its ready state.
type socket struct {
	id     string
	cancel context.CancelFunc

	mu       sync.Mutex
	state    ReadyState
	conn     transport.Conn
	closeAsk bool
}

func (s *socket) State() ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *socket) setState(st ReadyState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *socket) requested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeAsk
}

// attach installs the dialed connection unless Close was called while
// connecting.
func (s *socket) attach(conn transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connecting {
		return false
	}
	s.conn = conn
	s.state = Open
	return true
}

func (s *socket) openConn() (transport.Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Open {
		return nil, false
	}
	return s.conn, true
}

// close moves the socket to Closing. A pending dial is cancelled; an open
// connection gets its closing handshake in the background.
func (s *socket) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Connecting:
		s.closeAsk = true
		s.state = Closing
		s.cancel()
	case Open:
		s.closeAsk = true
		s.state = Closing
		go s.conn.Close()
	}
}
