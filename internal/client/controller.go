package client

import (
	"context"
	"errors"
	"time"

	"github.com/omochice/wschat/internal/chatlog"
	"github.com/omochice/wschat/internal/connection"
	"github.com/omochice/wschat/internal/logger"
	"github.com/omochice/wschat/pkg/protocol"
)

// Log lines shown to the user.
const (
	LineLoaded        = "The chat client has been loaded."
	LineOpened        = "The connection has been opened."
	LineClosed        = "The connection has been closed."
	LineNeedUsername  = "Please enter a username."
	LineNeedMessage   = "Please enter a message."
	LineNeedOpen      = "Establish a connection first."
	LineNotConnected  = "The chat client is not connected."
	LineAlreadyOpened = "The chat client is already connected."
)

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used for outgoing timestamps and log entries.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLocation sets the zone incoming timestamps are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) { c.loc = loc }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// Controller validates user actions, forwards them to the connection and
// renders connection events. Its methods are not safe for concurrent use;
// Run serializes them.
type Controller struct {
	conn Connection
	view View
	chat *chatlog.Log
	log  *logger.Logger
	now  func() time.Time
	loc  *time.Location

	// ctx bounds the sockets opened by Connect.
	ctx context.Context
	// username is sent as the authentication payload once the socket opens.
	username string
}

// New returns a controller rendering into view.
func New(conn Connection, view View, opts ...Option) *Controller {
	c := &Controller{
		conn: conn,
		view: view,
		log:  logger.Nop(),
		now:  time.Now,
		loc:  time.Local,
		ctx:  context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.chat = chatlog.New(view).WithClock(c.now)
	return c
}

// Log returns the chat log.
func (c *Controller) Log() *chatlog.Log {
	return c.chat
}

// Start announces the client and sets the initial controls.
func (c *Controller) Start() {
	c.chat.Info(LineLoaded)
	c.Refresh()
}

// Refresh sets the controls from the connection state.
func (c *Controller) Refresh() {
	c.view.SetControls(ControlsFor(c.conn.State()))
}

// Connect opens a connection for the name in the username field.
func (c *Controller) Connect() {
	if c.conn.IsOpened() {
		c.chat.Warning(LineAlreadyOpened)
		return
	}
	username := c.view.Username()
	if username == "" {
		c.chat.Warning(LineNeedUsername)
		return
	}

	c.username = username
	if err := c.conn.Open(c.ctx); err != nil {
		c.log.WithError(err).Error("Failed to open connection")
		c.chat.Error(err.Error())
	}
	c.Refresh()
}

// Disconnect closes the connection.
func (c *Controller) Disconnect() {
	defer c.Refresh()

	if !c.conn.IsOpened() {
		c.chat.Warning(LineNotConnected)
		return
	}
	if err := c.conn.Close(); err != nil {
		c.log.WithError(err).Error("Failed to close connection")
		c.chat.Error(err.Error())
	}
}

// Send transmits the message field as an envelope and clears it.
func (c *Controller) Send() {
	if !c.conn.IsOpened() {
		c.chat.Warning(LineNeedOpen)
		return
	}
	text := c.view.Message()
	if text == "" {
		c.chat.Warning(LineNeedMessage)
		return
	}

	msg := protocol.NewText(text, c.now())
	data, err := msg.Encode()
	if err != nil {
		c.chat.Error(err.Error())
		return
	}
	if err := c.conn.Send(string(data)); err != nil {
		c.log.WithError(err).Error("Failed to send message")
		c.chat.Error(err.Error())
		return
	}
	c.view.ClearMessage()
}

// Do dispatches a user action.
func (c *Controller) Do(a Action) {
	switch a {
	case ActionConnect:
		c.Connect()
	case ActionDisconnect:
		c.Disconnect()
	case ActionSend:
		c.Send()
	default:
		c.log.WithField("action", int(a)).Warn("Ignoring unknown action")
	}
}

// HandleEvent renders a connection event. Events of a socket that has since
// been replaced are dropped.
func (c *Controller) HandleEvent(ev connection.Event) {
	if ev.ConnID != c.conn.CurrentID() {
		c.log.WithFields(map[string]interface{}{
			"conn_id": ev.ConnID,
			"event":   ev.Type.String(),
		}).Debug("Dropping event of replaced socket")
		return
	}

	switch ev.Type {
	case connection.EventOpened:
		c.Refresh()
		c.chat.Append(chatlog.Open, LineOpened)
		if err := c.conn.Send(c.username); err != nil {
			c.log.WithError(err).Error("Failed to authenticate")
			c.chat.Error(err.Error())
		}
	case connection.EventMessage:
		var msg protocol.Message
		if err := msg.Decode(ev.Data); err != nil {
			c.log.WithError(err).Warn("Received undecodable payload")
			c.chat.Error(err.Error())
			return
		}
		line := msg.Render(c.loc)
		if line == "" {
			c.log.Debug("Ignoring empty message")
			return
		}
		c.chat.Append(chatlog.Message, line)
	case connection.EventClosed:
		c.Refresh()
		c.chat.Append(chatlog.Close, LineClosed)
		if ev.Err != nil {
			c.chat.Error(ev.Err.Error())
		}
	}
}

// Run starts the controller and processes actions and connection events one
// at a time until ctx is done or actions is closed. A connection that is
// open or still connecting is closed on the way out.
func (c *Controller) Run(ctx context.Context, actions <-chan Action) error {
	c.ctx = ctx
	c.Start()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case a, ok := <-actions:
			if !ok {
				c.shutdown()
				return nil
			}
			c.log.WithField("action", a.String()).Debug("Handling action")
			c.Do(a)
		case ev := <-c.conn.Events():
			c.HandleEvent(ev)
		}
	}
}

func (c *Controller) shutdown() {
	if c.conn.State() == connection.Closed {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.log.WithError(err).Warn("Failed to close connection on shutdown")
	}
}
