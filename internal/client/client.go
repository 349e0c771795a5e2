// Package client implements the chat controller that binds a user interface
// to a connection handle.
package client

import (
	"context"

	"github.com/omochice/wschat/internal/chatlog"
	"github.com/omochice/wschat/internal/connection"
)

// Connection is the part of *connection.Handle the controller drives.
type Connection interface {
	IsOpened() bool
	State() connection.ReadyState
	Open(ctx context.Context) error
	Close() error
	Send(data string) error
	Events() <-chan connection.Event
	CurrentID() string
}

// View is the user interface surface. Its fields are read and its controls
// set from the controller goroutine only.
type View interface {
	// Username returns the content of the username field.
	Username() string
	// Message returns the content of the message field.
	Message() string
	ClearMessage()
	SetControls(Controls)
	// Append renders one chat log line.
	Append(chatlog.Entry)
}

// Controls holds the enabled state of every control.
type Controls struct {
	Username   bool
	Connect    bool
	Disconnect bool
	Message    bool
	Send       bool
}

// ControlsFor returns the control layout for a ready state. While a socket is
// connecting or closing every control is disabled.
func ControlsFor(state connection.ReadyState) Controls {
	switch state {
	case connection.Open:
		return Controls{Disconnect: true, Message: true, Send: true}
	case connection.Closed:
		return Controls{Username: true, Connect: true}
	default:
		return Controls{}
	}
}

// Action is a user interaction.
type Action int

const (
	ActionConnect Action = iota + 1
	ActionDisconnect
	ActionSend
)

// String returns the string representation of Action.
func (a Action) String() string {
	switch a {
	case ActionConnect:
		return "connect"
	case ActionDisconnect:
		return "disconnect"
	case ActionSend:
		return "send"
	default:
		return "unknown"
	}
}

var _ Connection = (*connection.Handle)(nil)
