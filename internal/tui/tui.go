// Package tui is the line-oriented terminal front end of the chat client.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/omochice/wschat/internal/chatlog"
	"github.com/omochice/wschat/internal/client"
	"golang.org/x/term"
)

const helpText = `Commands:
  /nick NAME    set the username (only while disconnected)
  /connect      open the connection
  /disconnect   close the connection
  /quit         leave the client
  /help         show this help
Any other line is sent as a chat message.`

// Terminal renders the chat log and turns typed lines into controller
// actions. It implements client.View.
type Terminal struct {
	term       *term.Terminal
	color      bool
	timeFormat string

	mu       sync.Mutex
	username string
	message  string
	controls client.Controls
}

// Option configures a Terminal.
type Option func(*Terminal)

// WithColor enables ANSI colors per log category.
func WithColor(enabled bool) Option {
	return func(t *Terminal) { t.color = enabled }
}

// WithUsername pre-fills the username field.
func WithUsername(name string) Option {
	return func(t *Terminal) { t.username = name }
}

// New returns a terminal reading from and writing to rw.
func New(rw io.ReadWriter, opts ...Option) *Terminal {
	t := &Terminal{
		term:       term.NewTerminal(rw, ""),
		timeFormat: "15:04:05",
	}
	for _, opt := range opts {
		opt(t)
	}
	t.term.SetPrompt(t.prompt())
	return t
}

// SetSize updates the terminal dimensions.
func (t *Terminal) SetSize(width, height int) error {
	return t.term.SetSize(width, height)
}

// Username returns the name set with /nick or WithUsername.
func (t *Terminal) Username() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.username
}

// Message returns the line waiting to be sent.
func (t *Terminal) Message() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.message
}

// ClearMessage discards the pending line after it was sent.
func (t *Terminal) ClearMessage() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.message = ""
}

// SetControls records the enabled controls and reflects them in the prompt.
func (t *Terminal) SetControls(c client.Controls) {
	t.mu.Lock()
	t.controls = c
	t.mu.Unlock()
	t.term.SetPrompt(t.prompt())
}

// Append prints a chat log line above the prompt.
func (t *Terminal) Append(e chatlog.Entry) {
	stamp := e.Time.Format(t.timeFormat)
	line := fmt.Sprintf("%s %s", stamp, e.Text)
	if t.color {
		if c := t.colorFor(e.Category); c != nil {
			line = string(c) + line + string(t.term.Escape.Reset)
		}
	}
	fmt.Fprintln(t.term, line)
}

func (t *Terminal) colorFor(c chatlog.Category) []byte {
	esc := t.term.Escape
	switch c {
	case chatlog.Info:
		return esc.Cyan
	case chatlog.Warning:
		return esc.Yellow
	case chatlog.Error:
		return esc.Red
	case chatlog.Open:
		return esc.Green
	case chatlog.Close:
		return esc.Magenta
	default:
		return nil
	}
}

func (t *Terminal) prompt() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.controls.Send {
		return fmt.Sprintf("[open] %s> ", t.username)
	}
	return "[closed] > "
}

func (t *Terminal) notice(format string, args ...interface{}) {
	fmt.Fprintf(t.term, format+"\n", args...)
}

// Run reads lines until /quit, end of input or ctx is done, and delivers the
// resulting actions. It does not close actions.
func (t *Terminal) Run(ctx context.Context, actions chan<- client.Action) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := t.term.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		action, quit := t.interpret(line)
		if quit {
			return nil
		}
		if action == 0 {
			continue
		}
		select {
		case actions <- action:
		case <-ctx.Done():
			return nil
		}
	}
}

// interpret applies a typed line to the fields and returns the action it
// triggers, if any.
func (t *Terminal) interpret(line string) (client.Action, bool) {
	if !strings.HasPrefix(line, "/") {
		t.mu.Lock()
		t.message = line
		t.mu.Unlock()
		return client.ActionSend, false
	}

	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "nick":
		t.mu.Lock()
		editable := t.controls.Username
		if editable {
			t.username = arg
		}
		t.mu.Unlock()
		if !editable {
			t.notice("The username cannot be changed while connected.")
			return 0, false
		}
		t.term.SetPrompt(t.prompt())
		return 0, false
	case "connect":
		return client.ActionConnect, false
	case "disconnect":
		return client.ActionDisconnect, false
	case "quit", "exit":
		return 0, true
	case "help":
		t.notice("%s", helpText)
		return 0, false
	default:
		t.notice("Unknown command /%s. Type /help for the list of commands.", cmd)
		return 0, false
	}
}

var _ client.View = (*Terminal)(nil)
