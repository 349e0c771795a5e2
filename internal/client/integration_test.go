package client_test

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/omochice/wschat/internal/chatlog"
	"github.com/omochice/wschat/internal/client"
	"github.com/omochice/wschat/internal/config"
	"github.com/omochice/wschat/internal/connection"
	"github.com/omochice/wschat/internal/relay"
	"github.com/omochice/wschat/internal/transport"
	_ "github.com/omochice/wschat/internal/transport/gobwas"
	_ "github.com/omochice/wschat/internal/transport/gorilla"
	_ "github.com/omochice/wschat/internal/transport/nhooyr"
)

type session struct {
	view    *fakeView
	actions chan client.Action
	done    chan error
}

func startSession(t *testing.T, ctx context.Context, cfg config.Connection, transportName, username string) *session {
	t.Helper()
	dialer, err := transport.Lookup(transportName)
	if err != nil {
		t.Fatalf("Lookup(%q) error = %v", transportName, err)
	}
	view := newFakeView()
	view.setUsername(username)
	ctrl := client.New(connection.New(cfg, dialer), view, client.WithLocation(time.UTC))

	s := &session{view: view, actions: make(chan client.Action), done: make(chan error, 1)}
	go func() { s.done <- ctrl.Run(ctx, s.actions) }()
	t.Cleanup(func() {
		close(s.actions)
		<-s.done
	})
	return s
}

// waitLine blocks until the view shows a line of category containing text.
func (s *session) waitLine(t *testing.T, category chatlog.Category, text string) chatlog.Entry {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-s.view.appended:
			if e.Category == category && strings.Contains(e.Text, text) {
				return e
			}
		case <-deadline:
			t.Fatalf("timeout waiting for [%s] %q", category, text)
			return chatlog.Entry{}
		}
	}
}

func TestIntegration_ClientsThroughRelay(t *testing.T) {
	for _, name := range transport.Names() {
		t.Run(name, func(t *testing.T) {
			srv := relay.New(relay.Config{Resource: "/chat", Protocols: []string{"chat"}}, relay.NewHub(), nil)
			ts := httptest.NewServer(srv.Handler())
			defer ts.Close()
			defer srv.Stop()

			u, err := url.Parse(ts.URL)
			if err != nil {
				t.Fatal(err)
			}
			port, _ := strconv.Atoi(u.Port())
			cfg := config.Connection{
				Scheme:    config.SchemeWS,
				Host:      u.Hostname(),
				Port:      port,
				Resource:  "/chat",
				Protocols: []string{"chat"},
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			alice := startSession(t, ctx, cfg, name, "alice")
			bob := startSession(t, ctx, cfg, name, "bob")

			alice.actions <- client.ActionConnect
			alice.waitLine(t, chatlog.Open, client.LineOpened)
			alice.waitLine(t, chatlog.Message, "alice joined the chat.")

			bob.actions <- client.ActionConnect
			bob.waitLine(t, chatlog.Open, client.LineOpened)
			alice.waitLine(t, chatlog.Message, "bob joined the chat.")

			alice.view.setMessage("Hello from alice")
			alice.actions <- client.ActionSend

			got := bob.waitLine(t, chatlog.Message, "Hello from alice")
			if !strings.HasPrefix(got.Text, "alice @ ") {
				t.Errorf("line = %q, want it attributed to alice", got.Text)
			}
			alice.waitLine(t, chatlog.Message, "Hello from alice")

			bob.actions <- client.ActionDisconnect
			bob.waitLine(t, chatlog.Close, client.LineClosed)
			alice.waitLine(t, chatlog.Message, "bob left the chat.")
		})
	}
}

func TestIntegration_ServerShutdown(t *testing.T) {
	srv := relay.New(relay.Config{Resource: "/chat"}, relay.NewHub(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	u, _ := url.Parse(ts.URL)
	port, _ := strconv.Atoi(u.Port())
	cfg := config.Connection{Scheme: config.SchemeWS, Host: u.Hostname(), Port: port, Resource: "/chat"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice := startSession(t, ctx, cfg, transport.Default, "alice")

	alice.actions <- client.ActionConnect
	alice.waitLine(t, chatlog.Message, "alice joined the chat.")

	srv.Stop()

	alice.waitLine(t, chatlog.Close, client.LineClosed)
	if got := alice.view.currentControls(); got != closedControls {
		t.Errorf("controls = %+v, want %+v", got, closedControls)
	}
}
