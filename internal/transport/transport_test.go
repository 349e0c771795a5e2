package transport_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/omochice/wschat/internal/transport"
	"github.com/omochice/wschat/internal/transport/gobwas"
	"github.com/omochice/wschat/internal/transport/gorilla"
	"github.com/omochice/wschat/internal/transport/nhooyr"
	"nhooyr.io/websocket"
)

var backends = []string{gorilla.Name, nhooyr.Name, gobwas.Name}

func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{"chat"}})
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")

		ctx := context.Background()
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			if err := c.Write(ctx, typ, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestLookup(t *testing.T) {
	for _, name := range backends {
		if _, err := transport.Lookup(name); err != nil {
			t.Errorf("Lookup(%q) error = %v", name, err)
		}
	}

	if _, err := transport.Lookup(""); err != nil {
		t.Errorf("Lookup(\"\") error = %v, want default transport", err)
	}

	_, err := transport.Lookup("carrier-pigeon")
	if !errors.Is(err, transport.ErrUnsupported) {
		t.Errorf("Lookup(unknown) error = %v, want ErrUnsupported", err)
	}
}

func TestNames(t *testing.T) {
	names := strings.Join(transport.Names(), ",")
	if names != "gobwas,gorilla,nhooyr" {
		t.Errorf("Names() = %s", names)
	}
}

func TestConn_Echo(t *testing.T) {
	server := newEchoServer(t)
	defer server.Close()

	for _, name := range backends {
		t.Run(name, func(t *testing.T) {
			dialer, err := transport.Lookup(name)
			if err != nil {
				t.Fatal(err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn, err := dialer.Dial(ctx, wsURL(server), []string{"chat"})
			if err != nil {
				t.Fatalf("Dial() error = %v", err)
			}
			defer conn.Close()

			if got := conn.Subprotocol(); got != "chat" {
				t.Errorf("Subprotocol() = %q, want chat", got)
			}

			if err := conn.Write(ctx, []byte(`{"msg":"hello"}`)); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			data, err := conn.Read(ctx)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if string(data) != `{"msg":"hello"}` {
				t.Errorf("Read() = %q", string(data))
			}

			if err := conn.Close(); err != nil {
				t.Logf("Close() error = %v", err)
			}
			if _, err := conn.Read(ctx); err == nil {
				t.Error("Read() after Close() returned nil error")
			}
		})
	}
}

func TestConn_ServerClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := context.Background()
		c.Write(ctx, websocket.MessageText, []byte("bye"))
		c.Close(websocket.StatusNormalClosure, "done")
	}))
	defer server.Close()

	for _, name := range backends {
		t.Run(name, func(t *testing.T) {
			dialer, _ := transport.Lookup(name)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn, err := dialer.Dial(ctx, wsURL(server), nil)
			if err != nil {
				t.Fatalf("Dial() error = %v", err)
			}
			defer conn.Close()

			data, err := conn.Read(ctx)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if string(data) != "bye" {
				t.Errorf("Read() = %q, want bye", string(data))
			}
			if _, err := conn.Read(ctx); err == nil {
				t.Error("Read() after server close returned nil error")
			}
		})
	}
}

func TestDial_Refused(t *testing.T) {
	server := newEchoServer(t)
	url := wsURL(server)
	server.Close()

	for _, name := range backends {
		t.Run(name, func(t *testing.T) {
			dialer, _ := transport.Lookup(name)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			if _, err := dialer.Dial(ctx, url, nil); err == nil {
				t.Error("Dial() to a closed server returned nil error")
			}
		})
	}
}
