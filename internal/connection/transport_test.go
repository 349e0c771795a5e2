package connection_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/omochice/wschat/internal/config"
	"github.com/omochice/wschat/internal/connection"
	"github.com/omochice/wschat/internal/transport"
	_ "github.com/omochice/wschat/internal/transport/gobwas"
	_ "github.com/omochice/wschat/internal/transport/gorilla"
	_ "github.com/omochice/wschat/internal/transport/nhooyr"
	"nhooyr.io/websocket"
)

// newSilentServer accepts connections and reads until the peer goes away
// without ever writing.
func newSilentServer(t *testing.T) (*httptest.Server, config.Connection) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{"chat"}})
		if err != nil {
			return
		}
		defer c.CloseNow()
		for {
			if _, _, err := c.Read(context.Background()); err != nil {
				return
			}
		}
	}))

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(u.Port())
	return server, config.Connection{
		Scheme:    config.SchemeWS,
		Host:      u.Hostname(),
		Port:      port,
		Resource:  "/chat",
		Protocols: []string{"chat"},
	}
}

func TestHandle_ContextEndsSocket(t *testing.T) {
	server, cfg := newSilentServer(t)
	defer server.Close()

	for _, name := range transport.Names() {
		t.Run(name, func(t *testing.T) {
			dialer, err := transport.Lookup(name)
			if err != nil {
				t.Fatal(err)
			}
			h := connection.New(cfg, dialer)

			if got := h.Protocols(); !reflect.DeepEqual(got, []string{"chat"}) {
				t.Errorf("Protocols() = %v, want [chat]", got)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := h.Open(ctx); err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			expectEvent(t, h, connection.EventOpened)
			if got := h.Subprotocol(); got != "chat" {
				t.Errorf("Subprotocol() = %q, want chat", got)
			}

			cancel()

			deadline := time.Now().Add(2 * time.Second)
			for h.State() != connection.Closed {
				if time.Now().After(deadline) {
					t.Fatalf("State() = %v after context cancel, want CLOSED", h.State())
				}
				time.Sleep(10 * time.Millisecond)
			}
			if h.IsOpened() {
				t.Error("IsOpened() = true after context cancel")
			}
			if got := h.Subprotocol(); got != "" {
				t.Errorf("Subprotocol() = %q after close, want empty", got)
			}
		})
	}
}
