package relay_test

import (
	"testing"

	"github.com/omochice/wschat/internal/relay"
	"github.com/omochice/wschat/pkg/protocol"
)

func TestStore_Recent(t *testing.T) {
	store, err := relay.OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer store.Close()

	for i, text := range []string{"a", "b", "c", "d", "e"} {
		if err := store.Append(protocol.Message{TS: int64(i + 1), UID: "alice", Msg: text}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{0, nil},
		{3, []string{"c", "d", "e"}},
		{10, []string{"a", "b", "c", "d", "e"}},
	}

	for _, tt := range tests {
		got, err := store.Recent(tt.limit)
		if err != nil {
			t.Fatalf("Recent(%d) error = %v", tt.limit, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("Recent(%d) = %+v, want %v", tt.limit, got, tt.want)
		}
		for i := range tt.want {
			if got[i].Msg != tt.want[i] {
				t.Errorf("Recent(%d)[%d] = %q, want %q", tt.limit, i, got[i].Msg, tt.want[i])
			}
		}
	}
}

func TestStore_Reopen(t *testing.T) {
	dir := t.TempDir()

	store, err := relay.OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	store.Append(protocol.Message{TS: 1, UID: "alice", Msg: "first"})
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	store, err = relay.OpenStore(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close()
	store.Append(protocol.Message{TS: 2, UID: "bob", Msg: "second"})

	got, err := store.Recent(5)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	want := []protocol.Message{
		{TS: 1, UID: "alice", Msg: "first"},
		{TS: 2, UID: "bob", Msg: "second"},
	}
	if len(got) != len(want) {
		t.Fatalf("Recent() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Recent()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestStore_AsHistory(t *testing.T) {
	store, err := relay.OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer store.Close()
	store.Append(protocol.Message{TS: 1, UID: "bob", Msg: "earlier"})

	hub := newTestHub(relay.WithHistory(store, 10))
	conn := newMockConn("127.0.0.1:1", "alice")
	close(conn.readCh)
	client := newClient(conn, "")
	runSession(t, hub, client)

	got := drain(t, client)
	if len(got) == 0 || got[0].Msg != "earlier" {
		t.Errorf("replayed %+v, want the stored message first", got)
	}
}
