package chatlog_test

import (
	"testing"
	"time"

	"github.com/omochice/wschat/internal/chatlog"
)

func TestLog_Append(t *testing.T) {
	stamp := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var forwarded []chatlog.Entry
	log := chatlog.New(chatlog.SinkFunc(func(e chatlog.Entry) {
		forwarded = append(forwarded, e)
	})).WithClock(func() time.Time { return stamp })

	log.Info("The chat client has been loaded.")
	log.Warning("Please enter a username.")
	log.Append(chatlog.Open, "The connection has been opened.")

	entries := log.Entries()
	if len(entries) != 3 {
		t.Fatalf("len(Entries()) = %d, want 3", len(entries))
	}
	want := []chatlog.Category{chatlog.Info, chatlog.Warning, chatlog.Open}
	for i, e := range entries {
		if e.Category != want[i] {
			t.Errorf("entry %d category = %q, want %q", i, e.Category, want[i])
		}
		if !e.Time.Equal(stamp) {
			t.Errorf("entry %d time = %v, want %v", i, e.Time, stamp)
		}
	}
	if len(forwarded) != 3 {
		t.Errorf("sink received %d entries, want 3", len(forwarded))
	}
}

func TestLog_EntriesIsCopy(t *testing.T) {
	log := chatlog.New()
	log.Error("boom")

	entries := log.Entries()
	entries[0].Text = "changed"

	if last, _ := log.Last(); last.Text != "boom" {
		t.Errorf("Last().Text = %q, want %q", last.Text, "boom")
	}
}

func TestLog_Unbounded(t *testing.T) {
	log := chatlog.New()
	for i := 0; i < 10000; i++ {
		log.Append(chatlog.Message, "line")
	}
	if got := log.Len(); got != 10000 {
		t.Errorf("Len() = %d, want 10000", got)
	}
}

func TestLog_Subscribe(t *testing.T) {
	log := chatlog.New()
	log.Info("before")

	var got []string
	log.Subscribe(chatlog.SinkFunc(func(e chatlog.Entry) { got = append(got, e.Text) }))
	log.Info("after")

	if len(got) != 1 || got[0] != "after" {
		t.Errorf("subscriber received %v, want [after]", got)
	}
}

func TestLog_LastEmpty(t *testing.T) {
	if _, ok := chatlog.New().Last(); ok {
		t.Error("Last() on empty log reported an entry")
	}
}
