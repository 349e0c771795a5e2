// Package chatlog holds the visible, append-only chat log.
package chatlog

import (
	"sync"
	"time"
)

// Category tags an entry with its meaning for rendering.
type Category string

const (
	Info    Category = "info"
	Warning Category = "warning"
	Error   Category = "error"
	Message Category = "message"
	Open    Category = "open"
	Close   Category = "close"
)

// Entry is one line of the log.
type Entry struct {
	Time     time.Time
	Category Category
	Text     string
}

// Sink receives every entry as it is appended.
type Sink interface {
	Append(Entry)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Entry)

// Append implements Sink.
func (f SinkFunc) Append(e Entry) { f(e) }

// Log is unbounded: entries are never rotated or truncated.
type Log struct {
	now func() time.Time

	mu      sync.Mutex
	entries []Entry
	sinks   []Sink
}

// New returns an empty log that forwards entries to sinks.
func New(sinks ...Sink) *Log {
	return &Log{now: time.Now, sinks: sinks}
}

// WithClock replaces the clock used to stamp entries.
func (l *Log) WithClock(now func() time.Time) *Log {
	l.now = now
	return l
}

// Subscribe adds a sink. Entries appended earlier are not replayed.
func (l *Log) Subscribe(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Append records text under category and returns the stored entry.
func (l *Log) Append(category Category, text string) Entry {
	e := Entry{Time: l.now(), Category: category, Text: text}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	sinks := append([]Sink(nil), l.sinks...)
	l.mu.Unlock()

	for _, s := range sinks {
		s.Append(e)
	}
	return e
}

// Info appends an info line.
func (l *Log) Info(text string) Entry { return l.Append(Info, text) }

// Warning appends a warning line.
func (l *Log) Warning(text string) Entry { return l.Append(Warning, text) }

// Error appends an error line.
func (l *Log) Error(text string) Entry { return l.Append(Error, text) }

// Entries returns a copy of everything appended so far.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Last returns the most recent entry, if any.
func (l *Log) Last() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}
