package relay_test

import (
	"context"
	"io"
	"sync"

	"github.com/omochice/wschat/internal/relay"
	"github.com/omochice/wschat/pkg/protocol"
)

// mockConn is a mock implementation of relay.Conn for testing.
type mockConn struct {
	readCh     chan []byte
	writtenMu  sync.Mutex
	written    [][]byte
	closed     bool
	remoteAddr string
}

func newMockConn(addr string, frames ...string) *mockConn {
	m := &mockConn{
		readCh:     make(chan []byte, len(frames)+10),
		remoteAddr: addr,
	}
	for _, f := range frames {
		m.readCh <- []byte(f)
	}
	return m
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data, ok := <-m.readCh:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	}
}

func (m *mockConn) Write(ctx context.Context, data []byte) error {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	m.written = append(m.written, copied)
	return nil
}

func (m *mockConn) Close() error {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

// memoryHistory is an in-memory relay.History.
type memoryHistory struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (h *memoryHistory) Append(msg protocol.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
	return nil
}

func (h *memoryHistory) Recent(limit int) ([]protocol.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit > len(h.msgs) {
		limit = len(h.msgs)
	}
	return append([]protocol.Message(nil), h.msgs[len(h.msgs)-limit:]...), nil
}

func (h *memoryHistory) all() []protocol.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.Message(nil), h.msgs...)
}

// fakeBus records what the hub publishes and lets tests inject remote
// envelopes.
type fakeBus struct {
	mu        sync.Mutex
	published []protocol.Message
	deliver   func(protocol.Message)
}

func (b *fakeBus) Publish(msg protocol.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, msg)
	return nil
}

func (b *fakeBus) Subscribe(fn func(protocol.Message)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver = fn
	return nil
}

func (b *fakeBus) Close() error { return nil }

func (b *fakeBus) all() []protocol.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]protocol.Message(nil), b.published...)
}

var (
	_ relay.Conn    = (*mockConn)(nil)
	_ relay.History = (*memoryHistory)(nil)
	_ relay.Bus     = (*fakeBus)(nil)
)
