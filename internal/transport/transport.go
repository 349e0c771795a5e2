// Package transport defines the WebSocket capability the connection handle
// drives. Concrete clients live in the subpackages.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnsupported is returned when no transport is registered under a name.
var ErrUnsupported = errors.New("transport not supported")

// Conn abstracts one established WebSocket connection.
type Conn interface {
	// Read blocks for the next data frame. It returns io.EOF when the peer
	// closes normally and another error for any other failure.
	Read(ctx context.Context) ([]byte, error)

	// Write sends data as a single text frame.
	Write(ctx context.Context, data []byte) error

	// Close performs the closing handshake and releases the connection.
	// Calling it more than once is safe.
	Close() error

	// Subprotocol returns the subprotocol selected by the server.
	Subprotocol() string
}

// Dialer opens WebSocket connections.
type Dialer interface {
	Dial(ctx context.Context, uri string, protocols []string) (Conn, error)
}

// Default is the transport used when none is configured.
const Default = "gorilla"

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func() Dialer)
)

// Register makes a dialer constructor available by name. Backends call it
// from init.
func Register(name string, factory func() Dialer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("transport: Register called twice for " + name)
	}
	registry[name] = factory
}

// Lookup returns a new dialer for name. An empty name selects Default.
func Lookup(name string) (Dialer, error) {
	if name == "" {
		name = Default
	}
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, name)
	}
	return factory(), nil
}

// Names lists the registered transports in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
