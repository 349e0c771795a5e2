package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/omochice/wschat/internal/logger"
	"github.com/omochice/wschat/pkg/protocol"
)

const (
	sourceLocal  = "local"
	sourceRemote = "remote"
	sourceNotice = "notice"
)

// Client is a connection and the name it authenticated with.
type Client struct {
	Conn     Conn
	Username string
	Outgoing chan []byte
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHistory replays up to size stored envelopes to each new client.
func WithHistory(h History, size int) HubOption {
	return func(hub *Hub) {
		hub.history = h
		hub.historySize = size
	}
}

// WithBus shares envelopes with other relay instances.
func WithBus(b Bus) HubOption {
	return func(hub *Hub) { hub.bus = b }
}

// WithMetrics records hub activity.
func WithMetrics(m *Metrics) HubOption {
	return func(hub *Hub) { hub.metrics = m }
}

// WithClock sets the clock used to stamp envelopes.
func WithClock(now func() time.Time) HubOption {
	return func(hub *Hub) { hub.now = now }
}

// Hub manages the authenticated clients and broadcasts envelopes to them.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	history     History
	historySize int
	bus         Bus
	metrics     *Metrics
	now         func() time.Time
	log         *logger.Logger
}

// NewHub creates a new Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[*Client]bool),
		now:     time.Now,
		log:     logger.New("hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start subscribes to the bus, if any.
func (h *Hub) Start() error {
	if h.bus == nil {
		return nil
	}
	return h.bus.Subscribe(h.deliverRemote)
}

// Register adds a client to the broadcast set.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	h.metrics.clientJoined()
}

// Unregister removes a client from the broadcast set.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()
	if ok {
		h.metrics.clientLeft()
	}
}

// ClientCount returns number of authenticated clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleClient runs the session of one connection until it ends. The first
// frame is the username; every later frame is a message from that user.
// The caller owns client.Outgoing and must not close it before HandleClient
// returns.
func (h *Hub) HandleClient(ctx context.Context, client *Client) error {
	log := h.log.WithField("remote_addr", client.Conn.RemoteAddr())

	data, err := client.Conn.Read(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to read username: %w", err)
	}
	client.Username = SanitizeName(string(data))
	log = log.WithField("username", client.Username)

	h.replay(client)
	h.Register(client)
	defer func() {
		h.Unregister(client)
		h.notice(client.Username + " left the chat.")
		log.Info("User left")
	}()
	log.Info("User joined")
	h.notice(client.Username + " joined the chat.")

	for {
		data, err := client.Conn.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read from client: %w", err)
		}

		msg, ok := h.stamp(client, data)
		if !ok {
			continue
		}
		log.Debugf("Message of %d bytes", len(msg.Msg))
		h.Publish(msg)
	}
}

// stamp turns a payload into an envelope attributed to client. A payload
// that is not an envelope is taken as bare message text.
func (h *Hub) stamp(client *Client, data []byte) (protocol.Message, bool) {
	var msg protocol.Message
	if err := msg.Decode(data); err != nil {
		msg = protocol.Message{Msg: string(data)}
	}
	msg.UID = client.Username
	msg.Msg = SanitizeMessage(msg.Msg)
	if msg.TS == 0 {
		msg.TS = h.now().Unix()
	}
	return msg, msg.Msg != ""
}

// Publish stores msg, shares it with other instances and broadcasts it to
// every local client.
func (h *Hub) Publish(msg protocol.Message) {
	if h.history != nil {
		if err := h.history.Append(msg); err != nil {
			h.log.WithError(err).Error("Failed to store message")
		}
	}
	if h.bus != nil {
		if err := h.bus.Publish(msg); err != nil {
			h.log.WithError(err).Error("Failed to share message")
		}
	}
	h.broadcast(msg, sourceLocal)
}

func (h *Hub) deliverRemote(msg protocol.Message) {
	if h.history != nil && msg.UID != "" {
		if err := h.history.Append(msg); err != nil {
			h.log.WithError(err).Error("Failed to store message")
		}
	}
	h.broadcast(msg, sourceRemote)
}

// notice announces a membership change. Notices carry no uid and are not
// stored.
func (h *Hub) notice(text string) {
	msg := protocol.Message{TS: h.now().Unix(), Msg: text}
	if h.bus != nil {
		if err := h.bus.Publish(msg); err != nil {
			h.log.WithError(err).Error("Failed to share notice")
		}
	}
	h.broadcast(msg, sourceNotice)
}

func (h *Hub) replay(client *Client) {
	if h.history == nil || h.historySize <= 0 {
		return
	}
	msgs, err := h.history.Recent(h.historySize)
	if err != nil {
		h.log.WithError(err).Error("Failed to load history")
		return
	}
	for _, msg := range msgs {
		data, err := msg.Encode()
		if err != nil {
			continue
		}
		select {
		case client.Outgoing <- data:
		default:
			h.metrics.droppedDelivery()
		}
	}
}

// broadcast queues msg for every authenticated client, sender included.
func (h *Hub) broadcast(msg protocol.Message, source string) {
	data, err := msg.Encode()
	if err != nil {
		h.log.WithError(err).Error("Failed to encode message")
		return
	}
	h.metrics.relayed(source)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.Outgoing <- data:
		default:
			h.metrics.droppedDelivery()
			h.log.WithField("username", client.Username).Warn("Client queue full, skipping")
		}
	}
}

// CloseAll closes every authenticated connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		client.Conn.Close()
	}
}
