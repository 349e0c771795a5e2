package relay

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/omochice/wschat/internal/logger"
	"github.com/omochice/wschat/pkg/protocol"
)

const (
	// DefaultSubject carries envelopes between relay instances.
	DefaultSubject = "wschat.messages"
	originHeader   = "Wschat-Origin"
)

// Bus shares envelopes with other relay instances.
type Bus interface {
	Publish(msg protocol.Message) error
	// Subscribe delivers envelopes published by other instances.
	Subscribe(fn func(protocol.Message)) error
	Close() error
}

// NATSBus is a Bus over a NATS subject. Each instance tags what it publishes
// with its origin and skips its own messages on receive.
type NATSBus struct {
	nc      *nats.Conn
	subject string
	origin  string
	sub     *nats.Subscription
	log     *logger.Logger
}

// DialNATS connects to the NATS server at url.
func DialNATS(url, subject string) (*NATSBus, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	origin := uuid.NewString()
	nc, err := nats.Connect(url, nats.Name("wschat-relay-"+origin))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSBus{
		nc:      nc,
		subject: subject,
		origin:  origin,
		log:     logger.New("nats").WithField("origin", origin),
	}, nil
}

// Publish implements Bus.
func (b *NATSBus) Publish(msg protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	m := nats.NewMsg(b.subject)
	m.Header.Set(originHeader, b.origin)
	m.Data = data
	if err := b.nc.PublishMsg(m); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}
	return nil
}

// Subscribe implements Bus.
func (b *NATSBus) Subscribe(fn func(protocol.Message)) error {
	sub, err := b.nc.Subscribe(b.subject, func(m *nats.Msg) {
		if msg, ok := b.decode(m); ok {
			fn(msg)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.subject, err)
	}
	b.sub = sub
	return nil
}

func (b *NATSBus) decode(m *nats.Msg) (protocol.Message, bool) {
	if m.Header.Get(originHeader) == b.origin {
		return protocol.Message{}, false
	}
	var msg protocol.Message
	if err := msg.Decode(m.Data); err != nil {
		b.log.WithError(err).Warn("Dropping undecodable bus message")
		return protocol.Message{}, false
	}
	return msg, true
}

// Close implements Bus.
func (b *NATSBus) Close() error {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			b.log.WithError(err).Warn("Failed to unsubscribe")
		}
	}
	return b.nc.Drain()
}
