package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the relay's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	clients  prometheus.Gauge
	messages *prometheus.CounterVec
	dropped  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wschat",
			Subsystem: "relay",
			Name:      "clients_connected",
			Help:      "Number of authenticated clients",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wschat",
			Subsystem: "relay",
			Name:      "messages_relayed_total",
			Help:      "Envelopes broadcast to local clients by source",
		}, []string{"source"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wschat",
			Subsystem: "relay",
			Name:      "deliveries_dropped_total",
			Help:      "Envelopes skipped because a client queue was full",
		}),
	}
	for _, c := range []prometheus.Collector{m.clients, m.messages, m.dropped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) clientJoined() {
	if m != nil {
		m.clients.Inc()
	}
}

func (m *Metrics) clientLeft() {
	if m != nil {
		m.clients.Dec()
	}
}

func (m *Metrics) relayed(source string) {
	if m != nil {
		m.messages.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) droppedDelivery() {
	if m != nil {
		m.dropped.Inc()
	}
}
