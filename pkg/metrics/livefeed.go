package metrics

import "github.com/prometheus/client_golang/prometheus"

// LiveFeedMetrics instruments the websocket fan-out service.
type LiveFeedMetrics struct {
	connections prometheus.Gauge
	delivered   *prometheus.CounterVec
	dropped     prometheus.Counter
	consumed    *prometheus.CounterVec
}

func NewLiveFeedMetrics(reg prometheus.Registerer) *LiveFeedMetrics {
	if reg == nil {
		return &LiveFeedMetrics{}
	}
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "livefeed",
		Name:      "connections",
		Help:      "Open websocket connections.",
	})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "livefeed",
		Name:      "messages_delivered_total",
		Help:      "Messages queued to subscribers, by event type.",
	}, []string{"event_type"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "livefeed",
		Name:      "messages_dropped_total",
		Help:      "Messages dropped because a subscriber's buffer was full.",
	})
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "livefeed",
		Name:      "pubsub_messages_total",
		Help:      "Pub/Sub messages handled, by result.",
	}, []string{"result"})
	reg.MustRegister(connections, delivered, dropped, consumed)
	return &LiveFeedMetrics{
		connections: connections,
		delivered:   delivered,
		dropped:     dropped,
		consumed:    consumed,
	}
}

func (m *LiveFeedMetrics) ConnectionOpened() {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Inc()
}

func (m *LiveFeedMetrics) ConnectionClosed() {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Dec()
}

func (m *LiveFeedMetrics) Delivered(eventType string, n int) {
	if m == nil || m.delivered == nil || n <= 0 {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(eventType)).Add(float64(n))
}

func (m *LiveFeedMetrics) Dropped() {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.Inc()
}

// Consumed records a Pub/Sub message outcome: ack, nack, duplicate or invalid.
func (m *LiveFeedMetrics) Consumed(result string) {
	if m == nil || m.consumed == nil {
		return
	}
	m.consumed.WithLabelValues(normalizeLabel(result)).Inc()
}
