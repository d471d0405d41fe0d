package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics instruments the outbox relay.
type OutboxMetrics struct {
	events   *prometheus.CounterVec
	dlq      *prometheus.CounterVec
	latency  prometheus.Histogram
	batches  *prometheus.CounterVec
	lastPass prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox rows handled by the relay, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	dlq := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "dead_lettered_total",
		Help:      "Outbox rows moved to the DLQ, by reason.",
	}, []string{"reason"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "publish_duration_seconds",
		Help:      "Time from Publish to broker acknowledgement.",
		Buckets:   prometheus.DefBuckets,
	})
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "batches_total",
		Help:      "Relay polling passes, by result.",
	}, []string{"result"})
	lastPass := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "last_batch_timestamp_seconds",
		Help:      "Unix time of the last relay pass that completed without error.",
	})
	reg.MustRegister(events, dlq, latency, batches, lastPass)
	return &OutboxMetrics{
		events:   events,
		dlq:      dlq,
		latency:  latency,
		batches:  batches,
		lastPass: lastPass,
	}
}

// ObserveEvent records one row outcome: published, retry or dead_lettered.
func (m *OutboxMetrics) ObserveEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) DeadLettered(reason string) {
	if m == nil || m.dlq == nil {
		return
	}
	m.dlq.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *OutboxMetrics) ObservePublish(d time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.Observe(d.Seconds())
}

// ObserveBatch records a polling pass. result is "processed", "idle" or "error".
func (m *OutboxMetrics) ObserveBatch(result string, at time.Time) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.WithLabelValues(normalizeLabel(result)).Inc()
	if result != "error" {
		m.lastPass.Set(float64(at.Unix()))
	}
}
