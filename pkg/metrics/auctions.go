package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "auctionhouse"

// AuctionMetrics instruments the bidding engine.
type AuctionMetrics struct {
	bids          *prometheus.CounterVec
	retries       *prometheus.CounterVec
	finalizations *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewAuctionMetrics registers the engine metrics on reg. A nil registerer
// yields a no-op recorder.
func NewAuctionMetrics(reg prometheus.Registerer) *AuctionMetrics {
	if reg == nil {
		return &AuctionMetrics{}
	}
	bids := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auction",
		Name:      "bids_total",
		Help:      "Bids processed by the engine, by kind and result.",
	}, []string{"kind", "result"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auction",
		Name:      "retries_total",
		Help:      "Engine transactions retried after contention.",
	}, []string{"operation"})
	finalizations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auction",
		Name:      "finalizations_total",
		Help:      "Finalize calls, by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "auction",
		Name:      "operation_duration_seconds",
		Help:      "Latency of engine operations including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(bids, retries, finalizations, duration)
	return &AuctionMetrics{
		bids:          bids,
		retries:       retries,
		finalizations: finalizations,
		duration:      duration,
	}
}

// ObserveBid records a bid attempt. result is "accepted" or an error code.
func (m *AuctionMetrics) ObserveBid(kind, result string) {
	if m == nil || m.bids == nil {
		return
	}
	m.bids.WithLabelValues(normalizeLabel(kind), normalizeLabel(result)).Inc()
}

func (m *AuctionMetrics) IncRetry(operation string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *AuctionMetrics) IncFinalization(outcome string) {
	if m == nil || m.finalizations == nil {
		return
	}
	m.finalizations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *AuctionMetrics) ObserveDuration(operation string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(d.Seconds())
}
