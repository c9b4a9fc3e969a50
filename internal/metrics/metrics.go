package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncMetrics records the sync engine's diagnostics. A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	registry *prometheus.Registry

	eventsReceived  *prometheus.CounterVec
	eventsDiscarded *prometheus.CounterVec
	merges          *prometheus.CounterVec
	refetches       *prometheus.CounterVec
	reconnects      prometheus.Counter
	connectionState prometheus.Gauge
	bidSubmissions  *prometheus.CounterVec
	bidLatency      prometheus.Histogram
}

func New() *SyncMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &SyncMetrics{
		registry: reg,
		eventsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auction_sync",
				Subsystem: "push",
				Name:      "events_received_total",
				Help:      "Push events decoded, by kind",
			},
			[]string{"kind"},
		),
		eventsDiscarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auction_sync",
				Subsystem: "push",
				Name:      "events_discarded_total",
				Help:      "Push messages dropped before reaching the store",
			},
			[]string{"reason"},
		),
		merges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auction_sync",
				Subsystem: "store",
				Name:      "merges_total",
				Help:      "Store merge attempts by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		refetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auction_sync",
				Subsystem: "store",
				Name:      "refetches_total",
				Help:      "Snapshot refetches by result",
			},
			[]string{"result"},
		),
		reconnects: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "auction_sync",
				Subsystem: "connection",
				Name:      "reconnect_attempts_total",
				Help:      "Reconnect attempts made after transport loss",
			},
		),
		connectionState: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "auction_sync",
				Subsystem: "connection",
				Name:      "state",
				Help:      "0=disconnected 1=connecting 2=connected 3=reconnecting",
			},
		),
		bidSubmissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auction_sync",
				Subsystem: "bid",
				Name:      "submissions_total",
				Help:      "Bid submissions by result",
			},
			[]string{"result"},
		),
		bidLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "auction_sync",
				Subsystem: "bid",
				Name:      "request_duration_seconds",
				Help:      "Bid request round trip",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
		),
	}
}

func (m *SyncMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *SyncMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *SyncMetrics) EventReceived(kind string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(kind).Inc()
}

func (m *SyncMetrics) EventDiscarded(reason string) {
	if m == nil {
		return
	}
	m.eventsDiscarded.WithLabelValues(reason).Inc()
}

func (m *SyncMetrics) Merge(source, outcome string) {
	if m == nil {
		return
	}
	m.merges.WithLabelValues(source, outcome).Inc()
}

func (m *SyncMetrics) Refetch(result string) {
	if m == nil {
		return
	}
	m.refetches.WithLabelValues(result).Inc()
}

func (m *SyncMetrics) ReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *SyncMetrics) ConnectionState(state int) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
}

func (m *SyncMetrics) BidSubmitted(result string, seconds float64) {
	if m == nil {
		return
	}
	m.bidSubmissions.WithLabelValues(result).Inc()
	if seconds >= 0 {
		m.bidLatency.Observe(seconds)
	}
}
