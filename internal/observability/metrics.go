package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting relay metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Live websocket connections and populated rooms
//   - Inbound events by kind and outcome
//   - Fan-out deliveries, including drops on slow consumers
//   - Read-receipt batch sizes and durations
//   - Message store query performance
type Metrics struct {
	// ConnectionsActive is a gauge of live websocket connections.
	ConnectionsActive prometheus.Gauge

	// RoomsActive is a gauge of rooms with at least one member.
	RoomsActive prometheus.Gauge

	// EventsTotal counts inbound events.
	// Labels: event (join|send_message|markAsRead), status (ok|error)
	EventsTotal *prometheus.CounterVec

	// DeliveriesTotal counts outbound room deliveries.
	// Labels: event (new_message|message_read)
	DeliveriesTotal *prometheus.CounterVec

	// DeliveriesDropped counts deliveries dropped because a connection's
	// send buffer was full.
	// Labels: event
	DeliveriesDropped *prometheus.CounterVec

	// ReadBatchSize observes the number of message ids per mark-as-read batch.
	ReadBatchSize prometheus.Histogram

	// ReadBatchDuration measures the full mark-as-read round trip in seconds
	// (update + re-read + fan-out).
	ReadBatchDuration prometheus.Histogram

	// StoreQueryDuration measures message store query latency in seconds.
	// Labels: operation (insert|select|update)
	StoreQueryDuration *prometheus.HistogramVec

	// StoreQueryTotal counts message store queries.
	// Labels: operation, status (success|error)
	StoreQueryTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the default registry.
// This should be called once at application startup.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics with the given registerer. Tests use
// this with a private registry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Number of live websocket connections",
		}),

		RoomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_rooms_active",
			Help: "Number of rooms with at least one member",
		}),

		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_events_total",
				Help: "Total inbound events by kind and outcome",
			},
			[]string{"event", "status"},
		),

		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_deliveries_total",
				Help: "Total outbound room deliveries by event",
			},
			[]string{"event"},
		),

		DeliveriesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_deliveries_dropped_total",
				Help: "Deliveries dropped due to a full connection send buffer",
			},
			[]string{"event"},
		),

		ReadBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_read_batch_size",
			Help:    "Message ids per mark-as-read batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),

		ReadBatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_read_batch_duration_seconds",
			Help:    "Duration of the mark-as-read round trip in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		StoreQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_store_query_duration_seconds",
				Help:    "Duration of message store queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),

		StoreQueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_store_queries_total",
				Help: "Total message store queries by operation and status",
			},
			[]string{"operation", "status"},
		),
	}
}

// NopMetrics returns metrics backed by a throwaway registry, for components
// constructed without an explicit Metrics.
func NopMetrics() *Metrics {
	return NewMetricsWith(prometheus.NewRegistry())
}
