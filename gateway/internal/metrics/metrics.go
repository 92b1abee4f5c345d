// Package metrics exposes Prometheus collectors for the Gateway's tunnel
// and routing layers, mounted at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors bundles every metric the Gateway registers. A single instance
// is constructed at startup and threaded through the tunnel and router
// packages via their constructors.
type Collectors struct {
	ActiveSessions      prometheus.Gauge
	QueriesRouted       *prometheus.CounterVec // label: path = "tunnel"|"direct"
	HeartbeatsReceived  prometheus.Counter
	SessionsTerminated  *prometheus.CounterVec // label: reason
	RequestDuration     *prometheus.HistogramVec // label: frame_type
	PendingRequestSlots prometheus.Gauge
}

// NewCollectors registers every metric against the default registry and
// returns the bundle. Safe to call exactly once per process.
func NewCollectors() *Collectors {
	return &Collectors{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "viaduct",
			Subsystem: "tunnel",
			Name:      "active_sessions",
			Help:      "Number of Agent tunnel sessions currently active.",
		}),
		QueriesRouted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "viaduct",
			Subsystem: "router",
			Name:      "queries_routed_total",
			Help:      "Queries routed, partitioned by path (tunnel vs direct).",
		}, []string{"path"}),
		HeartbeatsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "viaduct",
			Subsystem: "tunnel",
			Name:      "heartbeats_received_total",
			Help:      "Total heartbeat frames received from any Agent.",
		}),
		SessionsTerminated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "viaduct",
			Subsystem: "tunnel",
			Name:      "sessions_terminated_total",
			Help:      "Sessions terminated, partitioned by reason.",
		}, []string{"reason"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "viaduct",
			Subsystem: "tunnel",
			Name:      "request_duration_seconds",
			Help:      "Round-trip latency of tunnel request/response frames.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"frame_type"}),
		PendingRequestSlots: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "viaduct",
			Subsystem: "tunnel",
			Name:      "pending_request_slots",
			Help:      "Sum of in-flight request/response slots across all sessions.",
		}),
	}
}
