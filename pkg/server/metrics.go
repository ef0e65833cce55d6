package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the session counters of a server.
type Metrics struct {
	sessionsActive  prometheus.Gauge
	sessionsCreated prometheus.Counter
	sessionsExpired prometheus.Counter
	connections     prometheus.Gauge
	eventsReceived  *prometheus.CounterVec
	patchesSent     prometheus.Counter
	frameErrors     *prometheus.CounterVec
}

// NewMetrics registers the session metrics in reg.
//
// Metrics collected:
//   - tapas_sessions_active: live sessions
//   - tapas_sessions_created_total / tapas_sessions_expired_total
//   - tapas_websocket_connections: attached websockets
//   - tapas_events_received_total: client events, by event type
//   - tapas_patches_sent_total: patches written to clients
//   - tapas_frame_errors_total: rejected or failed frames, by reason
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	const ns = "tapas"

	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "sessions_active",
			Help:      "Number of live sessions",
		}),
		sessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "sessions_created_total",
			Help:      "Total number of sessions created",
		}),
		sessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "sessions_expired_total",
			Help:      "Total number of sessions closed for being idle",
		}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "websocket_connections",
			Help:      "Number of attached websocket connections",
		}),
		eventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_received_total",
			Help:      "Total number of client events received",
		}, []string{"event"}),
		patchesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "patches_sent_total",
			Help:      "Total number of patches sent to clients",
		}),
		frameErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "frame_errors_total",
			Help:      "Total number of client frames that were rejected or failed",
		}, []string{"reason"}),
	}
}
