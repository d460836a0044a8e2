package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the realtime counters. All methods are nil-safe so the
// layer runs without metrics in tests and when METRICS_ENABLED is off.
type Metrics struct {
	connections      prometheus.Gauge
	events           *prometheus.CounterVec
	broadcastDropped prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connections",
			Help: "Live websocket connections.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_events_total",
			Help: "Inbound chat events handled, by event name.",
		}, []string{"event"}),
		broadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_broadcast_dropped_total",
			Help: "Broadcast deliveries dropped because the connection was closed or backlogged.",
		}),
	}

	reg.MustRegister(m.connections, m.events, m.broadcastDropped)
	return m
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

func (m *Metrics) RecordEvent(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordBroadcastDrop() {
	if m == nil {
		return
	}
	m.broadcastDropped.Inc()
}
