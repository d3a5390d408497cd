package metrics

import "github.com/prometheus/client_golang/prometheus"

type WebSocketMetrics struct {
	ActiveConnections prometheus.Gauge
	MessagesReceived  prometheus.Counter
	Rejected          *prometheus.CounterVec
	Relayed           *prometheus.CounterVec
}

func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of open viewer sockets.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_received_total",
			Help:      "Messages received from viewers.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_total",
			Help:      "Upgrade requests refused, by reason.",
		}, []string{"reason"}),
		Relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "relayed_total",
			Help:      "Messages exchanged with other instances, by direction.",
		}, []string{"direction"}),
	}

	reg.MustRegister(m.ActiveConnections, m.MessagesReceived, m.Rejected, m.Relayed)
	return m
}

func (m *WebSocketMetrics) MessageRelayed(direction string) {
	m.Relayed.WithLabelValues(direction).Inc()
}
