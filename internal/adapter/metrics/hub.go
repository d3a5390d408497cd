package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/Scobiform/fedi-follow-force-graph/internal/hub"
	"github.com/prometheus/client_golang/prometheus"
)

// HubMetrics implements hub.Recorder.
type HubMetrics struct {
	Connections       prometheus.Gauge
	Deliveries        *prometheus.CounterVec
	BroadcastDuration prometheus.Histogram
	BroadcastTargets  prometheus.Histogram
}

func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "connections",
			Help:      "Number of viewer connections registered with the hub.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "deliveries_total",
			Help:      "Message deliveries by outcome.",
		}, []string{"outcome"}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcast_duration_seconds",
			Help:      "Time until every delivery of a broadcast resolved.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		BroadcastTargets: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcast_targets",
			Help:      "Connections targeted per broadcast.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}

	reg.MustRegister(m.Connections, m.Deliveries, m.BroadcastDuration, m.BroadcastTargets)
	return m
}

func (m *HubMetrics) ConnectionsChanged(count int) {
	m.Connections.Set(float64(count))
}

func (m *HubMetrics) DeliveryCompleted(err error) {
	m.Deliveries.WithLabelValues(deliveryOutcome(err)).Inc()
}

func (m *HubMetrics) BroadcastCompleted(targets int, duration time.Duration) {
	m.BroadcastTargets.Observe(float64(targets))
	m.BroadcastDuration.Observe(duration.Seconds())
}

func deliveryOutcome(err error) string {
	switch {
	case err == nil:
		return "delivered"
	case errors.Is(err, hub.ErrDeliveryTimeout):
		return "timeout"
	case errors.Is(err, hub.ErrMailboxFull):
		return "mailbox_full"
	case errors.Is(err, hub.ErrConnectionRemoved):
		return "removed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failed"
	}
}

var _ hub.Recorder = (*HubMetrics)(nil)
