package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type GraphMetrics struct {
	Builds        *prometheus.CounterVec
	BuildDuration prometheus.Histogram
	Nodes         prometheus.Histogram
	Shared        prometheus.Counter
}

func NewGraphMetrics(reg prometheus.Registerer) *GraphMetrics {
	m := &GraphMetrics{
		Builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "builds_total",
			Help:      "Graph builds by result.",
		}, []string{"result"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "build_duration_seconds",
			Help:      "End-to-end graph build time including both pagination runs.",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 180, 600},
		}),
		Nodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "nodes",
			Help:      "Nodes per built graph.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 9),
		}),
		Shared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "shared_builds_total",
			Help:      "Requests answered by a build already in progress for the same account.",
		}),
	}

	reg.MustRegister(m.Builds, m.BuildDuration, m.Nodes, m.Shared)
	return m
}

func (m *GraphMetrics) GraphBuilt(nodes int, duration time.Duration, err error) {
	if err != nil {
		m.Builds.WithLabelValues("error").Inc()
		return
	}
	m.Builds.WithLabelValues("success").Inc()
	m.BuildDuration.Observe(duration.Seconds())
	m.Nodes.Observe(float64(nodes))
}

func (m *GraphMetrics) BuildShared() {
	m.Shared.Inc()
}
