package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type DatabaseMetrics struct {
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

func NewDatabaseMetrics(reg prometheus.Registerer) *DatabaseMetrics {
	m := &DatabaseMetrics{
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query latency by operation.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
		}, []string{"operation"}),
		QueryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Failed database queries by operation.",
		}, []string{"operation"}),
	}

	reg.MustRegister(m.QueryDuration, m.QueryErrors)
	return m
}

func (m *DatabaseMetrics) QueryCompleted(operation string, err error, duration time.Duration) {
	m.QueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.QueryErrors.WithLabelValues(operation).Inc()
	}
}
