package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RedisMetrics tracks relay traffic to Redis.
type RedisMetrics struct {
	Operations       *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	ConnectionErrors prometheus.Counter
	BreakerState     prometheus.Gauge
}

func NewRedisMetrics(reg prometheus.Registerer) *RedisMetrics {
	m := &RedisMetrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operations_total",
			Help:      "Redis commands by name and status.",
		}, []string{"operation", "status"}),
		OperationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Redis command latency.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5},
		}, []string{"operation"}),
		ConnectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "connection_errors_total",
			Help:      "Failed Redis dials.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0=closed, 1=half-open, 2=open.",
		}),
	}

	reg.MustRegister(m.Operations, m.OperationLatency, m.ConnectionErrors, m.BreakerState)
	return m
}

func (m *RedisMetrics) CommandCompleted(operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.Operations.WithLabelValues(operation, status).Inc()
	m.OperationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *RedisMetrics) DialFailed() {
	m.ConnectionErrors.Inc()
}

func (m *RedisMetrics) BreakerStateChanged(state int) {
	m.BreakerState.Set(float64(state))
}
