package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RemoteMetrics tracks calls to the Mastodon instance.
type RemoteMetrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	BreakerState    *prometheus.GaugeVec
	RateLimitWait   prometheus.Histogram
}

func NewRemoteMetrics(reg prometheus.Registerer) *RemoteMetrics {
	m := &RemoteMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Requests to the Mastodon API by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "request_duration_seconds",
			Help:      "Latency of Mastodon API requests.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0=closed, 1=half-open, 2=open.",
		}, []string{"name"}),
		RateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for the client-side rate limiter.",
			Buckets:   []float64{0, .01, .05, .1, .5, 1, 5},
		}),
	}

	reg.MustRegister(m.Requests, m.RequestDuration, m.BreakerState, m.RateLimitWait)
	return m
}

func (m *RemoteMetrics) RequestCompleted(endpoint string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Requests.WithLabelValues(endpoint, outcome).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *RemoteMetrics) RequestRejected(endpoint string) {
	m.Requests.WithLabelValues(endpoint, "circuit_open").Inc()
}

func (m *RemoteMetrics) BreakerStateChanged(name string, state int) {
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *RemoteMetrics) RateLimited(wait time.Duration) {
	m.RateLimitWait.Observe(wait.Seconds())
}
