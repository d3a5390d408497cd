package metrics

import (
	"context"
	"errors"

	"github.com/Scobiform/fedi-follow-force-graph/internal/collect"
	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// PaginationMetrics implements collect.Recorder.
type PaginationMetrics struct {
	Pages    *prometheus.CounterVec
	Accounts *prometheus.CounterVec
	Runs     *prometheus.CounterVec
}

func NewPaginationMetrics(reg prometheus.Registerer) *PaginationMetrics {
	m := &PaginationMetrics{
		Pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pagination",
			Name:      "pages_total",
			Help:      "Relationship pages fetched.",
		}, []string{"relationship"}),
		Accounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pagination",
			Name:      "accounts_total",
			Help:      "Accounts collected by completed runs.",
		}, []string{"relationship"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pagination",
			Name:      "runs_total",
			Help:      "Pagination runs by outcome.",
		}, []string{"relationship", "outcome"}),
	}

	reg.MustRegister(m.Pages, m.Accounts, m.Runs)
	return m
}

func (m *PaginationMetrics) PageFetched(rel domain.Relationship, _ int) {
	m.Pages.WithLabelValues(string(rel)).Inc()
}

func (m *PaginationMetrics) RunFinished(rel domain.Relationship, accounts int, err error) {
	m.Runs.WithLabelValues(string(rel), runOutcome(err)).Inc()
	if err == nil {
		m.Accounts.WithLabelValues(string(rel)).Add(float64(accounts))
	}
}

func runOutcome(err error) string {
	var netErr *domain.NetworkError
	switch {
	case err == nil:
		return "complete"
	case errors.Is(err, domain.ErrPaginationOverrun):
		return "overrun"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &netErr):
		return "network_error"
	default:
		return "error"
	}
}

var _ collect.Recorder = (*PaginationMetrics)(nil)
