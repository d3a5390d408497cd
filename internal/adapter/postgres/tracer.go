package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

type QueryRecorder interface {
	QueryCompleted(operation string, err error, duration time.Duration)
}

// MetricsTracer implements pgx.QueryTracer and reports every query by its
// leading SQL verb.
type MetricsTracer struct {
	recorder QueryRecorder
}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

func NewMetricsTracer(recorder QueryRecorder) *MetricsTracer {
	return &MetricsTracer{recorder: recorder}
}

type queryStartKey struct{}

type queryStart struct {
	at        time.Time
	operation string
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: time.Now(), operation: operationName(data.SQL)})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	t.recorder.QueryCompleted(start.operation, data.Err, time.Since(start.at))
}

// operationName keeps label cardinality low: "select", "insert", ...
func operationName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}
