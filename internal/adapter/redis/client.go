package redis

import (
	"context"
	"fmt"

	"github.com/Scobiform/fedi-follow-force-graph/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient parses redisURL, installs the breaker and metrics hooks and
// verifies the connection. redisMetrics may be nil.
func NewClient(ctx context.Context, redisURL string, redisMetrics *metrics.RedisMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)

	var breakerRecorder BreakerRecorder
	if redisMetrics != nil {
		breakerRecorder = redisMetrics
		rdb.AddHook(NewMetricsHook(redisMetrics))
	}
	rdb.AddHook(NewCircuitBreakerHook(breakerRecorder))

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}
