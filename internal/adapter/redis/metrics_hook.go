package redis

import (
	"context"
	"errors"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type CommandRecorder interface {
	CommandCompleted(operation string, err error, duration time.Duration)
	DialFailed()
}

// MetricsHook records every Redis command.
type MetricsHook struct {
	recorder CommandRecorder
}

var _ goredis.Hook = (*MetricsHook)(nil)

func NewMetricsHook(recorder CommandRecorder) *MetricsHook {
	return &MetricsHook{recorder: recorder}
}

func (h *MetricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.recorder.DialFailed()
		}
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.recorder.CommandCompleted(cmd.Name(), failure(err), time.Since(start))
		return err
	}
}

func (h *MetricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.recorder.CommandCompleted("pipeline", failure(err), time.Since(start))
		return err
	}
}

func failure(err error) error {
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	return err
}
