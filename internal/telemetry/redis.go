package telemetry

import (
	"context"
	"fmt"
	"net"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MonitorRedis adds tracing, metrics and debug logging to a client.
func MonitorRedis(r redis.UniversalClient, logger *zap.Logger) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(redisLog{log: logger.Named("redis")})
	return nil
}

type redisLog struct {
	log *zap.Logger
}

func (l redisLog) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := hook(ctx, network, addr)
		if err != nil {
			l.log.Warn("dial failed", zap.String("addr", addr), zap.Error(err))
		} else {
			l.log.Debug("dialed", zap.String("network", network), zap.String("addr", addr))
		}
		return conn, err
	}
}

func (l redisLog) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := hook(ctx, cmd)
		if err != nil && err != redis.Nil {
			l.log.Warn("command failed", zap.String("cmd", cmd.Name()), zap.Error(err))
		}
		return err
	}
}

func (l redisLog) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := hook(ctx, cmds)
		if err != nil && err != redis.Nil {
			l.log.Warn("pipeline failed", zap.Int("cmds", len(cmds)), zap.Error(err))
		}
		return err
	}
}
