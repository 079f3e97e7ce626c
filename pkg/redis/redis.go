package redis

import (
	"context"
	"time"

	"medvive-settlement/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

var pingBackoff = wait.Backoff{
	Duration: 500 * time.Millisecond,
	Factor:   2,
	Jitter:   0.1,
	Steps:    5,
}

// New returns the shared client. An unreachable server is logged rather than
// fatal so the HTTP surface can still report readiness.
func New(lc fx.Lifecycle, c *config.Config) *redis.Client {
	log := zap.L().With(
		zap.String("addr", c.Redis.Addr),
		zap.Int("db", c.Redis.DB),
	)

	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	})

	var lastErr error
	err := wait.ExponentialBackoffWithContext(context.Background(), pingBackoff, func(ctx context.Context) (bool, error) {
		if lastErr = rdb.Ping(ctx).Err(); lastErr != nil {
			log.Warn("[Redis] not ready", zap.Error(lastErr))
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		log.Error("[Redis] giving up, commands fail until it is reachable", zap.Error(lastErr))
	} else {
		log.Info("[Redis] connected")
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})
	return rdb
}
