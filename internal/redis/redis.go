package redis

import (
	"context"
	"log/slog"
	"time"

	"signalhub/internal/config"
	"signalhub/pkg/e"

	goredis "github.com/redis/go-redis/v9"
)

const pingTimeout = 3 * time.Second

// Redis owns the shared client used by the report cache and the webhook queue.
type Redis struct {
	Client *goredis.Client
}

func NewRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Redis, error) {
	const op = "redis.NewRedis"

	r := &Redis{Client: goredis.NewClient(&goredis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
	})}

	if err := r.Ping(ctx); err != nil {
		logger.Error("redis ping failed",
			slog.String("op", op),
			slog.String("addr", cfg.Redis.Addr),
			slog.Any("error", err),
		)
		_ = r.Client.Close()
		return nil, e.Wrap(op, err)
	}

	logger.Info("redis connected", slog.String("addr", cfg.Redis.Addr), slog.Int("db", cfg.Redis.DB))
	return r, nil
}

// Ping bounds the round trip by pingTimeout even when ctx has no deadline.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.Client.Close()
}
