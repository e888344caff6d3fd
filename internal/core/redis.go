// AngelaMos | 2026
// redis.go

package core

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/judge/session-backend/internal/config"
)

const (
	redisClientName  = "judge-session"
	redisPingTimeout = 5 * time.Second
)

// Redis backs the denylist, the rate limiter and optionally the refresh
// token store. Connections identify themselves as judge-session in
// CLIENT LIST.
type Redis struct {
	Client      *redis.Client
	pingTimeout time.Duration
}

func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.ClientName = redisClientName
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.PoolTimeout = 30 * time.Second
	opts.ConnMaxIdleTime = 5 * time.Minute

	pingTimeout := redisPingTimeout
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
		pingTimeout = cfg.DialTimeout
	}

	r := &Redis{
		Client:      redis.NewClient(opts),
		pingTimeout: pingTimeout,
	}

	if err := r.Ping(ctx); err != nil {
		_ = r.Client.Close() //nolint:errcheck // cleanup on connection failure
		return nil, err
	}

	return r, nil
}

func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping is bounded by the configured dial timeout.
func (r *Redis) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, r.pingTimeout)
	defer cancel()

	if err := r.Client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	return nil
}
