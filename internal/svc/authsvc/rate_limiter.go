package authsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkrupp/apptemplate/internal/domain"
)

// RateLimitConfig configures fixed-window attempt counting.
type RateLimitConfig struct {
	// RedisAddr enables rate limiting when set
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	MaxAttempts   int64         `env:"MAX_ATTEMPTS" envDefault:"10"`
	Window        time.Duration `env:"WINDOW" envDefault:"1m"`
}

// Limiter counts attempts per key.
type Limiter interface {
	// Allow records an attempt and returns domain.ErrRateLimited once the
	// key has used up its window.
	Allow(ctx context.Context, key string) error
}

// NopLimiter allows everything.
type NopLimiter struct{}

// Allow implements Limiter.
func (NopLimiter) Allow(context.Context, string) error { return nil }

// RedisLimiter implements Limiter with an INCR/EXPIRE fixed window.
type RedisLimiter struct {
	redis *redis.Client
	cfg   RateLimitConfig
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a RedisLimiter on an existing client.
func NewRedisLimiter(client *redis.Client, cfg RateLimitConfig) *RedisLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}

	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return &RedisLimiter{redis: client, cfg: cfg}
}

// NewLimiter returns a RedisLimiter when an address is configured and a
// NopLimiter otherwise.
func NewLimiter(cfg RateLimitConfig) Limiter {
	if cfg.RedisAddr == "" {
		return NopLimiter{}
	}

	//nolint:exhaustruct
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return NewRedisLimiter(client, cfg)
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	key = "authsvc:rl:" + key

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("incr %s: %w", key, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.cfg.Window).Err(); err != nil {
			return fmt.Errorf("expire %s: %w", key, err)
		}
	}

	if count > l.cfg.MaxAttempts {
		return domain.ErrRateLimited
	}

	return nil
}
