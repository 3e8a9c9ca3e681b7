// Package ratelimit throttles repeated failed logins using Redis counters.
package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/pkg/apperror"
)

// Config holds limiter tuning parameters.
type Config struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// Limiter counts failed logins per identifier in fixed windows of Cooldown.
// Redis failures never block a login: the limiter fails open and logs.
type Limiter struct {
	redis  redis.UniversalClient
	cfg    Config
	logger *zap.SugaredLogger
}

func New(client redis.UniversalClient, cfg Config, logger *zap.SugaredLogger) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Limiter{redis: client, cfg: cfg, logger: logger}
}

// Check returns a TooManyRequests error once identifier has used up its
// failure budget.
func (l *Limiter) Check(ctx context.Context, identifier string) error {
	count, err := l.redis.Get(ctx, key(identifier)).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			l.logger.Warnw("login limiter unavailable", "err", err)
		}
		return nil
	}
	if count >= int64(l.cfg.MaxAttempts) {
		return apperror.TooManyRequests("too many failed login attempts, try again later")
	}
	return nil
}

// Fail records a failed attempt.
func (l *Limiter) Fail(ctx context.Context, identifier string) {
	k := key(identifier)
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		l.logger.Warnw("login limiter unavailable", "err", err)
		return
	}
	// Fixed window: the TTL is set by the first failure only.
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.cfg.Cooldown).Err(); err != nil {
			l.logger.Warnw("login limiter unavailable", "err", err)
		}
	}
}

// Reset clears the counter after a successful login.
func (l *Limiter) Reset(ctx context.Context, identifier string) {
	if err := l.redis.Del(ctx, key(identifier)).Err(); err != nil {
		l.logger.Warnw("login limiter unavailable", "err", err)
	}
}

func key(identifier string) string {
	return "login:attempts:" + strings.ToLower(strings.TrimSpace(identifier))
}
