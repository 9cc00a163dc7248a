package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// TieredConfig defines tiered rate limiting configuration
type TieredConfig struct {
	IPLimit        int64
	IPWindow       time.Duration
	UserLimit      int64
	UserWindow     time.Duration
	EndpointLimits map[string]EndpointLimit
}

// EndpointLimit defines rate limit for a specific endpoint
type EndpointLimit struct {
	Limit  int64
	Window time.Duration
}

// Window counts hits on a key inside a sliding window
type Window interface {
	// Hit records one hit and returns how many hits preceded it in window
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// TieredLimiter implements multi-tier rate limiting shared across gateway
// instances
type TieredLimiter struct {
	window Window
	config TieredConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewTieredLimiter creates a new tiered rate limiter
func NewTieredLimiter(window Window, config TieredConfig, logger *zap.Logger) *TieredLimiter {
	return &TieredLimiter{
		window: window,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// CheckResult contains the result of a rate limit check
type CheckResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
	LimitedBy  string
}

type tier struct {
	name   string
	key    string
	limit  int64
	window time.Duration
}

// Check runs the IP, user and endpoint tiers in that order and stops at
// the first one exceeded
func (l *TieredLimiter) Check(ctx context.Context, ip, userID, endpoint string) (*CheckResult, error) {
	var tiers []tier
	if l.config.IPLimit > 0 && ip != "" {
		tiers = append(tiers, tier{"ip", ip, l.config.IPLimit, l.config.IPWindow})
	}
	if l.config.UserLimit > 0 && userID != "" {
		tiers = append(tiers, tier{"user", userID, l.config.UserLimit, l.config.UserWindow})
	}
	if el, ok := l.config.EndpointLimits[endpoint]; ok {
		subject := ip
		if userID != "" {
			subject = userID
		}
		tiers = append(tiers, tier{"endpoint", endpoint + ":" + subject, el.Limit, el.Window})
	}

	remaining := int64(-1)
	for _, t := range tiers {
		count, err := l.window.Hit(ctx, fmt.Sprintf("ratelimit:%s:%s", t.name, t.key), t.window)
		if err != nil {
			return nil, fmt.Errorf("rate limit check failed: %w", err)
		}
		left := t.limit - count - 1
		if left < 0 {
			left = 0
		}
		if count >= t.limit {
			l.logger.Debug("Rate limit exceeded", zap.String("tier", t.name), zap.String("key", t.key))
			return &CheckResult{Allowed: false, Remaining: 0, RetryAfter: t.window, LimitedBy: t.name}, nil
		}
		if remaining < 0 || left < remaining {
			remaining = left
		}
	}
	return &CheckResult{Allowed: true, Remaining: remaining}, nil
}

// RedisWindow is a sorted-set sliding window
type RedisWindow struct {
	redis *redis.Client
}

// NewRedisWindow creates a Redis backed window
func NewRedisWindow(client *redis.Client) *RedisWindow {
	return &RedisWindow{redis: client}
}

// Hit implements Window
func (w *RedisWindow) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()
	windowStart := now.Add(-window)

	pipe := w.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCount(ctx, key, fmt.Sprintf("%d", windowStart.UnixNano()), "+inf")
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return countCmd.Val(), nil
}
