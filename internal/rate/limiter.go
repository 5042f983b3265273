package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scope names an independently budgeted action.
type Scope string

const (
	ScopeOTPIssue     Scope = "otp_issue"
	ScopeResetRequest Scope = "reset_request"
	ScopeRefresh      Scope = "refresh"
)

// Rule allows Max hits per fixed Window. A zero Max disables the scope.
type Rule struct {
	Max    int
	Window time.Duration
}

// Config maps scopes to their rules.
type Config struct {
	Prefix string
	Rules  map[Scope]Rule
}

// Limiter enforces fixed-window budgets with Redis INCR counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "trl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) key(scope Scope, id string) string {
	return l.config.Prefix + ":" + string(scope) + ":" + id
}

// Hit records one attempt for id and returns ErrRateLimited once the
// window holds more than Max attempts.
func (l *Limiter) Hit(ctx context.Context, scope Scope, id string) error {
	rule, ok := l.config.Rules[scope]
	if !ok || rule.Max <= 0 || rule.Window <= 0 || id == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.key(scope, id), rule.Window)
	if err != nil {
		return err
	}
	if count > int64(rule.Max) {
		return ErrRateLimited
	}
	return nil
}

// Remaining reports how many attempts are left in the current window.
func (l *Limiter) Remaining(ctx context.Context, scope Scope, id string) (int, error) {
	rule, ok := l.config.Rules[scope]
	if !ok || rule.Max <= 0 {
		return -1, nil
	}
	count, err := l.redis.Get(ctx, l.key(scope, id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return rule.Max, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if left := rule.Max - int(count); left > 0 {
		return left, nil
	}
	return 0, nil
}

// Reset clears the counter for id.
func (l *Limiter) Reset(ctx context.Context, scope Scope, id string) error {
	if err := l.redis.Del(ctx, l.key(scope, id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: TTL is set only by the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
