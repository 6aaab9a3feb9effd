package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned when a window budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport failures from Redis.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Bucket names a throttled operation.
type Bucket string

const (
	BucketLogin         Bucket = "login"
	BucketRegister      Bucket = "register"
	BucketResetRequest  Bucket = "reset"
	BucketVerifyRequest Bucket = "verify"
)

// Rule is the budget of one bucket. A zero MaxAttempts disables the bucket.
type Rule struct {
	MaxAttempts int
	Window      time.Duration
	PerIP       bool
}

// Config maps buckets to their rules.
type Config struct {
	Rules map[Bucket]Rule
}

// Limiter enforces per-identifier and per-IP budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Allow counts one attempt against bucket for identifier and, when the rule
// asks for it, for ip. It returns ErrRateLimited once the window is spent.
func (l *Limiter) Allow(ctx context.Context, bucket Bucket, identifier, ip string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	rule, ok := l.config.Rules[bucket]
	if !ok || rule.MaxAttempts <= 0 {
		return nil
	}

	if identifier != "" {
		if err := l.enforce(ctx, identifierKey(bucket, identifier), rule); err != nil {
			return err
		}
	}
	if rule.PerIP && ip != "" {
		if err := l.enforce(ctx, ipKey(bucket, ip), rule); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the identifier counter of bucket. Called after a successful
// login so a legitimate user does not inherit earlier failures.
func (l *Limiter) Reset(ctx context.Context, bucket Bucket, identifier string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if err := l.redis.Del(ctx, identifierKey(bucket, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current identifier counter. Missing keys return zero.
func (l *Limiter) Attempts(ctx context.Context, bucket Bucket, identifier string) (int, error) {
	if l == nil || l.redis == nil {
		return 0, nil
	}
	count, err := l.redis.Get(ctx, identifierKey(bucket, identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) enforce(ctx context.Context, key string, rule Rule) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: TTL is set only on the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, rule.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(rule.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func identifierKey(bucket Bucket, identifier string) string {
	return "rl:" + string(bucket) + ":id:" + identifier
}

func ipKey(bucket Bucket, ip string) string {
	return "rl:" + string(bucket) + ":ip:" + ip
}
