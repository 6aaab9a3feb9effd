package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func withRedis(rdb redis.UniversalClient) harnessOption {
	return func(b *Builder, _ *Config) { b.WithRedis(rdb) }
}

func TestLoginThrottle(t *testing.T) {
	mr, rdb := newTestRedis(t)
	h := newHarness(t,
		withRedis(rdb),
		withConfig(func(cfg *Config) {
			cfg.RateLimit.Login = RateRule{MaxAttempts: 3, Window: time.Minute}
		}),
	)
	h.verifiedAccount(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := h.engine.Login(ctx, testEmail, "Wrong1!x"); !errors.Is(err, ErrCredentialsInvalid) {
			t.Fatalf("attempt %d: expected ErrCredentialsInvalid, got %v", i+1, err)
		}
	}

	_, err := h.engine.Login(ctx, testEmail, testSecret)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if !KindOf(err).Retryable() {
		t.Fatalf("rate limiting must be retryable")
	}

	mr.FastForward(time.Minute + time.Second)
	h.login(t)

	if got := h.engine.MetricsSnapshot().Counters[MetricRateLimitHit]; got != 1 {
		t.Fatalf("expected one rate limit hit, got %d", got)
	}
}

func TestLoginSuccessResetsThrottle(t *testing.T) {
	_, rdb := newTestRedis(t)
	h := newHarness(t,
		withRedis(rdb),
		withConfig(func(cfg *Config) {
			cfg.RateLimit.Login = RateRule{MaxAttempts: 3, Window: time.Minute}
		}),
	)
	h.verifiedAccount(t)
	ctx := context.Background()

	h.engine.Login(ctx, testEmail, "Wrong1!x")
	h.engine.Login(ctx, testEmail, "Wrong1!x")
	h.login(t)

	for i := 0; i < 2; i++ {
		if _, err := h.engine.Login(ctx, testEmail, "Wrong1!x"); errors.Is(err, ErrRateLimited) {
			t.Fatalf("throttle not reset by successful login")
		}
	}
}

func TestRegisterThrottlePerIP(t *testing.T) {
	_, rdb := newTestRedis(t)
	h := newHarness(t,
		withRedis(rdb),
		withConfig(func(cfg *Config) {
			cfg.RateLimit.Register = RateRule{MaxAttempts: 2, Window: time.Minute, PerIP: true}
		}),
	)
	ctx := WithClientIP(context.Background(), "192.0.2.1")

	for _, email := range []string{"one@x.com", "two@x.com"} {
		if _, err := h.engine.Register(ctx, email, testSecret); err != nil {
			t.Fatalf("Register %s failed: %v", email, err)
		}
	}
	if _, err := h.engine.Register(ctx, "three@x.com", testSecret); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited from shared IP, got %v", err)
	}

	other := WithClientIP(context.Background(), "192.0.2.2")
	if _, err := h.engine.Register(other, "three@x.com", testSecret); err != nil {
		t.Fatalf("Register from other IP failed: %v", err)
	}
}

func TestThrottleFailsOpenWhenRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	h := newHarness(t, withRedis(rdb))
	h.verifiedAccount(t)

	mr.Close()
	h.login(t)

	if !strings.Contains(h.logs.String(), "WARN login throttle skipped") {
		t.Fatalf("expected throttle warning, got %q", h.logs.String())
	}
}
