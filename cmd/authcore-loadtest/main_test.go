package main

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/redisotc"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, 0); got != 1 {
		t.Fatalf("p0 = %v", got)
	}
	if got := percentile(samples, 50); got != 5 {
		t.Fatalf("p50 = %v", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Fatalf("p100 = %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty = %v", got)
	}
}

func TestComputeStats(t *testing.T) {
	s := computeStats(time.Second, []time.Duration{3, 1, 2}, 1)
	if s.ops != 3 || s.failures != 1 || s.p50 != 2 || s.opsPerS != 3 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if empty := computeStats(time.Second, nil, 0); empty.ops != 0 || empty.total != time.Second {
		t.Fatalf("unexpected empty stats: %+v", empty)
	}
}

func TestPhasesRunWithoutFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	box := &inbox{tokens: make(map[string]string)}
	engine, err := authcore.New().
		WithConfig(loadConfig()).
		WithStore(memory.New()).
		WithOneTimeStore(redisotc.New(client, "authcore-load")).
		WithNotifier(notify.Func(box.record)).
		WithLogger(log.New(io.Discard, "", 0)).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	states, err := seed(ctx, engine, box, 3)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if s := runValidatePhase(ctx, engine, states, 30, 4); s.ops != 30 || s.failures != 0 {
		t.Fatalf("validate: %+v", s)
	}
	if s := runRefreshPhase(ctx, engine, states, 30, 4); s.ops != 30 || s.failures != 0 {
		t.Fatalf("refresh: %+v", s)
	}
}
