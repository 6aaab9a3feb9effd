package redisotc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/store"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func seed(t *testing.T, s *Store, hash string, purpose store.Purpose, created time.Time, ttl time.Duration) {
	t.Helper()
	err := s.CreateOneTime(context.Background(), &store.OneTimeCredential{
		ID:        "id-" + hash,
		AccountID: "acct-1",
		Purpose:   purpose,
		Hash:      []byte(hash),
		ExpiresAt: created.Add(ttl),
		CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("CreateOneTime: %v", err)
	}
}

func TestConsumeOnce(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := New(rdb, "")
	now := time.Now().UTC()
	seed(t, s, "h1", store.PurposePasswordReset, now, 30*time.Minute)

	c, err := s.ConsumeOneTime(context.Background(), []byte("h1"), store.PurposePasswordReset, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("ConsumeOneTime: %v", err)
	}
	if c.AccountID != "acct-1" || c.ID != "id-h1" || c.UsedAt == nil {
		t.Fatalf("unexpected credential: %+v", c)
	}

	_, err = s.ConsumeOneTime(context.Background(), []byte("h1"), store.PurposePasswordReset, now.Add(2*time.Minute))
	if !errors.Is(err, store.ErrConsumed) {
		t.Fatalf("expected ErrConsumed, got %v", err)
	}
}

func TestConsumeWrongPurposeOrUnknown(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := New(rdb, "")
	now := time.Now().UTC()
	seed(t, s, "h1", store.PurposeEmailVerification, now, time.Hour)

	if _, err := s.ConsumeOneTime(context.Background(), []byte("h1"), store.PurposePasswordReset, now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for purpose mismatch, got %v", err)
	}
	if _, err := s.ConsumeOneTime(context.Background(), []byte("nope"), store.PurposePasswordReset, now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown hash, got %v", err)
	}
}

func TestConsumeExpired(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := New(rdb, "")
	now := time.Now().UTC()
	seed(t, s, "h1", store.PurposePasswordReset, now, 15*time.Minute)

	_, err := s.ConsumeOneTime(context.Background(), []byte("h1"), store.PurposePasswordReset, now.Add(16*time.Minute))
	if !errors.Is(err, store.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestCreateDuplicateHashConflicts(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := New(rdb, "")
	now := time.Now().UTC()
	seed(t, s, "h1", store.PurposePasswordReset, now, time.Hour)

	err := s.CreateOneTime(context.Background(), &store.OneTimeCredential{
		ID: "other", AccountID: "acct-2", Purpose: store.PurposePasswordReset,
		Hash: []byte("h1"), ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateSetsRecordExpiry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := New(rdb, "")
	now := time.Now().UTC()
	seed(t, s, "h1", store.PurposePasswordReset, now, time.Hour)

	key := s.key([]byte("h1"))
	if ttl := mr.TTL(key); ttl <= time.Hour {
		t.Fatalf("expected record TTL past expiry plus retention, got %s", ttl)
	}
	if ttl := mr.TTL(s.indexKey("acct-1", store.PurposePasswordReset)); ttl <= 0 {
		t.Fatalf("expected index TTL, got %s", ttl)
	}
	if got := mr.HGet(key, "purpose"); got != string(store.PurposePasswordReset) {
		t.Fatalf("purpose = %q", got)
	}
}

func TestCreateFailureLeavesNoRecord(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := New(rdb, "")
	now := time.Now().UTC()

	// A key of the wrong type makes indexing fail.
	if err := mr.Set(s.indexKey("acct-1", store.PurposePasswordReset), "x"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	err := s.CreateOneTime(context.Background(), &store.OneTimeCredential{
		ID: "id-h1", AccountID: "acct-1", Purpose: store.PurposePasswordReset,
		Hash: []byte("h1"), ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	})
	if err == nil {
		t.Fatal("expected CreateOneTime to fail")
	}
	if mr.Exists(s.key([]byte("h1"))) {
		t.Fatal("failed create left a record without expiry")
	}
}

func TestInvalidateMarksUnusedOnly(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := New(rdb, "")
	now := time.Now().UTC()
	seed(t, s, "h1", store.PurposeEmailVerification, now, time.Hour)
	seed(t, s, "h2", store.PurposeEmailVerification, now, time.Hour)

	if _, err := s.ConsumeOneTime(context.Background(), []byte("h1"), store.PurposeEmailVerification, now); err != nil {
		t.Fatalf("ConsumeOneTime: %v", err)
	}

	n, err := s.InvalidateOneTime(context.Background(), "acct-1", store.PurposeEmailVerification, now)
	if err != nil {
		t.Fatalf("InvalidateOneTime: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 invalidated credential, got %d", n)
	}
	if _, err := s.ConsumeOneTime(context.Background(), []byte("h2"), store.PurposeEmailVerification, now); !errors.Is(err, store.ErrConsumed) {
		t.Fatalf("expected invalidated credential to be unusable, got %v", err)
	}
}

func TestRedisDownIsUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := New(rdb, "")
	mr.Close()

	_, err := s.ConsumeOneTime(context.Background(), []byte("h1"), store.PurposePasswordReset, time.Now())
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
