package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/memory"
)

// staleReadStore serves AccountByEmail from a snapshot so a test can model a
// lookup that raced a concurrent write.
type staleReadStore struct {
	*memory.Store

	mu       sync.Mutex
	snapshot *store.Account
}

func (s *staleReadStore) AccountByEmail(ctx context.Context, email string) (*store.Account, error) {
	s.mu.Lock()
	snap := s.snapshot
	s.mu.Unlock()
	if snap != nil {
		return snap.Clone(), nil
	}
	return s.Store.AccountByEmail(ctx, email)
}

func withStore(s store.Store) harnessOption {
	return func(b *Builder, _ *Config) { b.WithStore(s) }
}

func TestLoginWrongSecretAfterConcurrentLockReportsLocked(t *testing.T) {
	stale := &staleReadStore{Store: memory.New()}
	h := newHarness(t, withStore(stale))
	id := h.verifiedAccount(t)
	ctx := context.Background()

	snap, err := stale.Store.AccountByEmail(ctx, testEmail)
	if err != nil {
		t.Fatalf("AccountByEmail: %v", err)
	}
	stale.mu.Lock()
	stale.snapshot = snap
	stale.mu.Unlock()

	until := h.clock.Now().Add(time.Hour)
	if _, err := stale.Store.UpdateAccount(ctx, id, func(a *store.Account) error {
		a.FailedAttempts = 0
		a.LockedUntil = &until
		return nil
	}); err != nil {
		t.Fatalf("lock account: %v", err)
	}

	_, err = h.engine.Login(ctx, testEmail, "Wrong1!xx")
	var le *LockedError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LockedError, got %v", err)
	}
	if !le.Until.Equal(until) {
		t.Fatalf("Until = %v, want %v", le.Until, until)
	}

	acct, err := stale.Store.AccountByID(ctx, id)
	if err != nil {
		t.Fatalf("AccountByID: %v", err)
	}
	if acct.FailedAttempts != 0 {
		t.Fatalf("a locked account must not count further failures, got %d", acct.FailedAttempts)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricLoginLocked]; got != 1 {
		t.Fatalf("expected login locked metric, got %d", got)
	}
}
