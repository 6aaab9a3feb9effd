package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	id := h.verifiedAccount(t)
	ctx := context.Background()
	tokens := h.login(t)

	if err := h.engine.ChangePassword(ctx, id, "Wrong1!x", "Newer2@pass"); !errors.Is(err, ErrCredentialsInvalid) {
		t.Fatalf("expected ErrCredentialsInvalid for wrong current secret, got %v", err)
	}
	if err := h.engine.ChangePassword(ctx, id, testSecret, testSecret); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
	if err := h.engine.ChangePassword(ctx, id, testSecret, "short"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	if err := h.engine.ChangePassword(ctx, id, testSecret, "Newer2@pass"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected sessions revoked after change, got %v", err)
	}
	if _, err := h.engine.Login(ctx, testEmail, "Newer2@pass"); err != nil {
		t.Fatalf("login with new secret failed: %v", err)
	}
}

func TestChangePasswordCountsTowardLockout(t *testing.T) {
	h := newHarness(t, withConfig(func(cfg *Config) { cfg.Lockout.Threshold = 3 }))
	id := h.verifiedAccount(t)
	ctx := context.Background()

	var err error
	for i := 0; i < 3; i++ {
		err = h.engine.ChangePassword(ctx, id, "Wrong1!x", "Newer2@pass")
	}
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected lock on third failure, got %v", err)
	}
	if _, err := h.engine.Login(ctx, testEmail, testSecret); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected login blocked, got %v", err)
	}
}

func TestAccountStatusTransitions(t *testing.T) {
	h := newHarness(t)
	id := h.verifiedAccount(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		h.engine.Login(ctx, testEmail, "Wrong1!x")
	}
	status, err := h.engine.AccountStatus(ctx, id)
	if err != nil {
		t.Fatalf("AccountStatus failed: %v", err)
	}
	if status.LockedUntil == nil {
		t.Fatalf("expected locked status")
	}

	if err := h.engine.UnlockAccount(ctx, id); err != nil {
		t.Fatalf("UnlockAccount failed: %v", err)
	}
	h.login(t)

	if err := h.engine.DeleteAccount(ctx, id); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	if err := h.engine.EnableAccount(ctx, id); err != nil {
		t.Fatalf("EnableAccount failed: %v", err)
	}
	status, err = h.engine.AccountStatus(ctx, id)
	if err != nil {
		t.Fatalf("AccountStatus failed: %v", err)
	}
	if !status.Deleted || status.Active {
		t.Fatalf("deleted account must stay inactive, got %+v", status)
	}
	if _, err := h.engine.Login(ctx, testEmail, testSecret); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}

	if _, err := h.engine.Register(ctx, testEmail, testSecret); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("deleted accounts keep their email, got %v", err)
	}
	if err := h.engine.DisableAccount(ctx, "missing"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown account, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.verifiedAccount(t)
	ctx := context.Background()
	tokens := h.login(t)

	for i := 0; i < 2; i++ {
		if err := h.engine.Logout(ctx, tokens.RefreshToken); err != nil {
			t.Fatalf("Logout %d failed: %v", i+1, err)
		}
	}
	if err := h.engine.Logout(ctx, "garbage"); err != nil {
		t.Fatalf("malformed token must be ignored, got %v", err)
	}
	if _, err := h.engine.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid after logout, got %v", err)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricLogout]; got != 1 {
		t.Fatalf("expected a single logout metric, got %d", got)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	h := newHarness(t)
	id := h.verifiedAccount(t)
	ctx := context.Background()

	var sessions []*Tokens
	for i := 0; i < 3; i++ {
		sessions = append(sessions, h.login(t))
	}

	n, err := h.engine.LogoutAll(ctx, id)
	if err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 revoked, got %d", n)
	}
	for _, s := range sessions {
		if _, err := h.engine.Refresh(ctx, s.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid, got %v", err)
		}
	}

	if n, err := h.engine.LogoutAll(ctx, id); err != nil || n != 0 {
		t.Fatalf("second LogoutAll: n=%d err=%v", n, err)
	}
}

func TestValidateAccess(t *testing.T) {
	h := newHarness(t)
	id := h.verifiedAccount(t)
	ctx := context.Background()
	tokens := h.login(t)

	claims, err := h.engine.ValidateAccess(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if claims.Subject != id || claims.SessionID != tokens.SessionID || claims.Email != testEmail {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	dot := strings.LastIndexByte(tokens.AccessToken, '.')
	flipped := byte('A')
	if tokens.AccessToken[dot+1] == 'A' {
		flipped = 'B'
	}
	tampered := tokens.AccessToken[:dot+1] + string(flipped) + tokens.AccessToken[dot+2:]
	if _, err := h.engine.ValidateAccess(ctx, tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for tampered token, got %v", err)
	}

	h.clock.Advance(31 * time.Minute)
	_, err = h.engine.ValidateAccess(ctx, tokens.AccessToken)
	if !errors.Is(err, ErrTokenInvalid) || ReasonOf(err) != "expired" {
		t.Fatalf("expected expired token, got %v (%s)", err, ReasonOf(err))
	}
}
