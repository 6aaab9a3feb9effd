package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/notify"
)

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t)
	id := h.verifiedAccount(t)
	ctx := context.Background()
	first := h.login(t)
	second := h.login(t)

	for i := 0; i < 10; i++ {
		h.engine.Login(ctx, testEmail, "Wrong1!x")
	}
	if _, err := h.engine.Login(ctx, testEmail, testSecret); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected account locked before reset, got %v", err)
	}

	if err := h.engine.RequestPasswordReset(ctx, testEmail); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	token := h.notifier.last(t, notify.KindPasswordReset, testEmail)

	if err := h.engine.ConfirmPasswordReset(ctx, token, "weak"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for weak secret, got %v", err)
	}

	const next = "Newer2@pass"
	if err := h.engine.ConfirmPasswordReset(ctx, token, next); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	for _, s := range []*Tokens{first, second} {
		if _, err := h.engine.Refresh(ctx, s.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected sessions revoked after reset, got %v", err)
		}
	}
	if sessions, _ := h.engine.ActiveSessions(ctx, id); len(sessions) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(sessions))
	}

	if _, err := h.engine.Login(ctx, testEmail, testSecret); !errors.Is(err, ErrCredentialsInvalid) {
		t.Fatalf("old secret must stop working, got %v", err)
	}
	if _, err := h.engine.Login(ctx, testEmail, next); err != nil {
		t.Fatalf("login with new secret failed: %v", err)
	}

	err := h.engine.ConfirmPasswordReset(ctx, token, "Another3#pass")
	if !errors.Is(err, ErrTokenInvalid) || ReasonOf(err) != "consumed" {
		t.Fatalf("expected consumed token, got %v (%s)", err, ReasonOf(err))
	}
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.RequestPasswordReset(context.Background(), "nobody@x.com"); err != nil {
		t.Fatalf("expected nil for unknown email, got %v", err)
	}
	if got := h.notifier.count(notify.KindPasswordReset); got != 0 {
		t.Fatalf("expected no reset message, got %d", got)
	}
	if err := h.engine.RequestPasswordReset(context.Background(), "not an email"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for malformed email, got %v", err)
	}
}

func TestPasswordResetTokenExpires(t *testing.T) {
	h := newHarness(t)
	h.verifiedAccount(t)
	ctx := context.Background()

	if err := h.engine.RequestPasswordReset(ctx, testEmail); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	token := h.notifier.last(t, notify.KindPasswordReset, testEmail)

	h.clock.Advance(30*time.Minute + time.Second)
	err := h.engine.ConfirmPasswordReset(ctx, token, "Newer2@pass")
	if !errors.Is(err, ErrTokenInvalid) || ReasonOf(err) != "expired" {
		t.Fatalf("expected expired token, got %v (%s)", err, ReasonOf(err))
	}
}

func TestPasswordResetNewRequestInvalidatesOld(t *testing.T) {
	h := newHarness(t)
	h.verifiedAccount(t)
	ctx := context.Background()

	if err := h.engine.RequestPasswordReset(ctx, testEmail); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	old := h.notifier.last(t, notify.KindPasswordReset, testEmail)
	if err := h.engine.RequestPasswordReset(ctx, testEmail); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	if err := h.engine.ConfirmPasswordReset(ctx, old, "Newer2@pass"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected superseded token invalid, got %v", err)
	}
}

func TestVerificationTokenCannotResetPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.engine.Register(ctx, testEmail, testSecret); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	token := h.notifier.last(t, notify.KindVerification, testEmail)

	if err := h.engine.ConfirmPasswordReset(ctx, token, "Newer2@pass"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected purpose mismatch to be ErrTokenInvalid, got %v", err)
	}
	if err := h.engine.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("verification token must still be usable, got %v", err)
	}
}
