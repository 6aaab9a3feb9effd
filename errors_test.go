package authcore

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{&ValidationError{Field: "email", Reason: "is required"}, KindValidation},
		{ErrDuplicateEmail, KindValidation},
		{ErrPasswordReuse, KindValidation},
		{withReason(ErrCredentialsInvalid, "unknown_email"), KindCredentialsInvalid},
		{&LockedError{Until: time.Now()}, KindAccountLocked},
		{ErrEmailNotVerified, KindEmailNotVerified},
		{ErrAccountDisabled, KindAccountDisabled},
		{withReason(ErrTokenInvalid, "expired"), KindTokenInvalid},
		{withReason(ErrRotationConflict, "concurrent_rotation"), KindRotationConflict},
		{fmt.Errorf("%w: login: boom", ErrStoreUnavailable), KindStoreUnavailable},
		{ErrProviderUnavailable, KindProviderUnavailable},
		{withReason(ErrRateLimited, "login"), KindRateLimited},
		{errors.New("unexpected"), KindInternal},
	}

	for _, tc := range tests {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestKindRetryable(t *testing.T) {
	for _, k := range []Kind{KindStoreUnavailable, KindProviderUnavailable, KindRateLimited} {
		if !k.Retryable() {
			t.Fatalf("%s must be retryable", k)
		}
	}
	for _, k := range []Kind{KindCredentialsInvalid, KindTokenInvalid, KindRotationConflict, KindInternal} {
		if k.Retryable() {
			t.Fatalf("%s must not be retryable", k)
		}
	}
}

func TestReasonIsNotPartOfMessage(t *testing.T) {
	err := withReason(ErrCredentialsInvalid, "unknown_email")
	if err.Error() != ErrCredentialsInvalid.Error() {
		t.Fatalf("reason leaked into message: %q", err.Error())
	}
	if ReasonOf(err) != "unknown_email" {
		t.Fatalf("expected reason, got %q", ReasonOf(err))
	}
	if ReasonOf(ErrTokenInvalid) != "" {
		t.Fatalf("plain sentinel has no reason")
	}
}

func TestLockedErrorMatchesSentinel(t *testing.T) {
	until := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := fmt.Errorf("wrapped: %w", &LockedError{Until: until})

	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked match")
	}
	var locked *LockedError
	if !errors.As(err, &locked) || !locked.Until.Equal(until) {
		t.Fatalf("expected LockedError with until")
	}
}
