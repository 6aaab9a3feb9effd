package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation is matched by every input validation failure, including
	// ErrDuplicateEmail and *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateEmail means the email is already registered.
	ErrDuplicateEmail = &ValidationError{Field: "email", Reason: "already registered"}
	// ErrCredentialsInvalid never distinguishes an unknown email from a wrong secret.
	ErrCredentialsInvalid = errors.New("invalid credentials")
	// ErrAccountLocked is matched by *LockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailNotVerified is returned by Login and Refresh for unverified accounts.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrAccountDisabled covers inactive and soft-deleted accounts.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrTokenInvalid collapses expired, revoked, forged and unknown tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRotationConflict signals that a refresh credential was presented after
	// it had already been rotated, or that a concurrent refresh claimed it first.
	ErrRotationConflict = errors.New("refresh token rotation conflict")
	// ErrStoreUnavailable is transient and safe to retry with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrProviderUnavailable means the credential-issuing upstream failed transiently.
	ErrProviderUnavailable = errors.New("credential provider unavailable")
	// ErrRateLimited is returned when a request throttle rejects the call.
	ErrRateLimited = errors.New("rate limited")
	// ErrPasswordReuse rejects a password change to the current secret.
	ErrPasswordReuse = &ValidationError{Field: "new_password", Reason: "must differ from current password"}
	// ErrEngineClosed is returned by every operation after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// ValidationError describes malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
	// Rules lists the failed complexity rules for password fields.
	Rules []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// LockedError carries the lockout expiry so clients can back off.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return "account locked until " + e.Until.UTC().Format(time.RFC3339)
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// Kind is the externally visible category of an engine error.
type Kind uint8

const (
	KindNone Kind = iota
	KindValidation
	KindCredentialsInvalid
	KindAccountLocked
	KindEmailNotVerified
	KindAccountDisabled
	KindTokenInvalid
	KindRotationConflict
	KindStoreUnavailable
	KindProviderUnavailable
	KindRateLimited
	KindInternal
)

var kindNames = [...]string{
	KindNone:                "none",
	KindValidation:          "validation",
	KindCredentialsInvalid:  "credentials_invalid",
	KindAccountLocked:       "account_locked",
	KindEmailNotVerified:    "email_not_verified",
	KindAccountDisabled:     "account_disabled",
	KindTokenInvalid:        "token_invalid",
	KindRotationConflict:    "rotation_conflict",
	KindStoreUnavailable:    "store_unavailable",
	KindProviderUnavailable: "provider_unavailable",
	KindRateLimited:         "rate_limited",
	KindInternal:            "internal",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Retryable reports whether the caller may retry the same request later.
func (k Kind) Retryable() bool {
	switch k {
	case KindStoreUnavailable, KindProviderUnavailable, KindRateLimited:
		return true
	default:
		return false
	}
}

// KindOf maps err onto the closed Kind set. Unknown errors map to KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrCredentialsInvalid):
		return KindCredentialsInvalid
	case errors.Is(err, ErrAccountLocked):
		return KindAccountLocked
	case errors.Is(err, ErrEmailNotVerified):
		return KindEmailNotVerified
	case errors.Is(err, ErrAccountDisabled):
		return KindAccountDisabled
	case errors.Is(err, ErrTokenInvalid):
		return KindTokenInvalid
	case errors.Is(err, ErrRotationConflict):
		return KindRotationConflict
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrProviderUnavailable):
		return KindProviderUnavailable
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindInternal
	}
}

// reasonError pairs an external sentinel with an internal reason that is
// logged and audited but never part of Error().
type reasonError struct {
	kind   error
	reason string
}

func (e *reasonError) Error() string { return e.kind.Error() }
func (e *reasonError) Unwrap() error { return e.kind }

func withReason(kind error, reason string) error {
	return &reasonError{kind: kind, reason: reason}
}

// ReasonOf returns the internal reason attached to an engine error, if any.
func ReasonOf(err error) string {
	var re *reasonError
	if errors.As(err, &re) {
		return re.reason
	}
	return ""
}
