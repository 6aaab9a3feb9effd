package store

import (
	"time"

	"github.com/MrEthical07/authcore/lockout"
)

// Account is an identity record. Accounts are never physically deleted.
type Account struct {
	ID              string
	Email           string
	PasswordHash    string
	EmailVerified   bool
	EmailVerifiedAt *time.Time
	FailedAttempts  int
	LockedUntil     *time.Time
	LastLoginAt     *time.Time
	LastLoginOrigin string
	Active          bool
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LockoutState returns the lockout-relevant fields.
func (a *Account) LockoutState() lockout.State {
	return lockout.State{FailedAttempts: a.FailedAttempts, LockedUntil: a.LockedUntil}
}

// SetLockoutState copies s into the account.
func (a *Account) SetLockoutState(s lockout.State) {
	a.FailedAttempts = s.FailedAttempts
	a.LockedUntil = s.LockedUntil
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.EmailVerifiedAt = cloneTime(a.EmailVerifiedAt)
	out.LockedUntil = cloneTime(a.LockedUntil)
	out.LastLoginAt = cloneTime(a.LastLoginAt)
	out.DeletedAt = cloneTime(a.DeletedAt)
	return &out
}

// RevokeReason records why a refresh credential stopped being valid.
type RevokeReason string

const (
	RevokeRotated         RevokeReason = "rotated"
	RevokeLogout          RevokeReason = "logout"
	RevokeLogoutAll       RevokeReason = "logout_all"
	RevokePasswordReset   RevokeReason = "password_reset"
	RevokePasswordChange  RevokeReason = "password_change"
	RevokeReuseDetected   RevokeReason = "reuse_detected"
	RevokeAccountDisabled RevokeReason = "account_disabled"
)

// RefreshCredential is one session's long-lived secret, stored by digest.
type RefreshCredential struct {
	ID             string
	AccountID      string
	Hash           []byte
	ExpiresAt      time.Time
	RevokedAt      *time.Time
	RevokedReason  RevokeReason
	ReplacedBy     string
	LastUsedAt     *time.Time
	Device         string
	Origin         string
	CreatedAt      time.Time
	// UpstreamSecret is the sealed refresh token of an upstream issuer, if
	// the session is backed by one. It is never handed to callers.
	UpstreamSecret string
}

// ValidAt reports whether the credential is neither revoked nor expired.
func (c *RefreshCredential) ValidAt(now time.Time) bool {
	return c.RevokedAt == nil && now.Before(c.ExpiresAt)
}

// Clone returns a deep copy.
func (c *RefreshCredential) Clone() *RefreshCredential {
	if c == nil {
		return nil
	}
	out := *c
	out.Hash = append([]byte(nil), c.Hash...)
	out.RevokedAt = cloneTime(c.RevokedAt)
	out.LastUsedAt = cloneTime(c.LastUsedAt)
	return &out
}

// Purpose separates one-time credential kinds sharing the same table.
type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

// OneTimeCredential is a single-use, short-lived token.
type OneTimeCredential struct {
	ID        string
	AccountID string
	Purpose   Purpose
	Hash      []byte
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Clone returns a deep copy.
func (c *OneTimeCredential) Clone() *OneTimeCredential {
	if c == nil {
		return nil
	}
	out := *c
	out.Hash = append([]byte(nil), c.Hash...)
	out.UsedAt = cloneTime(c.UsedAt)
	return &out
}

// AuditEntry is an immutable security event record. Detail never carries
// plaintext secrets.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	AccountID string
	Kind      string
	Success   bool
	Reason    string
	Origin    string
	UserAgent string
	Detail    map[string]string
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
