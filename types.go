package authcore

import "time"

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "Bearer"

// Tokens is the result of Login and Refresh.
type Tokens struct {
	AccessToken string
	// RefreshToken is the plaintext refresh secret. After a refresh without
	// rotation it equals the presented token.
	RefreshToken string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
	TokenType string
	AccountID string
	SessionID string
	// Rotated reports whether Refresh replaced the refresh secret.
	Rotated bool
}

// Registration acknowledges a new account awaiting email verification.
type Registration struct {
	AccountID           string
	PendingVerification bool
}

// SessionInfo describes one active refresh credential. It never exposes the
// credential hash.
type SessionInfo struct {
	SessionID  string
	Device     string
	Origin     string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  time.Time
}

// AccountStatus is the administrative view of an account.
type AccountStatus struct {
	AccountID     string
	Email         string
	EmailVerified bool
	Active        bool
	Deleted       bool
	LockedUntil   *time.Time
	LastLoginAt   *time.Time
}
