package store

import (
	"context"
	"time"
)

// Accounts persists identity records.
type Accounts interface {
	// CreateAccount inserts a. ErrConflict if the email is taken.
	CreateAccount(ctx context.Context, a *Account) error
	AccountByEmail(ctx context.Context, email string) (*Account, error)
	AccountByID(ctx context.Context, id string) (*Account, error)
	// UpdateAccount loads the account under a row lock, applies mutate, and
	// persists the result. An error from mutate aborts without writing and is
	// returned unchanged.
	UpdateAccount(ctx context.Context, id string, mutate func(*Account) error) (*Account, error)
}

// RefreshCredentials persists session secrets.
type RefreshCredentials interface {
	// CreateRefresh inserts c. ErrConflict on a duplicate hash.
	CreateRefresh(ctx context.Context, c *RefreshCredential) error
	// RefreshByHash returns the credential whatever its state.
	RefreshByHash(ctx context.Context, hash []byte) (*RefreshCredential, error)
	// TouchRefresh updates last-used and nothing else.
	TouchRefresh(ctx context.Context, id string, now time.Time) error
	// BindRefreshUpstream stores sealed as the upstream secret of the
	// credential id, provided it is still valid at now. Otherwise it returns
	// ErrAlreadyRevoked. Unknown ids return ErrNotFound.
	BindRefreshUpstream(ctx context.Context, id, sealed string, now time.Time) error
	// RotateRefresh revokes oldID with RevokeRotated and inserts next in one
	// transaction, provided oldID is still valid at now. Otherwise it returns
	// ErrAlreadyRevoked and writes nothing.
	RotateRefresh(ctx context.Context, oldID string, next *RefreshCredential, now time.Time) error
	// RevokeRefresh revokes the credential with hash if it is not already
	// revoked. The boolean reports whether this call revoked it. Unknown
	// hashes return ErrNotFound.
	RevokeRefresh(ctx context.Context, hash []byte, reason RevokeReason, now time.Time) (bool, error)
	// RevokeAllRefresh revokes every valid credential of accountID and
	// returns how many were revoked.
	RevokeAllRefresh(ctx context.Context, accountID string, reason RevokeReason, now time.Time) (int, error)
	// ActiveRefresh lists valid credentials of accountID, newest first.
	ActiveRefresh(ctx context.Context, accountID string, now time.Time) ([]RefreshCredential, error)
}

// OneTimeCredentials persists verification and reset tokens.
type OneTimeCredentials interface {
	CreateOneTime(ctx context.Context, c *OneTimeCredential) error
	// ConsumeOneTime marks the credential used if it is unused and unexpired.
	// It returns ErrNotFound, ErrExpired, or ErrConsumed otherwise.
	ConsumeOneTime(ctx context.Context, hash []byte, purpose Purpose, now time.Time) (*OneTimeCredential, error)
	// InvalidateOneTime marks every unused credential of accountID and
	// purpose as used and returns how many were affected.
	InvalidateOneTime(ctx context.Context, accountID string, purpose Purpose, now time.Time) (int, error)
}

// AuditLog appends audit entries.
type AuditLog interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
}

// Store is the full persistence handle. It is constructed explicitly and
// closed by its owner.
type Store interface {
	Accounts
	RefreshCredentials
	OneTimeCredentials
	AuditLog
	Ping(ctx context.Context) error
	Close() error
}
