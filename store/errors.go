package store

import "errors"

var (
	// ErrNotFound means no row matched.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict means a uniqueness constraint rejected the write.
	ErrConflict = errors.New("store: conflict")
	// ErrAlreadyRevoked means a conditional revoke lost: the credential was
	// already revoked or expired when the update ran.
	ErrAlreadyRevoked = errors.New("store: credential already revoked")
	// ErrExpired means a one-time credential exists but has expired.
	ErrExpired = errors.New("store: credential expired")
	// ErrConsumed means a one-time credential was already used.
	ErrConsumed = errors.New("store: credential already used")
	// ErrUnavailable is a transient backend failure; the caller may retry.
	ErrUnavailable = errors.New("store: backend unavailable")
)
