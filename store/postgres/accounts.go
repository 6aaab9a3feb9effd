package postgres

import (
	"context"
	"database/sql"

	"github.com/MrEthical07/authcore/store"
)

const accountColumns = `id, email, password_hash, email_verified, email_verified_at, failed_attempts,
	locked_until, last_login_at, last_login_origin, active, deleted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*store.Account, error) {
	var a store.Account
	var verifiedAt, lockedUntil, lastLoginAt, deletedAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.EmailVerified, &verifiedAt, &a.FailedAttempts,
		&lockedUntil, &lastLoginAt, &a.LastLoginOrigin, &a.Active, &deletedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	a.EmailVerifiedAt = timePtr(verifiedAt)
	a.LockedUntil = timePtr(lockedUntil)
	a.LastLoginAt = timePtr(lastLoginAt)
	a.DeletedAt = timePtr(deletedAt)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *store.Account) error {
	_, err := s.db.ExecContext(ctx, `
		insert into accounts (`+accountColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.ID, a.Email, a.PasswordHash, a.EmailVerified, nullTime(a.EmailVerifiedAt), a.FailedAttempts,
		nullTime(a.LockedUntil), nullTime(a.LastLoginAt), a.LastLoginOrigin, a.Active, nullTime(a.DeletedAt),
		a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	return mapErr(err)
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*store.Account, error) {
	row := s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where email = $1`, email)
	return scanAccount(row)
}

func (s *Store) AccountByID(ctx context.Context, id string) (*store.Account, error) {
	row := s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where id = $1`, id)
	return scanAccount(row)
}

func (s *Store) UpdateAccount(ctx context.Context, id string, mutate func(*store.Account) error) (*store.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanAccount(tx.QueryRowContext(ctx, `select `+accountColumns+` from accounts where id = $1 for update`, id))
	if err != nil {
		return nil, err
	}
	if err := mutate(a); err != nil {
		return nil, err
	}
	a.ID = id

	_, err = tx.ExecContext(ctx, `
		update accounts set
			email = $2, password_hash = $3, email_verified = $4, email_verified_at = $5,
			failed_attempts = $6, locked_until = $7, last_login_at = $8, last_login_origin = $9,
			active = $10, deleted_at = $11, updated_at = $12
		where id = $1`,
		a.ID, a.Email, a.PasswordHash, a.EmailVerified, nullTime(a.EmailVerifiedAt),
		a.FailedAttempts, nullTime(a.LockedUntil), nullTime(a.LastLoginAt), a.LastLoginOrigin,
		a.Active, nullTime(a.DeletedAt), a.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}
