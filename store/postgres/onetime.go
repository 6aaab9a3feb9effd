package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/store"
)

func (s *Store) CreateOneTime(ctx context.Context, c *store.OneTimeCredential) error {
	_, err := s.db.ExecContext(ctx, `
		insert into one_time_credentials (id, account_id, purpose, hash, expires_at, used_at, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.AccountID, string(c.Purpose), c.Hash, c.ExpiresAt.UTC(), nullTime(c.UsedAt), c.CreatedAt.UTC(),
	)
	return mapErr(err)
}

// ConsumeOneTime claims the credential with one conditional update. When the
// update matches nothing, a follow-up read classifies the failure.
func (s *Store) ConsumeOneTime(ctx context.Context, hash []byte, purpose store.Purpose, now time.Time) (*store.OneTimeCredential, error) {
	c := store.OneTimeCredential{Hash: hash, Purpose: purpose}
	err := s.db.QueryRowContext(ctx, `
		update one_time_credentials set used_at = $3
		where hash = $1 and purpose = $2 and used_at is null and expires_at > $3
		returning id, account_id, expires_at, created_at`,
		hash, string(purpose), now.UTC(),
	).Scan(&c.ID, &c.AccountID, &c.ExpiresAt, &c.CreatedAt)
	if err == nil {
		used := now.UTC()
		c.UsedAt = &used
		c.ExpiresAt = c.ExpiresAt.UTC()
		c.CreatedAt = c.CreatedAt.UTC()
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, mapErr(err)
	}

	var usedAt sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		select used_at from one_time_credentials where hash = $1 and purpose = $2`,
		hash, string(purpose),
	).Scan(&usedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if usedAt.Valid {
		return nil, store.ErrConsumed
	}
	return nil, store.ErrExpired
}

func (s *Store) InvalidateOneTime(ctx context.Context, accountID string, purpose store.Purpose, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		update one_time_credentials set used_at = $3
		where account_id = $1 and purpose = $2 and used_at is null`,
		accountID, string(purpose), now.UTC(),
	)
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapErr(err)
	}
	return int(n), nil
}
