package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/MrEthical07/authcore/store"
)

const refreshColumns = `id, account_id, hash, expires_at, revoked_at, revoked_reason, replaced_by,
	last_used_at, device, origin, created_at, upstream_secret`

func scanRefresh(row rowScanner) (*store.RefreshCredential, error) {
	var (
		c                   store.RefreshCredential
		reason              string
		revokedAt, lastUsed sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.AccountID, &c.Hash, &c.ExpiresAt, &revokedAt, &reason, &c.ReplacedBy,
		&lastUsed, &c.Device, &c.Origin, &c.CreatedAt, &c.UpstreamSecret,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	c.RevokedReason = store.RevokeReason(reason)
	c.RevokedAt = timePtr(revokedAt)
	c.LastUsedAt = timePtr(lastUsed)
	c.ExpiresAt = c.ExpiresAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRefresh(ctx context.Context, db execer, c *store.RefreshCredential) error {
	_, err := db.ExecContext(ctx, `
		insert into refresh_credentials (`+refreshColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		c.ID, c.AccountID, c.Hash, c.ExpiresAt.UTC(), nullTime(c.RevokedAt), string(c.RevokedReason),
		c.ReplacedBy, nullTime(c.LastUsedAt), c.Device, c.Origin, c.CreatedAt.UTC(), c.UpstreamSecret,
	)
	return mapErr(err)
}

func (s *Store) CreateRefresh(ctx context.Context, c *store.RefreshCredential) error {
	return insertRefresh(ctx, s.db, c)
}

func (s *Store) RefreshByHash(ctx context.Context, hash []byte) (*store.RefreshCredential, error) {
	row := s.db.QueryRowContext(ctx, `select `+refreshColumns+` from refresh_credentials where hash = $1`, hash)
	return scanRefresh(row)
}

func (s *Store) TouchRefresh(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `update refresh_credentials set last_used_at = $2 where id = $1`, id, now.UTC())
	if err != nil {
		return mapErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) BindRefreshUpstream(ctx context.Context, id, sealed string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update refresh_credentials set upstream_secret = $2
		where id = $1 and revoked_at is null and expires_at > $3`,
		id, sealed, now.UTC(),
	)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `select exists (select 1 from refresh_credentials where id = $1)`, id).Scan(&exists)
	if err != nil {
		return mapErr(err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrAlreadyRevoked
}

// RotateRefresh claims the predecessor with a conditional update and inserts
// the successor in the same transaction. A zero row count means another
// caller already claimed or revoked it.
func (s *Store) RotateRefresh(ctx context.Context, oldID string, next *store.RefreshCredential, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update refresh_credentials
		set revoked_at = $2, revoked_reason = $3, replaced_by = $4, last_used_at = $2
		where id = $1 and revoked_at is null and expires_at > $2`,
		oldID, now.UTC(), string(store.RevokeRotated), next.ID,
	)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return store.ErrAlreadyRevoked
	}

	if err := insertRefresh(ctx, tx, next); err != nil {
		return err
	}
	return mapErr(tx.Commit())
}

func (s *Store) RevokeRefresh(ctx context.Context, hash []byte, reason store.RevokeReason, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update refresh_credentials set revoked_at = $2, revoked_reason = $3
		where hash = $1 and revoked_at is null`,
		hash, now.UTC(), string(reason),
	)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err)
	}
	if n > 0 {
		return true, nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `select exists (select 1 from refresh_credentials where hash = $1)`, hash).Scan(&exists)
	if err != nil {
		return false, mapErr(err)
	}
	if !exists {
		return false, store.ErrNotFound
	}
	return false, nil
}

func (s *Store) RevokeAllRefresh(ctx context.Context, accountID string, reason store.RevokeReason, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		update refresh_credentials set revoked_at = $2, revoked_reason = $3
		where account_id = $1 and revoked_at is null`,
		accountID, now.UTC(), string(reason),
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

func (s *Store) ActiveRefresh(ctx context.Context, accountID string, now time.Time) ([]store.RefreshCredential, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+refreshColumns+` from refresh_credentials
		where account_id = $1 and revoked_at is null and expires_at > $2
		order by created_at desc`,
		accountID, now.UTC(),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []store.RefreshCredential
	for rows.Next() {
		c, err := scanRefresh(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, mapErr(rows.Err())
}
