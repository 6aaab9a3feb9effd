// Package redisotc keeps one-time credentials (email verification and
// password reset) in Redis. It implements store.OneTimeCredentials and can
// replace the relational store for that concern.
package redisotc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/store"
)

// DefaultRetention keeps consumed and expired records long enough to answer
// ErrConsumed and ErrExpired instead of ErrNotFound.
const DefaultRetention = 24 * time.Hour

// createScript inserts a record and indexes it in one step. The index is
// written first so a failure there leaves no record behind.
// KEYS[1] = record key
// KEYS[2] = index set key
// ARGV[1..5] = id, account_id, purpose, expires_at, created_at (unix ms)
// ARGV[6] = key expiry (unix ms)
// ARGV[7] = hex digest
//
// Returns 1 when created and 0 when the digest is taken.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('SADD', KEYS[2], ARGV[7])
redis.call('PEXPIREAT', KEYS[2], ARGV[6])
redis.call('HSET', KEYS[1],
  'id', ARGV[1],
  'account_id', ARGV[2],
  'purpose', ARGV[3],
  'expires_at', ARGV[4],
  'created_at', ARGV[5])
redis.call('PEXPIREAT', KEYS[1], ARGV[6])
return 1
`)

// consumeScript claims a record in one step.
// KEYS[1] = record key
// ARGV[1] = expected purpose
// ARGV[2] = now (unix ms)
//
// Returns "ok", "not_found", "consumed" or "expired".
var consumeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 'not_found'
end
if redis.call('HGET', KEYS[1], 'purpose') ~= ARGV[1] then
  return 'not_found'
end
local used = redis.call('HGET', KEYS[1], 'used_at')
if used and used ~= '' then
  return 'consumed'
end
local exp = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if exp == nil or exp <= tonumber(ARGV[2]) then
  return 'expired'
end
redis.call('HSET', KEYS[1], 'used_at', ARGV[2])
return 'ok'
`)

// invalidateScript marks every unused record listed in an account index.
// KEYS[1] = index set key
// ARGV[1] = record key prefix
// ARGV[2] = now (unix ms)
var invalidateScript = redis.NewScript(`
local n = 0
for _, h in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  local key = ARGV[1] .. h
  if redis.call('EXISTS', key) == 1 then
    local used = redis.call('HGET', key, 'used_at')
    if not used or used == '' then
      redis.call('HSET', key, 'used_at', ARGV[2])
      n = n + 1
    end
  else
    redis.call('SREM', KEYS[1], h)
  end
end
return n
`)

// Store is a Redis-backed store.OneTimeCredentials.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

var _ store.OneTimeCredentials = (*Store)(nil)

// New returns a Store using keys under prefix (default "otc").
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "otc"
	}
	return &Store{redis: client, prefix: prefix, retention: DefaultRetention}
}

func (s *Store) recordPrefix() string { return s.prefix + ":h:" }

func (s *Store) key(hash []byte) string {
	return s.recordPrefix() + hex.EncodeToString(hash)
}

func (s *Store) indexKey(accountID string, purpose store.Purpose) string {
	return s.prefix + ":a:" + accountID + ":" + string(purpose)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

func (s *Store) CreateOneTime(ctx context.Context, c *store.OneTimeCredential) error {
	expireAt := c.ExpiresAt.Add(s.retention).UnixMilli()
	created, err := createScript.Run(ctx, s.redis,
		[]string{s.key(c.Hash), s.indexKey(c.AccountID, c.Purpose)},
		c.ID, c.AccountID, string(c.Purpose),
		c.ExpiresAt.UnixMilli(), c.CreatedAt.UnixMilli(),
		expireAt, hex.EncodeToString(c.Hash),
	).Int()
	if err != nil {
		return unavailable(err)
	}
	if created == 0 {
		return store.ErrConflict
	}
	return nil
}

func (s *Store) ConsumeOneTime(ctx context.Context, hash []byte, purpose store.Purpose, now time.Time) (*store.OneTimeCredential, error) {
	key := s.key(hash)
	status, err := consumeScript.Run(ctx, s.redis, []string{key}, string(purpose), now.UnixMilli()).Text()
	if err != nil {
		return nil, unavailable(err)
	}

	switch status {
	case "ok":
	case "consumed":
		return nil, store.ErrConsumed
	case "expired":
		return nil, store.ErrExpired
	default:
		return nil, store.ErrNotFound
	}

	fields, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return decode(hash, fields)
}

func (s *Store) InvalidateOneTime(ctx context.Context, accountID string, purpose store.Purpose, now time.Time) (int, error) {
	n, err := invalidateScript.Run(ctx, s.redis,
		[]string{s.indexKey(accountID, purpose)},
		s.recordPrefix(), now.UnixMilli(),
	).Int()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func decode(hash []byte, fields map[string]string) (*store.OneTimeCredential, error) {
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}
	ms := func(name string) (time.Time, error) {
		v, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return time.Time{}, errors.New("redisotc: corrupt field " + name)
		}
		return time.UnixMilli(v).UTC(), nil
	}

	expires, err := ms("expires_at")
	if err != nil {
		return nil, err
	}
	created, err := ms("created_at")
	if err != nil {
		return nil, err
	}

	c := &store.OneTimeCredential{
		ID:        fields["id"],
		AccountID: fields["account_id"],
		Purpose:   store.Purpose(fields["purpose"]),
		Hash:      append([]byte(nil), hash...),
		ExpiresAt: expires,
		CreatedAt: created,
	}
	if fields["used_at"] != "" {
		used, err := ms("used_at")
		if err != nil {
			return nil, err
		}
		c.UsedAt = &used
	}
	return c, nil
}
