// Package memory is an in-process implementation of store.Store. A single
// mutex serializes writes, which gives every conditional update the required
// atomicity. It suits tests and single-process deployments.
package memory

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// Store keeps all state in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	accounts     map[string]*store.Account
	emailIndex   map[string]string
	refresh      map[string]*store.RefreshCredential
	refreshIndex map[string]string
	oneTime      map[string]*store.OneTimeCredential
	audit        []store.AuditEntry
	closed       bool
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts:     make(map[string]*store.Account),
		emailIndex:   make(map[string]string),
		refresh:      make(map[string]*store.RefreshCredential),
		refreshIndex: make(map[string]string),
		oneTime:      make(map[string]*store.OneTimeCredential),
	}
}

func (s *Store) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: store closed", store.ErrUnavailable)
	}
	return nil
}

func hashKey(h []byte) string {
	return hex.EncodeToString(h)
}

func (s *Store) CreateAccount(ctx context.Context, a *store.Account) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if _, ok := s.emailIndex[a.Email]; ok {
		return store.ErrConflict
	}
	if _, ok := s.accounts[a.ID]; ok {
		return store.ErrConflict
	}
	s.accounts[a.ID] = a.Clone()
	s.emailIndex[a.Email] = a.ID
	return nil
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*store.Account, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	id, ok := s.emailIndex[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.accounts[id].Clone(), nil
}

func (s *Store) AccountByID(ctx context.Context, id string) (*store.Account, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *Store) UpdateAccount(ctx context.Context, id string, mutate func(*store.Account) error) (*store.Account, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	current, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if next.Email != current.Email {
		if owner, taken := s.emailIndex[next.Email]; taken && owner != id {
			return nil, store.ErrConflict
		}
		delete(s.emailIndex, current.Email)
		s.emailIndex[next.Email] = id
	}
	next.ID = id
	s.accounts[id] = next
	return next.Clone(), nil
}

func (s *Store) CreateRefresh(ctx context.Context, c *store.RefreshCredential) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.insertRefreshLocked(c)
}

func (s *Store) insertRefreshLocked(c *store.RefreshCredential) error {
	key := hashKey(c.Hash)
	if _, ok := s.refreshIndex[key]; ok {
		return store.ErrConflict
	}
	if _, ok := s.refresh[c.ID]; ok {
		return store.ErrConflict
	}
	s.refresh[c.ID] = c.Clone()
	s.refreshIndex[key] = c.ID
	return nil
}

func (s *Store) RefreshByHash(ctx context.Context, hash []byte) (*store.RefreshCredential, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	id, ok := s.refreshIndex[hashKey(hash)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.refresh[id].Clone(), nil
}

func (s *Store) TouchRefresh(ctx context.Context, id string, now time.Time) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	c, ok := s.refresh[id]
	if !ok {
		return store.ErrNotFound
	}
	t := now
	c.LastUsedAt = &t
	return nil
}

func (s *Store) BindRefreshUpstream(ctx context.Context, id, sealed string, now time.Time) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	c, ok := s.refresh[id]
	if !ok {
		return store.ErrNotFound
	}
	if !c.ValidAt(now) {
		return store.ErrAlreadyRevoked
	}
	c.UpstreamSecret = sealed
	return nil
}

func (s *Store) RotateRefresh(ctx context.Context, oldID string, next *store.RefreshCredential, now time.Time) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	old, ok := s.refresh[oldID]
	if !ok {
		return store.ErrNotFound
	}
	if !old.ValidAt(now) {
		return store.ErrAlreadyRevoked
	}
	if err := s.insertRefreshLocked(next); err != nil {
		return err
	}

	t := now
	old.RevokedAt = &t
	old.RevokedReason = store.RevokeRotated
	old.ReplacedBy = next.ID
	old.LastUsedAt = &t
	return nil
}

func (s *Store) RevokeRefresh(ctx context.Context, hash []byte, reason store.RevokeReason, now time.Time) (bool, error) {
	if err := s.begin(ctx); err != nil {
		return false, err
	}
	defer s.mu.Unlock()

	id, ok := s.refreshIndex[hashKey(hash)]
	if !ok {
		return false, store.ErrNotFound
	}
	c := s.refresh[id]
	if c.RevokedAt != nil {
		return false, nil
	}
	t := now
	c.RevokedAt = &t
	c.RevokedReason = reason
	return true, nil
}

func (s *Store) RevokeAllRefresh(ctx context.Context, accountID string, reason store.RevokeReason, now time.Time) (int, error) {
	if err := s.begin(ctx); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.refresh {
		if c.AccountID != accountID || c.RevokedAt != nil {
			continue
		}
		t := now
		c.RevokedAt = &t
		c.RevokedReason = reason
		n++
	}
	return n, nil
}

func (s *Store) ActiveRefresh(ctx context.Context, accountID string, now time.Time) ([]store.RefreshCredential, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	var out []store.RefreshCredential
	for _, c := range s.refresh {
		if c.AccountID == accountID && c.ValidAt(now) {
			out = append(out, *c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateOneTime(ctx context.Context, c *store.OneTimeCredential) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	key := hashKey(c.Hash)
	if _, ok := s.oneTime[key]; ok {
		return store.ErrConflict
	}
	s.oneTime[key] = c.Clone()
	return nil
}

func (s *Store) ConsumeOneTime(ctx context.Context, hash []byte, purpose store.Purpose, now time.Time) (*store.OneTimeCredential, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	c, ok := s.oneTime[hashKey(hash)]
	if !ok || c.Purpose != purpose || !bytes.Equal(c.Hash, hash) {
		return nil, store.ErrNotFound
	}
	if c.UsedAt != nil {
		return nil, store.ErrConsumed
	}
	if !now.Before(c.ExpiresAt) {
		return nil, store.ErrExpired
	}
	t := now
	c.UsedAt = &t
	return c.Clone(), nil
}

func (s *Store) InvalidateOneTime(ctx context.Context, accountID string, purpose store.Purpose, now time.Time) (int, error) {
	if err := s.begin(ctx); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.oneTime {
		if c.AccountID != accountID || c.Purpose != purpose || c.UsedAt != nil {
			continue
		}
		t := now
		c.UsedAt = &t
		n++
	}
	return n, nil
}

func (s *Store) AppendAudit(ctx context.Context, e store.AuditEntry) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if e.Detail != nil {
		detail := make(map[string]string, len(e.Detail))
		for k, v := range e.Detail {
			detail[k] = v
		}
		e.Detail = detail
	}
	s.audit = append(s.audit, e)
	return nil
}

// AuditEntries returns a copy of the audit log in append order.
func (s *Store) AuditEntries() []store.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

// RefreshCredentials returns copies of every refresh credential of accountID,
// valid or not.
func (s *Store) RefreshCredentials(accountID string) []store.RefreshCredential {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.RefreshCredential
	for _, c := range s.refresh {
		if c.AccountID == accountID {
			out = append(out, *c.Clone())
		}
	}
	return out
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
