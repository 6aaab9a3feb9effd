package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// UnlockAccount clears the lockout and failure counter of accountID.
func (e *Engine) UnlockAccount(ctx context.Context, accountID string) error {
	return e.changeStatus(ctx, "unlock_account", accountID, auditEventAccountUnlocked, "", func(a *store.Account, now time.Time) {
		a.SetLockoutState(e.lockout.RecordSuccess(a.LockoutState()))
	})
}

// DisableAccount deactivates accountID and revokes all its sessions.
func (e *Engine) DisableAccount(ctx context.Context, accountID string) error {
	return e.changeStatus(ctx, "disable_account", accountID, auditEventAccountDisabled, store.RevokeAccountDisabled, func(a *store.Account, now time.Time) {
		a.Active = false
	})
}

// EnableAccount reactivates a disabled account. Deleted accounts stay deleted.
func (e *Engine) EnableAccount(ctx context.Context, accountID string) error {
	return e.changeStatus(ctx, "enable_account", accountID, auditEventAccountEnabled, "", func(a *store.Account, now time.Time) {
		if a.DeletedAt == nil {
			a.Active = true
		}
	})
}

// DeleteAccount soft-deletes accountID and revokes all its sessions. The
// record is kept for audit continuity.
func (e *Engine) DeleteAccount(ctx context.Context, accountID string) error {
	return e.changeStatus(ctx, "delete_account", accountID, auditEventAccountDeleted, store.RevokeAccountDisabled, func(a *store.Account, now time.Time) {
		if a.DeletedAt == nil {
			a.DeletedAt = &now
		}
		a.Active = false
	})
}

func (e *Engine) changeStatus(
	ctx context.Context,
	op, accountID, event string,
	revoke store.RevokeReason,
	mutate func(*store.Account, time.Time),
) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, finish := e.span(ctx, op)
	defer func() { finish(err) }()

	if accountID == "" {
		return &ValidationError{Field: "account_id", Reason: "is required"}
	}

	now := e.now()
	_, err = e.updateAccount(ctx, accountID, func(a *store.Account) error {
		mutate(a, now)
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &ValidationError{Field: "account_id", Reason: "not found"}
		}
		return e.storeErr(op, err)
	}

	revoked := 0
	if revoke != "" {
		if revoked, err = e.revokeAll(ctx, accountID, revoke); err != nil {
			return err
		}
	}

	switch event {
	case auditEventAccountDisabled:
		e.metricInc(MetricAccountDisabled)
	case auditEventAccountDeleted:
		e.metricInc(MetricAccountDeleted)
	}
	e.emitAudit(ctx, event, true, accountID, "", nil, func() map[string]string {
		if revoke == "" {
			return nil
		}
		return map[string]string{"revoked": itoa(revoked)}
	})
	return nil
}

// AccountStatus returns the administrative view of accountID.
func (e *Engine) AccountStatus(ctx context.Context, accountID string) (*AccountStatus, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	a, err := e.accountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &ValidationError{Field: "account_id", Reason: "not found"}
		}
		return nil, e.storeErr("account status", err)
	}

	status := &AccountStatus{
		AccountID:     a.ID,
		Email:         a.Email,
		EmailVerified: a.EmailVerified,
		Active:        a.Active,
		Deleted:       a.DeletedAt != nil,
		LastLoginAt:   a.LastLoginAt,
	}
	if until, locked := e.lockout.Locked(a.LockoutState(), e.now()); locked {
		status.LockedUntil = &until
	}
	return status, nil
}
