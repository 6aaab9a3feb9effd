package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// ChangePassword replaces the secret of an authenticated account after
// checking the current one. Every session, including the caller's, is revoked.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldSecret, newSecret string) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, finish := e.span(ctx, "change_password")
	defer func() { finish(err) }()

	fail := func(err error) error {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, "", err, nil)
		return err
	}

	if accountID == "" {
		return fail(&ValidationError{Field: "account_id", Reason: "is required"})
	}
	if err := e.checkSecret("new_password", newSecret); err != nil {
		return fail(err)
	}

	account, err := e.accountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(withReason(ErrCredentialsInvalid, "unknown_account"))
		}
		return fail(e.storeErr("change password lookup", err))
	}

	now := e.now()
	if err := e.usable(account, now); err != nil {
		return fail(err)
	}
	if account.PasswordHash == "" || !e.hasher.Verify(oldSecret, account.PasswordHash) {
		return e.changeMismatch(ctx, accountID, now, fail)
	}
	if oldSecret == newSecret {
		return fail(ErrPasswordReuse)
	}

	digest, err := e.hasher.Hash(newSecret)
	if err != nil {
		return fail(&ValidationError{Field: "new_password", Reason: err.Error()})
	}

	_, err = e.updateAccount(ctx, accountID, func(a *store.Account) error {
		if err := e.usable(a, now); err != nil {
			return err
		}
		a.PasswordHash = digest
		a.SetLockoutState(e.lockout.RecordSuccess(a.LockoutState()))
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountDisabled) || errors.Is(err, ErrAccountLocked) {
			return fail(err)
		}
		return fail(e.storeErr("change password", err))
	}

	n, err := e.revokeAll(ctx, accountID, store.RevokePasswordChange)
	if err != nil {
		return fail(err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"revoked": itoa(n)}
	})
	return nil
}

// changeMismatch counts a wrong current secret toward lockout like a failed
// login, so ChangePassword cannot be used to guess secrets without limit.
func (e *Engine) changeMismatch(ctx context.Context, accountID string, now time.Time, fail func(error) error) error {
	var lockedNow bool
	updated, err := e.updateAccount(ctx, accountID, func(a *store.Account) error {
		if until, locked := e.lockout.Locked(a.LockoutState(), now); locked {
			return &LockedError{Until: until}
		}
		next, locked := e.lockout.RecordFailure(a.LockoutState(), now)
		a.SetLockoutState(next)
		a.UpdatedAt = now
		lockedNow = locked
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountLocked) {
			return fail(err)
		}
		return fail(e.storeErr("record failure", err))
	}
	if lockedNow {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventAccountLocked, true, accountID, "", nil, nil)
		return fail(&LockedError{Until: *updated.LockedUntil})
	}
	return fail(withReason(ErrCredentialsInvalid, "wrong_secret"))
}
