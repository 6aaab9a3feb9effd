package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/store"
)

// RequestPasswordReset sends a reset token when email belongs to an active
// account. It returns nil whether or not the account exists; only throttling
// and malformed input are reported.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, finish := e.span(ctx, "request_password_reset")
	defer func() { finish(err) }()

	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := e.throttle(ctx, rate.BucketResetRequest, normalized); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)

	account, lerr := e.accountByEmail(ctx, normalized)
	if lerr != nil {
		// Reported only through logs and audit: the response must not differ
		// from the unknown-email case.
		if errors.Is(lerr, store.ErrNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", nil, func() map[string]string {
				return map[string]string{"reason": "unknown_email"}
			})
		} else {
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", e.storeErr("reset lookup", lerr), nil)
		}
		return nil
	}
	if account.DeletedAt != nil || !account.Active {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, account.ID, "", withReason(ErrAccountDisabled, "inactive"), nil)
		return nil
	}

	token, ierr := e.issueOneTime(ctx, account.ID, store.PurposePasswordReset, e.config.PasswordReset.TTL)
	if ierr != nil {
		e.logger.Printf("authcore: ERROR password reset: token not issued for account %s: %v", account.ID, ierr)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, account.ID, "", ierr, nil)
		return nil
	}
	if nerr := e.notifier.SendPasswordReset(ctx, account.Email, token); nerr != nil {
		e.logger.Printf("authcore: ERROR password reset notification failed for account %s: %v", account.ID, nerr)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, account.ID, "", withReason(ErrProviderUnavailable, "notify"), nil)
		return nil
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, account.ID, "", nil, nil)
	return nil
}

// ConfirmPasswordReset consumes a reset token, replaces the account secret,
// clears lockout and revokes every session of the account.
//
// The complexity policy is checked before the token is consumed, so a weak
// secret does not burn the token.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newSecret string) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, finish := e.span(ctx, "confirm_password_reset")
	defer func() { finish(err) }()

	fail := func(accountID string, err error) error {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirmFailure, false, accountID, "", err, nil)
		return err
	}

	if err := e.checkSecret("password", newSecret); err != nil {
		return fail("", err)
	}

	cred, err := e.consumeOneTime(ctx, token, store.PurposePasswordReset)
	if err != nil {
		return fail("", err)
	}

	digest, err := e.hasher.Hash(newSecret)
	if err != nil {
		return fail(cred.AccountID, &ValidationError{Field: "password", Reason: err.Error()})
	}

	now := e.now()
	_, err = e.updateAccount(ctx, cred.AccountID, func(a *store.Account) error {
		if a.DeletedAt != nil || !a.Active {
			return ErrAccountDisabled
		}
		a.PasswordHash = digest
		a.SetLockoutState(e.lockout.RecordSuccess(a.LockoutState()))
		a.UpdatedAt = now
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrAccountDisabled):
		return fail(cred.AccountID, err)
	case errors.Is(err, store.ErrNotFound):
		return fail(cred.AccountID, withReason(ErrTokenInvalid, "account_missing"))
	default:
		return fail(cred.AccountID, e.storeErr("reset password", err))
	}

	n, err := e.revokeAll(ctx, cred.AccountID, store.RevokePasswordReset)
	if err != nil {
		// The secret already changed; surface the failure so the caller can
		// retry LogoutAll.
		return fail(cred.AccountID, err)
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirmSuccess, true, cred.AccountID, "", nil, func() map[string]string {
		return map[string]string{"revoked": itoa(n)}
	})
	return nil
}
