package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/store"
)

// Register creates an unverified account and sends a verification token
// through the Notifier. It never authenticates.
//
// Failures: *ValidationError for malformed email or a secret failing the
// complexity policy, ErrDuplicateEmail when the email (case-insensitively) is
// taken, ErrRateLimited, ErrStoreUnavailable.
func (e *Engine) Register(ctx context.Context, email, secret string) (reg *Registration, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx, finish := e.span(ctx, "register")
	defer func() { finish(err) }()

	fail := func(err error) (*Registration, error) {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, nil)
		return nil, err
	}

	normalized, err := normalizeEmail(email)
	if err != nil {
		return fail(err)
	}
	if err := e.throttle(ctx, rate.BucketRegister, normalized); err != nil {
		return fail(err)
	}
	if err := e.checkSecret("password", secret); err != nil {
		return fail(err)
	}

	digest, err := e.hasher.Hash(secret)
	if err != nil {
		return fail(&ValidationError{Field: "password", Reason: err.Error()})
	}

	now := e.now()
	account := &store.Account{
		ID:           newID(),
		Email:        normalized,
		PasswordHash: digest,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	sctx, cancel := e.storeCtx(ctx)
	err = e.store.CreateAccount(sctx, account)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			e.metricInc(MetricRegisterDuplicate)
			return fail(ErrDuplicateEmail)
		}
		return fail(e.storeErr("create account", err))
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, account.ID, "", nil, nil)

	if err := e.sendVerification(ctx, account); err != nil {
		// The account exists; the caller can request another token with
		// ResendVerification.
		e.logger.Printf("authcore: ERROR register: verification not sent for account %s: %v", account.ID, err)
	}

	return &Registration{AccountID: account.ID, PendingVerification: true}, nil
}

// ResendVerification issues a fresh verification token for an unverified
// account. It succeeds whether or not the email exists or is already
// verified, so callers cannot enumerate accounts.
func (e *Engine) ResendVerification(ctx context.Context, email string) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, finish := e.span(ctx, "resend_verification")
	defer func() { finish(err) }()

	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := e.throttle(ctx, rate.BucketVerifyRequest, normalized); err != nil {
		return err
	}

	account, err := e.accountByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return e.storeErr("resend verification", err)
	}
	if account.EmailVerified || account.DeletedAt != nil || !account.Active {
		return nil
	}

	return e.sendVerification(ctx, account)
}

func (e *Engine) sendVerification(ctx context.Context, account *store.Account) error {
	token, err := e.issueOneTime(ctx, account.ID, store.PurposeEmailVerification, e.config.EmailVerification.TTL)
	if err != nil {
		return err
	}
	if err := e.notifier.SendVerification(ctx, account.Email, token); err != nil {
		e.logger.Printf("authcore: ERROR verification notification failed for account %s: %v", account.ID, err)
		return err
	}
	e.metricInc(MetricEmailVerificationSent)
	e.emitAudit(ctx, auditEventVerificationSent, true, account.ID, "", nil, nil)
	return nil
}

// VerifyEmail consumes a verification token and marks its account verified.
// Unknown, expired and already used tokens return ErrTokenInvalid.
func (e *Engine) VerifyEmail(ctx context.Context, token string) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, finish := e.span(ctx, "verify_email")
	defer func() { finish(err) }()

	fail := func(accountID string, err error) error {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventVerificationFailure, false, accountID, "", err, nil)
		return err
	}

	cred, err := e.consumeOneTime(ctx, token, store.PurposeEmailVerification)
	if err != nil {
		return fail("", err)
	}

	now := e.now()
	_, err = e.updateAccount(ctx, cred.AccountID, func(a *store.Account) error {
		if a.DeletedAt != nil {
			return ErrAccountDisabled
		}
		if !a.EmailVerified {
			a.EmailVerified = true
			a.EmailVerifiedAt = &now
			a.UpdatedAt = now
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrAccountDisabled):
		return fail(cred.AccountID, withReason(ErrTokenInvalid, "account_deleted"))
	case errors.Is(err, store.ErrNotFound):
		return fail(cred.AccountID, withReason(ErrTokenInvalid, "account_missing"))
	default:
		return fail(cred.AccountID, e.storeErr("verify email", err))
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerified, true, cred.AccountID, "", nil, nil)
	return nil
}
