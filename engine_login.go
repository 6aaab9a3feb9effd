package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/store"
)

// Login authenticates email and secret and opens a session.
//
// Checks run in a fixed order: throttle, account lookup (an unknown email
// still costs one hash verification), disabled, lockout (no hashing while
// locked), secret, email verification. A wrong secret increments the failure
// counter; the failure that reaches the threshold returns *LockedError.
func (e *Engine) Login(ctx context.Context, email, secret string) (tokens *Tokens, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, finish := e.span(ctx, "login")
	defer func() {
		e.observe(MetricLoginLatency, start)
		finish(err)
	}()

	fail := func(accountID, event string, err error) (*Tokens, error) {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, event, false, accountID, "", err, nil)
		return nil, err
	}

	normalized, err := normalizeEmail(email)
	if err != nil {
		// Malformed input cannot match an account; keep the timing of a miss.
		e.hasher.Verify(secret, e.dummyHash)
		return fail("", auditEventLoginFailure, withReason(ErrCredentialsInvalid, "malformed_email"))
	}
	if err := e.throttle(ctx, rate.BucketLogin, normalized); err != nil {
		return fail("", auditEventLoginFailure, err)
	}

	account, err := e.accountByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.hasher.Verify(secret, e.dummyHash)
			return fail("", auditEventLoginFailure, withReason(ErrCredentialsInvalid, "unknown_email"))
		}
		return fail("", auditEventLoginFailure, e.storeErr("login lookup", err))
	}

	now := e.now()
	if err := e.usable(account, now); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			e.metricInc(MetricLoginLocked)
			return fail(account.ID, auditEventLoginLocked, err)
		}
		return fail(account.ID, auditEventLoginFailure, err)
	}

	if account.PasswordHash == "" || !e.hasher.Verify(secret, account.PasswordHash) {
		return e.loginMismatch(ctx, account.ID, now, fail)
	}

	if !account.EmailVerified {
		return fail(account.ID, auditEventLoginFailure, ErrEmailNotVerified)
	}

	upgraded := ""
	if e.config.Password.UpgradeOnLogin {
		if needs, _ := e.hasher.NeedsUpgrade(account.PasswordHash); needs {
			if digest, herr := e.hasher.Hash(secret); herr == nil {
				upgraded = digest
			} else {
				e.logger.Printf("authcore: WARN login: hash upgrade skipped for account %s: %v", account.ID, herr)
			}
		}
	}

	origin := ClientIPFromContext(ctx)
	account, err = e.updateAccount(ctx, account.ID, func(a *store.Account) error {
		if err := e.usable(a, now); err != nil {
			return err
		}
		a.SetLockoutState(e.lockout.RecordSuccess(a.LockoutState()))
		a.LastLoginAt = &now
		a.LastLoginOrigin = origin
		if upgraded != "" {
			a.PasswordHash = upgraded
		}
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountDisabled) || errors.Is(err, ErrAccountLocked) {
			return fail("", auditEventLoginFailure, err)
		}
		return fail("", auditEventLoginFailure, e.storeErr("login update", err))
	}
	if upgraded != "" {
		e.metricInc(MetricPasswordHashUpgraded)
	}

	if e.limiter != nil {
		if err := e.limiter.Reset(ctx, rate.BucketLogin, normalized); err != nil {
			e.logger.Printf("authcore: WARN login: throttle reset failed: %v", err)
		}
	}

	tokens, err = e.issueSession(ctx, account, now)
	if err != nil {
		return fail(account.ID, auditEventLoginFailure, err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, tokens.SessionID, nil, nil)
	return tokens, nil
}

// loginMismatch records a failed attempt under the account row lock.
func (e *Engine) loginMismatch(
	ctx context.Context,
	accountID string,
	now time.Time,
	fail func(accountID, event string, err error) (*Tokens, error),
) (*Tokens, error) {
	var lockedNow bool
	updated, err := e.updateAccount(ctx, accountID, func(a *store.Account) error {
		// A concurrent attempt may have locked the account since usable ran.
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
		var le *LockedError
		if errors.As(err, &le) {
			e.metricInc(MetricLoginLocked)
			return fail(accountID, auditEventLoginLocked, err)
		}
		return fail(accountID, auditEventLoginFailure, e.storeErr("record failure", err))
	}

	if lockedNow {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventAccountLocked, true, accountID, "", nil, func() map[string]string {
			return map[string]string{"locked_until": updated.LockedUntil.Format(time.RFC3339)}
		})
		return fail(accountID, auditEventLoginFailure, &LockedError{Until: *updated.LockedUntil})
	}
	return fail(accountID, auditEventLoginFailure, withReason(ErrCredentialsInvalid, "wrong_secret"))
}
