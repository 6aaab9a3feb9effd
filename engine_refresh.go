package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/MrEthical07/authcore/internal/tokens"
	"github.com/MrEthical07/authcore/provider"
	"github.com/MrEthical07/authcore/rotation"
	"github.com/MrEthical07/authcore/store"
)

// Refresh exchanges a refresh token for a new access token.
//
// The account is re-checked on every call. The configured provider decides
// whether the refresh secret rotates: when it does, the old credential is
// revoked and the new one inserted atomically and the new plaintext is
// returned; otherwise the presented plaintext is returned and only its
// last-used time changes.
//
// With an upstream provider the exchanged secret is the session's sealed
// upstream token (see BindUpstream). An upstream rotation reseals the new
// upstream token and mints a new caller token; the caller never sees the
// upstream one.
//
// A token that was already rotated away, or that loses a concurrent rotation
// race, yields ErrRotationConflict. Every other rejection is ErrTokenInvalid.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (out *Tokens, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, finish := e.span(ctx, "refresh")
	defer func() {
		e.observe(MetricRefreshLatency, start)
		finish(err)
	}()

	fail := func(accountID, sessionID string, err error) (*Tokens, error) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, accountID, sessionID, err, nil)
		return nil, err
	}

	if !tokens.Valid(refreshToken) {
		return fail("", "", withReason(ErrTokenInvalid, "malformed"))
	}

	sctx, cancel := e.storeCtx(ctx)
	cred, err := e.store.RefreshByHash(sctx, e.tokens.Digest(refreshToken))
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail("", "", withReason(ErrTokenInvalid, "not_found"))
		}
		return fail("", "", e.storeErr("refresh lookup", err))
	}

	now := e.now()
	if cred.RevokedAt != nil {
		if cred.RevokedReason == store.RevokeRotated {
			return nil, e.rotationConflict(ctx, cred, "reused_after_rotation")
		}
		return fail(cred.AccountID, cred.ID, withReason(ErrTokenInvalid, "revoked_"+string(cred.RevokedReason)))
	}
	if !now.Before(cred.ExpiresAt) {
		return fail(cred.AccountID, cred.ID, withReason(ErrTokenInvalid, "expired"))
	}

	account, err := e.accountByID(ctx, cred.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail(cred.AccountID, cred.ID, withReason(ErrTokenInvalid, "account_missing"))
		}
		return fail(cred.AccountID, cred.ID, e.storeErr("refresh account", err))
	}
	if err := e.usable(account, now); err != nil {
		return fail(account.ID, cred.ID, err)
	}
	if !account.EmailVerified {
		return fail(account.ID, cred.ID, ErrEmailNotVerified)
	}

	// The provider's secret is the caller's token unless an upstream issues
	// it, in which case the sealed upstream token stands in for it.
	issued, issuedHash := refreshToken, cred.Hash
	if e.upstream {
		if cred.UpstreamSecret == "" {
			return fail(account.ID, cred.ID, withReason(ErrTokenInvalid, "upstream_unbound"))
		}
		issued, err = e.sealer.Open(cred.UpstreamSecret)
		if err != nil {
			e.logger.Printf("authcore: ERROR refresh: cannot open upstream secret of session %s: %v", cred.ID, err)
			return fail(account.ID, cred.ID, withReason(ErrTokenInvalid, "upstream_unreadable"))
		}
		issuedHash = e.tokens.Digest(issued)
	}

	result, err := e.provider.IssueOrRefresh(ctx, provider.Request{
		AccountID:    account.ID,
		Email:        account.Email,
		RefreshToken: issued,
	})
	if err != nil {
		if errors.Is(err, provider.ErrRejected) {
			return fail(account.ID, cred.ID, withReason(ErrTokenInvalid, "provider_rejected"))
		}
		e.logger.Printf("authcore: WARN refresh: provider %s failed: %v", e.provider.Name(), err)
		return fail(account.ID, cred.ID, withReason(ErrProviderUnavailable, e.provider.Name()))
	}

	decision, err := rotation.Detect(issuedHash, result.RefreshToken, e.tokens.Digest)
	if err != nil {
		e.logger.Printf("authcore: ERROR refresh: provider %s returned an unusable secret: %v", e.provider.Name(), err)
		return fail(account.ID, cred.ID, withReason(ErrProviderUnavailable, "empty_secret"))
	}

	meta := func() map[string]string {
		m := map[string]string{"provider": e.provider.Name(), "outcome": decision.Outcome.String()}
		for k, v := range result.Metadata {
			m["provider_"+k] = v
		}
		return m
	}

	switch decision.Outcome {
	case rotation.Rotated:
		plaintext, hash, sealed, err := e.nextSecret(decision)
		if err != nil {
			return fail(account.ID, cred.ID, err)
		}
		next := &store.RefreshCredential{
			ID:             newID(),
			AccountID:      account.ID,
			Hash:           hash,
			ExpiresAt:      now.Add(e.config.Refresh.TTL),
			Device:         cred.Device,
			Origin:         firstNonEmpty(ClientIPFromContext(ctx), cred.Origin),
			CreatedAt:      now,
			UpstreamSecret: sealed,
		}
		if err := e.swap(ctx, cred, next, now); err != nil {
			switch {
			case errors.Is(err, store.ErrAlreadyRevoked):
				return nil, e.rotationConflict(ctx, cred, "concurrent_rotation")
			case errors.Is(err, store.ErrConflict):
				return fail(account.ID, cred.ID, withReason(ErrTokenInvalid, "secret_collision"))
			default:
				return fail(account.ID, cred.ID, e.storeErr("rotate refresh", err))
			}
		}

		out, err = e.tokensFor(account, next.ID, plaintext, true)
		if err != nil {
			return fail(account.ID, next.ID, err)
		}
		e.metricInc(MetricRefreshRotated)
		e.emitAudit(ctx, auditEventRefreshRotated, true, account.ID, next.ID, nil, func() map[string]string {
			m := meta()
			m["previous_session_id"] = cred.ID
			return m
		})

	default:
		sctx, cancel := e.storeCtx(ctx)
		err := e.store.TouchRefresh(sctx, cred.ID, now)
		cancel()
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fail(account.ID, cred.ID, e.storeErr("touch refresh", err))
		}

		out, err = e.tokensFor(account, cred.ID, refreshToken, false)
		if err != nil {
			return fail(account.ID, cred.ID, err)
		}
		event := auditEventRefreshSuccess
		if decision.Outcome == rotation.SameTokenReissued {
			event = auditEventRefreshSameTokenReissued
			e.metricInc(MetricRefreshSameTokenReissued)
		}
		e.emitAudit(ctx, event, true, account.ID, cred.ID, nil, meta)
	}

	e.metricInc(MetricRefreshSuccess)
	return out, nil
}

// nextSecret returns the caller-facing secret for a rotation. A local
// provider's secret is handed out as is. An upstream secret is sealed for
// storage and the caller gets a freshly minted token instead.
func (e *Engine) nextSecret(d rotation.Decision) (plaintext string, hash []byte, sealed string, err error) {
	if !e.upstream {
		return d.NewPlaintext, d.NewHash, "", nil
	}
	sealed, err = e.sealer.Seal(d.NewPlaintext)
	if err != nil {
		return "", nil, "", fmt.Errorf("authcore: seal upstream secret: %w", err)
	}
	plaintext, hash, err = e.tokens.Generate()
	if err != nil {
		return "", nil, "", fmt.Errorf("authcore: generate refresh token: %w", err)
	}
	return plaintext, hash, sealed, nil
}

// swap runs the atomic revoke-and-insert, retrying the whole unit while the
// store reports a transient failure. A lost compare-and-swap is permanent.
//
// An attempt can commit and still report a transient failure. When a retry
// then finds old already revoked, old is re-read: if it was replaced by next,
// the earlier attempt won and the swap succeeded.
func (e *Engine) swap(ctx context.Context, old *store.RefreshCredential, next *store.RefreshCredential, now time.Time) error {
	opts := []backoff.RetryOption{backoff.WithBackOff(backoff.NewExponentialBackOff())}
	if e.config.Refresh.SwapMaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(e.config.Refresh.SwapMaxElapsed))
	} else {
		opts = append(opts, backoff.WithMaxTries(1))
	}

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		sctx, cancel := e.storeCtx(ctx)
		defer cancel()

		err := e.store.RotateRefresh(sctx, old.ID, next, now)
		if errors.Is(err, store.ErrAlreadyRevoked) && attempts > 1 {
			cur, rerr := e.store.RefreshByHash(sctx, old.Hash)
			if rerr == nil && cur.ReplacedBy == next.ID {
				return struct{}{}, nil
			}
		}
		if err == nil || errors.Is(err, store.ErrUnavailable) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, opts...)
	return err
}

// rotationConflict handles a refresh credential presented after it stopped
// being claimable by rotation. It is treated as possible theft.
func (e *Engine) rotationConflict(ctx context.Context, cred *store.RefreshCredential, reason string) error {
	err := withReason(ErrRotationConflict, reason)
	e.metricInc(MetricRefreshFailure)
	e.metricInc(MetricRefreshRotationConflict)
	e.emitAudit(ctx, auditEventRefreshRotationConflict, false, cred.AccountID, cred.ID, err, nil)

	if e.config.Refresh.RevokeAllOnConflict {
		n, rerr := e.revokeAll(ctx, cred.AccountID, store.RevokeReuseDetected)
		if rerr != nil {
			e.logger.Printf("authcore: ERROR refresh: revoke-all after rotation conflict failed for account %s: %v", cred.AccountID, rerr)
		} else {
			e.metricInc(MetricLogoutAll)
			e.emitAudit(ctx, auditEventLogoutAll, true, cred.AccountID, "", nil, func() map[string]string {
				return map[string]string{"trigger": "rotation_conflict", "revoked": itoa(n)}
			})
		}
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
