package authcore

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/authcore/internal/tokens"
	"github.com/MrEthical07/authcore/store"
)

// Logout revokes the session behind refreshToken. It is idempotent: an
// already revoked, expired, malformed or unknown token also returns nil.
func (e *Engine) Logout(ctx context.Context, refreshToken string) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, finish := e.span(ctx, "logout")
	defer func() { finish(err) }()

	if !tokens.Valid(refreshToken) {
		return nil
	}
	hash := e.tokens.Digest(refreshToken)

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	cred, err := e.store.RefreshByHash(sctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return e.storeErr("logout lookup", err)
	}

	revoked, err := e.store.RevokeRefresh(sctx, hash, store.RevokeLogout, e.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return e.storeErr("logout", err)
	}
	if revoked {
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, true, cred.AccountID, cred.ID, nil, nil)
	}
	return nil
}

// LogoutAll revokes every valid session of accountID and returns how many
// were revoked.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) (n int, err error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	ctx, finish := e.span(ctx, "logout_all")
	defer func() { finish(err) }()

	if accountID == "" {
		return 0, &ValidationError{Field: "account_id", Reason: "is required"}
	}

	n, err = e.revokeAll(ctx, accountID, store.RevokeLogoutAll)
	if err != nil {
		return 0, err
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"revoked": itoa(n)}
	})
	return n, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
