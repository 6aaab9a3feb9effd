package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/internal/tokens"
	"github.com/MrEthical07/authcore/store"
)

// BindUpstream attaches the refresh token an upstream issuer granted to the
// session behind refreshToken. The upstream token is sealed and stored with
// the session; Refresh exchanges it with an upstream provider while the
// caller keeps using engine-minted tokens. Binding again replaces it.
func (e *Engine) BindUpstream(ctx context.Context, refreshToken, upstreamToken string) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	ctx, finish := e.span(ctx, "bind_upstream")
	defer func() { finish(err) }()

	if upstreamToken == "" {
		return &ValidationError{Field: "upstream_token", Reason: "is required"}
	}
	if !tokens.Valid(refreshToken) {
		return withReason(ErrTokenInvalid, "malformed")
	}

	sctx, cancel := e.storeCtx(ctx)
	cred, err := e.store.RefreshByHash(sctx, e.tokens.Digest(refreshToken))
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return withReason(ErrTokenInvalid, "not_found")
		}
		return e.storeErr("bind upstream lookup", err)
	}

	sealed, err := e.sealer.Seal(upstreamToken)
	if err != nil {
		return fmt.Errorf("authcore: seal upstream secret: %w", err)
	}

	sctx, cancel = e.storeCtx(ctx)
	err = e.store.BindRefreshUpstream(sctx, cred.ID, sealed, e.now())
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrAlreadyRevoked):
		return withReason(ErrTokenInvalid, "revoked")
	default:
		return e.storeErr("bind upstream", err)
	}

	e.emitAudit(ctx, auditEventUpstreamBound, true, cred.AccountID, cred.ID, nil, func() map[string]string {
		return map[string]string{"provider": e.provider.Name()}
	})
	return nil
}
