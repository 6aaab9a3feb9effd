package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
)

// ValidateAccess verifies an access token. It is stateless: a token stays
// valid until it expires even if its session was revoked. Every failure is
// ErrTokenInvalid; ReasonOf reports expired, signature, malformed, claims or
// not_yet_valid.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*jwt.AccessClaims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer e.observe(MetricValidateLatency, start)

	claims, err := e.jwt.Parse(token)
	if err != nil {
		return nil, withReason(ErrTokenInvalid, string(jwt.ReasonOf(err)))
	}
	return claims, nil
}

// ActiveSessions lists the valid refresh credentials of accountID, newest
// first, capped at Refresh.MaxSessionsListed.
func (e *Engine) ActiveSessions(ctx context.Context, accountID string) ([]SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, &ValidationError{Field: "account_id", Reason: "is required"}
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	creds, err := e.store.ActiveRefresh(sctx, accountID, e.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, e.storeErr("active sessions", err)
	}

	if limit := e.config.Refresh.MaxSessionsListed; limit > 0 && len(creds) > limit {
		creds = creds[:limit]
	}

	out := make([]SessionInfo, 0, len(creds))
	for _, c := range creds {
		out = append(out, SessionInfo{
			SessionID:  c.ID,
			Device:     c.Device,
			Origin:     c.Origin,
			CreatedAt:  c.CreatedAt,
			LastUsedAt: c.LastUsedAt,
			ExpiresAt:  c.ExpiresAt,
		})
	}
	return out, nil
}
