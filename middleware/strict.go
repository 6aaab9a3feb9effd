package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/authcore"
)

// SessionValidator verifies access tokens and lists live sessions.
type SessionValidator interface {
	Validator
	ActiveSessions(ctx context.Context, accountID string) ([]authcore.SessionInfo, error)
}

// RequireActiveSession is Guard plus a check that the token's session is
// still active. A store failure yields 503 rather than 401.
func RequireActiveSession(v SessionValidator) func(http.Handler) http.Handler {
	guard := Guard(v)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := ClaimsFromContext(r.Context())
			if claims == nil || claims.SessionID == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sessions, err := v.ActiveSessions(r.Context(), claims.Subject)
			if err != nil {
				if authcore.KindOf(err).Retryable() {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, s := range sessions {
				if s.SessionID == claims.SessionID {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}))
	}
}
