package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
)

const (
	maxBodyBytes      = 64 << 10
	readHeaderTimeout = 5 * time.Second
)

type serverOptions struct {
	TrustProxy     bool
	IPRate         float64
	IPBurst        int
	MetricsHandler http.Handler
	Logger         *log.Logger
}

type server struct {
	engine *authcore.Engine
	logger *log.Logger
}

// newServer mounts the JSON API on a mux and wraps it with request logging,
// client context capture and the per-client limiter.
func newServer(engine *authcore.Engine, opts serverOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &server{engine: engine, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/register", s.register)
	mux.HandleFunc("POST /v1/verify-email", s.verifyEmail)
	mux.HandleFunc("POST /v1/verify-email/resend", s.resendVerification)
	mux.HandleFunc("POST /v1/login", s.login)
	mux.HandleFunc("POST /v1/refresh", s.refresh)
	mux.HandleFunc("POST /v1/logout", s.logout)
	mux.HandleFunc("POST /v1/password-reset", s.requestPasswordReset)
	mux.HandleFunc("POST /v1/password-reset/confirm", s.confirmPasswordReset)

	mux.Handle("POST /v1/logout-all", middleware.Guard(engine)(http.HandlerFunc(s.logoutAll)))
	mux.Handle("GET /v1/sessions", middleware.RequireActiveSession(engine)(http.HandlerFunc(s.sessions)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	var h http.Handler = mux
	if opts.IPRate > 0 {
		h = newClientLimiter(opts.IPRate, opts.IPBurst).wrap(h)
	}
	h = middleware.ClientContext(opts.TrustProxy)(h)
	return s.logRequests(h)
}

/*
====================================
HANDLERS
====================================
*/

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type tokensResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Rotated      bool   `json:"rotated"`
}

type sessionResponse struct {
	SessionID  string     `json:"session_id"`
	Device     string     `json:"device,omitempty"`
	Origin     string     `json:"origin,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	reg, err := s.engine.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"account_id":           reg.AccountID,
		"pending_verification": reg.PendingVerification,
	})
}

func (s *server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.VerifyEmail(r.Context(), req.Token); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.ResendVerification(r.Context(), req.Email); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	tokens, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokensResponse(tokens))
}

func (s *server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	tokens, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokensResponse(tokens))
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) logoutAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	n, err := s.engine.LogoutAll(r.Context(), claims.Subject)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (s *server) sessions(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	list, err := s.engine.ActiveSessions(r.Context(), claims.Subject)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]sessionResponse, 0, len(list))
	for _, sess := range list {
		out = append(out, sessionResponse(sess))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *server) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.ConfirmPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toTokensResponse(t *authcore.Tokens) tokensResponse {
	return tokensResponse{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		ExpiresIn:    t.ExpiresIn,
		Rotated:      t.Rotated,
	}
}

/*
====================================
ERRORS AND ENCODING
====================================
*/

type errorResponse struct {
	Error string   `json:"error"`
	Field string   `json:"field,omitempty"`
	Rules []string `json:"rules,omitempty"`
}

func statusFor(kind authcore.Kind) int {
	switch kind {
	case authcore.KindValidation:
		return http.StatusBadRequest
	case authcore.KindCredentialsInvalid, authcore.KindTokenInvalid, authcore.KindRotationConflict:
		return http.StatusUnauthorized
	case authcore.KindAccountLocked:
		return http.StatusLocked
	case authcore.KindEmailNotVerified, authcore.KindAccountDisabled:
		return http.StatusForbidden
	case authcore.KindRateLimited:
		return http.StatusTooManyRequests
	case authcore.KindStoreUnavailable, authcore.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and a body carrying only the error kind.
// Internal reasons stay in the audit log.
func (s *server) writeError(w http.ResponseWriter, err error) {
	kind := authcore.KindOf(err)
	status := statusFor(kind)
	body := errorResponse{Error: kind.String()}

	var ve *authcore.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
		body.Rules = ve.Rules
	}
	var le *authcore.LockedError
	if errors.As(err, &le) {
		if secs := int(time.Until(le.Until).Seconds()); secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	if status == http.StatusInternalServerError {
		s.logger.Printf("authcore: ERROR request failed: %v", err)
	}
	writeJSON(w, status, body)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: authcore.KindValidation.String()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

/*
====================================
MIDDLEWARE
====================================
*/

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		s.logger.Printf("authcore: %s %s -> %d (%s)", r.Method, r.URL.Path, sw.code, time.Since(start))
	})
}

// clientLimiter is a token bucket per client IP. Idle buckets are evicted on
// access once they exceed idleTTL.
type clientLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu        sync.Mutex
	buckets   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: 5 * time.Minute,
		buckets: make(map[string]*clientBucket),
	}
}

func (l *clientLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.idleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &clientBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func (l *clientLimiter) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := authcore.ClientIPFromContext(r.Context())
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip, time.Now()) {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: authcore.KindRateLimited.String()})
			return
		}
		next.ServeHTTP(w, r)
	})
}
