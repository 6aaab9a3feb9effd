package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrEthical07/authcore/internal/ids"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/tokens"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/provider"
	"github.com/MrEthical07/authcore/store"
)

const maxEmailLength = 254

var newID = ids.NewUUID

// Engine orchestrates registration, login, refresh, logout, email
// verification and password reset. Build it with a Builder; all methods are
// safe for concurrent use.
type Engine struct {
	config   Config
	store    store.Store
	oneTime  store.OneTimeCredentials
	notifier notify.Notifier
	provider provider.Adapter
	upstream bool
	hasher   *password.Hasher
	tokens   *tokens.Generator
	sealer   *tokens.Sealer
	jwt      *jwt.Manager
	lockout  lockout.Policy
	limiter  *rate.Limiter
	audit    *auditDispatcher
	metrics  *Metrics
	logger   *log.Logger
	clock    func() time.Time
	tracer   trace.Tracer

	// dummyHash is verified against when an email is unknown so that the
	// miss costs the same as a wrong password.
	dummyHash string
	closed    atomic.Bool
}

// Close drains the audit buffer. The store is owned by the caller and is not
// closed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closed.Store(true)
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events that could not be
// delivered.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(id, time.Since(start))
	}
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

func (e *Engine) ready() error {
	if e == nil || e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

// span starts a trace span for an engine operation. The returned finish
// function records err on the span.
func (e *Engine) span(ctx context.Context, op string) (context.Context, func(err error)) {
	ctx, span := e.tracer.Start(ctx, "authcore."+op, trace.WithSpanKind(trace.SpanKindInternal))
	return ctx, func(err error) {
		if err != nil {
			kind := KindOf(err)
			span.SetAttributes(attribute.String("authcore.error_kind", kind.String()))
			if reason := ReasonOf(err); reason != "" {
				span.SetAttributes(attribute.String("authcore.reason", reason))
			}
			if kind == KindInternal || kind.Retryable() {
				span.RecordError(err)
				span.SetStatus(codes.Error, kind.String())
			}
		}
		span.End()
	}
}

// storeCtx bounds one store call by Store.OperationTimeout.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Store.OperationTimeout)
}

// storeErr translates store failures into the engine taxonomy. Errors the
// caller must handle specifically (ErrNotFound, ErrConflict, ...) are
// inspected before calling this.
func (e *Engine) storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		e.metricInc(MetricStoreUnavailable)
		e.logger.Printf("authcore: WARN %s: store unavailable: %v", op, err)
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
	}
	e.logger.Printf("authcore: ERROR %s: store: %v", op, err)
	return fmt.Errorf("authcore: %s: %w", op, err)
}

func (e *Engine) accountByEmail(ctx context.Context, email string) (*store.Account, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.store.AccountByEmail(sctx, email)
}

func (e *Engine) accountByID(ctx context.Context, id string) (*store.Account, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.store.AccountByID(sctx, id)
}

func (e *Engine) updateAccount(ctx context.Context, id string, mutate func(*store.Account) error) (*store.Account, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.store.UpdateAccount(sctx, id, mutate)
}

// throttle applies the Redis request limiter. Redis failures do not block
// authentication; they are logged and the request proceeds.
func (e *Engine) throttle(ctx context.Context, bucket rate.Bucket, identifier string) error {
	if e.limiter == nil {
		return nil
	}
	err := e.limiter.Allow(ctx, bucket, identifier, ClientIPFromContext(ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.emitRateLimit(ctx, string(bucket))
		return withReason(ErrRateLimited, string(bucket))
	default:
		e.logger.Printf("authcore: WARN %s throttle skipped: %v", bucket, err)
		return nil
	}
}

// normalizeEmail trims and lower-cases email and checks its syntax.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", &ValidationError{Field: "email", Reason: "is required"}
	}
	if len(email) > maxEmailLength {
		return "", &ValidationError{Field: "email", Reason: "is too long"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", &ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	return email, nil
}

// checkSecret applies the complexity policy to a new secret.
func (e *Engine) checkSecret(field, secret string) error {
	if err := e.config.Password.Policy.Check(secret); err != nil {
		var pe *password.PolicyError
		if errors.As(err, &pe) {
			return &ValidationError{Field: field, Reason: "does not satisfy password policy", Rules: pe.Failed}
		}
		return &ValidationError{Field: field, Reason: err.Error()}
	}
	if len(secret) > password.DefaultMaxSecretBytes {
		return &ValidationError{Field: field, Reason: "is too long"}
	}
	return nil
}

// usable reports why a stored account cannot authenticate at now, if it
// cannot.
func (e *Engine) usable(a *store.Account, now time.Time) error {
	if a.DeletedAt != nil || !a.Active {
		return ErrAccountDisabled
	}
	if until, locked := e.lockout.Locked(a.LockoutState(), now); locked {
		return &LockedError{Until: until}
	}
	return nil
}

// issueSession creates a refresh credential for a and signs an access token
// bound to it.
func (e *Engine) issueSession(ctx context.Context, a *store.Account, now time.Time) (*Tokens, error) {
	plaintext, digest, err := e.tokens.Generate()
	if err != nil {
		return nil, fmt.Errorf("authcore: generate refresh token: %w", err)
	}

	cred := &store.RefreshCredential{
		ID:        newID(),
		AccountID: a.ID,
		Hash:      digest,
		ExpiresAt: now.Add(e.config.Refresh.TTL),
		Device:    deviceFromContext(ctx),
		Origin:    ClientIPFromContext(ctx),
		CreatedAt: now,
	}

	sctx, cancel := e.storeCtx(ctx)
	err = e.store.CreateRefresh(sctx, cred)
	cancel()
	if err != nil {
		return nil, e.storeErr("create refresh", err)
	}

	return e.tokensFor(a, cred.ID, plaintext, false)
}

func (e *Engine) tokensFor(a *store.Account, sessionID, refresh string, rotated bool) (*Tokens, error) {
	access, err := e.jwt.Issue(a.ID, jwt.Claims{Email: a.Email, SessionID: sessionID}, e.config.JWT.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("authcore: issue access token: %w", err)
	}
	return &Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(e.config.JWT.AccessTTL / time.Second),
		TokenType:    TokenTypeBearer,
		AccountID:    a.ID,
		SessionID:    sessionID,
		Rotated:      rotated,
	}, nil
}

// issueOneTime creates a one-time credential for accountID, invalidating
// older unused ones of the same purpose, and returns its plaintext.
func (e *Engine) issueOneTime(ctx context.Context, accountID string, purpose store.Purpose, ttl time.Duration) (string, error) {
	now := e.now()
	plaintext, digest, err := e.tokens.Generate()
	if err != nil {
		return "", fmt.Errorf("authcore: generate one-time token: %w", err)
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if _, err := e.oneTime.InvalidateOneTime(sctx, accountID, purpose, now); err != nil {
		return "", e.storeErr("invalidate one-time", err)
	}
	err = e.oneTime.CreateOneTime(sctx, &store.OneTimeCredential{
		ID:        newID(),
		AccountID: accountID,
		Purpose:   purpose,
		Hash:      digest,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", e.storeErr("create one-time", err)
	}
	return plaintext, nil
}

// consumeOneTime claims the credential behind plaintext. Every failure other
// than store unavailability collapses to ErrTokenInvalid with a reason.
func (e *Engine) consumeOneTime(ctx context.Context, plaintext string, purpose store.Purpose) (*store.OneTimeCredential, error) {
	if !tokens.Valid(plaintext) {
		return nil, withReason(ErrTokenInvalid, "malformed")
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	c, err := e.oneTime.ConsumeOneTime(sctx, e.tokens.Digest(plaintext), purpose, e.now())
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, store.ErrNotFound):
		return nil, withReason(ErrTokenInvalid, "not_found")
	case errors.Is(err, store.ErrExpired):
		return nil, withReason(ErrTokenInvalid, "expired")
	case errors.Is(err, store.ErrConsumed):
		return nil, withReason(ErrTokenInvalid, "consumed")
	default:
		return nil, e.storeErr("consume one-time", err)
	}
}

// revokeAll revokes every valid refresh credential of accountID.
func (e *Engine) revokeAll(ctx context.Context, accountID string, reason store.RevokeReason) (int, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	n, err := e.store.RevokeAllRefresh(sctx, accountID, reason, e.now())
	if err != nil {
		return 0, e.storeErr("revoke all", err)
	}
	return n, nil
}
