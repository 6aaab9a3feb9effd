package authcore

import "context"

const (
	auditEventRegisterSuccess             = "register_success"
	auditEventRegisterFailure             = "register_failure"
	auditEventVerificationSent            = "email_verification_sent"
	auditEventEmailVerified               = "email_verified"
	auditEventVerificationFailure         = "email_verification_failure"
	auditEventLoginSuccess                = "login_success"
	auditEventLoginFailure                = "login_failure"
	auditEventLoginLocked                 = "login_locked"
	auditEventAccountLocked               = "account_locked"
	auditEventRefreshSuccess              = "refresh_success"
	auditEventRefreshRotated              = "refresh_rotated"
	auditEventRefreshSameTokenReissued    = "refresh_same_token_reissued"
	auditEventRefreshFailure              = "refresh_failure"
	auditEventRefreshRotationConflict     = "refresh_rotation_conflict"
	auditEventLogout                      = "logout"
	auditEventLogoutAll                   = "logout_all"
	auditEventPasswordResetRequest        = "password_reset_request"
	auditEventPasswordResetConfirmSuccess = "password_reset_confirm_success"
	auditEventPasswordResetConfirmFailure = "password_reset_confirm_failure"
	auditEventPasswordChangeSuccess       = "password_change_success"
	auditEventPasswordChangeFailure       = "password_change_failure"
	auditEventAccountUnlocked             = "account_unlocked"
	auditEventAccountDisabled             = "account_disabled"
	auditEventAccountEnabled              = "account_enabled"
	auditEventAccountDeleted              = "account_deleted"
	auditEventRateLimited                 = "rate_limited"
	auditEventUpstreamBound               = "upstream_bound"
)

// emitAudit records one event. The error's Kind becomes the event error code
// and its internal reason, if any, goes into metadata.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if reason := ReasonOf(err); reason != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["reason"] = reason
	}

	event := AuditEvent{
		Timestamp: e.now(),
		EventType: eventType,
		AccountID: accountID,
		SessionID: sessionID,
		IP:        ClientIPFromContext(ctx),
		UserAgent: UserAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = KindOf(err).String()
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimited, false, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}
