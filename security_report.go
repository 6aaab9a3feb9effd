package authcore

import "time"

// SecurityReport summarizes the effective security posture of an Engine. It
// holds no key material and is safe to log at startup.
type SecurityReport struct {
	SigningAlgorithm    string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	Argon2              PasswordConfigReport
	RefreshProvider     string
	RevokeAllOnConflict bool
	LockoutThreshold    int
	LockoutWindow       time.Duration
	VerificationTTL     time.Duration
	ResetTTL            time.Duration
	RateLimitingActive  bool
	AuditEnabled        bool
	HashUpgradeOnLogin  bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	rateLimiting := false
	if e.limiter != nil {
		for _, r := range []RateRule{
			e.config.RateLimit.Login,
			e.config.RateLimit.Register,
			e.config.RateLimit.ResetRequest,
			e.config.RateLimit.VerificationResend,
		} {
			if r.MaxAttempts > 0 {
				rateLimiting = true
				break
			}
		}
	}

	report := SecurityReport{
		SigningAlgorithm: e.config.JWT.SigningMethod,
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.Refresh.TTL,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		RevokeAllOnConflict: e.config.Refresh.RevokeAllOnConflict,
		LockoutThreshold:    e.lockout.Threshold,
		LockoutWindow:       e.lockout.Window,
		VerificationTTL:     e.config.EmailVerification.TTL,
		ResetTTL:            e.config.PasswordReset.TTL,
		RateLimitingActive:  rateLimiting,
		AuditEnabled:        e.config.Audit.Enabled,
		HashUpgradeOnLogin:  e.config.Password.UpgradeOnLogin,
	}
	if e.provider != nil {
		report.RefreshProvider = e.provider.Name()
	}
	return report
}
