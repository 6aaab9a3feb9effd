package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/password"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override what differs; Build validates the result.
type Config struct {
	JWT               JWTConfig
	Refresh           RefreshConfig
	Password          PasswordConfig
	Tokens            TokenConfig
	Lockout           LockoutConfig
	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig
	Store             StoreConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
	RateLimit         RateLimitConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access tokens.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig configures refresh credentials.
type RefreshConfig struct {
	TTL time.Duration
	// RevokeAllOnConflict revokes every session of the account when a rotated
	// credential is presented again.
	RevokeAllOnConflict bool
	// SwapMaxElapsed bounds the retries of a rotation swap that failed with a
	// transient store error.
	SwapMaxElapsed time.Duration
	// MaxSessionsListed caps ActiveSessions results. Zero means no cap.
	MaxSessionsListed int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig configures the Argon2id hasher and the complexity policy.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
	Policy         password.Policy
}

// TokenConfig configures the opaque token digest. Pepper must be kept stable
// across restarts: changing it invalidates every stored credential.
type TokenConfig struct {
	Pepper       []byte
	DigestMemory uint32
	DigestTime   uint32
}

// LockoutConfig configures the failed-login lockout.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration
}

// EmailVerificationConfig configures verification tokens.
type EmailVerificationConfig struct {
	TTL time.Duration
}

// PasswordResetConfig configures reset tokens.
type PasswordResetConfig struct {
	TTL time.Duration
}

// StoreConfig bounds every store call.
type StoreConfig struct {
	OperationTimeout time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig configures asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// EnqueueTimeout is the longest an operation waits for buffer space before
	// the event is counted as dropped.
	EnqueueTimeout time.Duration
	// MaxRetries is the number of additional sink attempts per event.
	MaxRetries           uint
	RetryInitialInterval time.Duration
	// SinkTimeout bounds each delivery attempt. Zero means
	// Store.OperationTimeout.
	SinkTimeout time.Duration
}

// MetricsConfig toggles in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig configures the Redis request throttle. It only takes effect
// when the Builder is given a Redis client.
type RateLimitConfig struct {
	Login              RateRule
	Register           RateRule
	ResetRequest       RateRule
	VerificationResend RateRule
}

// RateRule is one fixed-window budget. MaxAttempts zero disables it.
type RateRule struct {
	MaxAttempts int
	Window      time.Duration
	PerIP       bool
}

// DefaultConfig returns production defaults. Signing keys and the token
// pepper have no defaults and must be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			AccessTTL:     30 * time.Minute,
			SigningMethod: "ed25519",
		},
		Refresh: RefreshConfig{
			TTL:                 30 * 24 * time.Hour,
			RevokeAllOnConflict: true,
			SwapMaxElapsed:      2 * time.Second,
			MaxSessionsListed:   100,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			UpgradeOnLogin: true,
			Policy:         password.DefaultPolicy(),
		},
		Tokens: TokenConfig{
			DigestMemory: 4 * 1024,
			DigestTime:   1,
		},
		Lockout: LockoutConfig{
			Threshold: lockout.DefaultPolicy().Threshold,
			Window:    lockout.DefaultPolicy().Window,
		},
		EmailVerification: EmailVerificationConfig{
			TTL: 24 * time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			TTL: 30 * time.Minute,
		},
		Store: StoreConfig{
			OperationTimeout: 5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:              true,
			BufferSize:           1024,
			EnqueueTimeout:       50 * time.Millisecond,
			MaxRetries:           3,
			RetryInitialInterval: 100 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		RateLimit: RateLimitConfig{
			Login:              RateRule{MaxAttempts: 20, Window: 15 * time.Minute, PerIP: true},
			Register:           RateRule{MaxAttempts: 5, Window: 15 * time.Minute, PerIP: true},
			ResetRequest:       RateRule{MaxAttempts: 5, Window: 15 * time.Minute, PerIP: true},
			VerificationResend: RateRule{MaxAttempts: 3, Window: 15 * time.Minute},
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	out.Tokens.Pepper = cloneBytes(cfg.Tokens.Pepper)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cross-field constraints. Component constructors validate
// their own parameters during Build.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.AccessTTL > 24*time.Hour {
		return errors.New("JWT AccessTTL must be <= 24h")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return errors.New("JWT PrivateKey is required")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}
	if c.Refresh.SwapMaxElapsed < 0 {
		return errors.New("Refresh SwapMaxElapsed must be >= 0")
	}

	// Tokens
	if len(c.Tokens.Pepper) < 16 {
		return errors.New("Tokens Pepper must be at least 16 bytes")
	}

	// Lockout
	if err := (lockout.Policy{Threshold: c.Lockout.Threshold, Window: c.Lockout.Window}).Validate(); err != nil {
		return err
	}

	// One-time credentials
	if c.EmailVerification.TTL <= 0 || c.EmailVerification.TTL > 7*24*time.Hour {
		return errors.New("EmailVerification TTL must be in (0, 7d]")
	}
	if c.PasswordReset.TTL < 15*time.Minute || c.PasswordReset.TTL > time.Hour {
		return errors.New("PasswordReset TTL must be between 15m and 60m")
	}

	// Password policy
	if c.Password.Policy.MinLength < 8 {
		return errors.New("Password Policy MinLength must be >= 8")
	}
	if c.Password.Policy.MaxLength != 0 && c.Password.Policy.MaxLength < c.Password.Policy.MinLength {
		return errors.New("Password Policy MaxLength must be >= MinLength")
	}

	// Store
	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0")
		}
		if c.Audit.EnqueueTimeout < 0 {
			return errors.New("Audit EnqueueTimeout must be >= 0")
		}
		if c.Audit.SinkTimeout < 0 {
			return errors.New("Audit SinkTimeout must be >= 0")
		}
		if c.Audit.MaxRetries > 0 && c.Audit.RetryInitialInterval <= 0 {
			return errors.New("Audit RetryInitialInterval must be > 0 when retries are enabled")
		}
	}

	// Rate limits
	for name, r := range map[string]RateRule{
		"Login":              c.RateLimit.Login,
		"Register":           c.RateLimit.Register,
		"ResetRequest":       c.RateLimit.ResetRequest,
		"VerificationResend": c.RateLimit.VerificationResend,
	} {
		if r.MaxAttempts < 0 {
			return fmt.Errorf("RateLimit %s MaxAttempts must be >= 0", name)
		}
		if r.MaxAttempts > 0 && r.Window <= 0 {
			return fmt.Errorf("RateLimit %s Window must be > 0", name)
		}
	}

	return nil
}

func (c *Config) lockoutPolicy() lockout.Policy {
	return lockout.Policy{Threshold: c.Lockout.Threshold, Window: c.Lockout.Window}
}

func (c *Config) rateConfig() rate.Config {
	rule := func(r RateRule) rate.Rule {
		return rate.Rule{MaxAttempts: r.MaxAttempts, Window: r.Window, PerIP: r.PerIP}
	}
	return rate.Config{Rules: map[rate.Bucket]rate.Rule{
		rate.BucketLogin:         rule(c.RateLimit.Login),
		rate.BucketRegister:      rule(c.RateLimit.Register),
		rate.BucketResetRequest:  rule(c.RateLimit.ResetRequest),
		rate.BucketVerifyRequest: rule(c.RateLimit.VerificationResend),
	}}
}
