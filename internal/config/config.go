package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
)

// Service is the configuration of the authcore service binary. Values are
// layered: Defaults, then the optional YAML file, then environment variables.
type Service struct {
	Addr            string        `env:"AUTHCORE_ADDR" yaml:"addr"`
	TrustProxy      bool          `env:"AUTHCORE_TRUST_PROXY" yaml:"trust_proxy"`
	ShutdownTimeout time.Duration `env:"AUTHCORE_SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout"`
	// IPRate and IPBurst drive the in-process per-client limiter placed in
	// front of every route.
	IPRate  float64 `env:"AUTHCORE_IP_RATE" yaml:"ip_rate"`
	IPBurst int     `env:"AUTHCORE_IP_BURST" yaml:"ip_burst"`

	DatabaseURL  string `env:"AUTHCORE_DATABASE_URL" yaml:"database_url"`
	RedisAddr    string `env:"AUTHCORE_REDIS_ADDR" yaml:"redis_addr"`
	AMQPURL      string `env:"AUTHCORE_AMQP_URL" yaml:"amqp_url"`
	AMQPExchange string `env:"AUTHCORE_AMQP_EXCHANGE" yaml:"amqp_exchange"`

	Auth Auth `envPrefix:"AUTHCORE_" yaml:"auth"`
}

// Auth holds the engine settings an operator usually tunes. Key material is
// base64 (std encoding) or, for Ed25519 keys, PEM.
type Auth struct {
	SigningMethod string        `env:"JWT_SIGNING_METHOD" yaml:"signing_method"`
	PrivateKey    string        `env:"JWT_PRIVATE_KEY" yaml:"private_key"`
	PublicKey     string        `env:"JWT_PUBLIC_KEY" yaml:"public_key"`
	KeyID         string        `env:"JWT_KEY_ID" yaml:"key_id"`
	Issuer        string        `env:"JWT_ISSUER" yaml:"issuer"`
	Audience      string        `env:"JWT_AUDIENCE" yaml:"audience"`
	AccessTTL     time.Duration `env:"ACCESS_TTL" yaml:"access_ttl"`

	RefreshTTL          time.Duration `env:"REFRESH_TTL" yaml:"refresh_ttl"`
	RevokeAllOnConflict bool          `env:"REVOKE_ALL_ON_CONFLICT" yaml:"revoke_all_on_conflict"`

	TokenPepper string `env:"TOKEN_PEPPER" yaml:"token_pepper"`

	LockoutThreshold int           `env:"LOCKOUT_THRESHOLD" yaml:"lockout_threshold"`
	LockoutWindow    time.Duration `env:"LOCKOUT_WINDOW" yaml:"lockout_window"`

	VerificationTTL time.Duration `env:"VERIFICATION_TTL" yaml:"verification_ttl"`
	ResetTTL        time.Duration `env:"RESET_TTL" yaml:"reset_ttl"`

	PasswordMemory uint32 `env:"PASSWORD_MEMORY_KB" yaml:"password_memory_kb"`
	PasswordTime   uint32 `env:"PASSWORD_TIME" yaml:"password_time"`

	AuditEnabled     bool `env:"AUDIT_ENABLED" yaml:"audit_enabled"`
	LatencyHistogram bool `env:"LATENCY_HISTOGRAMS" yaml:"latency_histograms"`
}

// Defaults mirrors authcore.DefaultConfig for the tunable fields and adds the
// service-level defaults.
func Defaults() Service {
	base := authcore.DefaultConfig()
	return Service{
		Addr:            ":8080",
		ShutdownTimeout: 10 * time.Second,
		IPRate:          10,
		IPBurst:         20,
		AMQPExchange:    "authcore.notifications",
		Auth: Auth{
			SigningMethod:       base.JWT.SigningMethod,
			AccessTTL:           base.JWT.AccessTTL,
			RefreshTTL:          base.Refresh.TTL,
			RevokeAllOnConflict: base.Refresh.RevokeAllOnConflict,
			LockoutThreshold:    base.Lockout.Threshold,
			LockoutWindow:       base.Lockout.Window,
			VerificationTTL:     base.EmailVerification.TTL,
			ResetTTL:            base.PasswordReset.TTL,
			PasswordMemory:      base.Password.Memory,
			PasswordTime:        base.Password.Time,
			AuditEnabled:        base.Audit.Enabled,
			LatencyHistogram:    base.Metrics.EnableLatencyHistograms,
		},
	}
}

// Validate checks the service-level fields. Engine fields are validated by
// authcore.Builder.
func (s Service) Validate() error {
	if strings.TrimSpace(s.Addr) == "" {
		return errors.New("AUTHCORE_ADDR is required")
	}
	if s.ShutdownTimeout <= 0 {
		return errors.New("AUTHCORE_SHUTDOWN_TIMEOUT must be > 0")
	}
	if s.IPRate < 0 || s.IPBurst < 0 {
		return errors.New("AUTHCORE_IP_RATE and AUTHCORE_IP_BURST must be >= 0")
	}
	if s.AMQPURL != "" && s.AMQPExchange == "" {
		return errors.New("AUTHCORE_AMQP_EXCHANGE is required with AUTHCORE_AMQP_URL")
	}
	if s.Auth.PrivateKey == "" {
		return errors.New("AUTHCORE_JWT_PRIVATE_KEY is required")
	}
	if s.Auth.TokenPepper == "" {
		return errors.New("AUTHCORE_TOKEN_PEPPER is required")
	}
	return nil
}

// EngineConfig expands s into a full authcore.Config, decoding key material.
func (s Service) EngineConfig() (authcore.Config, error) {
	cfg := authcore.DefaultConfig()
	a := s.Auth

	priv, err := decodeKey(a.PrivateKey)
	if err != nil {
		return cfg, fmt.Errorf("decode JWT private key: %w", err)
	}
	pub, err := decodeKey(a.PublicKey)
	if err != nil {
		return cfg, fmt.Errorf("decode JWT public key: %w", err)
	}
	pepper, err := base64.StdEncoding.DecodeString(a.TokenPepper)
	if err != nil {
		return cfg, fmt.Errorf("decode token pepper: %w", err)
	}

	cfg.JWT.SigningMethod = a.SigningMethod
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.JWT.KeyID = a.KeyID
	cfg.JWT.Issuer = a.Issuer
	cfg.JWT.Audience = a.Audience
	cfg.JWT.AccessTTL = a.AccessTTL

	cfg.Refresh.TTL = a.RefreshTTL
	cfg.Refresh.RevokeAllOnConflict = a.RevokeAllOnConflict
	cfg.Tokens.Pepper = pepper

	cfg.Lockout.Threshold = a.LockoutThreshold
	cfg.Lockout.Window = a.LockoutWindow
	cfg.EmailVerification.TTL = a.VerificationTTL
	cfg.PasswordReset.TTL = a.ResetTTL

	cfg.Password.Memory = a.PasswordMemory
	cfg.Password.Time = a.PasswordTime

	cfg.Audit.Enabled = a.AuditEnabled
	cfg.Metrics.EnableLatencyHistograms = a.LatencyHistogram

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeKey(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if strings.HasPrefix(v, "-----BEGIN") {
		return []byte(v), nil
	}
	return base64.StdEncoding.DecodeString(v)
}
