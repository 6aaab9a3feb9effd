package authcore

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/tokens"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/provider"
	"github.com/MrEthical07/authcore/store"
)

const tracerName = "github.com/MrEthical07/authcore"

// Builder assembles an Engine. Configure it during initialization, call Build
// once, and discard it.
type Builder struct {
	config Config

	store    store.Store
	oneTime  store.OneTimeCredentials
	redis    redis.UniversalClient
	notifier notify.Notifier
	provider provider.Adapter

	auditSink      AuditSink
	logger         *log.Logger
	clock          func() time.Time
	tracerProvider trace.TracerProvider

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the persistence handle. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithOneTimeStore overrides where verification and reset credentials live.
// Defaults to the main store.
func (b *Builder) WithOneTimeStore(s store.OneTimeCredentials) *Builder {
	b.oneTime = s
	return b
}

// WithRedis enables request throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithNotifier sets the delivery channel for verification and reset tokens.
// Defaults to notify.LogNotifier.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithProvider sets the credential-issuing adapter consulted on refresh.
// Defaults to a rotating adapter backed by the engine token generator.
func (b *Builder) WithProvider(p provider.Adapter) *Builder {
	b.provider = p
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l *log.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides the time source for every timestamp and expiry check.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and constructs the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = log.Default()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	tp := b.tracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}

	engine := &Engine{
		config:   cfg,
		store:    b.store,
		oneTime:  b.oneTime,
		notifier: b.notifier,
		lockout:  cfg.lockoutPolicy(),
		logger:   logger,
		clock:    clock,
		tracer:   tp.Tracer(tracerName),
	}
	if engine.oneTime == nil {
		engine.oneTime = b.store
	}
	if engine.notifier == nil {
		engine.notifier = notify.LogNotifier{Logger: logger}
	}
	if b.redis != nil {
		engine.limiter = rate.New(b.redis, cfg.rateConfig())
	}

	engine.metrics = NewMetrics(cfg.Metrics)

	hasher, err := password.New(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	gen, err := tokens.New(tokens.Config{
		Pepper: cfg.Tokens.Pepper,
		Memory: cfg.Tokens.DigestMemory,
		Time:   cfg.Tokens.DigestTime,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = gen

	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Now:           clock,
	})
	if err != nil {
		return nil, err
	}
	engine.jwt = jm

	engine.provider = b.provider
	if engine.provider == nil {
		engine.provider = provider.NewRotating(func() (string, error) {
			plaintext, _, err := gen.Generate()
			return plaintext, err
		})
	}
	engine.upstream = provider.IsUpstream(engine.provider)

	sealer, err := tokens.NewSealer(cfg.Tokens.Pepper)
	if err != nil {
		return nil, err
	}
	engine.sealer = sealer

	dummy, err := dummySecret()
	if err != nil {
		return nil, err
	}
	if engine.dummyHash, err = hasher.Hash(dummy); err != nil {
		return nil, fmt.Errorf("authcore: prepare dummy digest: %w", err)
	}

	// The dispatcher goroutine starts only once nothing else can fail.
	sink := b.auditSink
	if sink == nil {
		sink = NewStoreSink(b.store)
	}
	auditCfg := cfg.Audit
	if auditCfg.SinkTimeout <= 0 {
		auditCfg.SinkTimeout = cfg.Store.OperationTimeout
	}
	engine.audit = newAuditDispatcher(auditCfg, sink, logger, func() {
		engine.metricInc(MetricAuditDropped)
	})

	b.built = true

	return engine, nil
}

func dummySecret() (string, error) {
	var buf [24]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}
