package authcore

import (
	"bytes"
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/provider"
	"github.com/MrEthical07/authcore/store/memory"
)

const (
	testEmail  = "a@x.com"
	testSecret = "Strong1!"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMessage struct {
	kind  string
	email string
	token string
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *captureNotifier) record(_ context.Context, kind, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{kind: kind, email: email, token: token})
	return nil
}

func (n *captureNotifier) last(t *testing.T, kind, email string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind && n.sent[i].email == email {
			return n.sent[i].token
		}
	}
	t.Fatalf("no %s message sent to %s", kind, email)
	return ""
}

func (n *captureNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.kind == kind {
			c++
		}
	}
	return c
}

type harness struct {
	engine   *Engine
	store    *memory.Store
	clock    *fakeClock
	notifier *captureNotifier
	logs     *syncBuffer
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Issuer = "authcore-test"
	cfg.Tokens.Pepper = []byte("pepper-pepper-pepper-pepper!")
	cfg.Tokens.DigestMemory = 1024
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.RetryInitialInterval = time.Millisecond
	return cfg
}

type harnessOption func(*Builder, *Config)

func withProvider(p provider.Adapter) harnessOption {
	return func(b *Builder, _ *Config) { b.WithProvider(p) }
}

func withConfig(mutate func(*Config)) harnessOption {
	return func(_ *Builder, cfg *Config) { mutate(cfg) }
}

func withAuditSink(sink AuditSink) harnessOption {
	return func(b *Builder, _ *Config) { b.WithAuditSink(sink) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		store:    memory.New(),
		clock:    newFakeClock(),
		notifier: &captureNotifier{},
		logs:     &syncBuffer{},
	}

	cfg := testConfig()
	b := New().
		WithStore(h.store).
		WithNotifier(notify.Func(h.notifier.record)).
		WithClock(h.clock.Now).
		WithLogger(log.New(h.logs, "", 0))
	for _, opt := range opts {
		opt(b, &cfg)
	}
	b.WithConfig(cfg)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

// verifiedAccount registers and verifies testEmail and returns its id.
func (h *harness) verifiedAccount(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	reg, err := h.engine.Register(ctx, testEmail, testSecret)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := h.engine.VerifyEmail(ctx, h.notifier.last(t, notify.KindVerification, testEmail)); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	return reg.AccountID
}

func (h *harness) login(t *testing.T) *Tokens {
	t.Helper()
	tokens, err := h.engine.Login(context.Background(), testEmail, testSecret)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return tokens
}
