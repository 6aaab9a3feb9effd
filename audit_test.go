package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) error {
	s.count.Add(1)
	return nil
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

// flakySink fails the first failures calls and then records events.
type flakySink struct {
	mu       sync.Mutex
	failures int
	calls    int
	events   []AuditEvent
}

func (s *flakySink) Emit(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("sink down")
	}
	s.events = append(s.events, event)
	return nil
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) error {
	<-s.gate
	return nil
}

// stallSink blocks every delivery until its context ends.
type stallSink struct {
	mu        sync.Mutex
	deadlines []bool
}

func (s *stallSink) Emit(ctx context.Context, _ AuditEvent) error {
	_, ok := ctx.Deadline()
	s.mu.Lock()
	s.deadlines = append(s.deadlines, ok)
	s.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

// deadlineSink records whether each delivery carried a deadline.
type deadlineSink struct {
	mu        sync.Mutex
	deadlines []bool
}

func (s *deadlineSink) Emit(ctx context.Context, _ AuditEvent) error {
	_, ok := ctx.Deadline()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadlines = append(s.deadlines, ok)
	return nil
}

func testAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:              true,
		BufferSize:           8,
		EnqueueTimeout:       10 * time.Millisecond,
		MaxRetries:           3,
		RetryInitialInterval: time.Millisecond,
	}
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	h := newHarness(t,
		withAuditSink(sink),
		withConfig(func(cfg *Config) { cfg.Audit.Enabled = false }),
	)
	h.verifiedAccount(t)
	h.login(t)
	h.engine.Close()

	if got := sink.Count(); got != 0 {
		t.Fatalf("expected no sink calls, got %d", got)
	}
}

func TestAuditChannelSinkReceivesEventWithFields(t *testing.T) {
	sink := NewChannelSink(64)
	h := newHarness(t, withAuditSink(sink))
	id := h.verifiedAccount(t)

	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.2"), "curl/8")
	tokens, err := h.engine.Login(ctx, testEmail, testSecret)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case event := <-sink.Events():
			if event.EventType != auditEventLoginSuccess {
				continue
			}
			if event.AccountID != id || event.SessionID != tokens.SessionID {
				t.Fatalf("unexpected ids: %+v", event)
			}
			if event.IP != "198.51.100.2" || event.UserAgent != "curl/8" || !event.Success {
				t.Fatalf("unexpected event: %+v", event)
			}
			if !event.Timestamp.Equal(h.clock.Now()) {
				t.Fatalf("expected engine clock timestamp, got %v", event.Timestamp)
			}
			return
		case <-timeout:
			t.Fatalf("timed out waiting for login_success")
		}
	}
}

func TestAuditDispatcherRetriesFailedDelivery(t *testing.T) {
	sink := &flakySink{failures: 2}
	var buf bytes.Buffer
	d := newAuditDispatcher(testAuditConfig(), sink, log.New(&buf, "", 0), nil)

	d.Emit(context.Background(), AuditEvent{EventType: auditEventLogout})
	d.Close()

	if len(sink.events) != 1 || sink.calls != 3 {
		t.Fatalf("expected delivery on third attempt, got events=%d calls=%d", len(sink.events), sink.calls)
	}
	if d.Dropped() != 0 {
		t.Fatalf("expected no drops, got %d", d.Dropped())
	}
}

func TestAuditDispatcherCountsExhaustedRetries(t *testing.T) {
	sink := &flakySink{failures: 100}
	var buf bytes.Buffer
	var lost atomic.Int64
	d := newAuditDispatcher(testAuditConfig(), sink, log.New(&buf, "", 0), func() { lost.Add(1) })

	d.Emit(context.Background(), AuditEvent{EventType: auditEventLoginFailure, AccountID: "acct-1"})
	d.Close()

	if sink.calls != 4 {
		t.Fatalf("expected 1 attempt plus 3 retries, got %d", sink.calls)
	}
	if d.Dropped() != 1 || lost.Load() != 1 {
		t.Fatalf("expected one lost event, got dropped=%d lost=%d", d.Dropped(), lost.Load())
	}
	if !strings.Contains(buf.String(), "ERROR audit event lost kind=login_failure account=acct-1") {
		t.Fatalf("expected ERROR log, got %q", buf.String())
	}
}

func TestAuditBufferFullDropsAfterTimeout(t *testing.T) {
	sink := newGateSink()
	cfg := testAuditConfig()
	cfg.BufferSize = 1
	var buf bytes.Buffer
	d := newAuditDispatcher(cfg, sink, log.New(&buf, "", 0), nil)

	// One event blocks in the sink, one fills the buffer.
	d.Emit(context.Background(), AuditEvent{EventType: "first"})
	time.Sleep(20 * time.Millisecond)
	d.Emit(context.Background(), AuditEvent{EventType: "second"})

	start := time.Now()
	d.Emit(context.Background(), AuditEvent{EventType: "third"})
	if time.Since(start) > time.Second {
		t.Fatalf("Emit blocked past EnqueueTimeout")
	}
	if d.Dropped() != 1 {
		t.Fatalf("expected one dropped event, got %d", d.Dropped())
	}

	close(sink.gate)
	d.Close()
}

func TestAuditDispatcherBoundsEachDelivery(t *testing.T) {
	sink := &stallSink{}
	cfg := testAuditConfig()
	cfg.MaxRetries = 1
	cfg.SinkTimeout = 20 * time.Millisecond
	var buf bytes.Buffer
	d := newAuditDispatcher(cfg, sink, log.New(&buf, "", 0), nil)

	d.Emit(context.Background(), AuditEvent{EventType: auditEventLogout})

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a stalled sink")
	}

	if d.Dropped() != 1 {
		t.Fatalf("expected the stalled event to be counted as lost, got %d", d.Dropped())
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.deadlines) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(sink.deadlines))
	}
	for i, ok := range sink.deadlines {
		if !ok {
			t.Fatalf("attempt %d had no deadline", i)
		}
	}
}

func TestAuditEngineDeliveriesCarryDeadline(t *testing.T) {
	sink := &deadlineSink{}
	h := newHarness(t, withAuditSink(sink))
	h.verifiedAccount(t)
	h.login(t)
	h.engine.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.deadlines) == 0 {
		t.Fatal("expected audit deliveries")
	}
	for i, ok := range sink.deadlines {
		if !ok {
			t.Fatalf("delivery %d had no deadline", i)
		}
	}
}

func TestAuditDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	var buf bytes.Buffer
	d := newAuditDispatcher(testAuditConfig(), NoOpSink{}, log.New(&buf, "", 0), nil)

	d.Close()
	d.Close()
	d.Emit(context.Background(), AuditEvent{EventType: auditEventLogout})

	if d.Dropped() != 1 {
		t.Fatalf("expected emit after close to count as lost, got %d", d.Dropped())
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	for _, kind := range []string{auditEventLoginSuccess, auditEventLogout} {
		if err := sink.Emit(context.Background(), AuditEvent{EventType: kind, Success: true}); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var event AuditEvent
	if err := json.Unmarshal([]byte(lines[1]), &event); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if event.EventType != auditEventLogout {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	var buf bytes.Buffer
	h := newHarness(t, withAuditSink(NewJSONWriterSink(&syncWriter{w: &buf})))
	h.verifiedAccount(t)
	ctx := context.Background()

	tokens := h.login(t)
	if _, err := h.engine.Refresh(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if err := h.engine.RequestPasswordReset(ctx, testEmail); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	h.engine.Login(ctx, testEmail, "Wrong1!secret")
	h.engine.Close()

	out := buf.String()
	for _, secret := range []string{testSecret, "Wrong1!secret", tokens.RefreshToken, tokens.AccessToken} {
		if strings.Contains(out, secret) {
			t.Fatalf("audit output contains a secret")
		}
	}
	if strings.Contains(h.logs.String(), testSecret) {
		t.Fatalf("log output contains a secret")
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
