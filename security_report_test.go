package authcore

import (
	"testing"
	"time"

	"github.com/MrEthical07/authcore/provider"
)

func TestSecurityReport(t *testing.T) {
	h := newHarness(t)
	report := h.engine.SecurityReport()

	if report.SigningAlgorithm != "hs256" {
		t.Fatalf("SigningAlgorithm = %q", report.SigningAlgorithm)
	}
	if report.RefreshProvider != "rotating" || !report.RevokeAllOnConflict {
		t.Fatalf("unexpected refresh posture: %+v", report)
	}
	if report.LockoutThreshold != 10 || report.LockoutWindow != time.Hour {
		t.Fatalf("unexpected lockout posture: %+v", report)
	}
	if report.Argon2.Memory != 8192 || report.Argon2.Time != 1 {
		t.Fatalf("unexpected argon2 posture: %+v", report.Argon2)
	}
	if report.RateLimitingActive {
		t.Fatal("rate limiting requires a Redis client")
	}
}

func TestSecurityReportReflectsProviderAndRedis(t *testing.T) {
	_, rdb := newTestRedis(t)
	h := newHarness(t, withProvider(provider.Static{}), withRedis(rdb))
	report := h.engine.SecurityReport()

	if report.RefreshProvider != "static" {
		t.Fatalf("RefreshProvider = %q", report.RefreshProvider)
	}
	if !report.RateLimitingActive {
		t.Fatal("expected rate limiting to be active")
	}
}

func TestSecurityReportNilEngine(t *testing.T) {
	var e *Engine
	if got := e.SecurityReport(); got != (SecurityReport{}) {
		t.Fatalf("expected zero report, got %+v", got)
	}
}
