package security

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newBufferedAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewAuditor(logger, enabled), &buf
}

func TestNewAuditor(t *testing.T) {
	tests := []struct {
		name    string
		logger  *slog.Logger
		enabled bool
	}{
		{name: "enabled with logger", logger: slog.Default(), enabled: true},
		{name: "disabled with logger", logger: slog.Default(), enabled: false},
		{name: "enabled with nil logger", logger: nil, enabled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := NewAuditor(tt.logger, tt.enabled)
			if auditor == nil {
				t.Fatal("NewAuditor() returned nil")
			}
			if auditor.enabled != tt.enabled {
				t.Errorf("enabled = %v, want %v", auditor.enabled, tt.enabled)
			}
			if auditor.logger == nil {
				t.Error("logger should not be nil")
			}
		})
	}
}

func TestAuditor_Disabled(t *testing.T) {
	auditor, buf := newBufferedAuditor(false)

	called := false
	auditor.SetRecorder(func(context.Context, string) { called = true })
	auditor.LogParAdmitted(context.Background(), "client", "10.0.0.1", "reference-value", 600)

	if buf.Len() != 0 {
		t.Errorf("disabled auditor wrote output: %s", buf.String())
	}
	if called {
		t.Error("disabled auditor should not call the recorder")
	}
}

func TestAuditor_Events(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")

	tests := []struct {
		name      string
		log       func(a *Auditor)
		eventType string
		contains  []string
		excludes  []string
	}{
		{
			name:      "admitted",
			log:       func(a *Auditor) { a.LogParAdmitted(ctx, "client-a", "10.0.0.1", "abcdefghSECRETTAIL", 90) },
			eventType: EventParAdmitted,
			contains:  []string{"client-a", "abcdefgh", "req-123"},
			excludes:  []string{"SECRETTAIL"},
		},
		{
			name:      "rejected",
			log:       func(a *Auditor) { a.LogParRejected(ctx, "client-b", "10.0.0.2", "invalid_request", "bad") },
			eventType: EventParRejected,
			contains:  []string{"client-b", "invalid_request"},
		},
		{
			name:      "redeemed",
			log:       func(a *Auditor) { a.LogParRedeemed(ctx, "client-c", "abcdefghSECRETTAIL") },
			eventType: EventParRedeemed,
			contains:  []string{"client-c", "abcdefgh"},
			excludes:  []string{"SECRETTAIL"},
		},
		{
			name:      "redemption failed",
			log:       func(a *Auditor) { a.LogParRedemptionFailed(ctx, "client-c", "ref", "client_mismatch") },
			eventType: EventParRedemptionFailed,
			contains:  []string{"client_mismatch"},
		},
		{
			name:      "auth failure",
			log:       func(a *Auditor) { a.LogAuthFailure(ctx, "client-d", "10.0.0.4", "bad_secret") },
			eventType: EventAuthFailure,
			contains:  []string{"bad_secret"},
		},
		{
			name:      "rate limited",
			log:       func(a *Auditor) { a.LogRateLimitExceeded(ctx, "10.0.0.5", "/oauth/par") },
			eventType: EventRateLimitExceeded,
			contains:  []string{"10.0.0.5", "/oauth/par"},
		},
		{
			name:      "internal error",
			log:       func(a *Auditor) { a.LogInternalError(ctx, "client-e", "", errors.New("dial tcp 10.1.2.3:6379")) },
			eventType: EventInternalError,
			contains:  []string{"error_hash"},
			excludes:  []string{"10.1.2.3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor, buf := newBufferedAuditor(true)

			var recorded []string
			auditor.SetRecorder(func(_ context.Context, eventType string) {
				recorded = append(recorded, eventType)
			})

			tt.log(auditor)

			out := buf.String()
			if !strings.Contains(out, "security_audit") {
				t.Errorf("output missing security_audit marker: %s", out)
			}
			if !strings.Contains(out, tt.eventType) {
				t.Errorf("output missing event type %q: %s", tt.eventType, out)
			}
			for _, s := range tt.contains {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q: %s", s, out)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(out, s) {
					t.Errorf("output must not contain %q: %s", s, out)
				}
			}
			if len(recorded) != 1 || recorded[0] != tt.eventType {
				t.Errorf("recorded = %v, want [%s]", recorded, tt.eventType)
			}
		})
	}
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want <empty>", got)
	}

	a := hashForLogging("value")
	if len(a) != 16 {
		t.Errorf("hash length = %d, want 16", len(a))
	}
	if a != hashForLogging("value") {
		t.Error("hash should be deterministic")
	}
	if a == hashForLogging("other") {
		t.Error("different inputs should hash differently")
	}
}
