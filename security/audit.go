// Package security provides security features for the PAR endpoint including
// audit logging, rate limiting, request IDs, secure headers and payload encryption.
package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"
)

// referenceLogLength is the number of reference characters included in audit records
const referenceLogLength = 8

// EventRecorder receives the type of every logged audit event, typically to count it.
type EventRecorder func(ctx context.Context, eventType string)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger   *slog.Logger
	enabled  bool
	recorder atomic.Pointer[EventRecorder]
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// SetRecorder installs a recorder called for each logged event
func (a *Auditor) SetRecorder(rec EventRecorder) {
	if rec == nil {
		a.recorder.Store(nil)
		return
	}
	a.recorder.Store(&rec)
}

// Event represents a security audit event
type Event struct {
	Type      string
	ClientID  string
	IPAddress string
	RequestID string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event
func (a *Auditor) LogEvent(ctx context.Context, event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()
	if event.RequestID == "" {
		event.RequestID = GetRequestID(ctx)
	}

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"request_id", event.RequestID,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)

	if rec := a.recorder.Load(); rec != nil {
		(*rec)(ctx, event.Type)
	}
}

// LogParAdmitted logs a stored pushed authorization request
func (a *Auditor) LogParAdmitted(ctx context.Context, clientID, ipAddress, reference string, expiresIn int64) {
	a.LogEvent(ctx, Event{
		Type:      EventParAdmitted,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reference_prefix": truncate(reference, referenceLogLength),
			"expires_in":       expiresIn,
		},
	})
}

// LogParRejected logs a pushed authorization request rejected with an OAuth error
func (a *Auditor) LogParRejected(ctx context.Context, clientID, ipAddress, errorCode, description string) {
	a.LogEvent(ctx, Event{
		Type:      EventParRejected,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"error":             errorCode,
			"error_description": description,
		},
	})
}

// LogParRedeemed logs a successful request_uri redemption
func (a *Auditor) LogParRedeemed(ctx context.Context, clientID, reference string) {
	a.LogEvent(ctx, Event{
		Type:     EventParRedeemed,
		ClientID: clientID,
		Details: map[string]any{
			"reference_prefix": truncate(reference, referenceLogLength),
		},
	})
}

// LogParRedemptionFailed logs a failed request_uri redemption
func (a *Auditor) LogParRedemptionFailed(ctx context.Context, clientID, reference, reason string) {
	a.LogEvent(ctx, Event{
		Type:     EventParRedemptionFailed,
		ClientID: clientID,
		Details: map[string]any{
			"reference_prefix": truncate(reference, referenceLogLength),
			"reason":           reason,
		},
	})
}

// LogAuthFailure logs a client authentication failure
func (a *Auditor) LogAuthFailure(ctx context.Context, clientID, ipAddress, reason string) {
	a.LogEvent(ctx, Event{
		Type:      EventAuthFailure,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ctx context.Context, ipAddress, endpoint string) {
	a.LogEvent(ctx, Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// LogInternalError logs a server-side admission failure. The error itself is
// hashed so that audit sinks never receive backend details.
func (a *Auditor) LogInternalError(ctx context.Context, clientID, ipAddress string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	a.LogEvent(ctx, Event{
		Type:      EventInternalError,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"error_hash": hashForLogging(detail),
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
