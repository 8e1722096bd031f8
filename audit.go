package trustcore

import (
	"context"
	"time"

	"github.com/RedBox-TN/Backend-sub000/internal/audit"
)

// AuditEvent is one security-relevant engine event.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

const (
	auditEventLogin            = "login"
	auditEventTFA              = "tfa_verify"
	auditEventLogout           = "logout"
	auditEventRefresh          = "refresh"
	auditEventDeviceMismatch   = "device_binding_mismatch"
	auditEventPermissionDenied = "permission_denied"
	auditEventAccountBlocked   = "account_blocked"
	auditEventAccountUnblocked = "account_unblocked"
	auditEventPasswordChange   = "password_change"
	auditEventTOTPEnrolled     = "totp_enrolled"
	auditEventTOTPDisabled     = "totp_disabled"
)

// NewZapAuditSink returns a sink writing one structured log line per event.
var NewZapAuditSink = audit.NewZapSink

// NewJSONAuditSink returns a sink writing one JSON object per line.
var NewJSONAuditSink = audit.NewJSONWriterSink

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, username string, status Status, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Username:  username,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Status:    string(status),
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) observeSince(id MetricID, start time.Time) {
	if e == nil || e.metrics == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}
