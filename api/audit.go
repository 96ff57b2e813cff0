package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess              AuditEvent = "login_success"
	AuditLoginFailure              AuditEvent = "login_failure"
	AuditLogout                    AuditEvent = "logout"
	AuditPasswordResetRequested    AuditEvent = "password_reset_requested"
	AuditPasswordResetInvalidToken AuditEvent = "password_reset_invalid_token"
	AuditPasswordUpdated           AuditEvent = "password_updated"
	AuditPasswordUpdateRejected    AuditEvent = "password_update_rejected"
	AuditCSRFRejected              AuditEvent = "csrf_rejected"
)

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
}

// logUser is a convenience for events tied to a user ID. Emails are never
// logged.
func (al *auditLogger) logUser(event AuditEvent, r *http.Request, userID string, extra ...slog.Attr) {
	attrs := []slog.Attr{slog.String("user_id", userID)}
	al.log(event, r, append(attrs, extra...)...)
}

// logFailure is a convenience for failed actions.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{slog.String("reason", reason)}
	al.log(event, r, append(attrs, extra...)...)
}
