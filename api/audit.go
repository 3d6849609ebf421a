package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditCertIssued           AuditEvent = "cert_issued"
	AuditCertIssueFailed      AuditEvent = "cert_issue_failed"
	AuditCertValidated        AuditEvent = "cert_validated"
	AuditCertValidationFailed AuditEvent = "cert_validation_failed"
	AuditCertDownloaded       AuditEvent = "cert_downloaded"
	AuditCertDownloadFailed   AuditEvent = "cert_download_failed"
	AuditCertStateChanged     AuditEvent = "cert_state_changed"
	AuditTemplateCreated      AuditEvent = "template_created"
	AuditVerifyRateLimited    AuditEvent = "verify_rate_limited"
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

// logEvent is a convenience for events about one certificate. The public
// identifier is safe for logs; the body never is logged.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, uniqueID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("unique_certificate_id", uniqueID),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a rejected request with its reason.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
