package audit

import (
	"github.com/rs/zerolog"
)

// Logger provides structured audit logging for security-relevant events.
// All audit events are logged with structured fields for easy filtering and analysis.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger from a zerolog.Logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger}
}

// LogAuth logs an authentication event.
// subject: the session subject (may be empty for failed attempts)
// method: authentication method (e.g., "password", "session", "share_token")
// result: "allowed" or "denied"
// details: additional context (e.g., error message)
// sourceIP: source IP address of the request
func (l *Logger) LogAuth(subject, method, result, details, sourceIP string) {
	level := zerolog.InfoLevel
	if result == "denied" {
		level = zerolog.WarnLevel
	}

	l.logger.WithLevel(level).
		Str("event_type", "auth").
		Str("subject", subject).
		Str("method", method).
		Str("result", result).
		Str("details", details).
		Str("source_ip", sourceIP).
		Msg("Authentication event")
}

// LogFileOp logs a store operation event.
// operation: store operation (e.g., "upload", "download", "delete", "restore", "move")
// namespace: namespace the operation ran against
// path: root-relative path of the affected entry (may be empty for batch operations)
// result: "ok" or "failed"
// details: additional context (e.g., error message)
// sourceIP: source IP address of the request
func (l *Logger) LogFileOp(operation, namespace, path, result, details, sourceIP string) {
	level := zerolog.InfoLevel
	if result == "failed" {
		level = zerolog.WarnLevel
	}

	event := l.logger.WithLevel(level).
		Str("event_type", "file_operation").
		Str("operation", operation).
		Str("namespace", namespace).
		Str("result", result).
		Str("source_ip", sourceIP)

	if path != "" {
		event = event.Str("path", path)
	}
	if details != "" {
		event = event.Str("details", details)
	}

	event.Msg("File operation")
}

// LogShare logs a share link lifecycle event.
// action: "issued", "redeemed", or "rejected"
// namespace: namespace of the shared entry
// path: root-relative path of the shared entry
// details: additional context (e.g., rejection reason)
// sourceIP: source IP address of the request
func (l *Logger) LogShare(action, namespace, path, details, sourceIP string) {
	level := zerolog.InfoLevel
	if action == "rejected" {
		level = zerolog.WarnLevel
	}

	event := l.logger.WithLevel(level).
		Str("event_type", "share").
		Str("action", action).
		Str("namespace", namespace).
		Str("path", path).
		Str("source_ip", sourceIP)

	if details != "" {
		event = event.Str("details", details)
	}

	event.Msg("Share event")
}
