package service

// Standard field names for log entries written by the service layer. Use
// these exact names so that log queries work across components.
const (
	// Identifiers
	LogFieldThread      = "thread_id"
	LogFieldPlaceholder = "placeholder_id"
	LogFieldMessageID   = "message_id"
	LogFieldSender      = "sender"
	LogFieldGroup       = "group_id"
	LogFieldTimestamp   = "original_timestamp"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"

	// Pipeline fields
	LogFieldEvent   = "event"
	LogFieldOutcome = "outcome"
	LogFieldReason  = "reason"
	LogFieldBody    = "body"

	// HTTP fields
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldMethod     = "method"
	LogFieldURL        = "url"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldSize       = "size_bytes"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"

	// Error and debugging
	LogFieldErrorCode = "error_code"
	LogFieldAttempt   = "attempt"
)

// Log level usage
//
// DEBUG: lost transition races, per-entry detail, raw payloads in verbose mode.
// INFO: placeholders created, recovered or expired; sweeps that did work;
// start-up and shutdown.
// WARN: duplicate match anomalies, malformed envelopes, retryable storage
// errors.
// ERROR: storage failures that dropped back to a fallback path.
//
// Sender addresses and bodies are masked unless verbose logging is enabled
// in the context.
