package placeholder

// Metric names recorded by the manager.
const (
	MetricCreated         = "placeholders_created_total"
	MetricReplaced        = "placeholders_replaced_total"
	MetricExpired         = "placeholders_expired_total"
	MetricNoMatch         = "placeholder_replace_no_match_total"
	MetricDuplicateMatch  = "placeholder_duplicate_matches_total"
	MetricStaleTransition = "placeholder_stale_transitions_total"
	MetricMalformed       = "placeholder_malformed_envelopes_total"
	MetricRecoveryLatency = "placeholder_recovery_latency"
	MetricSweepDuration   = "placeholder_sweep_duration"
	MetricPending         = "placeholders_pending"
)

// Log field names used by the manager.
const (
	logFieldPlaceholderID = "placeholder_id"
	logFieldThreadID      = "thread_id"
	logFieldSender        = "sender"
	logFieldGroupID       = "group_id"
	logFieldTimestamp     = "original_timestamp"
	logFieldReason        = "reason"
	logFieldCount         = "count"
	logFieldDuplicates    = "duplicates"
	logFieldExpiresAt     = "expires_at"
)
