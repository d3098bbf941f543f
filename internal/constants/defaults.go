package constants

// Recovery window and sweeping
const (
	DefaultRecoveryWindowSec      = 3600
	MinRecoveryWindowSec          = 1
	MaxRecoveryWindowSec          = 7 * 24 * 3600
	DefaultSweepIntervalSec       = 60
	DefaultSweepBatchSize         = 500
	DefaultRetentionDays          = 90
	DefaultCleanupIntervalHours   = 24
	DefaultConfigReloadDebounceMs = 250

	// Periodic sweeps pause after this many consecutive failures.
	DefaultSweepBreakerFailures    = 5
	DefaultSweepBreakerCooldownSec = 300
)

// Retry and database defaults
const (
	DefaultRetryBackoffMs         = 1000
	DefaultMaxBackoffMs           = 60000
	DefaultMaxAttempts            = 5
	DefaultDatabaseRetryAttempts  = 3
	DefaultDatabaseBusyTimeoutMs  = 5000
	DefaultDatabaseRetryBackoffMs = 50
	DefaultDatabaseMaxBackoffMs   = 500
)

// Server defaults
const (
	DefaultServerPort            = 8082
	DefaultGracefulShutdownSec   = 30
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultMaxRequestBodyBytes   = 1 << 20
	ServerErrorChannelSize       = 1
	MinWebhookSecretLength       = 32
)

// Event feed
const (
	DefaultEventBufferSize     = 64
	DefaultEventWriteTimeoutMs = 5000
)

// Validation limits
const (
	MinPhoneNumberDigits = 7
	MaxPhoneNumberDigits = 15
	MaxGroupIDLength     = 128
	MaxBodyLength        = 64 * 1024
	MaxFailureReasonLen  = 256
	MaxThreadIDLength    = 64
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
	DefaultIDVisibleChars  = 8
)

// Encryption
const (
	EncryptionSalt       = "decryptrecovery-at-rest-v1"
	EncryptionLookupInfo = "decryptrecovery-lookup-v1"
	MinEncryptionSecret  = 32
)
