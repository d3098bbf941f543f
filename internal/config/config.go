package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"decryptrecovery/internal/constants"
	"decryptrecovery/internal/models"
	"decryptrecovery/internal/security"
	"decryptrecovery/internal/validation"
)

var (
	ErrMissingDBPath      = models.ConfigError{Message: "missing database path"}
	ErrInvalidWindow      = models.ConfigError{Message: "recovery window must be between 1 second and 7 days"}
	ErrMissingEncryptKey  = models.ConfigError{Message: "encryption is enabled but DECRYPTRECOVERY_ENCRYPTION_SECRET is not set"}
	ErrShortEncryptionKey = models.ConfigError{Message: fmt.Sprintf("encryption secret must be at least %d characters long", constants.MinEncryptionSecret)}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	// Perform security validation after environment overrides
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if err := security.ValidateDatabasePath(c.Database.Path); err != nil {
		return models.ConfigError{Message: err.Error()}
	}

	if c.Recovery.WindowSec == 0 {
		c.Recovery.WindowSec = constants.DefaultRecoveryWindowSec
	}
	if validation.ValidateRecoveryWindow(c.Recovery.WindowSec) != nil {
		return ErrInvalidWindow
	}
	if c.Recovery.SweepIntervalSec <= 0 {
		c.Recovery.SweepIntervalSec = constants.DefaultSweepIntervalSec
	}
	if c.Recovery.SweepBatchSize <= 0 {
		c.Recovery.SweepBatchSize = constants.DefaultSweepBatchSize
	}
	if c.Recovery.RetentionDays <= 0 {
		c.Recovery.RetentionDays = constants.DefaultRetentionDays
	}
	if err := validation.ValidateRetentionDays(c.Recovery.RetentionDays); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if c.Recovery.CleanupIntervalHours <= 0 {
		c.Recovery.CleanupIntervalHours = constants.DefaultCleanupIntervalHours
	}

	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if err := validation.ValidateNumericRange(c.Server.Port, "server port", 1, 65535); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "decryptrecovery"
	}
	if c.Tracing.ShutdownTimeoutSec <= 0 {
		c.Tracing.ShutdownTimeoutSec = 5
	}
	if err := c.Tracing.Validate(); err != nil {
		return err
	}

	if c.Database.EncryptionEnabled {
		if c.Database.EncryptionSecret == "" {
			return ErrMissingEncryptKey
		}
		if len(c.Database.EncryptionSecret) < constants.MinEncryptionSecret {
			return ErrShortEncryptionKey
		}
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) error {
	if path := os.Getenv("DECRYPTRECOVERY_DB_PATH"); path != "" {
		c.Database.Path = path
	}

	if window := os.Getenv("DECRYPTRECOVERY_RECOVERY_WINDOW_SEC"); window != "" {
		sec, err := strconv.Atoi(window)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid DECRYPTRECOVERY_RECOVERY_WINDOW_SEC %q", window)}
		}
		c.Recovery.WindowSec = sec
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid PORT %q", port)}
		}
		c.Server.Port = p
	}

	// SECURITY: secrets should only come from the environment
	if secret := os.Getenv("DECRYPTRECOVERY_WEBHOOK_SECRET"); secret != "" {
		c.Server.WebhookSecret = secret
	}

	if enabled := os.Getenv("DECRYPTRECOVERY_ENABLE_ENCRYPTION"); enabled != "" {
		on, err := strconv.ParseBool(enabled)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid DECRYPTRECOVERY_ENABLE_ENCRYPTION %q", enabled)}
		}
		c.Database.EncryptionEnabled = on
	}
	if secret := os.Getenv("DECRYPTRECOVERY_ENCRYPTION_SECRET"); secret != "" {
		c.Database.EncryptionSecret = secret
	}
	return nil
}

// IsProduction reports whether DECRYPTRECOVERY_ENV selects production mode.
func IsProduction() bool {
	return os.Getenv("DECRYPTRECOVERY_ENV") == "production"
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if !IsProduction() {
		if c.Server.WebhookSecret == "" {
			fmt.Fprintf(os.Stderr, "WARNING: webhook secret not set. Set DECRYPTRECOVERY_WEBHOOK_SECRET to authenticate pipeline requests.\n")
		}
		return nil
	}

	// In production, webhook secrets are mandatory
	if c.Server.WebhookSecret == "" {
		return models.ConfigError{Message: "webhook secret is required in production (set DECRYPTRECOVERY_WEBHOOK_SECRET environment variable)"}
	}
	if len(c.Server.WebhookSecret) < constants.MinWebhookSecretLength {
		return models.ConfigError{Message: fmt.Sprintf("webhook secret must be at least %d characters long", constants.MinWebhookSecretLength)}
	}
	if c.LogLevel == "debug" {
		return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
	}
	return nil
}
