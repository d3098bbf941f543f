package models

import "time"

// Config holds the application configuration
type Config struct {
	Recovery RecoveryConfig `json:"recovery"`
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
	Retry    RetryConfig    `json:"retry"`
	Tracing  TracingConfig  `json:"tracing"`
	LogLevel string         `json:"log_level"`
}

// RecoveryConfig controls the placeholder recovery window and sweeping.
type RecoveryConfig struct {
	WindowSec            int `json:"window_sec"`
	SweepIntervalSec     int `json:"sweep_interval_sec"`
	SweepBatchSize       int `json:"sweep_batch_size"`
	RetentionDays        int `json:"retention_days"`
	CleanupIntervalHours int `json:"cleanup_interval_hours"`
}

// Window returns the recovery window as a duration.
func (c RecoveryConfig) Window() time.Duration {
	return time.Duration(c.WindowSec) * time.Second
}

// SweepInterval returns the periodic sweep interval as a duration.
func (c RecoveryConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path              string `json:"path"`
	EncryptionEnabled bool   `json:"encryption_enabled"`
	// EncryptionSecret is normally supplied through the environment.
	EncryptionSecret string `json:"-"`
}

// ServerConfig holds HTTP ingress settings
type ServerConfig struct {
	Port            int    `json:"port"`
	ReadTimeoutSec  int    `json:"read_timeout_sec"`
	WriteTimeoutSec int    `json:"write_timeout_sec"`
	IdleTimeoutSec  int    `json:"idle_timeout_sec"`
	WebhookSecret   string `json:"webhook_secret"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled            bool    `json:"enabled"`
	ServiceName        string  `json:"service_name"`
	ServiceVersion     string  `json:"service_version"`
	Environment        string  `json:"environment"`
	OTLPEndpoint       string  `json:"otlp_endpoint"`
	SampleRate         float64 `json:"sample_rate"`
	UseStdout          bool    `json:"use_stdout"`
	ShutdownTimeoutSec int     `json:"shutdown_timeout_sec"`
}

// Validate checks an enabled tracing configuration. A disabled one is
// always valid.
func (c TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return ConfigError{Message: "tracing: service_name is required"}
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return ConfigError{Message: "tracing: sample_rate must be between 0 and 1"}
	}
	if !c.UseStdout && c.OTLPEndpoint == "" {
		return ConfigError{Message: "tracing: otlp_endpoint is required unless use_stdout is set"}
	}
	return nil
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
