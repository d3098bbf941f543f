package service

import (
	"context"

	"decryptrecovery/internal/privacy"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// WithVerboseLogging marks ctx so that identifiers are logged unmasked.
func WithVerboseLogging(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// SanitizeSender masks a service address unless verbose logging is on.
func SanitizeSender(ctx context.Context, sender string) string {
	if IsVerboseLogging(ctx) {
		return sender
	}
	return privacy.MaskServiceAddress(sender)
}

// SanitizeGroup masks a group id unless verbose logging is on.
func SanitizeGroup(ctx context.Context, groupID string) string {
	if IsVerboseLogging(ctx) {
		return groupID
	}
	return privacy.MaskGroupID(groupID)
}

// SanitizeContent hides message content. Verbose mode shows only its size.
func SanitizeContent(ctx context.Context, content string) string {
	if content == "" {
		return ""
	}
	if IsVerboseLogging(ctx) {
		return privacy.MaskBody(content)
	}
	return "[hidden]"
}

// LogWithContext creates a logger entry with optional sensitive information
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("verbose", IsVerboseLogging(ctx))
}

// LogPipelineEvent logs one inbound pipeline event with privacy controls.
func LogPipelineEvent(ctx context.Context, logger *logrus.Logger, event, sender, groupID string, originalTimestamp int64) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		LogFieldEvent:     event,
		LogFieldSender:    SanitizeSender(ctx, sender),
		LogFieldGroup:     SanitizeGroup(ctx, groupID),
		LogFieldTimestamp: originalTimestamp,
	})
}
