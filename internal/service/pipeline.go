package service

import (
	"context"
	"fmt"
	"strings"

	"decryptrecovery/internal/clock"
	"decryptrecovery/internal/errors"
	"decryptrecovery/internal/metrics"
	"decryptrecovery/internal/models"
	"decryptrecovery/internal/placeholder"
	"decryptrecovery/internal/validation"

	"github.com/gofrs/uuid/v5"
	"github.com/sirupsen/logrus"
)

// PlaceholderManager is the lifecycle API driven by the pipeline.
type PlaceholderManager interface {
	Create(ctx context.Context, env placeholder.FailedEnvelope, groupID string) (*models.Placeholder, error)
	TryReplace(ctx context.Context, c placeholder.Candidate) (placeholder.ReplaceResult, error)
}

// MessageStore persists ordinary timeline messages.
type MessageStore interface {
	InsertMessage(ctx context.Context, m *models.Message) error
}

// FailureResult is what a decryption failure turned into. Exactly one field
// is set.
type FailureResult struct {
	Placeholder *models.Placeholder `json:"placeholder,omitempty"`
	// Marker is the non-recoverable entry inserted for a malformed envelope.
	Marker *models.Message `json:"marker,omitempty"`
}

// SuccessResult is what a decrypted plaintext turned into. Exactly one of
// Replaced and Message is set.
type SuccessResult struct {
	Replaced     *models.Placeholder `json:"replaced,omitempty"`
	Message      *models.Message     `json:"message,omitempty"`
	DuplicateIDs []string            `json:"duplicateIds,omitempty"`
	// NoMatchReason explains why no placeholder was replaced.
	NoMatchReason string `json:"noMatchReason,omitempty"`
}

// DecryptionPipeline receives the outcome of each decryption attempt. Every
// envelope ends up in a timeline as a placeholder, a marker or a message.
type DecryptionPipeline interface {
	OnDecryptionFailure(ctx context.Context, env placeholder.FailedEnvelope, groupID string) (FailureResult, error)
	OnDecryptionSuccess(ctx context.Context, plaintext, sender, groupID string, originalTimestamp int64) (SuccessResult, error)
}

type decryptionPipeline struct {
	manager  PlaceholderManager
	threads  placeholder.ThreadResolver
	messages MessageStore
	notifier placeholder.Notifier
	clock    clock.Clock
	logger   *logrus.Logger
	errLog   *errors.Logger
}

// NewDecryptionPipeline wires the pipeline. notifier may be nil.
func NewDecryptionPipeline(manager PlaceholderManager, threads placeholder.ThreadResolver, messages MessageStore, notifier placeholder.Notifier, clk clock.Clock, logger *logrus.Logger) DecryptionPipeline {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &decryptionPipeline{
		manager:  manager,
		threads:  threads,
		messages: messages,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
		errLog:   errors.FromLogrus(logger),
	}
}

func (p *decryptionPipeline) OnDecryptionFailure(ctx context.Context, env placeholder.FailedEnvelope, groupID string) (FailureResult, error) {
	created, err := p.manager.Create(ctx, env, groupID)
	if err == nil {
		return FailureResult{Placeholder: created}, nil
	}
	if !errors.HasCode(err, errors.ErrCodeMalformedEnvelope) {
		return FailureResult{}, err
	}

	var source string
	var ts int64
	if env != nil {
		source, ts = env.SourceAddress(), env.SenderTimestamp()
	}
	LogPipelineEvent(ctx, p.logger, "decryption_failure", source, groupID, ts).
		WithField(LogFieldReason, err.Error()).
		Warn("Malformed envelope; inserting non-recoverable marker")

	marker, markerErr := p.insertMessage(ctx, models.MessageKindUndecryptable, "", source, groupID, ts)
	if markerErr != nil {
		p.errLog.LogError(markerErr, "Failed to insert undecryptable marker")
		return FailureResult{}, err
	}
	return FailureResult{Marker: marker}, nil
}

func (p *decryptionPipeline) OnDecryptionSuccess(ctx context.Context, plaintext, sender, groupID string, originalTimestamp int64) (SuccessResult, error) {
	if clean, changed := validation.SanitizeBody(plaintext); changed {
		LogPipelineEvent(ctx, p.logger, "decryption_success", sender, groupID, originalTimestamp).
			WithFields(logrus.Fields{
				LogFieldSize:     len(plaintext),
				"sanitized_size": len(clean),
			}).Warn("Plaintext was not storable as received; delivering a sanitized copy")
		plaintext = clean
	}

	result, err := p.manager.TryReplace(ctx, placeholder.Candidate{
		Body:              plaintext,
		Sender:            sender,
		GroupID:           groupID,
		OriginalTimestamp: originalTimestamp,
	})
	if err != nil {
		// The plaintext is still delivered as an ordinary message below.
		p.errLog.LogRetryableError(err, "Placeholder lookup failed; delivering as a new message", logrus.Fields{
			LogFieldSender: SanitizeSender(ctx, sender),
		})
	}
	if result.Matched() {
		return SuccessResult{Replaced: result.Placeholder, DuplicateIDs: result.DuplicateIDs}, nil
	}

	msg, err := p.insertMessage(ctx, models.MessageKindText, plaintext, sender, groupID, originalTimestamp)
	if err != nil {
		return SuccessResult{}, err
	}

	LogPipelineEvent(ctx, p.logger, "decryption_success", sender, groupID, originalTimestamp).
		WithFields(logrus.Fields{
			LogFieldMessageID: msg.ID,
			LogFieldReason:    result.Reason,
		}).Debug("Delivered plaintext as a new message")

	return SuccessResult{Message: msg, DuplicateIDs: result.DuplicateIDs, NoMatchReason: result.Reason}, nil
}

// insertMessage stores a timeline message in the sender's or group's thread.
// Sender addresses are normalized when possible so that the message lands in
// the same thread as the sender's placeholders.
func (p *decryptionPipeline) insertMessage(ctx context.Context, kind models.MessageKind, body, sender, groupID string, originalTimestamp int64) (*models.Message, error) {
	sender = strings.TrimSpace(sender)
	if normalized, err := validation.NormalizeServiceAddress(sender); err == nil {
		sender = normalized
	}
	if validation.ValidateGroupID(groupID) != nil {
		groupID = ""
	}
	if sender == "" && groupID == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "message has neither a sender nor a group")
	}

	now := p.clock.Now()
	if originalTimestamp <= 0 {
		originalTimestamp = now.UnixMilli()
	}

	threadID, err := p.threads.ResolveThread(ctx, sender, groupID)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	msg := &models.Message{
		ID:                id.String(),
		ThreadID:          threadID,
		Sender:            sender,
		GroupID:           groupID,
		OriginalTimestamp: originalTimestamp,
		Body:              body,
		Kind:              kind,
		ReceivedAt:        now,
	}
	if err := p.messages.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	metrics.IncrementCounter("timeline_messages_inserted_total", map[string]string{"kind": string(kind)}, "Ordinary and marker messages inserted")
	if p.notifier != nil {
		p.notifier.Notify(models.TimelineEvent{
			Type:      models.EventMessageInserted,
			ThreadID:  threadID,
			EntryID:   msg.ID,
			EntryKind: models.EntryKindMessage,
			At:        now,
		})
	}
	return msg, nil
}
