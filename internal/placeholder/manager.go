// Package placeholder owns the lifecycle of recoverable decryption
// placeholders: creation on a decryption failure, replacement by a late
// plaintext inside the recovery window, and expiry once the window closes.
package placeholder

import (
	"context"
	"fmt"
	"time"

	"decryptrecovery/internal/clock"
	"decryptrecovery/internal/constants"
	"decryptrecovery/internal/errors"
	"decryptrecovery/internal/metrics"
	"decryptrecovery/internal/models"
	"decryptrecovery/internal/privacy"
	"decryptrecovery/internal/tracing"
	"decryptrecovery/internal/validation"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Manager is the only component that creates placeholders or changes their
// eligibility. Mutations are serialized per thread, and every transition is
// a compare-and-set against the stored version, so a concurrent sweep and
// replacement cannot both win.
type Manager struct {
	store     Store
	threads   ThreadResolver
	window    time.Duration
	clock     clock.Clock
	notifier  Notifier
	metrics   *metrics.Registry
	batchSize int
	locks     *keyedMutex
	logger    *logrus.Logger
	errLog    *errors.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithNotifier publishes committed timeline changes to n.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithMetrics records into r instead of the global registry.
func WithMetrics(r *metrics.Registry) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithSweepBatchSize bounds how many records one sweep query loads.
func WithSweepBatchSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// NewManager creates a lifecycle manager with a fixed recovery window.
func NewManager(store Store, threads ThreadResolver, window time.Duration, logger *logrus.Logger, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("placeholder store is required")
	}
	if threads == nil {
		return nil, fmt.Errorf("thread resolver is required")
	}
	if window <= 0 {
		return nil, fmt.Errorf("recovery window must be positive, got %s", window)
	}
	if logger == nil {
		logger = logrus.New()
	}

	m := &Manager{
		store:     store,
		threads:   threads,
		window:    window,
		clock:     clock.Real{},
		metrics:   metrics.GetRegistry(),
		batchSize: constants.DefaultSweepBatchSize,
		locks:     newKeyedMutex(),
		logger:    logger,
		errLog:    errors.FromLogrus(logger),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Window returns the configured recovery window.
func (m *Manager) Window() time.Duration {
	return m.window
}

// Create records a decryption failure as a pending placeholder. An envelope
// without a resolvable sender, or with an unusable timestamp or group,
// yields a MalformedEnvelope error and nothing is persisted.
func (m *Manager) Create(ctx context.Context, env FailedEnvelope, groupID string) (*models.Placeholder, error) {
	ctx, span := tracing.StartSpan(ctx, "placeholder.create")
	defer span.End()

	params, err := m.envelopeParams(env, groupID)
	if err != nil {
		m.metrics.IncrementCounter(MetricMalformed, nil, "Failed envelopes rejected before placeholder creation")
		tracing.RecordError(ctx, err)
		return nil, err
	}

	threadID, err := m.threads.ResolveThread(ctx, params.Sender, params.GroupID)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to resolve thread for placeholder")
	}
	params.ThreadID = threadID

	unlock := m.locks.Lock(threadID)
	defer unlock()

	now := m.clock.Now()
	p, err := models.NewPlaceholder(params, now, m.window)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to build placeholder")
	}

	if err := m.store.InsertPlaceholder(ctx, p); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("placeholder.id", p.ID()),
		attribute.Bool("placeholder.group", p.IsGroup()),
	)
	m.metrics.IncrementCounter(MetricCreated, nil, "Placeholders created for decryption failures")
	m.notify(models.EventPlaceholderCreated, p, now)

	m.logger.WithFields(logrus.Fields{
		logFieldPlaceholderID: p.ID(),
		logFieldThreadID:      threadID,
		logFieldSender:        privacy.MaskServiceAddress(p.Sender()),
		logFieldGroupID:       privacy.MaskGroupID(p.GroupID()),
		logFieldTimestamp:     p.OriginalTimestamp(),
		logFieldExpiresAt:     p.ExpiresAt().UTC().Format(time.RFC3339),
	}).Info("Created recoverable placeholder")

	return p, nil
}

func (m *Manager) envelopeParams(env FailedEnvelope, groupID string) (models.NewPlaceholderParams, error) {
	if env == nil {
		return models.NewPlaceholderParams{}, errors.NewMalformedEnvelopeError("no envelope", nil)
	}

	sender, err := validation.NormalizeServiceAddress(env.SourceAddress())
	if err != nil {
		return models.NewPlaceholderParams{}, errors.NewMalformedEnvelopeError("sender cannot be resolved", err)
	}
	if err := validation.ValidateOriginalTimestamp(env.SenderTimestamp()); err != nil {
		return models.NewPlaceholderParams{}, errors.NewMalformedEnvelopeError("invalid sender timestamp", err)
	}
	if err := validation.ValidateGroupID(groupID); err != nil {
		return models.NewPlaceholderParams{}, errors.NewMalformedEnvelopeError("invalid group", err)
	}

	var reason string
	if r, ok := env.(failureReasoner); ok {
		reason = r.FailureReason()
		if len(reason) > constants.MaxFailureReasonLen {
			reason = reason[:constants.MaxFailureReasonLen]
		}
	}

	return models.NewPlaceholderParams{
		Sender:            sender,
		GroupID:           groupID,
		OriginalTimestamp: env.SenderTimestamp(),
		FailureReason:     reason,
	}, nil
}

// TryReplace splices a late plaintext into the pending placeholder with the
// same match key. Anything other than a committed replacement is NoMatch and
// the caller keeps the plaintext as an ordinary message. A non-nil error
// always comes with a NoMatch result.
func (m *Manager) TryReplace(ctx context.Context, c Candidate) (ReplaceResult, error) {
	ctx, span := tracing.StartSpan(ctx, "placeholder.try_replace")
	defer span.End()

	result, err := m.tryReplace(ctx, c)
	span.SetAttributes(attribute.String("placeholder.outcome", result.Outcome.String()))
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	if !result.Matched() {
		m.metrics.IncrementCounter(MetricNoMatch, map[string]string{"reason": result.Reason}, "Replacement attempts that found no eligible placeholder")
	}
	return result, err
}

func (m *Manager) tryReplace(ctx context.Context, c Candidate) (ReplaceResult, error) {
	if err := validation.ValidateBody(c.Body); err != nil {
		return noMatch(ReasonInvalidBody), err
	}
	sender, err := validation.NormalizeServiceAddress(c.Sender)
	if err != nil {
		return noMatch(ReasonInvalidSender), nil
	}
	if validation.ValidateOriginalTimestamp(c.OriginalTimestamp) != nil || validation.ValidateGroupID(c.GroupID) != nil {
		return noMatch(ReasonInvalidKey), nil
	}

	key := models.MatchKey{Sender: sender, GroupID: c.GroupID, OriginalTimestamp: c.OriginalTimestamp}

	threadID, err := m.threads.ResolveThread(ctx, sender, c.GroupID)
	if err != nil {
		return noMatch(ReasonStoreUnavailable), errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to resolve thread for replacement")
	}

	unlock := m.locks.Lock(threadID)
	defer unlock()

	now := m.clock.Now()
	found, err := m.store.FindPlaceholdersByKey(ctx, key)
	if err != nil {
		return noMatch(ReasonStoreUnavailable), err
	}

	// found is ordered by creation time, so the first eligible record wins
	var eligible []*models.Placeholder
	for _, p := range found {
		if p.ThreadID() == threadID && p.IsReplaceable(now) {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		if len(found) == 0 {
			return noMatch(ReasonNoPlaceholder), nil
		}
		return noMatch(ReasonNotReplaceable), nil
	}

	chosen := eligible[0]
	duplicates := make([]string, 0, len(eligible)-1)
	for _, p := range eligible[1:] {
		duplicates = append(duplicates, p.ID())
	}
	if len(duplicates) > 0 {
		m.reportDuplicates(key, chosen, duplicates)
	}

	won, err := m.store.CompareAndReplace(ctx, chosen.ID(), chosen.Version(), c.Body, now)
	if err != nil {
		result := noMatch(ReasonStoreUnavailable)
		result.DuplicateIDs = duplicates
		return result, err
	}
	if !won {
		m.reportStale(chosen, models.EligibilityReplaced)
		result := noMatch(ReasonStaleTransition)
		result.DuplicateIDs = duplicates
		return result, nil
	}

	replaced, err := chosen.Transitioned(models.EligibilityReplaced, c.Body, now)
	if err != nil {
		return noMatch(ReasonStaleTransition), errors.Wrap(err, errors.ErrCodeInvalidTransition, "replaced placeholder could not be rebuilt")
	}

	m.metrics.IncrementCounter(MetricReplaced, nil, "Placeholders replaced by a late plaintext")
	m.metrics.RecordTimer(MetricRecoveryLatency, now.Sub(chosen.CreatedAt()), nil, "Time from decryption failure to recovery")
	m.notify(models.EventPlaceholderReplaced, replaced, now)

	m.logger.WithFields(logrus.Fields{
		logFieldPlaceholderID: chosen.ID(),
		logFieldThreadID:      threadID,
		logFieldSender:        privacy.MaskServiceAddress(sender),
		logFieldTimestamp:     c.OriginalTimestamp,
	}).Info("Recovered message into placeholder")

	return ReplaceResult{
		Outcome:      OutcomeMatched,
		Placeholder:  replaced,
		DuplicateIDs: duplicates,
	}, nil
}

// SweepExpired moves every pending placeholder whose deadline has passed to
// expired and returns how many it moved. Records already terminal are never
// touched, so repeated sweeps are no-ops.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "placeholder.sweep")
	defer span.End()

	start := time.Now()
	now := m.clock.Now()
	total := 0

	for {
		batch, err := m.store.ListExpirablePlaceholders(ctx, now, m.batchSize)
		if err != nil {
			tracing.RecordError(ctx, err)
			return total, err
		}

		progressed := 0
		for _, p := range batch {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			ok, err := m.expire(ctx, p, now)
			if err != nil {
				tracing.RecordError(ctx, err)
				return total, err
			}
			if ok {
				progressed++
			}
		}
		total += progressed

		if len(batch) < m.batchSize || progressed == 0 {
			break
		}
	}

	span.SetAttributes(attribute.Int("placeholder.expired", total))
	m.metrics.RecordTimer(MetricSweepDuration, time.Since(start), nil, "Duration of expiry sweeps")
	if total > 0 {
		m.logger.WithField(logFieldCount, total).Info("Expired placeholders past their recovery window")
	}
	return total, nil
}

func (m *Manager) expire(ctx context.Context, p *models.Placeholder, now time.Time) (bool, error) {
	if !p.IsExpirable(now) {
		return false, nil
	}

	unlock := m.locks.Lock(p.ThreadID())
	defer unlock()

	won, err := m.store.CompareAndExpire(ctx, p.ID(), p.Version(), now)
	if err != nil {
		return false, err
	}
	if !won {
		m.reportStale(p, models.EligibilityExpired)
		return false, nil
	}

	m.metrics.IncrementCounter(MetricExpired, nil, "Placeholders expired without recovery")
	expired, err := p.Transitioned(models.EligibilityExpired, "", now)
	if err != nil {
		m.errLog.LogError(err, "Expired placeholder could not be rebuilt; event not sent",
			logrus.Fields{logFieldPlaceholderID: p.ID()})
		return true, nil
	}
	m.notify(models.EventPlaceholderExpired, expired, now)
	return true, nil
}

// IsReplaceableNow reports whether the placeholder may still be recovered.
// It reads state only and agrees with the sweep without waiting for it.
func (m *Manager) IsReplaceableNow(ctx context.Context, id string) (bool, error) {
	p, err := m.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return p.IsReplaceable(m.clock.Now()), nil
}

// Get loads a placeholder by id.
func (m *Manager) Get(ctx context.Context, id string) (*models.Placeholder, error) {
	p, err := m.store.GetPlaceholder(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.NewNotFoundError("placeholder", id)
	}
	return p, nil
}

func (m *Manager) reportDuplicates(key models.MatchKey, chosen *models.Placeholder, others []string) {
	m.metrics.AddToCounter(MetricDuplicateMatch, float64(len(others)), nil, "Pending placeholders sharing a match key with the chosen one")
	err := errors.NewDuplicateMatchError(privacy.MaskServiceAddress(key.Sender), chosen.ID(), others)
	m.errLog.LogWarn(err, "Multiple pending placeholders share one match key; earliest wins", logrus.Fields{
		logFieldPlaceholderID: chosen.ID(),
		logFieldThreadID:      chosen.ThreadID(),
		logFieldDuplicates:    len(others),
	})
}

func (m *Manager) reportStale(p *models.Placeholder, attempted models.Eligibility) {
	m.metrics.IncrementCounter(MetricStaleTransition, map[string]string{"attempted": string(attempted)}, "Transitions rejected by the eligibility check")
	err := errors.NewStaleTransitionError(p.ID(), string(attempted))
	m.logger.WithFields(logrus.Fields{
		logFieldPlaceholderID: p.ID(),
		logFieldThreadID:      p.ThreadID(),
		logFieldReason:        err.Error(),
	}).Debug("Lost placeholder transition race")
}

func (m *Manager) notify(t models.TimelineEventType, p *models.Placeholder, at time.Time) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(models.TimelineEvent{
		Type:      t,
		ThreadID:  p.ThreadID(),
		EntryID:   p.ID(),
		EntryKind: models.EntryKindPlaceholder,
		At:        at,
	})
}
