package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"decryptrecovery/internal/clock"
	"decryptrecovery/internal/constants"
	"decryptrecovery/internal/metrics"
	"decryptrecovery/internal/models"
	"decryptrecovery/internal/placeholder"
	"decryptrecovery/internal/retry"
	"decryptrecovery/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
)

// SweepRunner expires placeholders past their recovery window.
type SweepRunner interface {
	SweepExpired(ctx context.Context) (int, error)
}

// RetentionStore reports and prunes placeholder records.
type RetentionStore interface {
	CountPendingPlaceholders(ctx context.Context) (int, error)
	CleanupExpiredPlaceholders(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper makes expiry durable on a fixed interval and prunes expired
// placeholders older than the retention period. Replaced and pending
// records are never pruned.
type Sweeper struct {
	runner          SweepRunner
	store           RetentionStore
	sweepInterval   time.Duration
	cleanupInterval time.Duration
	retention       time.Duration
	clock           clock.Clock
	backoff         *retry.Backoff
	breaker         *circuitbreaker.CircuitBreaker
	logger          *logrus.Logger
	stopCh          chan struct{}
	stopOnce        sync.Once
}

func NewSweeper(runner SweepRunner, store RetentionStore, cfg models.RecoveryConfig, clk clock.Clock, logger *logrus.Logger) *Sweeper {
	if cfg.SweepIntervalSec <= 0 {
		cfg.SweepIntervalSec = constants.DefaultSweepIntervalSec
	}
	if cfg.CleanupIntervalHours <= 0 {
		cfg.CleanupIntervalHours = constants.DefaultCleanupIntervalHours
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Sweeper{
		runner:          runner,
		store:           store,
		sweepInterval:   cfg.SweepInterval(),
		cleanupInterval: time.Duration(cfg.CleanupIntervalHours) * time.Hour,
		retention:       time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		clock:           clk,
		logger:          logger,
		stopCh:          make(chan struct{}),
	}
}

// WithRetry retries a failed sweep with backoff. Sweeps only move records
// that are still pending, so a retry never repeats work.
func (s *Sweeper) WithRetry(cfg models.RetryConfig) *Sweeper {
	s.backoff = retry.NewBackoff(retry.FromRetryConfig(cfg))
	return s
}

// WithCircuitBreaker guards the periodic sweep. While the breaker is open
// ticks are skipped; RunSweep is never blocked by it.
func (s *Sweeper) WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) *Sweeper {
	s.breaker = cb
	return s
}

// Start runs until ctx is cancelled or Stop is called. One sweep runs
// immediately so that records which expired while the process was down
// are settled at start-up.
func (s *Sweeper) Start(ctx context.Context) {
	sweepTicker := time.NewTicker(s.sweepInterval)
	defer sweepTicker.Stop()
	cleanupTicker := time.NewTicker(s.cleanupInterval)
	defer cleanupTicker.Stop()

	s.logger.WithFields(logrus.Fields{
		"sweep_interval":   s.sweepInterval.String(),
		"retention_period": s.retention.String(),
	}).Info("Starting placeholder sweeper")

	s.sweep(ctx)
	s.cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Sweeper stop signal received, stopping")
			return
		case <-sweepTicker.C:
			s.sweep(ctx)
		case <-cleanupTicker.C:
			s.cleanup(ctx)
		}
	}
}

// Stop ends Start. It is safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// RunSweep performs one expiry pass and refreshes the pending gauge.
func (s *Sweeper) RunSweep(ctx context.Context) (int, error) {
	expired := 0
	sweep := func() error {
		n, err := s.runner.SweepExpired(ctx)
		expired += n
		return err
	}

	var err error
	if s.backoff != nil {
		err = s.backoff.RetryWithPredicate(ctx, sweep, func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		})
	} else {
		err = sweep()
	}
	if err != nil {
		return expired, err
	}

	pending, err := s.store.CountPendingPlaceholders(ctx)
	if err != nil {
		return expired, err
	}
	metrics.SetGauge(placeholder.MetricPending, float64(pending), nil, "Placeholders still awaiting recovery")
	return expired, nil
}

// RunCleanup deletes expired placeholders that expired before the retention
// cutoff. A zero retention disables cleanup.
func (s *Sweeper) RunCleanup(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	return s.store.CleanupExpiredPlaceholders(ctx, s.clock.Now().Add(-s.retention))
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired := 0
	err := s.guard(ctx, func(ctx context.Context) error {
		var err error
		expired, err = s.RunSweep(ctx)
		return err
	})
	if circuitbreaker.IsCircuitBreakerError(err) {
		s.logger.WithError(err).Debug("Placeholder sweep skipped")
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Placeholder sweep failed")
		return
	}
	if expired > 0 {
		s.logger.WithField(LogFieldCount, expired).Debug("Placeholder sweep completed")
	}
}

func (s *Sweeper) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.breaker == nil {
		return fn(ctx)
	}
	return s.breaker.Execute(ctx, fn)
}

func (s *Sweeper) cleanup(ctx context.Context) {
	removed, err := s.RunCleanup(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to cleanup expired placeholders")
		return
	}
	if removed > 0 {
		s.logger.WithField(LogFieldCount, removed).Info("Removed expired placeholders past retention")
	}
}
