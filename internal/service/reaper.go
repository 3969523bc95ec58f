package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openregistrar/auditcore/config"
	"github.com/openregistrar/auditcore/internal/core"
	obserrors "github.com/openregistrar/auditcore/internal/observability/errors"
	"github.com/openregistrar/auditcore/internal/observability/metrics"
	"github.com/openregistrar/auditcore/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.ReaperRepository // Required: reaper repository
	Config  config.ReaperConfig   // Required: reaper configuration
	Logger  *slog.Logger          // Optional: structured logger
	Metrics statsd.Sink           // Optional: metrics sink (StatsD-compatible)
}

// ReaperService provides queue and result-store cleanup operations.
//
// This service manages:
// - Returning jobs with lapsed leases to the pending pool.
// - Deleting pending jobs that expired before delivery.
// - Deleting inactive results past their expiry.
// - Deleting old dead-lettered jobs to prevent database bloat.
type ReaperService struct {
	repo    core.ReaperRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"dead_max_age", opts.Config.DeadMaxAge,
			"batch_size", opts.Config.BatchSize,
		)
	}

	return &ReaperService{
		repo:    opts.Repo,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// It performs cleanup operations at the configured interval.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run cleanup immediately after jitter
	if err := s.runCleanup(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

// runLoop runs the cleanup loop until context is cancelled.
func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			// Return nil on graceful shutdown to avoid treating it as a failure
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.runCleanup(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
				if isContextCancellation(err) {
					continue
				}
				// Continue running despite errors
			}
		}
	}
}

// runCleanup performs all cleanup operations.
func (s *ReaperService) runCleanup(ctx context.Context) error {
	start := time.Now()
	var (
		errs               []error
		allContextCanceled = true
		metricsData        = cleanupMetrics{}
	)

	steps := []cleanupStep{
		{
			fn:        s.requeueExpiredLeases,
			label:     "requeue expired leases",
			count:     &metricsData.RequeuedCount,
			metricErr: &metricsData.RequeuedErr,
		},
		{
			fn:        s.deleteExpiredJobs,
			label:     "delete expired jobs",
			count:     &metricsData.ExpiredJobsCount,
			metricErr: &metricsData.ExpiredJobsErr,
		},
		{
			fn:        s.deleteExpiredResults,
			label:     "delete expired results",
			count:     &metricsData.ExpiredResultsCount,
			metricErr: &metricsData.ExpiredResultsErr,
		},
		{
			fn:        s.deleteOldDeadJobs,
			label:     "delete old dead jobs",
			count:     &metricsData.DeadCount,
			metricErr: &metricsData.DeadErr,
		},
	}

	for _, step := range steps {
		outcome := s.executeCleanupStep(ctx, step.fn, step.label)
		*step.count = outcome.count
		*step.metricErr = outcome.metricErr
		if outcome.aggregateErr != nil {
			errs = append(errs, outcome.aggregateErr)
			allContextCanceled = allContextCanceled && outcome.canceled
		}
	}

	metricsData.Elapsed = time.Since(start)
	s.emitCleanupMetrics(metricsData)

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("cleanup failed: %w", joined)
	}

	return nil
}

type cleanupFunc func(context.Context) (int64, error)

type cleanupStep struct {
	fn        cleanupFunc
	label     string
	count     *int64
	metricErr *error
}

type cleanupStepOutcome struct {
	count        int64
	metricErr    error
	aggregateErr error
	canceled     bool
}

func (s *ReaperService) executeCleanupStep(
	ctx context.Context,
	fn cleanupFunc,
	label string,
) cleanupStepOutcome {
	count, err := fn(ctx)
	outcome := cleanupStepOutcome{
		count:     count,
		metricErr: suppressContextCancellation(err),
		canceled:  isContextCancellation(err),
	}
	if err != nil {
		outcome.aggregateErr = fmt.Errorf("%s: %w", label, err)
	}
	return outcome
}

// requeueExpiredLeases returns claimed jobs with lapsed leases to the
// pending pool. Loops until no more rows are affected.
func (s *ReaperService) requeueExpiredLeases(ctx context.Context) (int64, error) {
	total, err := s.drainBatches(ctx, s.repo.RequeueExpiredLeases)
	if err != nil {
		return total, err
	}

	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "requeued expired leases", "count", total)
	}
	return total, nil
}

// deleteExpiredJobs removes pending jobs whose expires_at passed without
// delivery. Loops until no more rows are affected.
func (s *ReaperService) deleteExpiredJobs(ctx context.Context) (int64, error) {
	total, err := s.drainBatches(ctx, s.repo.DeleteExpiredJobs)
	if err != nil {
		return total, err
	}

	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted expired jobs", "count", total)
	}
	return total, nil
}

// deleteExpiredResults removes inactive results past their expiry. Active
// results are never reaped.
func (s *ReaperService) deleteExpiredResults(ctx context.Context) (int64, error) {
	total, err := s.drainBatches(ctx, s.repo.DeleteExpiredResults)
	if err != nil {
		return total, err
	}

	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted expired results", "count", total)
	}
	return total, nil
}

// deleteOldDeadJobs deletes dead-lettered jobs older than the configured max age.
// Loops until no more rows are affected to handle large datasets in batches.
func (s *ReaperService) deleteOldDeadJobs(ctx context.Context) (int64, error) {
	var totalCount int64
	for {
		count, err := s.repo.DeleteOldDeadJobs(ctx, core.DeleteOldDeadJobsParams{
			MaxAge:    s.config.DeadMaxAge,
			BatchSize: s.config.BatchSize,
		})
		if err != nil {
			return totalCount, err
		}
		totalCount += count
		if count == 0 {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted old dead jobs",
			"count", totalCount,
			"max_age", s.config.DeadMaxAge,
		)
	}

	return totalCount, nil
}

// drainBatches repeatedly invokes a batched cleanup until it reports no work.
func (s *ReaperService) drainBatches(
	ctx context.Context,
	fn func(context.Context, int) (int64, error),
) (int64, error) {
	var total int64
	for {
		count, err := fn(ctx, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			return total, nil
		}
		// Check context between batches
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

type cleanupMetrics struct {
	RequeuedCount       int64
	RequeuedErr         error
	ExpiredJobsCount    int64
	ExpiredJobsErr      error
	ExpiredResultsCount int64
	ExpiredResultsErr   error
	DeadCount           int64
	DeadErr             error
	Elapsed             time.Duration
}

func (s *ReaperService) emitCleanupMetrics(m cleanupMetrics) {
	if s.metrics == nil {
		return
	}

	totalCount := m.RequeuedCount + m.ExpiredJobsCount + m.ExpiredResultsCount + m.DeadCount
	firstErr := firstError(m.RequeuedErr, m.ExpiredJobsErr, m.ExpiredResultsErr, m.DeadErr)

	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if totalCount == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}

	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)

	if m.Elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", m.Elapsed, metrics.CloneTags(tags))
	}

	s.emitCleanupOperationMetric("requeue_leases", m.RequeuedCount, m.RequeuedErr)
	s.emitCleanupOperationMetric("delete_expired_jobs", m.ExpiredJobsCount, m.ExpiredJobsErr)
	s.emitCleanupOperationMetric("delete_expired_results", m.ExpiredResultsCount, m.ExpiredResultsErr)
	s.emitCleanupOperationMetric("delete_dead_jobs", m.DeadCount, m.DeadErr)

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitCleanupOperationMetric(operation string, count int64, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}

	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup_operation", 1, tags)

	if err == nil && count > 0 {
		s.metrics.Count("reaper.rows_processed", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
