package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/openregistrar/auditcore/internal/core"
	domainjob "github.com/openregistrar/auditcore/internal/domain/job"
	"github.com/openregistrar/auditcore/internal/domain/model"
	"github.com/openregistrar/auditcore/internal/observability/metrics"
	"github.com/openregistrar/auditcore/internal/observability/notify"
	"github.com/openregistrar/auditcore/internal/observability/statsd"
	"github.com/openregistrar/auditcore/internal/service/failurenotifier"
)

// QueueServiceOptions groups dependencies for QueueService.
type QueueServiceOptions struct {
	Repo            core.QueueRepository      // Required: queue repository
	DefaultLease    time.Duration             // Required: default lease duration for claimed jobs
	Logger          *slog.Logger              // Optional: structured logger
	Metrics         statsd.Sink               // Optional: metrics sink (StatsD-compatible)
	FailureNotifier *failurenotifier.Service  // Optional: dead-letter notification fan-out
	LeasePolicy     *domainjob.LeasePolicy    // Optional: override default lease policy
	Notifier        domainjob.Notifier        // Optional: custom availability notifier
	NotifierOptions domainjob.NotifierOptions // Optional: configure default notifier behaviour
}

// QueueService provides business logic for the audit queue.
//
// This service manages:
// - Coalescing enqueue of audit computations
// - Claim and lease management for workers
// - Pub/sub notification of queue availability
// - Lineage blocks and dead-letter notifications
// - Graceful shutdown of all listeners.
type QueueService struct {
	repo            core.QueueRepository
	leasePolicy     *domainjob.LeasePolicy
	notifier        domainjob.Notifier
	logger          *slog.Logger
	metrics         statsd.Sink
	failureNotifier *failurenotifier.Service
}

// NewQueueService constructs a new QueueService.
func NewQueueService(opts QueueServiceOptions) (*QueueService, error) {
	if opts.Repo == nil {
		return nil, errors.New("QueueRepository is required")
	}

	var leasePolicy *domainjob.LeasePolicy
	switch {
	case opts.LeasePolicy != nil:
		leasePolicy = opts.LeasePolicy
	case opts.DefaultLease > 0:
		var err error
		leasePolicy, err = domainjob.NewLeasePolicy(opts.DefaultLease)
		if err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	default:
		return nil, errors.New("DefaultLease must be positive")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create queue notifier: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "queue_service")
		logger.Debug("QueueService initialized",
			"default_lease", leasePolicy.Default(),
		)
	}

	return &QueueService{
		repo:            opts.Repo,
		leasePolicy:     leasePolicy,
		notifier:        notifier,
		logger:          logger,
		metrics:         opts.Metrics,
		failureNotifier: opts.FailureNotifier,
	}, nil
}

// MustNewQueueService constructs a new QueueService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewQueueService(opts QueueServiceOptions) *QueueService {
	svc, err := NewQueueService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create QueueService: %v", err))
	}
	return svc
}

// Enqueue queues a new audit computation. Submissions for a lineage that
// already has a pending job coalesce into it: the newest input wins and the
// priority becomes the more urgent of the two.
func (s *QueueService) Enqueue(ctx context.Context, req *model.EnqueueRequest) (*model.Job, error) {
	job, err := s.repo.Enqueue(ctx, req)

	s.emitTransition(job, "enqueue", err)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(
			ctx,
			"job enqueued",
			"id",
			job.ID,
			"student_id",
			job.StudentID,
			"area_code",
			job.AreaCode,
			"run",
			job.Run,
			"priority",
			job.Priority,
		)
	}

	return job, nil
}

// ClaimNext claims the most urgent ready job for the worker under a lease.
// Returns model.ErrNoJobsAvailable when nothing is claimable.
func (s *QueueService) ClaimNext(
	ctx context.Context,
	workerID string,
	lease time.Duration,
) (*model.Job, error) {
	decision := s.leasePolicy.Resolve(lease)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second lease duration to 1 second",
			"requested_duration", decision.Requested,
			"worker_id", workerID)
	}

	job, err := s.repo.ClaimNext(ctx, core.ClaimParams{
		WorkerID:     workerID,
		LeaseSeconds: decision.Seconds,
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}

	s.emitTransition(job, "claim", nil)

	if s.logger != nil && job != nil {
		s.logger.DebugContext(
			ctx,
			"job claimed",
			"id",
			job.ID,
			"worker_id",
			workerID,
			"lease_seconds",
			decision.Seconds,
		)
	}

	return job, nil
}

// Subscribe creates a subscription for queue availability notifications.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *QueueService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe()
}

// WaitForNotification waits for a notification indicating new jobs are available.
func (s *QueueService) WaitForNotification(ctx context.Context) error {
	return s.repo.WaitForNotification(ctx)
}

// Heartbeat extends the lease on a job to indicate it's still being processed.
func (s *QueueService) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	decision := s.leasePolicy.Resolve(extend)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second heartbeat duration to 1 second",
			"requested_duration", decision.Requested,
			"job_id", id)
	}

	updated, err := s.repo.Heartbeat(ctx, id, decision.Seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}

	if s.logger != nil && updated {
		s.logger.DebugContext(ctx, "job heartbeat updated", "id", id, "extend_seconds", decision.Seconds)
	}

	return updated, nil
}

// Complete removes a claimed job from the queue. The durable record of the
// computation lives in the result store, not the queue.
func (s *QueueService) Complete(ctx context.Context, id string) (bool, error) {
	completed, err := s.repo.Complete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}

	if completed {
		s.emitTransition(nil, "complete", nil)
	}

	if s.logger != nil && completed {
		s.logger.DebugContext(ctx, "job completed", "id", id)
	}

	return completed, nil
}

// Fail records a failed attempt on a job. Transient failures return the job
// to the pending pool with a retry delay until the attempt budget runs out;
// permanent failures dead-letter it immediately.
func (s *QueueService) Fail(ctx context.Context, params core.FailJobParams) (bool, error) {
	if params.ErrMsg == "" {
		return false, errors.New("error message required")
	}

	var job *model.Job
	if s.failureNotifier != nil && s.failureNotifier.Enabled() {
		var err error
		job, err = s.repo.GetByID(ctx, params.ID)
		if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to load job for failure notification",
				"job_id", params.ID, "error", err)
		}
	}

	failed, err := s.repo.Fail(ctx, params)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", params.ID, err)
	}

	s.emitTransition(job, "fail", nil)

	if s.logger != nil && failed {
		s.logger.DebugContext(ctx, "job failed",
			"id", params.ID, "error", params.ErrMsg, "permanent", params.Permanent)
	}

	if failed && job != nil && willDeadLetter(job, params.Permanent) {
		s.notifyDeadLetter(ctx, job, params.ErrMsg)
	}

	return failed, nil
}

// willDeadLetter reports whether this failure parks the job.
func willDeadLetter(job *model.Job, permanent bool) bool {
	if permanent {
		return true
	}
	return job.AttemptCount+1 >= job.MaxAttempts
}

func (s *QueueService) notifyDeadLetter(ctx context.Context, job *model.Job, errMsg string) {
	if s.failureNotifier == nil || !s.failureNotifier.Enabled() {
		return
	}

	s.failureNotifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
		JobID:      job.ID,
		StudentID:  job.StudentID,
		AreaCode:   job.AreaCode,
		Catalog:    job.Catalog,
		Run:        job.Run,
		Error:      errMsg,
		Severity:   notify.SeverityCritical,
		OccurredAt: time.Now(),
		Metadata: map[string]string{
			"attempt_count": strconv.Itoa(job.AttemptCount + 1),
			"max_attempts":  strconv.Itoa(job.MaxAttempts),
			"priority":      strconv.Itoa(job.Priority),
		},
	})
}

// GetByID returns a job by its ID.
func (s *QueueService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job by id %s: %w", id, err)
	}
	return job, nil
}

// List returns queue rows matching the filter options, most urgent first.
func (s *QueueService) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	p := normalizePagination(opts.Limit, opts.Offset)
	opts.Limit = p.Limit
	opts.Offset = p.Offset

	jobs, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Stats returns counts of queue rows by state.
func (s *QueueService) Stats(ctx context.Context) (*model.QueueStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return stats, nil
}

// Block prevents new submissions for a lineage until Unblock is called.
// Jobs already pending or claimed are unaffected.
func (s *QueueService) Block(ctx context.Context, lineage model.Lineage, reason string) error {
	if err := s.repo.Block(ctx, lineage, reason); err != nil {
		return fmt.Errorf("block lineage: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "lineage blocked",
			"student_id", lineage.StudentID,
			"area_code", lineage.AreaCode,
			"reason", reason,
		)
	}
	return nil
}

// Unblock lifts a lineage block. Returns false if no block existed.
func (s *QueueService) Unblock(ctx context.Context, lineage model.Lineage) (bool, error) {
	removed, err := s.repo.Unblock(ctx, lineage)
	if err != nil {
		return false, fmt.Errorf("unblock lineage: %w", err)
	}

	if s.logger != nil && removed {
		s.logger.InfoContext(ctx, "lineage unblocked",
			"student_id", lineage.StudentID,
			"area_code", lineage.AreaCode,
		)
	}
	return removed, nil
}

// IsBlocked reports whether a lineage currently rejects submissions.
func (s *QueueService) IsBlocked(ctx context.Context, lineage model.Lineage) (bool, error) {
	blocked, err := s.repo.IsBlocked(ctx, lineage)
	if err != nil {
		return false, fmt.Errorf("check lineage block: %w", err)
	}
	return blocked, nil
}

func (s *QueueService) emitTransition(job *model.Job, transition string, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}

	metric := metrics.JobMetric{
		Transition: transition,
		Result:     result,
		Err:        err,
	}
	if job != nil {
		metric.AreaCode = job.AreaCode
	}
	metrics.EmitJobLifecycle(s.metrics, metric)
}

// paginationParams holds normalized pagination parameters.
type paginationParams struct {
	Limit  int
	Offset int
}

// normalizePagination clamps pagination parameters to safe defaults.
// Default limit: 50, max limit: 1000, min offset: 0.
func normalizePagination(limit, offset int) paginationParams {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return paginationParams{Limit: limit, Offset: offset}
}

// StopAllListeners stops all active queue notification listeners.
// This should be called during graceful shutdown to clean up goroutines.
func (s *QueueService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping all queue listeners")
	}

	if s.notifier != nil {
		s.notifier.StopAll()
	}
}
