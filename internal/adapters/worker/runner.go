// Package worker provides the claim-loop runner that processes queued
// audit computations.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/data"
	"github.com/openregistrar/auditcore/internal/domain/model"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
	obserrors "github.com/openregistrar/auditcore/internal/observability/errors"
	"github.com/openregistrar/auditcore/internal/observability/statsd"
	"github.com/openregistrar/auditcore/internal/service"
	"github.com/openregistrar/auditcore/internal/service/failurenotifier"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// RunnerOptions configures the audit worker runner.
type RunnerOptions struct {
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger

	// Job processing settings
	Lease       time.Duration // per-job lease duration; defaults to 30s
	Concurrency int           // number of worker goroutines; defaults to 1
	WorkerID    string        // claim identity; defaults to hostname+uuid
	JobTimeout  time.Duration // per-job execution budget; defaults to 10m

	// Engine is the external rules engine adapter. Required.
	Engine core.RulesEngine

	// Optional dependency injections (useful for tests/decoupling)
	QueueRepo       core.QueueRepository
	ResultRepo      core.ResultRepository
	MemoRepo        core.MemoRepository
	CacheRepo       core.CacheRepository
	ExceptionRepo   core.ExceptionRepository
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// Runner claims queued audit jobs and processes them through the compute
// pipeline until its context is cancelled.
type Runner struct {
	queue      *service.QueueService
	compute    *service.ComputeService
	logger     *slog.Logger
	lease      time.Duration
	jobTimeout time.Duration
	workers    int
	workerID   string
}

// NewRunner creates a new audit worker runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	logger := resolveLogger(opts.Logger)

	deps, err := resolveDependencies(opts)
	if err != nil {
		return nil, err
	}

	queueService, err := service.NewQueueService(service.QueueServiceOptions{
		Repo:            deps.queueRepo,
		DefaultLease:    resolveLease(opts.Lease),
		Logger:          logger,
		Metrics:         opts.Metrics,
		FailureNotifier: opts.FailureNotifier,
	})
	if err != nil {
		return nil, fmt.Errorf("create queue service: %w", err)
	}

	computeService, err := service.NewComputeService(service.ComputeServiceOptions{
		Engine:     opts.Engine,
		Results:    deps.resultRepo,
		Memos:      deps.memos,
		Exceptions: deps.exceptionRepo,
		Logger:     logger,
		Metrics:    opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create compute service: %w", err)
	}

	return &Runner{
		queue:      queueService,
		compute:    computeService,
		logger:     logger,
		lease:      resolveLease(opts.Lease),
		jobTimeout: resolveJobTimeout(opts.JobTimeout),
		workers:    resolveWorkers(opts.Concurrency),
		workerID:   resolveWorkerID(opts.WorkerID),
	}, nil
}

// Run starts the worker pool and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting audit worker runner",
		"workers", r.workers, "lease", r.lease, "worker_id", r.workerID)

	defer r.queue.StopAllListeners()

	group, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		group.Go(func() error { return r.runWorkerLoop(gctx) })
	}
	return group.Wait()
}

// runWorkerLoop implements the claim loop for one worker goroutine.
func (r *Runner) runWorkerLoop(ctx context.Context) error {
	unsub, ch := r.queue.Subscribe()
	defer unsub()

	for ctx.Err() == nil {
		job, err := r.queue.ClaimNext(ctx, r.workerID, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForNotify(ctx, ch) {
				return nil
			}
		default:
			r.logger.ErrorContext(ctx, "failed to claim next audit job", "error", err)
			return err
		}
	}
	return ctx.Err()
}

// processJob runs a single claimed job under the per-job execution budget.
// The heartbeat shares the budgeted context, so a job that outlives its
// budget also stops extending its lease. Permanent compute failures are
// recorded as failed results inside the compute service and complete the
// job; only transient failures flow into the queue's retry path. Queue
// bookkeeping runs on the parent context so it still lands after a timeout.
func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	r.logger.InfoContext(ctx, "processing audit job",
		"job_id", job.ID, "student_id", job.StudentID, "area_code", job.AreaCode)

	jctx, cancel := context.WithTimeout(ctx, r.jobTimeout)
	defer cancel()

	stopHB := r.startHeartbeat(jctx, job.ID)
	defer stopHB()

	if _, err := r.compute.Process(jctx, job); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("job exceeded execution budget %s: %w", r.jobTimeout, err)
		}
		r.logger.ErrorContext(ctx, "audit job processing failed",
			"job_id", job.ID, "error", err, "error_class", obserrors.Classify(err))
		if _, ferr := r.queue.Fail(ctx, core.FailJobParams{
			ID:        job.ID,
			ErrMsg:    err.Error(),
			Permanent: apperrors.IsPermanent(err),
		}); ferr != nil {
			r.logger.ErrorContext(ctx, "failed to mark job as failed", "job_id", job.ID, "error", ferr)
		}
		return
	}

	if _, err := r.queue.Complete(ctx, job.ID); err != nil {
		r.logger.ErrorContext(ctx, "failed to mark job as completed", "job_id", job.ID, "error", err)
	}
}

// startHeartbeat starts a background ticker to extend the job lease
// periodically. It returns a stop function to end the heartbeat.
func (r *Runner) startHeartbeat(ctx context.Context, jobID string) func() {
	interval := r.lease / 2
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ok, err := r.queue.Heartbeat(ctx, jobID, r.lease); err != nil {
					r.logger.ErrorContext(ctx, "heartbeat failed", "job_id", jobID, "error", err)
				} else if !ok {
					r.logger.WarnContext(ctx, "heartbeat not applied (lease may be lost)", "job_id", jobID)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

// waitForNotify waits for a queue notification or context cancellation.
func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}

// Helper functions for dependency resolution and configuration

type runnerDeps struct {
	queueRepo     core.QueueRepository
	resultRepo    core.ResultRepository
	memos         *core.MemoCacheService
	exceptionRepo core.ExceptionRepository
}

func resolveDependencies(opts RunnerOptions) (*runnerDeps, error) {
	if opts.Engine == nil {
		return nil, errors.New("audit worker requires a rules engine")
	}

	deps := &runnerDeps{}
	resolveQueueRepo(opts, deps)
	resolveResultRepo(opts, deps)
	resolveMemos(opts, deps)
	resolveExceptions(opts, deps)

	var missing []string
	if deps.queueRepo == nil {
		missing = append(missing, "QueueRepository")
	}
	if deps.resultRepo == nil {
		missing = append(missing, "ResultRepository")
	}
	if len(missing) > 0 {
		if opts.DB == nil {
			return nil, fmt.Errorf(
				"audit worker requires a DB handle or explicit implementations for: %s",
				strings.Join(missing, ", "))
		}
		return nil, fmt.Errorf("audit worker missing required dependencies: %s", strings.Join(missing, ", "))
	}

	return deps, nil
}

func resolveQueueRepo(opts RunnerOptions, deps *runnerDeps) {
	if opts.QueueRepo != nil {
		deps.queueRepo = opts.QueueRepo
		return
	}
	if opts.DB != nil {
		deps.queueRepo = data.NewQueueRepo(opts.DB, data.RepoConfig{})
	}
}

func resolveResultRepo(opts RunnerOptions, deps *runnerDeps) {
	if opts.ResultRepo != nil {
		deps.resultRepo = opts.ResultRepo
		return
	}
	if opts.DB != nil {
		deps.resultRepo = data.NewResultRepo(opts.DB, data.ResultRepoConfig{})
	}
}

func resolveMemos(opts RunnerOptions, deps *runnerDeps) {
	memoRepo := opts.MemoRepo
	if memoRepo == nil && opts.DB != nil {
		memoRepo = data.NewMemoRepo(opts.DB)
	}
	if memoRepo == nil {
		return
	}

	cacheRepo := opts.CacheRepo
	if cacheRepo == nil && opts.RedisClient != nil {
		cacheRepo = data.NewRedisCacheRepo(opts.RedisClient)
	}

	deps.memos = core.NewMemoCacheService(core.MemoCacheServiceOptions{
		Cache:  cacheRepo,
		Memos:  memoRepo,
		Config: core.DefaultMemoCacheConfig(),
	})
}

func resolveExceptions(opts RunnerOptions, deps *runnerDeps) {
	if opts.ExceptionRepo != nil {
		deps.exceptionRepo = opts.ExceptionRepo
		return
	}
	if opts.DB != nil {
		deps.exceptionRepo = data.NewExceptionRepo(opts.DB, data.ExceptionRepoConfig{})
	}
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func resolveLease(lease time.Duration) time.Duration {
	if lease > 0 {
		return lease
	}
	return 30 * time.Second
}

func resolveJobTimeout(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return 10 * time.Minute
}

func resolveWorkers(workers int) int {
	if workers > 0 {
		return workers
	}
	return 1
}

func resolveWorkerID(id string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}
