package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/domain/clausehash"
	"github.com/openregistrar/auditcore/internal/domain/model"
	"github.com/openregistrar/auditcore/internal/domain/overlay"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
	"github.com/openregistrar/auditcore/internal/observability/metrics"
	"github.com/openregistrar/auditcore/internal/observability/statsd"
)

// memoLookuper is the subset of memo access the compute pipeline needs.
// Satisfied by both *core.MemoCacheService and core.MemoRepository.
type memoLookuper interface {
	Lookup(ctx context.Context, params core.MemoLookupParams) (*model.MemoEntry, error)
}

// ComputeServiceOptions groups dependencies for ComputeService.
type ComputeServiceOptions struct {
	Engine     core.RulesEngine         // Required: external clause evaluation engine
	Results    core.ResultRepository    // Required: result store
	Memos      memoLookuper             // Optional: memo cache for candidate reuse
	Exceptions core.ExceptionRepository // Optional: advisor exceptions baked into computed trees
	Logger     *slog.Logger             // Optional: structured logger
	Metrics    statsd.Sink              // Optional: metrics sink (StatsD-compatible)
}

// ComputeService runs one claimed audit job end to end: evaluation through
// the rules engine, candidate resolution through the memo cache, the advisor
// exception overlay, and the final submit into the result store.
type ComputeService struct {
	engine     core.RulesEngine
	results    core.ResultRepository
	memos      memoLookuper
	exceptions core.ExceptionRepository
	logger     *slog.Logger
	metrics    statsd.Sink
}

// NewComputeService constructs a new ComputeService.
func NewComputeService(opts ComputeServiceOptions) (*ComputeService, error) {
	if opts.Engine == nil {
		return nil, errors.New("RulesEngine is required")
	}
	if opts.Results == nil {
		return nil, errors.New("ResultRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "compute_service")
	}

	return &ComputeService{
		engine:     opts.Engine,
		results:    opts.Results,
		memos:      opts.Memos,
		exceptions: opts.Exceptions,
		logger:     logger,
		metrics:    opts.Metrics,
	}, nil
}

// Process executes one claimed job and submits its outcome to the result
// store. Permanent failures are recorded as failed results so the lineage
// history reflects them; transient failures return an error without storing
// anything, leaving the retry decision to the caller.
func (s *ComputeService) Process(ctx context.Context, job *model.Job) (*model.Result, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}

	if job.LinkOnly {
		return s.processLink(ctx, job)
	}
	return s.processEvaluation(ctx, job)
}

// processLink records a link result pointing at an already-stored run
// instead of recomputing. Permanent link failures land in the lineage's
// history as failed results, the same as evaluation failures.
func (s *ComputeService) processLink(ctx context.Context, job *model.Job) (*model.Result, error) {
	start := time.Now()

	if job.LinkRun == nil {
		cause := apperrors.Permanentf("link-only job %s has no target run", job.ID)
		return s.submitFailure(ctx, job, cause, time.Since(start))
	}

	target, err := s.results.GetByRun(ctx, job.Lineage(), *job.LinkRun)
	if err != nil {
		if apperrors.IsNotFound(err) {
			cause := apperrors.Permanentf("link target run %d not found", *job.LinkRun)
			return s.submitFailure(ctx, job, cause, time.Since(start))
		}
		return nil, fmt.Errorf("resolve link target: %w", err)
	}

	result, err := s.results.Submit(ctx, &model.SubmitResultRequest{
		StudentID: job.StudentID,
		AreaCode:  job.AreaCode,
		Catalog:   job.Catalog,
		Run:       job.Run,
		Status:    model.ResultStatusLink,
		LinkTo:    &target.ID,
		Rank:      target.Rank,
		MaxRank:   target.MaxRank,
		GPA:       target.GPA,
	})
	if err != nil {
		return nil, fmt.Errorf("submit link result: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "link result recorded",
			"job_id", job.ID,
			"result_id", result.ID,
			"target_run", *job.LinkRun,
		)
	}
	return result, nil
}

func (s *ComputeService) processEvaluation(ctx context.Context, job *model.Job) (*model.Result, error) {
	start := time.Now()

	// The snapshot hash binds every memo written by this run to the exact
	// course snapshot it was computed from.
	snapshotHash, err := clausehash.Sum(job.InputData)
	if err != nil {
		cause := apperrors.Permanentf("hash course snapshot: %v", err)
		return s.submitFailure(ctx, job, cause, time.Since(start))
	}

	eval, err := s.engine.Evaluate(ctx, &model.EvaluateRequest{
		AreaCode: job.AreaCode,
		Catalog:  job.Catalog,
		Student:  job.InputData,
	})
	if err != nil {
		if apperrors.IsPermanent(err) {
			return s.submitFailure(ctx, job, err, time.Since(start))
		}
		return nil, fmt.Errorf("evaluate area %s: %w", job.AreaCode, err)
	}

	memos, memoHits, err := s.resolvePendingClauses(ctx, job, snapshotHash, eval.PendingClauses)
	if err != nil {
		if apperrors.IsPermanent(err) {
			return s.submitFailure(ctx, job, err, time.Since(start))
		}
		return nil, err
	}

	patched, rank, maxRank, err := s.applyExceptions(ctx, job, eval)
	if err != nil {
		if apperrors.IsPermanent(err) {
			return s.submitFailure(ctx, job, err, time.Since(start))
		}
		return nil, err
	}

	tree, err := json.Marshal(patched)
	if err != nil {
		return nil, fmt.Errorf("encode satisfaction tree: %w", err)
	}

	elapsed := time.Since(start)
	result, err := s.results.Submit(ctx, &model.SubmitResultRequest{
		StudentID:      job.StudentID,
		AreaCode:       job.AreaCode,
		Catalog:        job.Catalog,
		Run:            job.Run,
		Status:         model.ResultStatusOK,
		Rank:           rank,
		MaxRank:        maxRank,
		GPA:            eval.GPA,
		ClaimedCourses: eval.ClaimedCourses,
		ResultTree:     tree,
		Iterations:     eval.Iterations,
		DurationMS:     elapsed.Milliseconds(),
		Memos:          memos,
	})
	if err != nil {
		return nil, fmt.Errorf("submit result: %w", err)
	}

	s.emitComputation(job, elapsed, memoHits, len(memos), nil)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "audit computed",
			"job_id", job.ID,
			"result_id", result.ID,
			"revision", result.Revision,
			"rank", result.Rank,
			"max_rank", result.MaxRank,
			"memo_hits", memoHits,
			"memo_count", len(memos),
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	return result, nil
}

// applyExceptions layers the lineage's enabled advisor exceptions onto the
// freshly evaluated tree so the stored result already reflects them. A
// revision is never re-patched after it is stored; toggling an exception
// later only affects the next computed revision.
func (s *ComputeService) applyExceptions(
	ctx context.Context,
	job *model.Job,
	eval *model.Evaluation,
) (model.SatisfactionNode, float64, float64, error) {
	if s.exceptions == nil {
		return eval.Tree, eval.Rank, eval.MaxRank, nil
	}

	rows, err := s.exceptions.ListForLineage(ctx, core.ExceptionListParams{
		StudentID:   job.StudentID,
		AreaCode:    job.AreaCode,
		EnabledOnly: true,
	})
	if err != nil {
		return model.SatisfactionNode{}, 0, 0, fmt.Errorf("list exceptions: %w", err)
	}
	if len(rows) == 0 {
		return eval.Tree, eval.Rank, eval.MaxRank, nil
	}

	exceptions := make([]model.Exception, 0, len(rows))
	for _, row := range rows {
		exceptions = append(exceptions, *row)
	}

	patched, report, err := overlay.Apply(eval.Tree, exceptions)
	if err != nil {
		return model.SatisfactionNode{}, 0, 0, apperrors.Permanentf("apply exception overlay: %v", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "exceptions applied to computed tree",
			"job_id", job.ID,
			"applied", report.Applied,
			"orphaned", report.Orphaned,
		)
	}

	maxRank := patched.MaxRank
	if maxRank <= 0 {
		maxRank = eval.MaxRank
	}
	return patched, patched.Rank, maxRank, nil
}

// resolvePendingClauses fills in candidate enumerations the engine deferred.
// Memoized enumerations are reused only when the memo was computed under the
// same course snapshot and the stored clause matches ours byte for byte
// after canonicalisation; the hash alone is not trusted.
func (s *ComputeService) resolvePendingClauses(
	ctx context.Context,
	job *model.Job,
	snapshotHash string,
	pending []model.PendingClause,
) ([]model.MemoEntry, int, error) {
	if len(pending) == 0 {
		return nil, 0, nil
	}

	memos := make([]model.MemoEntry, 0, len(pending))
	seen := make(map[string]struct{}, len(pending))
	hits := 0

	for _, clause := range pending {
		canonical, err := clausehash.Canonicalize(clause.Clause)
		if err != nil {
			return nil, hits, apperrors.Permanentf("canonicalise pending clause: %v", err)
		}
		hash, err := clausehash.Sum(clause.Clause)
		if err != nil {
			return nil, hits, apperrors.Permanentf("hash pending clause: %v", err)
		}
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}

		clbids, hit, err := s.candidatesFor(ctx, job, memoQuery{
			Canonical:    canonical,
			ClauseHash:   hash,
			SnapshotHash: snapshotHash,
		})
		if err != nil {
			return nil, hits, err
		}
		if hit {
			hits++
		}

		memos = append(memos, model.MemoEntry{
			ClauseHash:   hash,
			SnapshotHash: snapshotHash,
			Clause:       canonical,
			CLBIDs:       clbids,
		})
	}

	return memos, hits, nil
}

// memoQuery carries one clause's identity through candidate resolution.
type memoQuery struct {
	Canonical    []byte
	ClauseHash   string
	SnapshotHash string
}

func (s *ComputeService) candidatesFor(
	ctx context.Context,
	job *model.Job,
	q memoQuery,
) ([]string, bool, error) {
	if s.memos != nil {
		memo, err := s.memos.Lookup(ctx, core.MemoLookupParams{
			StudentID:    job.StudentID,
			ClauseHash:   q.ClauseHash,
			SnapshotHash: q.SnapshotHash,
		})
		switch {
		case err == nil:
			if storedCanonical, cerr := clausehash.Canonicalize(memo.Clause); cerr == nil &&
				bytes.Equal(storedCanonical, q.Canonical) {
				return append([]string(nil), memo.CLBIDs...), true, nil
			}
			if s.logger != nil {
				s.logger.WarnContext(ctx, "memo clause mismatch for hash, recomputing",
					"student_id", job.StudentID,
					"clause_hash", q.ClauseHash,
				)
			}
		case apperrors.IsNotFound(err):
			// First evaluation of this clause under this snapshot.
		default:
			if s.logger != nil {
				s.logger.WarnContext(ctx, "memo lookup failed, recomputing",
					"clause_hash", q.ClauseHash, "error", err)
			}
		}
	}

	clbids, err := s.engine.Candidates(ctx, &model.CandidateRequest{
		Clause:  q.Canonical,
		Catalog: job.Catalog,
		Student: job.InputData,
	})
	if err != nil {
		if apperrors.IsPermanent(err) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("enumerate candidates: %w", err)
	}
	return clbids, false, nil
}

// submitFailure records a permanent computation failure as a failed result.
// Failed results never take the lineage's active pointer, so the last good
// audit stays visible.
func (s *ComputeService) submitFailure(
	ctx context.Context,
	job *model.Job,
	cause error,
	elapsed time.Duration,
) (*model.Result, error) {
	detail, err := json.Marshal(map[string]string{"error": cause.Error()})
	if err != nil {
		detail = []byte(`{"error":"failed to encode error detail"}`)
	}

	result, err := s.results.Submit(ctx, &model.SubmitResultRequest{
		StudentID:  job.StudentID,
		AreaCode:   job.AreaCode,
		Catalog:    job.Catalog,
		Run:        job.Run,
		Status:     model.ResultStatusFailed,
		Error:      detail,
		DurationMS: elapsed.Milliseconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("submit failed result: %w", err)
	}

	s.emitComputation(job, elapsed, 0, 0, cause)

	if s.logger != nil {
		s.logger.WarnContext(ctx, "audit failed permanently",
			"job_id", job.ID,
			"result_id", result.ID,
			"error", cause,
		)
	}

	return result, nil
}

func (s *ComputeService) emitComputation(job *model.Job, elapsed time.Duration, hits, memoCount int, cause error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if cause != nil {
		result = metrics.ResultError
	}

	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		AreaCode:   job.AreaCode,
		Transition: "compute",
		Result:     result,
		Duration:   elapsed,
		Err:        cause,
	})

	if memoCount > 0 {
		s.metrics.Count("memo.lookup", int64(memoCount), map[string]string{"result": "total"})
	}
	if hits > 0 {
		s.metrics.Count("memo.hit", int64(hits), nil)
	}
}
