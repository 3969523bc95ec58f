package core

import (
	"context"
	"time"

	"github.com/openregistrar/auditcore/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// ClaimParams groups parameters for QueueRepository.ClaimNext to keep param count ≤3.
type ClaimParams struct {
	WorkerID     string
	LeaseSeconds int
}

// FailJobParams groups parameters for QueueRepository.Fail.
type FailJobParams struct {
	ID     string
	ErrMsg string
	// Permanent failures park the job immediately without consuming
	// the remaining retry budget.
	Permanent bool
}

// QueueRepository defines the interface for audit queue data operations.
type QueueRepository interface {
	// Enqueue inserts a pending job or coalesces into the lineage's
	// existing pending row.
	Enqueue(ctx context.Context, req *model.EnqueueRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// ClaimNext claims the most urgent ready job under a lease. Returns
	// model.ErrNoJobsAvailable when nothing is claimable.
	ClaimNext(ctx context.Context, params ClaimParams) (*model.Job, error)
	WaitForNotification(ctx context.Context) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)
	Fail(ctx context.Context, params FailJobParams) (bool, error)
	List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	Stats(ctx context.Context) (*model.QueueStats, error)
	Block(ctx context.Context, lineage model.Lineage, reason string) error
	Unblock(ctx context.Context, lineage model.Lineage) (bool, error)
	IsBlocked(ctx context.Context, lineage model.Lineage) (bool, error)
}

// ResultRepository defines the interface for audit result data operations.
type ResultRepository interface {
	// Submit persists a finished computation, assigns its revision, and
	// flips the lineage's active pointer when the new revision wins.
	Submit(ctx context.Context, req *model.SubmitResultRequest) (*model.Result, error)
	GetByID(ctx context.Context, id string) (*model.Result, error)
	GetActive(ctx context.Context, lineage model.Lineage) (*model.Result, error)
	GetRevision(ctx context.Context, lineage model.Lineage, revision int) (*model.Result, error)
	GetByRun(ctx context.Context, lineage model.Lineage, run int) (*model.Result, error)
	ListHistory(ctx context.Context, opts model.ResultHistoryOptions) ([]*model.Result, error)
}

// MemoLookupParams groups parameters for MemoRepository.Lookup. SnapshotHash
// binds the lookup to one course snapshot; memos written against a different
// snapshot never match even when the clause hash does.
type MemoLookupParams struct {
	StudentID    string
	ClauseHash   string
	SnapshotHash string
}

// MemoRepository defines the interface for memoized candidate enumerations.
// Memo rows are written by ResultRepository.Submit in the owning result's
// transaction; this port only reads them.
type MemoRepository interface {
	// Lookup returns the newest memo for the student's (clause hash,
	// snapshot hash) pair, or a NotFound error when no prior result under
	// the same snapshot memoized it.
	Lookup(ctx context.Context, params MemoLookupParams) (*model.MemoEntry, error)
	ListByResult(ctx context.Context, resultID string) ([]*model.MemoEntry, error)
}

// ExceptionListParams groups parameters for ExceptionRepository.ListForLineage.
type ExceptionListParams struct {
	StudentID   string
	AreaCode    string
	EnabledOnly bool
}

// ExceptionRepository defines the interface for advisor exception data operations.
type ExceptionRepository interface {
	Create(ctx context.Context, req *model.CreateExceptionRequest) (*model.Exception, error)
	GetByID(ctx context.Context, id string) (*model.Exception, error)
	Update(ctx context.Context, id string, req model.UpdateExceptionRequest) (*model.Exception, error)
	// SetEnabled toggles an exception without removing its row.
	SetEnabled(ctx context.Context, id string, enabled bool) (*model.Exception, error)
	ListForLineage(ctx context.Context, params ExceptionListParams) ([]*model.Exception, error)
}

// WhatIfRepository defines the interface for staged hypothetical changes and
// saved course templates.
type WhatIfRepository interface {
	Stage(ctx context.Context, req *model.StageRequest) (*model.StagedChange, error)
	ListStaged(ctx context.Context, lineage model.Lineage) ([]*model.StagedChange, error)
	ClearStaged(ctx context.Context, lineage model.Lineage) (int64, error)
	SaveTemplate(ctx context.Context, req *model.SaveTemplateRequest) (*model.Template, error)
	// GetTemplate returns the newest revision of the named template.
	GetTemplate(ctx context.Context, studentID, name string) (*model.Template, error)
	ListTemplates(ctx context.Context, studentID string) ([]*model.Template, error)
}

// RulesEngine defines the interface to the external clause evaluation engine.
type RulesEngine interface {
	Evaluate(ctx context.Context, req *model.EvaluateRequest) (*model.Evaluation, error)
	// Candidates enumerates the course records matching one clause.
	Candidates(ctx context.Context, req *model.CandidateRequest) ([]string, error)
}

// DeleteOldDeadJobsParams groups parameters for DeleteOldDeadJobs to keep param count ≤3.
type DeleteOldDeadJobsParams struct {
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the interface for queue and result cleanup operations.
type ReaperRepository interface {
	// RequeueExpiredLeases returns claimed jobs whose lease lapsed to the
	// pending pool. Processes up to batchSize jobs per call.
	RequeueExpiredLeases(ctx context.Context, batchSize int) (int64, error)

	// DeleteExpiredJobs removes pending jobs whose expires_at has passed
	// without ever delivering them. Returns the number of jobs deleted.
	DeleteExpiredJobs(ctx context.Context, batchSize int) (int64, error)

	// DeleteExpiredResults removes inactive results whose expires_at has
	// passed. Active results are never reaped.
	DeleteExpiredResults(ctx context.Context, batchSize int) (int64, error)

	// DeleteOldDeadJobs removes dead-lettered jobs older than MaxAge.
	DeleteOldDeadJobs(ctx context.Context, params DeleteOldDeadJobsParams) (int64, error)
}
