package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/domain/model"
	"github.com/openregistrar/auditcore/internal/observability/auditlog"
)

// ResultServiceOptions groups dependencies for ResultService.
type ResultServiceOptions struct {
	Repo   core.ResultRepository // Required: result repository
	Logger *slog.Logger          // Optional: structured logger
	Audit  *auditlog.Emitter     // Optional: audit event emission on submits
}

// ResultService provides read and submit access to the versioned result store.
//
// This service manages:
// - Submitting finished computations and their memos
// - Active-pointer and revision reads
// - Link resolution for linked results.
//
// Advisor exceptions are applied by the compute pipeline before a result is
// stored, so every revision is presented exactly as it was computed.
type ResultService struct {
	repo   core.ResultRepository
	logger *slog.Logger
	audit  *auditlog.Emitter
}

// NewResultService constructs a new ResultService.
func NewResultService(opts ResultServiceOptions) (*ResultService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ResultRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "result_service")
	}

	return &ResultService{
		repo:   opts.Repo,
		logger: logger,
		audit:  opts.Audit,
	}, nil
}

// Submit persists one finished computation. The repository assigns the
// revision and flips the lineage's active pointer when this revision wins.
func (s *ResultService) Submit(ctx context.Context, req *model.SubmitResultRequest) (*model.Result, error) {
	result, err := s.repo.Submit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submit result: %w", err)
	}

	s.emitSubmitAudit(ctx, result)

	if s.logger != nil {
		s.logger.DebugContext(
			ctx,
			"result submitted",
			"id",
			result.ID,
			"student_id",
			result.StudentID,
			"area_code",
			result.AreaCode,
			"revision",
			result.Revision,
			"status",
			result.Status,
			"is_active",
			result.IsActive,
		)
	}

	return result, nil
}

// emitSubmitAudit records the insert, and the activation flip when this
// revision took the lineage's active pointer.
func (s *ResultService) emitSubmitAudit(ctx context.Context, result *model.Result) {
	if s.audit == nil {
		return
	}

	after, err := json.Marshal(result)
	if err != nil {
		return
	}

	op := auditlog.OpInsert
	if result.IsActive {
		op = auditlog.OpActivate
	}
	s.audit.Emit(ctx, auditlog.Event{Table: "result", Op: op, After: after})
}

// GetByID returns a result by its ID.
func (s *ResultService) GetByID(ctx context.Context, id string) (*model.Result, error) {
	result, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get result by id %s: %w", id, err)
	}
	return result, nil
}

// GetActive returns the lineage's active result row as stored.
func (s *ResultService) GetActive(ctx context.Context, lineage model.Lineage) (*model.Result, error) {
	result, err := s.repo.GetActive(ctx, lineage)
	if err != nil {
		return nil, fmt.Errorf("get active result: %w", err)
	}
	return result, nil
}

// GetRevision returns one specific revision of the lineage's history.
func (s *ResultService) GetRevision(ctx context.Context, lineage model.Lineage, revision int) (*model.Result, error) {
	result, err := s.repo.GetRevision(ctx, lineage, revision)
	if err != nil {
		return nil, fmt.Errorf("get result revision %d: %w", revision, err)
	}
	return result, nil
}

// GetByRun returns the newest result produced for one run number.
func (s *ResultService) GetByRun(ctx context.Context, lineage model.Lineage, run int) (*model.Result, error) {
	result, err := s.repo.GetByRun(ctx, lineage, run)
	if err != nil {
		return nil, fmt.Errorf("get result for run %d: %w", run, err)
	}
	return result, nil
}

// ListHistory returns a lineage's revisions in ascending revision order.
func (s *ResultService) ListHistory(ctx context.Context, opts model.ResultHistoryOptions) ([]*model.Result, error) {
	p := normalizePagination(opts.Limit, opts.Offset)
	opts.Limit = p.Limit
	opts.Offset = p.Offset

	results, err := s.repo.ListHistory(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list result history: %w", err)
	}
	return results, nil
}

// Resolve follows at most one link hop. Link results reference another
// stored result; anything else resolves to itself.
func (s *ResultService) Resolve(ctx context.Context, result *model.Result) (*model.Result, error) {
	if result == nil {
		return nil, errors.New("result is required")
	}
	if result.Status != model.ResultStatusLink {
		return result, nil
	}
	if result.LinkTo == nil {
		return nil, fmt.Errorf("link result %s has no target", result.ID)
	}

	target, err := s.repo.GetByID(ctx, *result.LinkTo)
	if err != nil {
		return nil, fmt.Errorf("resolve link target: %w", err)
	}
	return target, nil
}

// AuditView is a presented result: the stored row plus its decoded
// satisfaction tree. Enabled advisor exceptions were already layered onto
// the tree by the compute pipeline before the row was stored, so the view
// never re-derives it; a revision reads the same forever, regardless of
// exception toggles that happen after it was computed.
type AuditView struct {
	Result *model.Result          `json:"result"`
	Tree   model.SatisfactionNode `json:"tree"`
}

// GetActiveView returns the lineage's active result with link resolution,
// presenting the satisfaction tree exactly as it was stored.
func (s *ResultService) GetActiveView(ctx context.Context, lineage model.Lineage) (*AuditView, error) {
	result, err := s.repo.GetActive(ctx, lineage)
	if err != nil {
		return nil, fmt.Errorf("get active result: %w", err)
	}

	resolved, err := s.Resolve(ctx, result)
	if err != nil {
		return nil, err
	}

	return s.buildView(resolved)
}

// GetRevisionView returns one revision with link resolution applied.
func (s *ResultService) GetRevisionView(ctx context.Context, lineage model.Lineage, revision int) (*AuditView, error) {
	result, err := s.repo.GetRevision(ctx, lineage, revision)
	if err != nil {
		return nil, fmt.Errorf("get result revision %d: %w", revision, err)
	}

	resolved, err := s.Resolve(ctx, result)
	if err != nil {
		return nil, err
	}

	return s.buildView(resolved)
}

func (s *ResultService) buildView(result *model.Result) (*AuditView, error) {
	view := &AuditView{Result: result}

	if result.Status != model.ResultStatusOK || len(result.ResultTree) == 0 {
		return view, nil
	}

	if err := json.Unmarshal(result.ResultTree, &view.Tree); err != nil {
		return nil, fmt.Errorf("decode result tree: %w", err)
	}
	return view, nil
}
