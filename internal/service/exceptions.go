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

// ExceptionServiceOptions groups dependencies for ExceptionService.
type ExceptionServiceOptions struct {
	Repo   core.ExceptionRepository // Required: exception repository
	Logger *slog.Logger             // Optional: structured logger
	Audit  *auditlog.Emitter        // Optional: audit event emission on mutations
}

// ExceptionService manages advisor overrides. Exceptions are layered onto
// computed results at read time, so mutations here take effect on the next
// read without recomputing anything.
type ExceptionService struct {
	repo   core.ExceptionRepository
	logger *slog.Logger
	audit  *auditlog.Emitter
}

// NewExceptionService constructs a new ExceptionService.
func NewExceptionService(opts ExceptionServiceOptions) (*ExceptionService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ExceptionRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "exception_service")
	}

	return &ExceptionService{
		repo:   opts.Repo,
		logger: logger,
		audit:  opts.Audit,
	}, nil
}

// Create records a new advisor exception, enabled by default.
func (s *ExceptionService) Create(ctx context.Context, req *model.CreateExceptionRequest) (*model.Exception, error) {
	exc, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create exception: %w", err)
	}

	s.emitAudit(ctx, auditlog.OpInsert, exc.Author, nil, exc)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "exception created",
			"id", exc.ID,
			"student_id", exc.StudentID,
			"area_code", exc.AreaCode,
			"type", exc.Type,
			"author", exc.Author,
		)
	}

	return exc, nil
}

// GetByID returns an exception by its ID.
func (s *ExceptionService) GetByID(ctx context.Context, id string) (*model.Exception, error) {
	exc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get exception by id %s: %w", id, err)
	}
	return exc, nil
}

// Update changes the override payload and notes of an exception. Lineage,
// path, and type never change; advisors create a new exception instead.
func (s *ExceptionService) Update(
	ctx context.Context,
	id string,
	req model.UpdateExceptionRequest,
) (*model.Exception, error) {
	before := s.loadBeforeImage(ctx, id)

	exc, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, fmt.Errorf("update exception %s: %w", id, err)
	}

	s.emitAudit(ctx, auditlog.OpUpdate, exc.Author, before, exc)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "exception updated", "id", exc.ID)
	}

	return exc, nil
}

// SetEnabled toggles an exception without removing its row, preserving the
// advisor's override history.
func (s *ExceptionService) SetEnabled(ctx context.Context, id string, enabled bool) (*model.Exception, error) {
	before := s.loadBeforeImage(ctx, id)

	exc, err := s.repo.SetEnabled(ctx, id, enabled)
	if err != nil {
		return nil, fmt.Errorf("set exception %s enabled=%t: %w", id, enabled, err)
	}

	s.emitAudit(ctx, auditlog.OpUpdate, exc.Author, before, exc)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "exception toggled", "id", exc.ID, "enabled", enabled)
	}

	return exc, nil
}

// ListForLineage returns a lineage's exceptions in authoring order.
func (s *ExceptionService) ListForLineage(
	ctx context.Context,
	params core.ExceptionListParams,
) ([]*model.Exception, error) {
	exceptions, err := s.repo.ListForLineage(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	return exceptions, nil
}

// loadBeforeImage fetches the row prior to a mutation for the audit trail.
// A load failure costs the before image, never the mutation.
func (s *ExceptionService) loadBeforeImage(ctx context.Context, id string) *model.Exception {
	if s.audit == nil {
		return nil
	}
	before, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to load exception before image", "id", id, "error", err)
		}
		return nil
	}
	return before
}

func (s *ExceptionService) emitAudit(
	ctx context.Context,
	op auditlog.Op,
	actor string,
	before, after *model.Exception,
) {
	if s.audit == nil {
		return
	}

	event := auditlog.Event{Table: "exception", Op: op, Actor: actor}
	if before != nil {
		event.Before, _ = json.Marshal(before)
	}
	if after != nil {
		event.After, _ = json.Marshal(after)
	}
	s.audit.Emit(ctx, event)
}
