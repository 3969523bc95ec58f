package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/domain/model"
	apperrors "github.com/openregistrar/auditcore/internal/errors"
	"github.com/openregistrar/auditcore/internal/observability/auditlog"
)

// WhatIfServiceOptions groups dependencies for WhatIfService.
type WhatIfServiceOptions struct {
	Repo   core.WhatIfRepository // Required: what-if repository
	Engine core.RulesEngine      // Optional: enables synchronous previews
	Logger *slog.Logger          // Optional: structured logger
	Audit  *auditlog.Emitter     // Optional: audit event emission on staging mutations
}

// WhatIfService manages staged hypothetical changes and saved course
// templates, and evaluates previews against them. Previews never touch the
// committed result lineage.
type WhatIfService struct {
	repo   core.WhatIfRepository
	engine core.RulesEngine
	logger *slog.Logger
	audit  *auditlog.Emitter
}

// NewWhatIfService constructs a new WhatIfService.
func NewWhatIfService(opts WhatIfServiceOptions) (*WhatIfService, error) {
	if opts.Repo == nil {
		return nil, errors.New("WhatIfRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "whatif_service")
	}

	return &WhatIfService{
		repo:   opts.Repo,
		engine: opts.Engine,
		logger: logger,
		audit:  opts.Audit,
	}, nil
}

// Stage stores or replaces one hypothetical change for a lineage.
func (s *WhatIfService) Stage(ctx context.Context, req *model.StageRequest) (*model.StagedChange, error) {
	staged, err := s.repo.Stage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("stage change: %w", err)
	}

	s.emitAudit(ctx, "whatif_stage", auditlog.OpUpdate, staged)

	if s.logger != nil {
		s.logger.DebugContext(ctx, "change staged",
			"student_id", staged.StudentID,
			"area_code", staged.AreaCode,
			"kind", staged.Kind,
		)
	}

	return staged, nil
}

// ListStaged returns a lineage's staged changes.
func (s *WhatIfService) ListStaged(ctx context.Context, lineage model.Lineage) ([]*model.StagedChange, error) {
	staged, err := s.repo.ListStaged(ctx, lineage)
	if err != nil {
		return nil, fmt.Errorf("list staged changes: %w", err)
	}
	return staged, nil
}

// ClearStaged drops all of a lineage's staged changes.
func (s *WhatIfService) ClearStaged(ctx context.Context, lineage model.Lineage) (int64, error) {
	removed, err := s.repo.ClearStaged(ctx, lineage)
	if err != nil {
		return 0, fmt.Errorf("clear staged changes: %w", err)
	}

	if removed > 0 {
		s.emitAudit(ctx, "whatif_stage", auditlog.OpDelete, lineage)
	}

	if s.logger != nil && removed > 0 {
		s.logger.DebugContext(ctx, "staged changes cleared",
			"student_id", lineage.StudentID,
			"area_code", lineage.AreaCode,
			"count", removed,
		)
	}
	return removed, nil
}

// SaveTemplate appends a new revision of the named template.
func (s *WhatIfService) SaveTemplate(ctx context.Context, req *model.SaveTemplateRequest) (*model.Template, error) {
	tmpl, err := s.repo.SaveTemplate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}

	s.emitAudit(ctx, "template", auditlog.OpInsert, tmpl)

	if s.logger != nil {
		s.logger.DebugContext(ctx, "template saved",
			"student_id", tmpl.StudentID,
			"name", tmpl.Name,
			"revision", tmpl.Revision,
		)
	}
	return tmpl, nil
}

// GetTemplate returns the newest revision of the named template.
func (s *WhatIfService) GetTemplate(ctx context.Context, studentID, name string) (*model.Template, error) {
	tmpl, err := s.repo.GetTemplate(ctx, studentID, name)
	if err != nil {
		return nil, fmt.Errorf("get template %q: %w", name, err)
	}
	return tmpl, nil
}

// ListTemplates returns the newest revision of each of the student's templates.
func (s *WhatIfService) ListTemplates(ctx context.Context, studentID string) ([]*model.Template, error) {
	templates, err := s.repo.ListTemplates(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// PreviewRequest carries the base course snapshot a preview evaluates
// against; the lineage's staged changes are layered on top of it.
type PreviewRequest struct {
	StudentID string          `json:"student_id"`
	AreaCode  string          `json:"area_code"`
	Catalog   string          `json:"catalog"`
	Student   json.RawMessage `json:"student"`
}

// Preview evaluates the lineage with its staged changes applied. The
// evaluation is returned directly and nothing is written to the result
// store: previews are speculative by definition.
func (s *WhatIfService) Preview(ctx context.Context, req PreviewRequest) (*model.Evaluation, error) {
	if s.engine == nil {
		return nil, errors.New("previews require a rules engine")
	}

	lineage := model.Lineage{StudentID: req.StudentID, AreaCode: req.AreaCode}
	if err := lineage.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if strings.TrimSpace(req.Catalog) == "" {
		return nil, apperrors.Validation("catalog is required")
	}
	if len(req.Student) == 0 {
		return nil, apperrors.Validation("student snapshot is required")
	}

	staged, err := s.repo.ListStaged(ctx, lineage)
	if err != nil {
		return nil, fmt.Errorf("list staged changes: %w", err)
	}

	catalog, student, err := applyStagedChanges(req.Catalog, req.Student, staged)
	if err != nil {
		return nil, err
	}

	eval, err := s.engine.Evaluate(ctx, &model.EvaluateRequest{
		AreaCode: req.AreaCode,
		Catalog:  catalog,
		Student:  student,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate preview: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "preview evaluated",
			"student_id", req.StudentID,
			"area_code", req.AreaCode,
			"catalog", catalog,
			"staged_changes", len(staged),
		)
	}

	return eval, nil
}

// applyStagedChanges layers staged hypotheticals onto the base snapshot:
// a catalog stage swaps the evaluation catalog, add stages append course
// records, and drop stages remove courses by clbid.
func applyStagedChanges(
	catalog string,
	student json.RawMessage,
	staged []*model.StagedChange,
) (string, json.RawMessage, error) {
	if len(staged) == 0 {
		return catalog, student, nil
	}

	var snapshot map[string]any
	if err := json.Unmarshal(student, &snapshot); err != nil {
		return "", nil, apperrors.Validationf("student snapshot must be a JSON object: %v", err)
	}

	courses, _ := snapshot["courses"].([]any)

	for _, change := range staged {
		switch change.Kind {
		case model.StageCatalog:
			var v string
			if err := json.Unmarshal(change.Value, &v); err != nil {
				return "", nil, apperrors.Validationf("staged catalog is not a string: %v", err)
			}
			catalog = v
		case model.StageAdd:
			var course map[string]any
			if err := json.Unmarshal(change.Value, &course); err != nil {
				return "", nil, apperrors.Validationf("staged course is not an object: %v", err)
			}
			courses = append(courses, course)
		case model.StageDrop:
			var clbid string
			if err := json.Unmarshal(change.Value, &clbid); err != nil {
				return "", nil, apperrors.Validationf("staged drop is not a clbid string: %v", err)
			}
			courses = dropCourse(courses, clbid)
		}
	}

	snapshot["courses"] = courses
	merged, err := json.Marshal(snapshot)
	if err != nil {
		return "", nil, fmt.Errorf("encode merged snapshot: %w", err)
	}
	return catalog, merged, nil
}

// emitAudit records a staging mutation. Deletes carry the lineage as the
// before image; everything else carries the written row as the after image.
func (s *WhatIfService) emitAudit(ctx context.Context, table string, op auditlog.Op, row any) {
	if s.audit == nil {
		return
	}

	encoded, err := json.Marshal(row)
	if err != nil {
		return
	}

	event := auditlog.Event{Table: table, Op: op}
	if op == auditlog.OpDelete {
		event.Before = encoded
	} else {
		event.After = encoded
	}
	s.audit.Emit(ctx, event)
}

func dropCourse(courses []any, clbid string) []any {
	out := courses[:0]
	for _, c := range courses {
		course, ok := c.(map[string]any)
		if ok {
			if id, _ := course["clbid"].(string); id == clbid {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
