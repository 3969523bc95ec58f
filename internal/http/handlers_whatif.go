package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openregistrar/auditcore/internal/domain/model"
	"github.com/openregistrar/auditcore/internal/service"
)

// WhatIfHandlers provides HTTP handlers for staged hypotheticals, saved
// templates, and synchronous previews.
type WhatIfHandlers struct {
	Svc *service.WhatIfService
}

// Stage handles HTTP requests to stage or replace one hypothetical change.
// The kind comes from the path: catalog, add, or drop.
func (h *WhatIfHandlers) Stage(w http.ResponseWriter, r *http.Request) {
	lineage, ok := lineageFromPath(w, r)
	if !ok {
		return
	}
	kind := model.StageKind(r.PathValue("kind"))

	var body struct {
		Value json.RawMessage `json:"value"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}

	staged, err := h.Svc.Stage(r.Context(), &model.StageRequest{
		StudentID: lineage.StudentID,
		AreaCode:  lineage.AreaCode,
		Kind:      kind,
		Value:     body.Value,
	})
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, staged)
}

// ListStaged handles HTTP requests to list a lineage's staged changes.
func (h *WhatIfHandlers) ListStaged(w http.ResponseWriter, r *http.Request) {
	lineage, ok := lineageFromPath(w, r)
	if !ok {
		return
	}

	staged, err := h.Svc.ListStaged(r.Context(), lineage)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, staged)
}

// ClearStaged handles HTTP requests to drop all of a lineage's staged changes.
func (h *WhatIfHandlers) ClearStaged(w http.ResponseWriter, r *http.Request) {
	lineage, ok := lineageFromPath(w, r)
	if !ok {
		return
	}

	removed, err := h.Svc.ClearStaged(r.Context(), lineage)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// Preview handles HTTP requests to evaluate a lineage with its staged
// changes applied. Nothing is written to the result store.
func (h *WhatIfHandlers) Preview(w http.ResponseWriter, r *http.Request) {
	lineage, ok := lineageFromPath(w, r)
	if !ok {
		return
	}

	var body struct {
		Catalog string          `json:"catalog"`
		Student json.RawMessage `json:"student"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}

	evaluation, err := h.Svc.Preview(r.Context(), service.PreviewRequest{
		StudentID: lineage.StudentID,
		AreaCode:  lineage.AreaCode,
		Catalog:   body.Catalog,
		Student:   body.Student,
	})
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, evaluation)
}

// SaveTemplate handles HTTP requests to save a new revision of a named
// per-student template.
func (h *WhatIfHandlers) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	studentID, name, ok := templatePath(w, r)
	if !ok {
		return
	}

	var body struct {
		Courses json.RawMessage `json:"courses"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}

	tmpl, err := h.Svc.SaveTemplate(r.Context(), &model.SaveTemplateRequest{
		StudentID: studentID,
		Name:      name,
		Courses:   body.Courses,
	})
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, tmpl)
}

// GetTemplate handles HTTP requests for the latest revision of a template.
func (h *WhatIfHandlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	studentID, name, ok := templatePath(w, r)
	if !ok {
		return
	}

	tmpl, err := h.Svc.GetTemplate(r.Context(), studentID, name)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, tmpl)
}

// ListTemplates handles HTTP requests to list a student's templates,
// latest revision of each.
func (h *WhatIfHandlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("student")
	if studentID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("student id is required")},
		)
		return
	}

	templates, err := h.Svc.ListTemplates(r.Context(), studentID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, templates)
}

func templatePath(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	studentID := r.PathValue("student")
	name := r.PathValue("name")
	if studentID == "" || name == "" {
		WriteError(
			w,
			ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "invalid_path",
				Err:     errors.New("student id and template name are required"),
			},
		)
		return "", "", false
	}
	return studentID, name, true
}
