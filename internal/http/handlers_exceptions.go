package httpx

import (
	"errors"
	"net/http"

	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/domain/model"
	"github.com/openregistrar/auditcore/internal/service"
)

// ExceptionHandlers provides HTTP handlers for advisor exceptions.
type ExceptionHandlers struct {
	Svc *service.ExceptionService
}

// Create handles HTTP requests to record a new advisor exception.
func (h *ExceptionHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateExceptionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	exc, err := h.Svc.Create(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, exc)
}

// GetByID handles HTTP requests to retrieve an exception.
func (h *ExceptionHandlers) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := exceptionID(w, r)
	if !ok {
		return
	}

	exc, err := h.Svc.GetByID(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, exc)
}

// Update handles HTTP requests to change an exception's override payload.
func (h *ExceptionHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := exceptionID(w, r)
	if !ok {
		return
	}

	var req model.UpdateExceptionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	exc, err := h.Svc.Update(r.Context(), id, req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, exc)
}

// Disable handles HTTP requests to disable an exception without removing it.
func (h *ExceptionHandlers) Disable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

// Enable handles HTTP requests to re-enable a disabled exception.
func (h *ExceptionHandlers) Enable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *ExceptionHandlers) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id, ok := exceptionID(w, r)
	if !ok {
		return
	}

	exc, err := h.Svc.SetEnabled(r.Context(), id, enabled)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, exc)
}

// ListForLineage handles HTTP requests to list a lineage's exceptions.
func (h *ExceptionHandlers) ListForLineage(w http.ResponseWriter, r *http.Request) {
	lineage, ok := lineageFromPath(w, r)
	if !ok {
		return
	}

	exceptions, err := h.Svc.ListForLineage(r.Context(), core.ExceptionListParams{
		StudentID:   lineage.StudentID,
		AreaCode:    lineage.AreaCode,
		EnabledOnly: r.URL.Query().Get("enabled") == "true",
	})
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, exceptions)
}

func exceptionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("exception id is required")},
		)
		return "", false
	}
	return id, true
}
