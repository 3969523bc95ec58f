package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/openregistrar/auditcore/internal/core"
	"github.com/openregistrar/auditcore/internal/domain/model"
	"github.com/openregistrar/auditcore/internal/service"
)

// ResultHandlers provides HTTP handlers for the versioned result store.
type ResultHandlers struct {
	Svc *service.ResultService
	// Memos is optional; memo inspection returns 404 when absent.
	Memos *core.MemoCacheService
}

// lineageFromPath extracts the lineage key from {student}/{area} path values.
func lineageFromPath(w http.ResponseWriter, r *http.Request) (model.Lineage, bool) {
	lineage := model.Lineage{
		StudentID: r.PathValue("student"),
		AreaCode:  r.PathValue("area"),
	}
	if err := lineage.Validate(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: err})
		return model.Lineage{}, false
	}
	return lineage, true
}

// GetActive handles HTTP requests for a lineage's active result, with link
// resolution applied. The tree is served exactly as it was stored.
func (h *ResultHandlers) GetActive(w http.ResponseWriter, r *http.Request) {
	lineage, ok := lineageFromPath(w, r)
	if !ok {
		return
	}

	view, err := h.Svc.GetActiveView(r.Context(), lineage)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// GetRevision handles HTTP requests for a specific revision of a lineage.
func (h *ResultHandlers) GetRevision(w http.ResponseWriter, r *http.Request) {
	lineage, ok := lineageFromPath(w, r)
	if !ok {
		return
	}
	revision, err := strconv.Atoi(r.PathValue("revision"))
	if err != nil {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("revision must be an integer")},
		)
		return
	}

	view, err := h.Svc.GetRevisionView(r.Context(), lineage, revision)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// History handles HTTP requests for a lineage's result history, in ascending
// revision order.
func (h *ResultHandlers) History(w http.ResponseWriter, r *http.Request) {
	lineage, ok := lineageFromPath(w, r)
	if !ok {
		return
	}
	limit, offset := ParseLimitOffset(r, 50, 1000)

	opts := model.ResultHistoryOptions{
		StudentID: lineage.StudentID,
		AreaCode:  lineage.AreaCode,
		Limit:     limit,
		Offset:    offset,
	}
	if status := r.URL.Query().Get("status"); status != "" {
		s := model.ResultStatus(status)
		opts.Status = &s
	}

	results, err := h.Svc.ListHistory(r.Context(), opts)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, results)
}

// GetByRun handles HTTP requests to look up a lineage's result by run number.
func (h *ResultHandlers) GetByRun(w http.ResponseWriter, r *http.Request) {
	lineage := model.Lineage{
		StudentID: r.URL.Query().Get("student_id"),
		AreaCode:  r.URL.Query().Get("area_code"),
	}
	if err := lineage.Validate(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation", Err: err})
		return
	}
	run, err := strconv.Atoi(r.PathValue("run"))
	if err != nil {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("run must be an integer")},
		)
		return
	}

	result, err := h.Svc.GetByRun(r.Context(), lineage, run)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// ListMemos handles HTTP requests to list the memo entries owned by a result.
func (h *ResultHandlers) ListMemos(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("result id is required")},
		)
		return
	}
	if h.Memos == nil {
		WriteError(
			w,
			ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errors.New("memo inspection is not enabled")},
		)
		return
	}

	memos, err := h.Memos.ListByResult(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, memos)
}

// GetByID handles HTTP requests to retrieve a result row by its ID.
func (h *ResultHandlers) GetByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("result id is required")},
		)
		return
	}

	result, err := h.Svc.GetByID(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
