// Package httpx provides HTTP handlers and utilities for the audit computation API.
package httpx

import (
	"errors"
	"net/http"

	"github.com/openregistrar/auditcore/internal/domain/model"
	"github.com/openregistrar/auditcore/internal/service"
)

// JobHandlers provides HTTP handlers for queue-related operations.
type JobHandlers struct {
	Svc *service.QueueService
}

// Submit handles HTTP requests to enqueue a new audit computation.
// Submissions for a lineage with a pending job coalesce into it.
func (h *JobHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.EnqueueRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Enqueue(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, job)
}

// GetByID handles HTTP requests to retrieve a queued job.
func (h *JobHandlers) GetByID(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	job, err := h.Svc.GetByID(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// List handles HTTP requests to list queue rows, most urgent first.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParseLimitOffset(r, 50, 1000)

	opts := model.JobListOptions{
		StudentID: r.URL.Query().Get("student_id"),
		AreaCode:  r.URL.Query().Get("area_code"),
		Limit:     limit,
		Offset:    offset,
	}
	if status := r.URL.Query().Get("status"); status != "" {
		s := model.JobStatus(status)
		opts.Status = &s
	}

	jobs, err := h.Svc.List(r.Context(), opts)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, jobs)
}

// Stats handles HTTP requests to retrieve queue counts by state.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// blockRequest is the payload for lineage block/unblock operations.
type blockRequest struct {
	StudentID string `json:"student_id"`
	AreaCode  string `json:"area_code"`
	Reason    string `json:"reason,omitempty"`
}

func (b *blockRequest) lineage() model.Lineage {
	return model.Lineage{StudentID: b.StudentID, AreaCode: b.AreaCode}
}

// Block handles HTTP requests to block a lineage from new submissions.
func (h *JobHandlers) Block(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := req.lineage().Validate(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation", Err: err})
		return
	}

	if err := h.Svc.Block(r.Context(), req.lineage(), req.Reason); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"blocked": true})
}

// Unblock handles HTTP requests to lift a lineage block.
func (h *JobHandlers) Unblock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := req.lineage().Validate(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation", Err: err})
		return
	}

	removed, err := h.Svc.Unblock(r.Context(), req.lineage())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}
