package model

import (
	"encoding/json"
	"errors"
	"time"
)

// ResultStatus describes the terminal state of one audit computation.
type ResultStatus string

const (
	// ResultStatusOK indicates the computation produced a satisfaction tree.
	ResultStatusOK ResultStatus = "ok"
	// ResultStatusFailed indicates the computation ended with a permanent error.
	ResultStatusFailed ResultStatus = "failed"
	// ResultStatusLink indicates a link-only result that references another run.
	ResultStatusLink ResultStatus = "link"
)

// Valid returns true if the ResultStatus is valid.
func (s ResultStatus) Valid() bool {
	return s == ResultStatusOK || s == ResultStatusFailed || s == ResultStatusLink
}

// Result is one committed audit computation. Rows are immutable once written
// except for the is_active flag, which the store flips atomically so that at
// most one row per lineage is active at any instant.
type Result struct {
	ID             string          `json:"id"                        db:"id"`
	StudentID      string          `json:"student_id"                db:"student_id"`
	AreaCode       string          `json:"area_code"                 db:"area_code"`
	Catalog        string          `json:"catalog"                   db:"catalog"`
	Run            int             `json:"run"                       db:"run"`
	Revision       int             `json:"revision"                  db:"revision"`
	IsActive       bool            `json:"is_active"                 db:"is_active"`
	Status         ResultStatus    `json:"status"                    db:"status"`
	LinkTo         *string         `json:"link_to,omitempty"         db:"link_to"`
	Rank           float64         `json:"rank"                      db:"rank"`
	MaxRank        float64         `json:"max_rank"                  db:"max_rank"`
	GPA            float64         `json:"gpa"                       db:"gpa"`
	ClaimedCourses json.RawMessage `json:"claimed_courses,omitempty" db:"claimed_courses"`
	ResultTree     json.RawMessage `json:"result_tree,omitempty"     db:"result_tree"`
	Error          json.RawMessage `json:"error,omitempty"           db:"error"`
	Iterations     int             `json:"iterations"                db:"iterations"`
	DurationMS     int64           `json:"duration_ms"               db:"duration_ms"`
	CreatedAt      time.Time       `json:"created_at"                db:"created_at"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"      db:"expires_at"`
}

// Lineage returns the (student, area) pair keying this result's history.
func (r *Result) Lineage() Lineage {
	return Lineage{StudentID: r.StudentID, AreaCode: r.AreaCode}
}

// SubmitResultRequest carries one finished computation into the result store.
type SubmitResultRequest struct {
	StudentID      string          `json:"student_id"`
	AreaCode       string          `json:"area_code"`
	Catalog        string          `json:"catalog"`
	Run            int             `json:"run"`
	Status         ResultStatus    `json:"status"`
	LinkTo         *string         `json:"link_to,omitempty"`
	Rank           float64         `json:"rank"`
	MaxRank        float64         `json:"max_rank"`
	GPA            float64         `json:"gpa"`
	ClaimedCourses json.RawMessage `json:"claimed_courses,omitempty"`
	ResultTree     json.RawMessage `json:"result_tree,omitempty"`
	Error          json.RawMessage `json:"error,omitempty"`
	Iterations     int             `json:"iterations"`
	DurationMS     int64           `json:"duration_ms"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	// Speculative submissions (link-only results, what-if runs) are stored
	// without ever competing for the lineage's active pointer.
	Speculative bool `json:"speculative,omitempty"`
	// Memos are the candidate enumerations computed for this result. They are
	// inserted in the same transaction so each memo row is owned by exactly
	// one result and is removed with it.
	Memos []MemoEntry `json:"-"`
}

// Validate validates the SubmitResultRequest fields.
func (r *SubmitResultRequest) Validate() error {
	if err := (Lineage{StudentID: r.StudentID, AreaCode: r.AreaCode}).Validate(); err != nil {
		return err
	}
	if !r.Status.Valid() {
		return errors.New("invalid result status")
	}
	if r.Status == ResultStatusLink && r.LinkTo == nil {
		return errors.New("link results must reference a target result")
	}
	if r.MaxRank < 0 || r.Rank < 0 {
		return errors.New("rank values must be non-negative")
	}
	return nil
}

// ResultHistoryOptions contains filtering and pagination options for listing
// a lineage's result history.
type ResultHistoryOptions struct {
	StudentID string
	AreaCode  string
	Status    *ResultStatus
	Limit     int
	Offset    int
}

// MemoEntry is one per-clause candidate enumeration owned by a single result.
// Content is a pure function of (clause hash, the owning result's course
// snapshot) and is never mutated after being written. SnapshotHash is the
// canonical digest of that course snapshot; reuse across results is only
// allowed when both the clause and the snapshot match.
type MemoEntry struct {
	ResultID     string          `json:"result_id"     db:"result_id"`
	ClauseHash   string          `json:"clause_hash"   db:"clause_hash"`
	SnapshotHash string          `json:"snapshot_hash" db:"snapshot_hash"`
	Clause       json.RawMessage `json:"clause"        db:"clause"`
	CLBIDs       []string        `json:"clbids"        db:"clbids"`
	CreatedAt    time.Time       `json:"created_at"    db:"created_at"`
}
