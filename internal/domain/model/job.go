// Package model defines the core data types and structures used throughout the auditcore service.
package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// JobStatus represents the current status of a queued audit job.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be claimed.
	JobStatusPending JobStatus = "pending"
	// JobStatusClaimed indicates a job is held by a worker under a lease.
	JobStatusClaimed JobStatus = "claimed"
	// JobStatusDead indicates a job exhausted its retry budget and was parked.
	JobStatusDead JobStatus = "dead"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusClaimed || s == JobStatusDead
}

const (
	// MinPriority is the most urgent priority value. Lower numbers run first.
	MinPriority = 0
	// MaxPriority is the least urgent priority value accepted on enqueue.
	MaxPriority = 100
	// DefaultPriority is assigned when a submission omits priority.
	DefaultPriority = 50
)

// ErrNoJobsAvailable is returned when no claimable jobs exist.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Job represents one queued audit computation for a (student, area) pair.
// Rows are ephemeral: they are deleted once the computation completes.
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	StudentID      string          `json:"student_id"                 db:"student_id"`
	AreaCode       string          `json:"area_code"                  db:"area_code"`
	Catalog        string          `json:"catalog"                    db:"catalog"`
	Run            int             `json:"run"                        db:"run"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Priority       int             `json:"priority"                   db:"priority"`
	InputData      json.RawMessage `json:"input_data"                 db:"input_data"`
	LinkOnly       bool            `json:"link_only"                  db:"link_only"`
	LinkRun        *int            `json:"link_run,omitempty"         db:"link_run"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"       db:"expires_at"`
	ClaimedBy      *string         `json:"claimed_by,omitempty"       db:"claimed_by"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	NotBefore      *time.Time      `json:"not_before,omitempty"       db:"not_before"`
	AttemptCount   int             `json:"attempt_count"              db:"attempt_count"`
	MaxAttempts    int             `json:"max_attempts"               db:"max_attempts"`
	LastError      *string         `json:"last_error,omitempty"       db:"last_error"`
	SubmittedAt    time.Time       `json:"submitted_at"               db:"submitted_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// Lineage identifies the result lineage this job feeds.
func (j *Job) Lineage() Lineage {
	return Lineage{StudentID: j.StudentID, AreaCode: j.AreaCode}
}

// Lineage is the (student, area) pair that keys a result history.
type Lineage struct {
	StudentID string `json:"student_id"`
	AreaCode  string `json:"area_code"`
}

// Validate checks the lineage key fields.
func (l Lineage) Validate() error {
	if strings.TrimSpace(l.StudentID) == "" {
		return errors.New("student id is required")
	}
	if strings.TrimSpace(l.AreaCode) == "" {
		return errors.New("area code is required")
	}
	return nil
}

// EnqueueRequest represents a request to queue a new audit computation.
type EnqueueRequest struct {
	StudentID string          `json:"student_id"`
	AreaCode  string          `json:"area_code"`
	Catalog   string          `json:"catalog"`
	InputData json.RawMessage `json:"input_data"`
	Priority  *int            `json:"priority,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	LinkOnly  bool            `json:"link_only,omitempty"`
	// LinkRun names the existing run a link-only job should reference.
	LinkRun *int `json:"link_run,omitempty"`
}

// Validate validates the EnqueueRequest fields.
func (r *EnqueueRequest) Validate() error {
	if err := (Lineage{StudentID: r.StudentID, AreaCode: r.AreaCode}).Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Catalog) == "" {
		return errors.New("catalog is required")
	}
	if !r.LinkOnly && len(r.InputData) == 0 {
		return errors.New("input_data is required")
	}
	if r.LinkOnly && r.LinkRun == nil {
		return errors.New("link_run is required for link-only jobs")
	}
	if r.Priority != nil && (*r.Priority < MinPriority || *r.Priority > MaxPriority) {
		return errors.New("priority must be between 0 and 100")
	}
	return nil
}

// EffectivePriority returns the requested priority or the default.
func (r *EnqueueRequest) EffectivePriority() int {
	if r.Priority == nil {
		return DefaultPriority
	}
	return *r.Priority
}

// QueueStats reports counts of queue rows by state for one lineage or globally.
type QueueStats struct {
	Pending int `json:"pending"`
	Claimed int `json:"claimed"`
	Dead    int `json:"dead"`
	Blocked int `json:"blocked"`
}

// JobListOptions contains filtering and pagination options for listing jobs.
type JobListOptions struct {
	StudentID string
	AreaCode  string
	Status    *JobStatus
	Limit     int
	Offset    int
}
