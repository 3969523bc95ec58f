package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxExceptionNoteLength is the longest advisor note accepted on an exception.
const MaxExceptionNoteLength = 2048

// ExceptionType tags the kind of override an advisor applied.
type ExceptionType string

const (
	// ExceptionForcedPass marks a clause as satisfied regardless of computation.
	ExceptionForcedPass ExceptionType = "forced-pass"
	// ExceptionOverrideCredits substitutes the credit value of a course within a clause.
	ExceptionOverrideCredits ExceptionType = "override-credits"
	// ExceptionOverrideSubject substitutes the subject of a course within a clause.
	ExceptionOverrideSubject ExceptionType = "override-subject"
	// ExceptionInsertCourse inserts a specific course record into a clause.
	ExceptionInsertCourse ExceptionType = "insert-course"
)

// Valid returns true if the ExceptionType is valid.
func (t ExceptionType) Valid() bool {
	switch t {
	case ExceptionForcedPass, ExceptionOverrideCredits, ExceptionOverrideSubject, ExceptionInsertCourse:
		return true
	}
	return false
}

// Exception is an advisor-authored override layered onto computed results.
// Rows are soft-disabled, never hard-deleted, to preserve history.
type Exception struct {
	ID              string        `json:"id"                         db:"id"`
	StudentID       string        `json:"student_id"                 db:"student_id"`
	AreaCode        string        `json:"area_code"                  db:"area_code"`
	Path            []string      `json:"path"                       db:"path"`
	Type            ExceptionType `json:"type"                       db:"type"`
	CLBID           *string       `json:"clbid,omitempty"            db:"clbid"`
	ForcedPass      bool          `json:"forced_pass"                db:"forced_pass"`
	OverrideCredits *float64      `json:"override_credits,omitempty" db:"override_credits"`
	OverrideSubject *string       `json:"override_subject,omitempty" db:"override_subject"`
	IsEnabled       bool          `json:"is_enabled"                 db:"is_enabled"`
	Author          string        `json:"author"                     db:"author"`
	Notes           string        `json:"notes"                      db:"notes"`
	CreatedAt       time.Time     `json:"created_at"                 db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"                 db:"updated_at"`
}

// CreateExceptionRequest carries a new advisor override.
type CreateExceptionRequest struct {
	StudentID       string        `json:"student_id"`
	AreaCode        string        `json:"area_code"`
	Path            []string      `json:"path"`
	Type            ExceptionType `json:"type"`
	CLBID           *string       `json:"clbid,omitempty"`
	ForcedPass      bool          `json:"forced_pass"`
	OverrideCredits *float64      `json:"override_credits,omitempty"`
	OverrideSubject *string       `json:"override_subject,omitempty"`
	Author          string        `json:"author"`
	Notes           string        `json:"notes"`
}

// Validate validates the CreateExceptionRequest fields.
func (r *CreateExceptionRequest) Validate() error {
	if err := (Lineage{StudentID: r.StudentID, AreaCode: r.AreaCode}).Validate(); err != nil {
		return err
	}
	if len(r.Path) == 0 {
		return errors.New("path is required")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("invalid exception type: %q", r.Type)
	}
	if strings.TrimSpace(r.Author) == "" {
		return errors.New("author is required")
	}
	if len(r.Notes) > MaxExceptionNoteLength {
		return fmt.Errorf("notes must be at most %d characters", MaxExceptionNoteLength)
	}
	switch r.Type {
	case ExceptionOverrideCredits:
		if r.OverrideCredits == nil {
			return errors.New("override_credits is required for override-credits exceptions")
		}
	case ExceptionOverrideSubject:
		if r.OverrideSubject == nil || strings.TrimSpace(*r.OverrideSubject) == "" {
			return errors.New("override_subject is required for override-subject exceptions")
		}
	case ExceptionInsertCourse:
		if r.CLBID == nil || strings.TrimSpace(*r.CLBID) == "" {
			return errors.New("clbid is required for insert-course exceptions")
		}
	case ExceptionForcedPass:
		// forced_pass carries no extra payload
	}
	return nil
}

// UpdateExceptionRequest updates the override fields and notes of an
// exception. The lineage, path, and type of an existing row never change.
type UpdateExceptionRequest struct {
	OverrideCredits *float64 `json:"override_credits,omitempty"`
	OverrideSubject *string  `json:"override_subject,omitempty"`
	Notes           *string  `json:"notes,omitempty"`
}

// Validate validates the UpdateExceptionRequest fields.
func (r *UpdateExceptionRequest) Validate() error {
	if r.OverrideCredits == nil && r.OverrideSubject == nil && r.Notes == nil {
		return errors.New("at least one field must be updated")
	}
	if r.Notes != nil && len(*r.Notes) > MaxExceptionNoteLength {
		return fmt.Errorf("notes must be at most %d characters", MaxExceptionNoteLength)
	}
	return nil
}
