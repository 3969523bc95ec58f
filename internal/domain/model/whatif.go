package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StageKind names one of the hypothetical changes a student can stage.
type StageKind string

const (
	// StageCatalog stages evaluation under an alternate catalog year.
	StageCatalog StageKind = "catalog"
	// StageAdd stages a hypothetical added course.
	StageAdd StageKind = "add"
	// StageDrop stages a hypothetical dropped course.
	StageDrop StageKind = "drop"
)

// Valid returns true if the StageKind is valid.
func (k StageKind) Valid() bool {
	return k == StageCatalog || k == StageAdd || k == StageDrop
}

// StagedChange is one non-committing hypothetical keyed by (student, area,
// kind). Re-staging the same kind replaces the prior value.
type StagedChange struct {
	StudentID string          `json:"student_id" db:"student_id"`
	AreaCode  string          `json:"area_code"  db:"area_code"`
	Kind      StageKind       `json:"kind"       db:"kind"`
	Value     json.RawMessage `json:"value"      db:"value"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// StageRequest stages or replaces one hypothetical change.
type StageRequest struct {
	StudentID string          `json:"student_id"`
	AreaCode  string          `json:"area_code"`
	Kind      StageKind       `json:"kind"`
	Value     json.RawMessage `json:"value"`
}

// Validate validates the StageRequest fields.
func (r *StageRequest) Validate() error {
	if err := (Lineage{StudentID: r.StudentID, AreaCode: r.AreaCode}).Validate(); err != nil {
		return err
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("invalid stage kind: %q", r.Kind)
	}
	if len(r.Value) == 0 {
		return errors.New("value is required")
	}
	return nil
}

// Template is a named, per-student saved set of hypothetical courses. Saves
// append revisions; templates are unrelated to the committed result lineage
// until explicitly promoted.
type Template struct {
	ID        string          `json:"id"         db:"id"`
	StudentID string          `json:"student_id" db:"student_id"`
	Name      string          `json:"name"       db:"name"`
	Revision  int             `json:"revision"   db:"revision"`
	Courses   json.RawMessage `json:"courses"    db:"courses"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// SaveTemplateRequest saves a new revision of a named template.
type SaveTemplateRequest struct {
	StudentID string          `json:"student_id"`
	Name      string          `json:"name"`
	Courses   json.RawMessage `json:"courses"`
}

// Validate validates the SaveTemplateRequest fields.
func (r *SaveTemplateRequest) Validate() error {
	if strings.TrimSpace(r.StudentID) == "" {
		return errors.New("student id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("template name is required")
	}
	if len(r.Courses) == 0 {
		return errors.New("courses is required")
	}
	return nil
}
