package model

import "encoding/json"

// SatisfactionNode is one node of the satisfaction tree the rules engine
// produces. The tree is treated as an immutable value: exception overlays
// produce a patched copy rather than mutating in place.
type SatisfactionNode struct {
	Type       string             `json:"type"`
	Name       string             `json:"name,omitempty"`
	Satisfied  bool               `json:"satisfied"`
	Rank       float64            `json:"rank"`
	MaxRank    float64            `json:"max_rank"`
	Credits    *float64           `json:"credits,omitempty"`
	Subject    string             `json:"subject,omitempty"`
	CLBIDs     []string           `json:"clbids,omitempty"`
	Overridden bool               `json:"overridden,omitempty"`
	Children   []SatisfactionNode `json:"children,omitempty"`
}

// EvaluateRequest is the input contract of the external rules engine: the
// area's clause tree plus the catalog and the student's course snapshot.
type EvaluateRequest struct {
	AreaCode string          `json:"area_code"`
	Catalog  string          `json:"catalog"`
	Student  json.RawMessage `json:"student"`
}

// PendingClause names a sub-computation whose candidate enumeration the
// engine deferred; the worker resolves these through the memo cache.
type PendingClause struct {
	// Clause is the canonicalisable clause expression.
	Clause json.RawMessage `json:"clause"`
}

// Evaluation is the output contract of the external rules engine.
type Evaluation struct {
	Tree           SatisfactionNode `json:"tree"`
	Rank           float64          `json:"rank"`
	MaxRank        float64          `json:"max_rank"`
	GPA            float64          `json:"gpa"`
	ClaimedCourses json.RawMessage  `json:"claimed_courses"`
	Iterations     int              `json:"iterations"`
	// PendingClauses lists clauses needing candidate enumeration.
	PendingClauses []PendingClause `json:"pending_clauses,omitempty"`
}

// CandidateRequest asks the rules engine to enumerate the candidate course
// records (clbids) for one clause against a course snapshot.
type CandidateRequest struct {
	Clause  json.RawMessage `json:"clause"`
	Catalog string          `json:"catalog"`
	Student json.RawMessage `json:"student"`
}
