package domain

import (
	"time"
)

// Aggregate is the materialized running total for one subject key. Outside of
// the event-insert transaction it always equals the sum of the subject's events.
type Aggregate struct {
	SubjectKey string    `json:"subject_key"`
	Total      int64     `json:"total"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReconcileResult reports one recompute-and-repair pass for a subject key.
type ReconcileResult struct {
	SubjectKey      string `json:"subject_key"`
	WasInconsistent bool   `json:"was_inconsistent"`
	OldTotal        int64  `json:"old_total"`
	NewTotal        int64  `json:"new_total"`
	Difference      int64  `json:"difference"`
}

// IntegrityReport is the read-only sweep over every known subject key.
type IntegrityReport struct {
	CheckedAt     time.Time         `json:"checked_at"`
	Subjects      int               `json:"subjects"`
	Drifted       []ReconcileResult `json:"drifted"`
	TotalAbsDrift int64             `json:"total_abs_drift"`
}
