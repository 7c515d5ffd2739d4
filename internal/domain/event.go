package domain

import (
	"time"
)

// LedgerEvent is one append-only row of an event ledger. ReferenceID is the
// caller-supplied idempotency key and is unique for the lifetime of the table.
type LedgerEvent struct {
	ID          uint      `json:"id"`
	ReferenceID string    `json:"reference_id"`
	SubjectKey  string    `json:"subject_key"`
	Amount      int64     `json:"amount"`
	Label       string    `json:"label,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// AppendResult reports the outcome of appending an event. A replayed
// reference id yields Accepted=false and the unchanged aggregate total.
type AppendResult struct {
	Accepted bool  `json:"accepted"`
	Total    int64 `json:"total"`
}
