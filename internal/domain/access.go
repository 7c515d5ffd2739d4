package domain

import (
	"time"
)

type GateDecision string

const (
	GateGranted GateDecision = "GRANTED"
	GateDenied  GateDecision = "DENIED"
)

// GateResult is the access-gate collaborator's answer for a presented token.
type GateResult struct {
	Decision GateDecision `json:"decision"`
	Amount   int64        `json:"amount"`
	Reason   string       `json:"reason,omitempty"`
}

// AccessRequest records one gate decision keyed by the token fingerprint.
// It exists independently of the donation ledger so repeated presentation of
// the same token is visible even before ledger-level dedup runs.
type AccessRequest struct {
	ReferenceID string       `json:"reference_id"`
	Decision    GateDecision `json:"decision"`
	Amount      int64        `json:"amount"`
	Reason      string       `json:"reason,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
