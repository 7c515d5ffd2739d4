package domain

import (
	"time"
)

type IntentStatus string

const (
	IntentPending IntentStatus = "Pending"
	IntentSent    IntentStatus = "Sent"
	IntentFailed  IntentStatus = "Failed"
	// IntentCanceled is reserved for administrative cancellation.
	IntentCanceled IntentStatus = "Canceled"
)

// PaymentIntent is one proposed outbound payment for a payee. It is created
// Pending and finalized exactly once to Sent or Failed. Only a Sent intent
// decrements the payee aggregate.
type PaymentIntent struct {
	ID                uint         `json:"id"`
	SubjectKey        string       `json:"subject_key"`
	Amount            int64        `json:"amount"`
	Status            IntentStatus `json:"status"`
	ExternalReference string       `json:"external_reference,omitempty"`
	Error             string       `json:"error,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	FinalizedAt       *time.Time   `json:"finalized_at,omitempty"`
}

func (p *PaymentIntent) IsFinal() bool {
	return p.Status != IntentPending
}

// IntentStatusCounts summarizes intent history by terminal and pending states.
type IntentStatusCounts map[IntentStatus]int64
