package response

import (
	"github.com/lossledger/lossledger/internal/domain"
)

type Score struct {
	SubjectKey string `json:"subject_key"`
	Total      int64  `json:"total"`
}

type Balance struct {
	SubjectKey string `json:"subject_key"`
	Total      int64  `json:"total"`
}

type Events struct {
	Events []domain.LedgerEvent `json:"events"`
}

type Intents struct {
	Intents []domain.PaymentIntent `json:"intents"`
}

// DrainOutcome reports one on-demand drain pass: the intents finalized plus
// any per-payee dispatch failures, keyed by subject key.
type DrainOutcome struct {
	Intents  []domain.PaymentIntent `json:"intents"`
	Failures map[string]string      `json:"failures,omitempty"`
}

type AccessRequests struct {
	Requests []domain.AccessRequest `json:"requests"`
}
