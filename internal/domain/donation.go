package domain

// Share is one payee's portion of a split donation.
type Share struct {
	SubjectKey string `json:"subject_key"`
	Amount     int64  `json:"amount"`
}

// SplitAmount divides a donation across the two payees. The first share is
// the ceiling half, the second the floor half, so an odd amount favors the
// first payee by exactly one unit.
func SplitAmount(amount int64) (first, second int64) {
	first = (amount + 1) / 2
	second = amount / 2
	return first, second
}

// DonationIntegrityReport checks the donation ledger as a whole: every unit
// donated is either still owed to a payee or has been paid out.
type DonationIntegrityReport struct {
	CheckedAt     string `json:"checked_at"`
	DonatedTotal  int64  `json:"donated_total"`
	BalancesTotal int64  `json:"balances_total"`
	SentTotal     int64  `json:"sent_total"`
	Drift         int64  `json:"drift"`
	Consistent    bool   `json:"consistent"`
}

// DonationReceipt is returned to the caller after ingesting a redeemed token.
type DonationReceipt struct {
	Fingerprint        string          `json:"fingerprint"`
	Amount             int64           `json:"amount"`
	PreventedDuplicate bool            `json:"prevented_duplicate"`
	Shares             []Share         `json:"shares,omitempty"`
	Intents            []PaymentIntent `json:"intents,omitempty"`
	Warnings           []string        `json:"warnings,omitempty"`
}
