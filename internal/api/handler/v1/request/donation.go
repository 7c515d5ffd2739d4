package request

import (
	validation "github.com/go-ozzo/ozzo-validation"
)

type RedeemTokenRequest struct {
	Token     string `json:"token"`
	MinAmount int64  `json:"min_amount"`
}

func (req *RedeemTokenRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Token, validation.Required),
		validation.Field(&req.MinAmount, validation.Min(int64(0))),
	)
}

type IngestDonationRequest struct {
	Fingerprint string `json:"fingerprint"`
	Amount      int64  `json:"amount"`
	// Optional advisory inputs; warnings only, never blocking.
	PlayerKey     string `json:"player_key"`
	DeclaredScore int64  `json:"declared_score"`
}

func (req *IngestDonationRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Fingerprint, validation.Required, validation.Length(1, 128)),
		validation.Field(&req.Amount, validation.Required, validation.Min(int64(1))),
	)
}
