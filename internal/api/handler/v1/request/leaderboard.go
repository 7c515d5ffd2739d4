package request

import (
	validation "github.com/go-ozzo/ozzo-validation"
)

type RecordResultRequest struct {
	ReferenceID string `json:"reference_id"`
	PlayerKey   string `json:"player_key"`
	Initials    string `json:"initials"`
	Amount      int64  `json:"amount"`
}

func (req *RecordResultRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.ReferenceID, validation.Required, validation.Length(1, 128)),
		validation.Field(&req.PlayerKey, validation.Required, validation.Length(1, 128)),
		validation.Field(&req.Initials, validation.Required, validation.Length(3, 3)),
		validation.Field(&req.Amount, validation.Required, validation.Min(int64(1))),
	)
}
