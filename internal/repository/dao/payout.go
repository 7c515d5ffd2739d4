package dao

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrIntentNotPending = errors.New("payment intent is not pending")

// PaymentIntent is one proposed outbound payment. Finalization is guarded by
// a conditional update on status so no intent can be finalized twice.
type PaymentIntent struct {
	ID                uint   `gorm:"primaryKey"`
	SubjectKey        string `gorm:"index;not null"`
	Amount            int64  `gorm:"not null"`
	Status            string `gorm:"index;not null"`
	ExternalReference string
	Error             string
	CreatedAt         time.Time
	FinalizedAt       *time.Time
}

func (PaymentIntent) TableName() string {
	return "payment_intents"
}

// PayoutDAO owns the payment_intents table and, on successful finalization,
// decrements the payee's balance aggregate in the same transaction.
type PayoutDAO struct {
	db       *gorm.DB
	balances string
}

func NewPayoutDAO(db *gorm.DB, balancesTable string) *PayoutDAO {
	return &PayoutDAO{
		db:       db,
		balances: balancesTable,
	}
}

func (d *PayoutDAO) CreatePending(ctx context.Context, subjectKey string, amount int64) (PaymentIntent, error) {
	intent := PaymentIntent{
		SubjectKey: subjectKey,
		Amount:     amount,
		Status:     "Pending",
		CreatedAt:  time.Now().UTC(),
	}

	if err := d.db.WithContext(ctx).Create(&intent).Error; err != nil {
		return PaymentIntent{}, err
	}
	return intent, nil
}

// MarkSent finalizes the intent to Sent and decrements the payee aggregate by
// the intent amount, atomically. Returns ErrIntentNotPending if the intent
// was already finalized.
func (d *PayoutDAO) MarkSent(ctx context.Context, id uint, externalReference string) (PaymentIntent, error) {
	var intent PaymentIntent

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&intent, id).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		res := tx.Model(&PaymentIntent{}).
			Where("id = ? AND status = ?", id, "Pending").
			Updates(map[string]interface{}{
				"status":             "Sent",
				"external_reference": externalReference,
				"finalized_at":       now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrIntentNotPending
		}

		err := tx.Table(d.balances).
			Where("subject_key = ?", intent.SubjectKey).
			Updates(map[string]interface{}{
				"total":      gorm.Expr("total - ?", intent.Amount),
				"updated_at": now,
			}).Error
		if err != nil {
			return err
		}

		intent.Status = "Sent"
		intent.ExternalReference = externalReference
		intent.FinalizedAt = &now
		return nil
	})
	if err != nil {
		return PaymentIntent{}, err
	}

	return intent, nil
}

// MarkFailed finalizes the intent to Failed with the collaborator's error.
// The aggregate is left untouched so the amount stays owed.
func (d *PayoutDAO) MarkFailed(ctx context.Context, id uint, cause string) (PaymentIntent, error) {
	var intent PaymentIntent

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&intent, id).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		res := tx.Model(&PaymentIntent{}).
			Where("id = ? AND status = ?", id, "Pending").
			Updates(map[string]interface{}{
				"status":       "Failed",
				"error":        cause,
				"finalized_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrIntentNotPending
		}

		intent.Status = "Failed"
		intent.Error = cause
		intent.FinalizedAt = &now
		return nil
	})
	if err != nil {
		return PaymentIntent{}, err
	}

	return intent, nil
}

// SumPending totals the not-yet-finalized intents for the payee.
func (d *PayoutDAO) SumPending(ctx context.Context, subjectKey string) (int64, error) {
	var sum int64
	err := d.db.WithContext(ctx).Model(&PaymentIntent{}).
		Where("subject_key = ? AND status = ?", subjectKey, "Pending").
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// SumSent totals every successfully dispatched payment.
func (d *PayoutDAO) SumSent(ctx context.Context) (int64, error) {
	var sum int64
	err := d.db.WithContext(ctx).Model(&PaymentIntent{}).
		Where("status = ?", "Sent").
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

func (d *PayoutDAO) ListBySubject(ctx context.Context, subjectKey string, limit int) ([]PaymentIntent, error) {
	var intents []PaymentIntent
	err := d.db.WithContext(ctx).
		Where("subject_key = ?", subjectKey).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&intents).Error
	return intents, err
}

func (d *PayoutDAO) ListRecent(ctx context.Context, limit int) ([]PaymentIntent, error) {
	var intents []PaymentIntent
	err := d.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&intents).Error
	return intents, err
}

func (d *PayoutDAO) StatusCounts(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := d.db.WithContext(ctx).Model(&PaymentIntent{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
