package dao

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrAccessRequestNotFound = errors.New("access request not found")

// AccessRequest records one gate decision per token fingerprint, independent
// of whether a donation event was recorded afterwards.
type AccessRequest struct {
	ReferenceID string `gorm:"primaryKey"`
	Decision    string `gorm:"not null"`
	Amount      int64
	Reason      string
	CreatedAt   time.Time
}

func (AccessRequest) TableName() string {
	return "access_requests"
}

type AccessRequestDAO struct {
	db *gorm.DB
}

func NewAccessRequestDAO(db *gorm.DB) *AccessRequestDAO {
	return &AccessRequestDAO{
		db: db,
	}
}

// Upsert stores the latest decision for the fingerprint, overwriting an
// earlier row. Granted rows are final to callers; only denied rows are ever
// re-decided.
func (d *AccessRequestDAO) Upsert(ctx context.Context, record AccessRequest) (AccessRequest, error) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reference_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"decision", "amount", "reason", "created_at"}),
	}).Create(&record).Error
	if err != nil {
		return AccessRequest{}, err
	}
	return record, nil
}

func (d *AccessRequestDAO) FindByReference(ctx context.Context, referenceID string) (AccessRequest, error) {
	var record AccessRequest
	err := d.db.WithContext(ctx).Where("reference_id = ?", referenceID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AccessRequest{}, ErrAccessRequestNotFound
		}
		return AccessRequest{}, err
	}
	return record, nil
}

func (d *AccessRequestDAO) ListRecent(ctx context.Context, limit int) ([]AccessRequest, error) {
	var records []AccessRequest
	err := d.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
