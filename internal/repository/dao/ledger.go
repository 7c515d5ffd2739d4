package dao

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrDuplicateReference = errors.New("reference id already recorded")
	ErrEventNotFound      = errors.New("event not found")
)

// GameEvent is one game-result row of the leaderboard ledger.
type GameEvent struct {
	ID          uint   `gorm:"primaryKey"`
	ReferenceID string `gorm:"uniqueIndex;not null"`
	SubjectKey  string `gorm:"index;not null"`
	Amount      int64  `gorm:"not null"`
	Label       string `gorm:"size:3"` // player initials
	RecordedAt  time.Time
}

func (GameEvent) TableName() string {
	return "game_events"
}

// ScoreAggregate is the materialized loss total per player.
type ScoreAggregate struct {
	SubjectKey string `gorm:"primaryKey"`
	Total      int64  `gorm:"not null"`
	UpdatedAt  time.Time
}

func (ScoreAggregate) TableName() string {
	return "score_aggregates"
}

// DonationEvent is one redeemed-token row of the donation ledger, keyed by
// the token's content fingerprint.
type DonationEvent struct {
	ID          uint   `gorm:"primaryKey"`
	ReferenceID string `gorm:"uniqueIndex;not null"`
	SubjectKey  string `gorm:"index;not null"`
	Amount      int64  `gorm:"not null"`
	Label       string
	RecordedAt  time.Time
}

func (DonationEvent) TableName() string {
	return "donation_events"
}

// BalanceAggregate is the earned-but-unpaid total per payee.
type BalanceAggregate struct {
	SubjectKey string `gorm:"primaryKey"`
	Total      int64  `gorm:"not null"`
	UpdatedAt  time.Time
}

func (BalanceAggregate) TableName() string {
	return "balance_aggregates"
}

// Event and Aggregate are the neutral row shapes the DAO reads and writes.
// Both ledger instances share them; the table is chosen per DAO instance.
type Event struct {
	ID          uint
	ReferenceID string
	SubjectKey  string
	Amount      int64
	Label       string
	RecordedAt  time.Time
}

type Aggregate struct {
	SubjectKey string
	Total      int64
	UpdatedAt  time.Time
}

type AppendOutcome struct {
	Accepted bool
	Total    int64
}

type ReconcileOutcome struct {
	WasInconsistent bool
	OldTotal        int64
	NewTotal        int64
	Difference      int64
}

// LedgerDAO serves one event-ledger instance: an events table plus its
// aggregates table. The leaderboard and the donation ledger each get their
// own instance over the same database handle.
type LedgerDAO struct {
	db         *gorm.DB
	events     string
	aggregates string
}

func NewLedgerDAO(db *gorm.DB, eventsTable, aggregatesTable string) *LedgerDAO {
	return &LedgerDAO{
		db:         db,
		events:     eventsTable,
		aggregates: aggregatesTable,
	}
}

func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Append inserts the event and applies its amount to the subject's aggregate
// in one transaction. A replayed reference id performs no write and returns
// the subject's current total with Accepted=false.
func (d *LedgerDAO) Append(ctx context.Context, event Event) (AppendOutcome, error) {
	var outcome AppendOutcome

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Event
		err := tx.Table(d.events).Where("reference_id = ?", event.ReferenceID).First(&existing).Error
		if err == nil {
			total, err := d.totalTx(tx, existing.SubjectKey)
			if err != nil {
				return err
			}
			outcome = AppendOutcome{Accepted: false, Total: total}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Table(d.events).Create(&event).Error; err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateReference
			}
			return err
		}

		if err := d.applyDeltaTx(tx, event.SubjectKey, event.Amount, event.RecordedAt); err != nil {
			return err
		}

		total, err := d.totalTx(tx, event.SubjectKey)
		if err != nil {
			return err
		}
		outcome = AppendOutcome{Accepted: true, Total: total}
		return nil
	})
	if errors.Is(err, ErrDuplicateReference) {
		// Lost a race to a concurrent insert of the same reference id. The
		// idempotent outcome still applies: report the current total.
		return d.duplicateOutcome(ctx, event.ReferenceID)
	}
	if err != nil {
		return AppendOutcome{}, err
	}

	return outcome, nil
}

func (d *LedgerDAO) duplicateOutcome(ctx context.Context, referenceID string) (AppendOutcome, error) {
	var existing Event
	err := d.db.WithContext(ctx).Table(d.events).Where("reference_id = ?", referenceID).First(&existing).Error
	if err != nil {
		return AppendOutcome{}, err
	}

	total, err := d.totalTx(d.db.WithContext(ctx), existing.SubjectKey)
	if err != nil {
		return AppendOutcome{}, err
	}
	return AppendOutcome{Accepted: false, Total: total}, nil
}

// AppendWithShares inserts a donation event and applies each share to its
// payee aggregate, all in one transaction. A replayed reference id rolls the
// whole operation back and reports prevented=true.
func (d *LedgerDAO) AppendWithShares(ctx context.Context, event Event, shares []Aggregate) (bool, error) {
	prevented := false

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Event
		err := tx.Table(d.events).Where("reference_id = ?", event.ReferenceID).First(&existing).Error
		if err == nil {
			prevented = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Table(d.events).Create(&event).Error; err != nil {
			if isDuplicateKeyError(err) {
				prevented = true
				return nil
			}
			return err
		}

		for _, share := range shares {
			if share.Total == 0 {
				continue
			}
			if err := d.applyDeltaTx(tx, share.SubjectKey, share.Total, event.RecordedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	return prevented, nil
}

func (d *LedgerDAO) applyDeltaTx(tx *gorm.DB, subjectKey string, delta int64, now time.Time) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return tx.Table(d.aggregates).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "subject_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total":      gorm.Expr("total + ?", delta),
			"updated_at": now,
		}),
	}).Create(&Aggregate{SubjectKey: subjectKey, Total: delta, UpdatedAt: now}).Error
}

// ApplyDelta upserts the subject's aggregate outside of an append.
func (d *LedgerDAO) ApplyDelta(ctx context.Context, subjectKey string, delta int64) error {
	return d.applyDeltaTx(d.db.WithContext(ctx), subjectKey, delta, time.Now().UTC())
}

func (d *LedgerDAO) totalTx(tx *gorm.DB, subjectKey string) (int64, error) {
	var agg Aggregate
	err := tx.Table(d.aggregates).Where("subject_key = ?", subjectKey).First(&agg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return agg.Total, nil
}

// Total returns the stored aggregate for the subject, 0 if absent.
func (d *LedgerDAO) Total(ctx context.Context, subjectKey string) (int64, error) {
	return d.totalTx(d.db.WithContext(ctx), subjectKey)
}

func (d *LedgerDAO) sumEventsTx(tx *gorm.DB, subjectKey string) (int64, error) {
	var sum int64
	err := tx.Table(d.events).
		Where("subject_key = ?", subjectKey).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// Reconcile recomputes the subject's total from its events and repairs the
// stored aggregate inside a transaction if the two disagree.
func (d *LedgerDAO) Reconcile(ctx context.Context, subjectKey string) (ReconcileOutcome, error) {
	var outcome ReconcileOutcome

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored, err := d.totalTx(tx, subjectKey)
		if err != nil {
			return err
		}
		computed, err := d.sumEventsTx(tx, subjectKey)
		if err != nil {
			return err
		}

		outcome = ReconcileOutcome{
			WasInconsistent: stored != computed,
			OldTotal:        stored,
			NewTotal:        computed,
			Difference:      computed - stored,
		}
		if !outcome.WasInconsistent {
			return nil
		}

		now := time.Now().UTC()
		return tx.Table(d.aggregates).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "subject_key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total":      computed,
				"updated_at": now,
			}),
		}).Create(&Aggregate{SubjectKey: subjectKey, Total: computed, UpdatedAt: now}).Error
	})
	if err != nil {
		return ReconcileOutcome{}, err
	}

	return outcome, nil
}

// CheckSubject is the read-only half of Reconcile, used by the integrity
// sweep. It never writes.
func (d *LedgerDAO) CheckSubject(ctx context.Context, subjectKey string) (stored, computed int64, err error) {
	tx := d.db.WithContext(ctx)
	stored, err = d.totalTx(tx, subjectKey)
	if err != nil {
		return 0, 0, err
	}
	computed, err = d.sumEventsTx(tx, subjectKey)
	if err != nil {
		return 0, 0, err
	}
	return stored, computed, nil
}

// SubjectKeys returns every subject known to either table.
func (d *LedgerDAO) SubjectKeys(ctx context.Context) ([]string, error) {
	var fromEvents []string
	err := d.db.WithContext(ctx).Table(d.events).Distinct("subject_key").Pluck("subject_key", &fromEvents).Error
	if err != nil {
		return nil, err
	}

	var fromAggregates []string
	err = d.db.WithContext(ctx).Table(d.aggregates).Pluck("subject_key", &fromAggregates).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(fromEvents)+len(fromAggregates))
	keys := make([]string, 0, len(fromEvents)+len(fromAggregates))
	for _, k := range append(fromEvents, fromAggregates...) {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys, nil
}

// EventsFor lists the subject's events, newest first.
func (d *LedgerDAO) EventsFor(ctx context.Context, subjectKey string, limit int) ([]Event, error) {
	var events []Event
	err := d.db.WithContext(ctx).Table(d.events).
		Where("subject_key = ?", subjectKey).
		Order("recorded_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// RecentEvents lists the newest events across all subjects.
func (d *LedgerDAO) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	var events []Event
	err := d.db.WithContext(ctx).Table(d.events).
		Order("recorded_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// AverageAmount returns the mean event amount for the subject and how many
// events contributed to it.
func (d *LedgerDAO) AverageAmount(ctx context.Context, subjectKey string) (int64, int64, error) {
	var row struct {
		Avg   float64
		Count int64
	}
	err := d.db.WithContext(ctx).Table(d.events).
		Where("subject_key = ?", subjectKey).
		Select("COALESCE(AVG(amount), 0) AS avg, COUNT(*) AS count").
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return int64(row.Avg), row.Count, nil
}

// SumEvents totals every event in the ledger.
func (d *LedgerDAO) SumEvents(ctx context.Context) (int64, error) {
	var sum int64
	err := d.db.WithContext(ctx).Table(d.events).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// SumAggregates totals every stored aggregate.
func (d *LedgerDAO) SumAggregates(ctx context.Context) (int64, error) {
	var sum int64
	err := d.db.WithContext(ctx).Table(d.aggregates).
		Select("COALESCE(SUM(total), 0)").
		Scan(&sum).Error
	return sum, err
}
