package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lossledger/lossledger/internal/domain"
	"github.com/lossledger/lossledger/internal/repository/dao"
)

var (
	ErrDuplicateReference = dao.ErrDuplicateReference
	ErrEventNotFound      = dao.ErrEventNotFound
)

type LedgerDAO interface {
	Append(ctx context.Context, event dao.Event) (dao.AppendOutcome, error)
	AppendWithShares(ctx context.Context, event dao.Event, shares []dao.Aggregate) (bool, error)
	ApplyDelta(ctx context.Context, subjectKey string, delta int64) error
	Total(ctx context.Context, subjectKey string) (int64, error)
	Reconcile(ctx context.Context, subjectKey string) (dao.ReconcileOutcome, error)
	CheckSubject(ctx context.Context, subjectKey string) (stored, computed int64, err error)
	SubjectKeys(ctx context.Context) ([]string, error)
	EventsFor(ctx context.Context, subjectKey string, limit int) ([]dao.Event, error)
	RecentEvents(ctx context.Context, limit int) ([]dao.Event, error)
	AverageAmount(ctx context.Context, subjectKey string) (int64, int64, error)
	SumEvents(ctx context.Context) (int64, error)
	SumAggregates(ctx context.Context) (int64, error)
}

// LedgerRepository exposes one event-ledger instance (events + aggregates)
// as domain types. The leaderboard and the donation ledger each wrap their
// own DAO instance.
type LedgerRepository struct {
	dao LedgerDAO
}

func NewLedgerRepository(dao LedgerDAO) *LedgerRepository {
	return &LedgerRepository{
		dao: dao,
	}
}

func (r *LedgerRepository) domainToDAO(event domain.LedgerEvent) dao.Event {
	return dao.Event{
		ID:          event.ID,
		ReferenceID: event.ReferenceID,
		SubjectKey:  event.SubjectKey,
		Amount:      event.Amount,
		Label:       event.Label,
		RecordedAt:  event.RecordedAt,
	}
}

func (r *LedgerRepository) daoToDomain(event dao.Event) domain.LedgerEvent {
	return domain.LedgerEvent{
		ID:          event.ID,
		ReferenceID: event.ReferenceID,
		SubjectKey:  event.SubjectKey,
		Amount:      event.Amount,
		Label:       event.Label,
		RecordedAt:  event.RecordedAt,
	}
}

func (r *LedgerRepository) daosToDomain(events []dao.Event) []domain.LedgerEvent {
	converted := make([]domain.LedgerEvent, len(events))
	for i, event := range events {
		converted[i] = r.daoToDomain(event)
	}
	return converted
}

func (r *LedgerRepository) Append(ctx context.Context, event domain.LedgerEvent) (domain.AppendResult, error) {
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}

	outcome, err := r.dao.Append(ctx, r.domainToDAO(event))
	if err != nil {
		return domain.AppendResult{}, fmt.Errorf("r.dao.Append -> %w", err)
	}

	return domain.AppendResult{Accepted: outcome.Accepted, Total: outcome.Total}, nil
}

func (r *LedgerRepository) AppendWithShares(ctx context.Context, event domain.LedgerEvent, shares []domain.Share) (bool, error) {
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}

	daoShares := make([]dao.Aggregate, len(shares))
	for i, share := range shares {
		daoShares[i] = dao.Aggregate{SubjectKey: share.SubjectKey, Total: share.Amount}
	}

	prevented, err := r.dao.AppendWithShares(ctx, r.domainToDAO(event), daoShares)
	if err != nil {
		return false, fmt.Errorf("r.dao.AppendWithShares -> %w", err)
	}

	return prevented, nil
}

func (r *LedgerRepository) ApplyDelta(ctx context.Context, subjectKey string, delta int64) error {
	if err := r.dao.ApplyDelta(ctx, subjectKey, delta); err != nil {
		return fmt.Errorf("r.dao.ApplyDelta -> %w", err)
	}
	return nil
}

func (r *LedgerRepository) Total(ctx context.Context, subjectKey string) (int64, error) {
	total, err := r.dao.Total(ctx, subjectKey)
	if err != nil {
		return 0, fmt.Errorf("r.dao.Total -> %w", err)
	}
	return total, nil
}

func (r *LedgerRepository) Reconcile(ctx context.Context, subjectKey string) (domain.ReconcileResult, error) {
	outcome, err := r.dao.Reconcile(ctx, subjectKey)
	if err != nil {
		return domain.ReconcileResult{}, fmt.Errorf("r.dao.Reconcile -> %w", err)
	}

	return domain.ReconcileResult{
		SubjectKey:      subjectKey,
		WasInconsistent: outcome.WasInconsistent,
		OldTotal:        outcome.OldTotal,
		NewTotal:        outcome.NewTotal,
		Difference:      outcome.Difference,
	}, nil
}

// IntegrityCheck compares stored aggregates against recomputed event sums for
// every known subject, read-only. A subset reported as drifted may have been
// racing a concurrent append; a follow-up Reconcile settles it.
func (r *LedgerRepository) IntegrityCheck(ctx context.Context) (domain.IntegrityReport, error) {
	keys, err := r.dao.SubjectKeys(ctx)
	if err != nil {
		return domain.IntegrityReport{}, fmt.Errorf("r.dao.SubjectKeys -> %w", err)
	}

	report := domain.IntegrityReport{
		CheckedAt: time.Now().UTC(),
		Subjects:  len(keys),
	}
	for _, key := range keys {
		stored, computed, err := r.dao.CheckSubject(ctx, key)
		if err != nil {
			return domain.IntegrityReport{}, fmt.Errorf("r.dao.CheckSubject -> %w", err)
		}
		if stored == computed {
			continue
		}

		diff := computed - stored
		report.Drifted = append(report.Drifted, domain.ReconcileResult{
			SubjectKey:      key,
			WasInconsistent: true,
			OldTotal:        stored,
			NewTotal:        computed,
			Difference:      diff,
		})
		if diff < 0 {
			diff = -diff
		}
		report.TotalAbsDrift += diff
	}

	return report, nil
}

func (r *LedgerRepository) EventsFor(ctx context.Context, subjectKey string, limit int) ([]domain.LedgerEvent, error) {
	events, err := r.dao.EventsFor(ctx, subjectKey, limit)
	if err != nil {
		return nil, fmt.Errorf("r.dao.EventsFor -> %w", err)
	}
	return r.daosToDomain(events), nil
}

func (r *LedgerRepository) RecentEvents(ctx context.Context, limit int) ([]domain.LedgerEvent, error) {
	events, err := r.dao.RecentEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("r.dao.RecentEvents -> %w", err)
	}
	return r.daosToDomain(events), nil
}

func (r *LedgerRepository) AverageAmount(ctx context.Context, subjectKey string) (int64, int64, error) {
	avg, count, err := r.dao.AverageAmount(ctx, subjectKey)
	if err != nil {
		return 0, 0, fmt.Errorf("r.dao.AverageAmount -> %w", err)
	}
	return avg, count, nil
}

func (r *LedgerRepository) SumEvents(ctx context.Context) (int64, error) {
	sum, err := r.dao.SumEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("r.dao.SumEvents -> %w", err)
	}
	return sum, nil
}

func (r *LedgerRepository) SumAggregates(ctx context.Context) (int64, error) {
	sum, err := r.dao.SumAggregates(ctx)
	if err != nil {
		return 0, fmt.Errorf("r.dao.SumAggregates -> %w", err)
	}
	return sum, nil
}
