package repository

import (
	"context"
	"fmt"

	"github.com/lossledger/lossledger/internal/domain"
	"github.com/lossledger/lossledger/internal/repository/dao"
)

var ErrIntentNotPending = dao.ErrIntentNotPending

type PayoutDAO interface {
	CreatePending(ctx context.Context, subjectKey string, amount int64) (dao.PaymentIntent, error)
	MarkSent(ctx context.Context, id uint, externalReference string) (dao.PaymentIntent, error)
	MarkFailed(ctx context.Context, id uint, cause string) (dao.PaymentIntent, error)
	SumPending(ctx context.Context, subjectKey string) (int64, error)
	SumSent(ctx context.Context) (int64, error)
	ListBySubject(ctx context.Context, subjectKey string, limit int) ([]dao.PaymentIntent, error)
	ListRecent(ctx context.Context, limit int) ([]dao.PaymentIntent, error)
	StatusCounts(ctx context.Context) (map[string]int64, error)
}

type PayoutRepository struct {
	dao PayoutDAO
}

func NewPayoutRepository(dao PayoutDAO) *PayoutRepository {
	return &PayoutRepository{
		dao: dao,
	}
}

func (r *PayoutRepository) daoToDomain(intent dao.PaymentIntent) domain.PaymentIntent {
	return domain.PaymentIntent{
		ID:                intent.ID,
		SubjectKey:        intent.SubjectKey,
		Amount:            intent.Amount,
		Status:            domain.IntentStatus(intent.Status),
		ExternalReference: intent.ExternalReference,
		Error:             intent.Error,
		CreatedAt:         intent.CreatedAt,
		FinalizedAt:       intent.FinalizedAt,
	}
}

func (r *PayoutRepository) daosToDomain(intents []dao.PaymentIntent) []domain.PaymentIntent {
	converted := make([]domain.PaymentIntent, len(intents))
	for i, intent := range intents {
		converted[i] = r.daoToDomain(intent)
	}
	return converted
}

func (r *PayoutRepository) CreatePending(ctx context.Context, subjectKey string, amount int64) (domain.PaymentIntent, error) {
	intent, err := r.dao.CreatePending(ctx, subjectKey, amount)
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("r.dao.CreatePending -> %w", err)
	}
	return r.daoToDomain(intent), nil
}

func (r *PayoutRepository) MarkSent(ctx context.Context, id uint, externalReference string) (domain.PaymentIntent, error) {
	intent, err := r.dao.MarkSent(ctx, id, externalReference)
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("r.dao.MarkSent -> %w", err)
	}
	return r.daoToDomain(intent), nil
}

func (r *PayoutRepository) MarkFailed(ctx context.Context, id uint, cause string) (domain.PaymentIntent, error) {
	intent, err := r.dao.MarkFailed(ctx, id, cause)
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("r.dao.MarkFailed -> %w", err)
	}
	return r.daoToDomain(intent), nil
}

func (r *PayoutRepository) SumPending(ctx context.Context, subjectKey string) (int64, error) {
	sum, err := r.dao.SumPending(ctx, subjectKey)
	if err != nil {
		return 0, fmt.Errorf("r.dao.SumPending -> %w", err)
	}
	return sum, nil
}

func (r *PayoutRepository) SumSent(ctx context.Context) (int64, error) {
	sum, err := r.dao.SumSent(ctx)
	if err != nil {
		return 0, fmt.Errorf("r.dao.SumSent -> %w", err)
	}
	return sum, nil
}

func (r *PayoutRepository) ListBySubject(ctx context.Context, subjectKey string, limit int) ([]domain.PaymentIntent, error) {
	intents, err := r.dao.ListBySubject(ctx, subjectKey, limit)
	if err != nil {
		return nil, fmt.Errorf("r.dao.ListBySubject -> %w", err)
	}
	return r.daosToDomain(intents), nil
}

func (r *PayoutRepository) ListRecent(ctx context.Context, limit int) ([]domain.PaymentIntent, error) {
	intents, err := r.dao.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("r.dao.ListRecent -> %w", err)
	}
	return r.daosToDomain(intents), nil
}

func (r *PayoutRepository) StatusCounts(ctx context.Context) (domain.IntentStatusCounts, error) {
	counts, err := r.dao.StatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("r.dao.StatusCounts -> %w", err)
	}

	converted := make(domain.IntentStatusCounts, len(counts))
	for status, count := range counts {
		converted[domain.IntentStatus(status)] = count
	}
	return converted, nil
}
