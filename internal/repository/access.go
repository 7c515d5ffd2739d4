package repository

import (
	"context"
	"fmt"

	"github.com/lossledger/lossledger/internal/domain"
	"github.com/lossledger/lossledger/internal/repository/dao"
)

var ErrAccessRequestNotFound = dao.ErrAccessRequestNotFound

type AccessRequestDAO interface {
	Upsert(ctx context.Context, record dao.AccessRequest) (dao.AccessRequest, error)
	FindByReference(ctx context.Context, referenceID string) (dao.AccessRequest, error)
	ListRecent(ctx context.Context, limit int) ([]dao.AccessRequest, error)
}

type AccessRequestRepository struct {
	dao AccessRequestDAO
}

func NewAccessRequestRepository(dao AccessRequestDAO) *AccessRequestRepository {
	return &AccessRequestRepository{
		dao: dao,
	}
}

func (r *AccessRequestRepository) daoToDomain(record dao.AccessRequest) domain.AccessRequest {
	return domain.AccessRequest{
		ReferenceID: record.ReferenceID,
		Decision:    domain.GateDecision(record.Decision),
		Amount:      record.Amount,
		Reason:      record.Reason,
		CreatedAt:   record.CreatedAt,
	}
}

// Record upserts the decision for the fingerprint; the newest decision wins.
func (r *AccessRequestRepository) Record(ctx context.Context, request domain.AccessRequest) (domain.AccessRequest, error) {
	record, err := r.dao.Upsert(ctx, dao.AccessRequest{
		ReferenceID: request.ReferenceID,
		Decision:    string(request.Decision),
		Amount:      request.Amount,
		Reason:      request.Reason,
		CreatedAt:   request.CreatedAt,
	})
	if err != nil {
		return domain.AccessRequest{}, fmt.Errorf("r.dao.Upsert -> %w", err)
	}
	return r.daoToDomain(record), nil
}

func (r *AccessRequestRepository) FindByReference(ctx context.Context, referenceID string) (domain.AccessRequest, error) {
	record, err := r.dao.FindByReference(ctx, referenceID)
	if err != nil {
		return domain.AccessRequest{}, fmt.Errorf("r.dao.FindByReference -> %w", err)
	}
	return r.daoToDomain(record), nil
}

func (r *AccessRequestRepository) ListRecent(ctx context.Context, limit int) ([]domain.AccessRequest, error) {
	records, err := r.dao.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("r.dao.ListRecent -> %w", err)
	}

	requests := make([]domain.AccessRequest, len(records))
	for i, record := range records {
		requests[i] = r.daoToDomain(record)
	}
	return requests, nil
}
