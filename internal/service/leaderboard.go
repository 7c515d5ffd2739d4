package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lossledger/lossledger/internal/domain"
	"github.com/lossledger/lossledger/internal/metrics"
)

var (
	ErrMissingReferenceID = errors.New("reference id is required")
	ErrMissingSubjectKey  = errors.New("subject key is required")
	ErrInvalidAmount      = errors.New("amount must be a positive integer")
	ErrInvalidInitials    = errors.New("player initials must be exactly 3 characters")
)

type ScoreLedger interface {
	Append(ctx context.Context, event domain.LedgerEvent) (domain.AppendResult, error)
	Total(ctx context.Context, subjectKey string) (int64, error)
	Reconcile(ctx context.Context, subjectKey string) (domain.ReconcileResult, error)
	IntegrityCheck(ctx context.Context) (domain.IntegrityReport, error)
	EventsFor(ctx context.Context, subjectKey string, limit int) ([]domain.LedgerEvent, error)
	RecentEvents(ctx context.Context, limit int) ([]domain.LedgerEvent, error)
	AverageAmount(ctx context.Context, subjectKey string) (int64, int64, error)
}

// LeaderboardService tracks cumulative game losses per player on top of the
// leaderboard ledger instance.
type LeaderboardService struct {
	ledger ScoreLedger
}

func NewLeaderboardService(ledger ScoreLedger) *LeaderboardService {
	return &LeaderboardService{
		ledger: ledger,
	}
}

// RecordLoss appends one game result. Replaying a reference id is not an
// error: the result carries Accepted=false and the unchanged total.
func (s *LeaderboardService) RecordLoss(ctx context.Context, referenceID, playerKey, initials string, amount int64) (domain.AppendResult, error) {
	if strings.TrimSpace(referenceID) == "" {
		return domain.AppendResult{}, ErrMissingReferenceID
	}
	if strings.TrimSpace(playerKey) == "" {
		return domain.AppendResult{}, ErrMissingSubjectKey
	}
	if amount <= 0 {
		return domain.AppendResult{}, ErrInvalidAmount
	}
	if len(initials) != 3 {
		return domain.AppendResult{}, ErrInvalidInitials
	}

	result, err := s.ledger.Append(ctx, domain.LedgerEvent{
		ReferenceID: referenceID,
		SubjectKey:  playerKey,
		Amount:      amount,
		Label:       strings.ToUpper(initials),
	})
	if err != nil {
		return domain.AppendResult{}, fmt.Errorf("s.ledger.Append -> %w", err)
	}

	if result.Accepted {
		metrics.EventsAppended.WithLabelValues("leaderboard").Inc()
	} else {
		metrics.DuplicatesPrevented.WithLabelValues("leaderboard").Inc()
	}

	return result, nil
}

func (s *LeaderboardService) GetScore(ctx context.Context, playerKey string) (int64, error) {
	total, err := s.ledger.Total(ctx, playerKey)
	if err != nil {
		return 0, fmt.Errorf("s.ledger.Total -> %w", err)
	}
	return total, nil
}

func (s *LeaderboardService) PlayerEvents(ctx context.Context, playerKey string, limit int) ([]domain.LedgerEvent, error) {
	events, err := s.ledger.EventsFor(ctx, playerKey, limit)
	if err != nil {
		return nil, fmt.Errorf("s.ledger.EventsFor -> %w", err)
	}
	return events, nil
}

func (s *LeaderboardService) RecentEvents(ctx context.Context, limit int) ([]domain.LedgerEvent, error) {
	events, err := s.ledger.RecentEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("s.ledger.RecentEvents -> %w", err)
	}
	return events, nil
}

// Reconcile recomputes one player's total from their events and repairs the
// stored aggregate if it drifted.
func (s *LeaderboardService) Reconcile(ctx context.Context, playerKey string) (domain.ReconcileResult, error) {
	if strings.TrimSpace(playerKey) == "" {
		return domain.ReconcileResult{}, ErrMissingSubjectKey
	}

	result, err := s.ledger.Reconcile(ctx, playerKey)
	if err != nil {
		return domain.ReconcileResult{}, fmt.Errorf("s.ledger.Reconcile -> %w", err)
	}

	if result.WasInconsistent {
		metrics.DriftRepaired.Inc()
	}

	return result, nil
}

func (s *LeaderboardService) IntegrityCheck(ctx context.Context) (domain.IntegrityReport, error) {
	report, err := s.ledger.IntegrityCheck(ctx)
	if err != nil {
		return domain.IntegrityReport{}, fmt.Errorf("s.ledger.IntegrityCheck -> %w", err)
	}
	return report, nil
}

// AverageLoss reports the player's mean recorded loss and the number of games
// behind it. Used by the donation advisory check.
func (s *LeaderboardService) AverageLoss(ctx context.Context, playerKey string) (int64, int64, error) {
	avg, count, err := s.ledger.AverageAmount(ctx, playerKey)
	if err != nil {
		return 0, 0, fmt.Errorf("s.ledger.AverageAmount -> %w", err)
	}
	return avg, count, nil
}
