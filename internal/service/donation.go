package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lossledger/lossledger/internal/config"
	"github.com/lossledger/lossledger/internal/domain"
	"github.com/lossledger/lossledger/internal/metrics"
)

var ErrMissingFingerprint = errors.New("token fingerprint is required")

type DonationLedger interface {
	AppendWithShares(ctx context.Context, event domain.LedgerEvent, shares []domain.Share) (bool, error)
	RecentEvents(ctx context.Context, limit int) ([]domain.LedgerEvent, error)
	SumEvents(ctx context.Context) (int64, error)
	SumAggregates(ctx context.Context) (int64, error)
}

// Advisory carries the optional pre-validation inputs for a donation: the
// player it came from and the score they declared. The resulting warnings
// flag anomalous amounts without blocking or mutating anything.
type Advisory struct {
	PlayerKey     string
	DeclaredScore int64
}

// DonationService turns a redeemed-token amount into a donation event, splits
// it across the two configured payees and triggers chunked dispatch for each.
type DonationService struct {
	ledger  DonationLedger
	payouts *PayoutService
	scores  *LeaderboardService
	conf    *config.PayoutConfig
}

func NewDonationService(ledger DonationLedger, payouts *PayoutService, scores *LeaderboardService, conf *config.PayoutConfig) *DonationService {
	return &DonationService{
		ledger:  ledger,
		payouts: payouts,
		scores:  scores,
		conf:    conf,
	}
}

// Ingest records one donation. The donation event and both share deltas
// commit in a single transaction; a replayed fingerprint aborts with
// PreventedDuplicate=true and no other effect. Dispatch runs after commit,
// and a collaborator failure never undoes the recorded donation.
func (s *DonationService) Ingest(ctx context.Context, fingerprint string, amount int64, advisory *Advisory) (domain.DonationReceipt, error) {
	if fingerprint == "" {
		return domain.DonationReceipt{}, ErrMissingFingerprint
	}
	if amount <= 0 {
		return domain.DonationReceipt{}, ErrInvalidAmount
	}

	first, second := domain.SplitAmount(amount)
	payees := s.conf.Payees
	shares := []domain.Share{
		{SubjectKey: payees[0].SubjectKey, Amount: first},
		{SubjectKey: payees[1].SubjectKey, Amount: second},
	}

	receipt := domain.DonationReceipt{
		Fingerprint: fingerprint,
		Amount:      amount,
	}
	if advisory != nil {
		receipt.Warnings = s.advisoryWarnings(ctx, advisory, amount)
	}

	prevented, err := s.ledger.AppendWithShares(ctx, domain.LedgerEvent{
		ReferenceID: fingerprint,
		SubjectKey:  fingerprint,
		Amount:      amount,
	}, shares)
	if err != nil {
		return domain.DonationReceipt{}, fmt.Errorf("s.ledger.AppendWithShares -> %w", err)
	}
	if prevented {
		metrics.DuplicatesPrevented.WithLabelValues("donations").Inc()
		receipt.PreventedDuplicate = true
		return receipt, nil
	}

	metrics.EventsAppended.WithLabelValues("donations").Inc()
	receipt.Shares = shares

	for i, payee := range payees {
		if shares[i].Amount == 0 {
			continue
		}
		intents, err := s.payouts.DispatchChunked(ctx, payee)
		if err != nil {
			// Dispatch failure is local and retryable; the donation stands.
			zap.L().Error("dispatch after donation failed",
				zap.String("subject_key", payee.SubjectKey),
				zap.Error(err))
			continue
		}
		receipt.Intents = append(receipt.Intents, intents...)
	}

	return receipt, nil
}

func (s *DonationService) advisoryWarnings(ctx context.Context, advisory *Advisory, amount int64) []string {
	var warnings []string

	if advisory.PlayerKey != "" {
		avg, count, err := s.scores.AverageLoss(ctx, advisory.PlayerKey)
		if err != nil {
			zap.L().Warn("advisory average-loss lookup failed",
				zap.String("player_key", advisory.PlayerKey),
				zap.Error(err))
		} else if count > 0 && avg > 0 && amount > 10*avg {
			warnings = append(warnings, fmt.Sprintf(
				"amount %d is more than 10x the player's average game loss of %d over %d games",
				amount, avg, count))
		}
	}

	if advisory.DeclaredScore > 0 && amount > advisory.DeclaredScore {
		warnings = append(warnings, fmt.Sprintf(
			"amount %d exceeds the player's declared expected score of %d",
			amount, advisory.DeclaredScore))
	}

	return warnings
}

// IntegrityReport checks that every donated unit is either still owed to a
// payee or already paid out.
func (s *DonationService) IntegrityReport(ctx context.Context) (domain.DonationIntegrityReport, error) {
	donated, err := s.ledger.SumEvents(ctx)
	if err != nil {
		return domain.DonationIntegrityReport{}, fmt.Errorf("s.ledger.SumEvents -> %w", err)
	}
	balances, err := s.ledger.SumAggregates(ctx)
	if err != nil {
		return domain.DonationIntegrityReport{}, fmt.Errorf("s.ledger.SumAggregates -> %w", err)
	}
	sent, err := s.payouts.SumSent(ctx)
	if err != nil {
		return domain.DonationIntegrityReport{}, fmt.Errorf("s.payouts.SumSent -> %w", err)
	}

	drift := donated - balances - sent
	return domain.DonationIntegrityReport{
		CheckedAt:     time.Now().UTC().Format(time.RFC3339),
		DonatedTotal:  donated,
		BalancesTotal: balances,
		SentTotal:     sent,
		Drift:         drift,
		Consistent:    drift == 0,
	}, nil
}

func (s *DonationService) RecentDonations(ctx context.Context, limit int) ([]domain.LedgerEvent, error) {
	events, err := s.ledger.RecentEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("s.ledger.RecentEvents -> %w", err)
	}
	return events, nil
}
