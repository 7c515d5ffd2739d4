package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lossledger/lossledger/internal/config"
	"github.com/lossledger/lossledger/internal/domain"
	"github.com/lossledger/lossledger/internal/metrics"
)

// PaymentClient is the external payment-dispatch collaborator. An error means
// the payment did not happen; the owed amount stays on the ledger.
type PaymentClient interface {
	Pay(ctx context.Context, payeeIdentifier string, amount int64, destination, comment string) (string, error)
}

type PayoutRepository interface {
	CreatePending(ctx context.Context, subjectKey string, amount int64) (domain.PaymentIntent, error)
	MarkSent(ctx context.Context, id uint, externalReference string) (domain.PaymentIntent, error)
	MarkFailed(ctx context.Context, id uint, cause string) (domain.PaymentIntent, error)
	SumPending(ctx context.Context, subjectKey string) (int64, error)
	SumSent(ctx context.Context) (int64, error)
	ListBySubject(ctx context.Context, subjectKey string, limit int) ([]domain.PaymentIntent, error)
	ListRecent(ctx context.Context, limit int) ([]domain.PaymentIntent, error)
	StatusCounts(ctx context.Context) (domain.IntentStatusCounts, error)
}

type BalanceLedger interface {
	Total(ctx context.Context, subjectKey string) (int64, error)
}

// PayoutService converts payee surplus into payment intents and finalizes
// them against the payment collaborator. Two sizing policies exist on
// purpose: chunked dispatch right after a donation, drain dispatch from the
// periodic worker. Dispatch for one payee is serialized by a per-payee mutex
// so the two trigger paths cannot over-commit the same surplus.
type PayoutService struct {
	repo     PayoutRepository
	balances BalanceLedger
	client   PaymentClient
	conf     *config.PayoutConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPayoutService(repo PayoutRepository, balances BalanceLedger, client PaymentClient, conf *config.PayoutConfig) *PayoutService {
	return &PayoutService{
		repo:     repo,
		balances: balances,
		client:   client,
		conf:     conf,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *PayoutService) lockFor(subjectKey string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[subjectKey]
	if !ok {
		l = &sync.Mutex{}
		s.locks[subjectKey] = l
	}
	return l
}

// DispatchChunked applies the chunked policy: while the running total covers
// another full Floor, create one pending intent of exactly Floor and shrink
// the in-memory remainder. The stored aggregate is only decremented when an
// intent finalizes to Sent. Every created intent is then finalized in order.
func (s *PayoutService) DispatchChunked(ctx context.Context, payee config.PayeeConfig) ([]domain.PaymentIntent, error) {
	l := s.lockFor(payee.SubjectKey)
	l.Lock()
	defer l.Unlock()

	total, err := s.balances.Total(ctx, payee.SubjectKey)
	if err != nil {
		return nil, fmt.Errorf("s.balances.Total -> %w", err)
	}

	var pending []domain.PaymentIntent
	for remaining := total; remaining >= s.conf.Floor; remaining -= s.conf.Floor {
		intent, err := s.repo.CreatePending(ctx, payee.SubjectKey, s.conf.Floor)
		if err != nil {
			return nil, fmt.Errorf("s.repo.CreatePending -> %w", err)
		}
		pending = append(pending, intent)
	}

	finalized := make([]domain.PaymentIntent, 0, len(pending))
	for _, intent := range pending {
		finalized = append(finalized, s.finalize(ctx, payee, intent))
	}
	return finalized, nil
}

// DispatchDrain applies the drain policy: pay out everything available in one
// intent, where available excludes amounts already reserved by pending
// intents. Below DrainMinimum nothing is created.
func (s *PayoutService) DispatchDrain(ctx context.Context, payee config.PayeeConfig) (*domain.PaymentIntent, error) {
	l := s.lockFor(payee.SubjectKey)
	l.Lock()
	defer l.Unlock()

	total, err := s.balances.Total(ctx, payee.SubjectKey)
	if err != nil {
		return nil, fmt.Errorf("s.balances.Total -> %w", err)
	}
	reserved, err := s.repo.SumPending(ctx, payee.SubjectKey)
	if err != nil {
		return nil, fmt.Errorf("s.repo.SumPending -> %w", err)
	}

	available := total - reserved
	if available < 0 {
		available = 0
	}
	if available < s.conf.DrainMinimum {
		return nil, nil
	}

	intent, err := s.repo.CreatePending(ctx, payee.SubjectKey, available)
	if err != nil {
		return nil, fmt.Errorf("s.repo.CreatePending -> %w", err)
	}

	finalized := s.finalize(ctx, payee, intent)
	return &finalized, nil
}

// finalize settles one pending intent against the payment collaborator. A
// collaborator failure is recorded on the intent and never escalated; the
// aggregate stays untouched so the next trigger retries the same surplus.
func (s *PayoutService) finalize(ctx context.Context, payee config.PayeeConfig, intent domain.PaymentIntent) domain.PaymentIntent {
	// Bookkeeping must land even when the triggering context is gone.
	markCtx := context.WithoutCancel(ctx)

	reference, err := s.client.Pay(ctx, payee.Identifier, intent.Amount, payee.Destination, s.conf.Comment)
	if err != nil {
		failed, markErr := s.repo.MarkFailed(markCtx, intent.ID, err.Error())
		if markErr != nil {
			zap.L().Error("failed to record payment failure",
				zap.Uint("intent_id", intent.ID),
				zap.String("subject_key", intent.SubjectKey),
				zap.Error(markErr))
			intent.Error = err.Error()
			return intent
		}
		metrics.IntentsFinalized.WithLabelValues(string(domain.IntentFailed)).Inc()
		zap.L().Warn("payment dispatch failed",
			zap.Uint("intent_id", failed.ID),
			zap.String("subject_key", failed.SubjectKey),
			zap.Int64("amount", failed.Amount),
			zap.String("cause", failed.Error))
		return failed
	}

	sent, markErr := s.repo.MarkSent(markCtx, intent.ID, reference)
	if markErr != nil {
		zap.L().Error("failed to record sent payment",
			zap.Uint("intent_id", intent.ID),
			zap.String("subject_key", intent.SubjectKey),
			zap.Error(markErr))
		intent.ExternalReference = reference
		return intent
	}
	metrics.IntentsFinalized.WithLabelValues(string(domain.IntentSent)).Inc()
	zap.L().Info("payment dispatched",
		zap.Uint("intent_id", sent.ID),
		zap.String("subject_key", sent.SubjectKey),
		zap.Int64("amount", sent.Amount),
		zap.String("external_reference", sent.ExternalReference))
	return sent
}

func (s *PayoutService) Balance(ctx context.Context, subjectKey string) (int64, error) {
	total, err := s.balances.Total(ctx, subjectKey)
	if err != nil {
		return 0, fmt.Errorf("s.balances.Total -> %w", err)
	}
	return total, nil
}

func (s *PayoutService) IntentsFor(ctx context.Context, subjectKey string, limit int) ([]domain.PaymentIntent, error) {
	intents, err := s.repo.ListBySubject(ctx, subjectKey, limit)
	if err != nil {
		return nil, fmt.Errorf("s.repo.ListBySubject -> %w", err)
	}
	return intents, nil
}

func (s *PayoutService) RecentIntents(ctx context.Context, limit int) ([]domain.PaymentIntent, error) {
	intents, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("s.repo.ListRecent -> %w", err)
	}
	return intents, nil
}

func (s *PayoutService) StatusCounts(ctx context.Context) (domain.IntentStatusCounts, error) {
	counts, err := s.repo.StatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("s.repo.StatusCounts -> %w", err)
	}
	return counts, nil
}

func (s *PayoutService) SumSent(ctx context.Context) (int64, error) {
	sum, err := s.repo.SumSent(ctx)
	if err != nil {
		return 0, fmt.Errorf("s.repo.SumSent -> %w", err)
	}
	return sum, nil
}

func (s *PayoutService) Payees() []config.PayeeConfig {
	return s.conf.Payees
}
