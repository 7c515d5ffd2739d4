package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lossledger/lossledger/internal/domain"
	"github.com/lossledger/lossledger/internal/metrics"
	"github.com/lossledger/lossledger/internal/repository"
)

var ErrMissingToken = errors.New("token is required")

// TokenGate is the external token redemption collaborator.
type TokenGate interface {
	Redeem(ctx context.Context, token string, minAmount int64) (domain.GateResult, error)
}

type AccessRequestRepository interface {
	Record(ctx context.Context, request domain.AccessRequest) (domain.AccessRequest, error)
	FindByReference(ctx context.Context, referenceID string) (domain.AccessRequest, error)
	ListRecent(ctx context.Context, limit int) ([]domain.AccessRequest, error)
}

// GateService fronts the token gate: it fingerprints the presented token,
// records the decision, and on a grant hands the amount to donation
// ingestion as a fire-and-forget task.
type GateService struct {
	gate      TokenGate
	access    AccessRequestRepository
	donations *DonationService
	timeout   time.Duration
}

func NewGateService(gate TokenGate, access AccessRequestRepository, donations *DonationService, timeout time.Duration) *GateService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GateService{
		gate:      gate,
		access:    access,
		donations: donations,
		timeout:   timeout,
	}
}

// Fingerprint derives the dedup key for a presented token.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RedeemToken asks the gate about the token and records the decision keyed by
// the token fingerprint. A gate outage or timeout surfaces as a denied
// result, never as an error. A granted positive amount is ingested
// asynchronously; the caller only gets the decision.
func (s *GateService) RedeemToken(ctx context.Context, token string, minAmount int64) (domain.GateResult, error) {
	if token == "" {
		return domain.GateResult{}, ErrMissingToken
	}

	fingerprint := Fingerprint(token)

	prior, err := s.access.FindByReference(ctx, fingerprint)
	if err == nil {
		if prior.Decision == domain.GateGranted {
			// A consumed token stays consumed; the decision table catches the
			// replay before ledger-level dedup runs.
			result := domain.GateResult{
				Decision: domain.GateDenied,
				Reason:   "token already presented",
			}
			metrics.GateDecisions.WithLabelValues(string(result.Decision)).Inc()
			return result, nil
		}
		// A denied token never consumed anything, whether the gate refused it
		// or was unreachable. Ask the gate again and refresh the row, so a
		// transient outage cannot burn the token for good.
	} else if !errors.Is(err, repository.ErrAccessRequestNotFound) {
		return domain.GateResult{}, fmt.Errorf("s.access.FindByReference -> %w", err)
	}

	redeemCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.gate.Redeem(redeemCtx, token, minAmount)
	if err != nil {
		result = domain.GateResult{
			Decision: domain.GateDenied,
			Reason:   "access gate unavailable: " + err.Error(),
		}
	}

	if _, err := s.access.Record(ctx, domain.AccessRequest{
		ReferenceID: fingerprint,
		Decision:    result.Decision,
		Amount:      result.Amount,
		Reason:      result.Reason,
	}); err != nil {
		return domain.GateResult{}, fmt.Errorf("s.access.Record -> %w", err)
	}

	metrics.GateDecisions.WithLabelValues(string(result.Decision)).Inc()

	if result.Decision == domain.GateGranted && result.Amount > 0 {
		go s.ingestAsync(fingerprint, result.Amount)
	}

	return result, nil
}

func (s *GateService) ingestAsync(fingerprint string, amount int64) {
	// Detached from the request: ingestion and payment dispatch outlive the
	// gate call that triggered them.
	receipt, err := s.donations.Ingest(context.Background(), fingerprint, amount, nil)
	if err != nil {
		zap.L().Error("donation ingestion failed",
			zap.String("fingerprint", fingerprint),
			zap.Int64("amount", amount),
			zap.Error(err))
		return
	}

	zap.L().Info("donation ingested",
		zap.String("fingerprint", receipt.Fingerprint),
		zap.Int64("amount", receipt.Amount),
		zap.Bool("prevented_duplicate", receipt.PreventedDuplicate),
		zap.Int("intents", len(receipt.Intents)))
}

func (s *GateService) RecentRequests(ctx context.Context, limit int) ([]domain.AccessRequest, error) {
	requests, err := s.access.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("s.access.ListRecent -> %w", err)
	}
	return requests, nil
}

func (s *GateService) RequestByToken(ctx context.Context, token string) (domain.AccessRequest, error) {
	if token == "" {
		return domain.AccessRequest{}, ErrMissingToken
	}

	request, err := s.access.FindByReference(ctx, Fingerprint(token))
	if err != nil {
		return domain.AccessRequest{}, fmt.Errorf("s.access.FindByReference -> %w", err)
	}
	return request, nil
}
