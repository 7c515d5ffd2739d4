package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lossledger/lossledger/internal/config"
	"github.com/lossledger/lossledger/internal/db"
	"github.com/lossledger/lossledger/internal/repository"
	"github.com/lossledger/lossledger/internal/repository/dao"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gormDB, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, dao.InitTables(gormDB))

	return gormDB
}

func newScoreLedger(t *testing.T, gormDB *gorm.DB) *repository.LedgerRepository {
	t.Helper()
	return repository.NewLedgerRepository(dao.NewLedgerDAO(gormDB, "game_events", "score_aggregates"))
}

func newBalanceLedger(t *testing.T, gormDB *gorm.DB) *repository.LedgerRepository {
	t.Helper()
	return repository.NewLedgerRepository(dao.NewLedgerDAO(gormDB, "donation_events", "balance_aggregates"))
}

func testPayoutConfig() *config.PayoutConfig {
	return &config.PayoutConfig{
		Floor:        1000,
		DrainMinimum: 100,
		Comment:      "test payout",
		Payees: []config.PayeeConfig{
			{SubjectKey: "payee-a", Identifier: "payee-a", Destination: "acct_a"},
			{SubjectKey: "payee-b", Identifier: "payee-b", Destination: "acct_b"},
		},
	}
}

func TestLeaderboardService_RecordLossValidation(t *testing.T) {
	svc := NewLeaderboardService(newScoreLedger(t, newTestDB(t)))
	ctx := context.Background()

	_, err := svc.RecordLoss(ctx, "", "player-1", "ACE", 100)
	require.ErrorIs(t, err, ErrMissingReferenceID)

	_, err = svc.RecordLoss(ctx, "g1", "", "ACE", 100)
	require.ErrorIs(t, err, ErrMissingSubjectKey)

	_, err = svc.RecordLoss(ctx, "g1", "player-1", "ACE", 0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.RecordLoss(ctx, "g1", "player-1", "ACE", -5)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.RecordLoss(ctx, "g1", "player-1", "AC", 100)
	require.ErrorIs(t, err, ErrInvalidInitials)
}

func TestLeaderboardService_RecordLossIsIdempotent(t *testing.T) {
	svc := NewLeaderboardService(newScoreLedger(t, newTestDB(t)))
	ctx := context.Background()

	result, err := svc.RecordLoss(ctx, "g1", "player-1", "ace", 100)
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.Equal(t, int64(100), result.Total)

	replay, err := svc.RecordLoss(ctx, "g1", "player-1", "ace", 100)
	require.NoError(t, err)
	require.False(t, replay.Accepted)
	require.Equal(t, int64(100), replay.Total)

	score, err := svc.GetScore(ctx, "player-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), score)

	// Initials are normalized to upper case on the stored event.
	events, err := svc.PlayerEvents(ctx, "player-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "ACE", events[0].Label)
}

func TestLeaderboardService_ReconcileRepairsPerturbedAggregate(t *testing.T) {
	gormDB := newTestDB(t)
	ledger := newScoreLedger(t, gormDB)
	svc := NewLeaderboardService(ledger)
	ctx := context.Background()

	_, err := svc.RecordLoss(ctx, "g1", "player-1", "ACE", 100)
	require.NoError(t, err)
	_, err = svc.RecordLoss(ctx, "g2", "player-1", "ACE", 200)
	require.NoError(t, err)

	require.NoError(t, ledger.ApplyDelta(ctx, "player-1", -50))

	report, err := svc.IntegrityCheck(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Subjects)
	require.Len(t, report.Drifted, 1)
	require.Equal(t, int64(50), report.TotalAbsDrift)

	result, err := svc.Reconcile(ctx, "player-1")
	require.NoError(t, err)
	require.True(t, result.WasInconsistent)
	require.Equal(t, int64(250), result.OldTotal)
	require.Equal(t, int64(300), result.NewTotal)

	report, err = svc.IntegrityCheck(ctx)
	require.NoError(t, err)
	require.Empty(t, report.Drifted)
	require.Zero(t, report.TotalAbsDrift)
}

func TestLeaderboardService_AverageLoss(t *testing.T) {
	svc := NewLeaderboardService(newScoreLedger(t, newTestDB(t)))
	ctx := context.Background()

	_, err := svc.RecordLoss(ctx, "g1", "player-1", "ACE", 100)
	require.NoError(t, err)
	_, err = svc.RecordLoss(ctx, "g2", "player-1", "ACE", 300)
	require.NoError(t, err)

	avg, count, err := svc.AverageLoss(ctx, "player-1")
	require.NoError(t, err)
	require.Equal(t, int64(200), avg)
	require.Equal(t, int64(2), count)
}
