package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lossledger/lossledger/internal/api"
	"github.com/lossledger/lossledger/internal/client/gate"
	"github.com/lossledger/lossledger/internal/client/payment"
	"github.com/lossledger/lossledger/internal/config"
	"github.com/lossledger/lossledger/internal/db"
	"github.com/lossledger/lossledger/internal/logger"
	"github.com/lossledger/lossledger/internal/repository"
	"github.com/lossledger/lossledger/internal/repository/dao"
	"github.com/lossledger/lossledger/internal/service"
	"github.com/lossledger/lossledger/internal/worker"
)

func Start() error {
	conf, err := config.Load("./cmd/app/config.yml")
	if err != nil {
		return fmt.Errorf("failed to initialize config -> %w", err)
	}

	if err = logger.Init(conf.API.Environment); err != nil {
		return fmt.Errorf("failed to initialize logger -> %w", err)
	}

	gormDB, err := openDatabase(conf.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database -> %w", err)
	}

	if err = dao.InitTables(gormDB); err != nil {
		return fmt.Errorf("failed to migrate tables -> %w", err)
	}

	scores := repository.NewLedgerRepository(dao.NewLedgerDAO(gormDB, "game_events", "score_aggregates"))
	balances := repository.NewLedgerRepository(dao.NewLedgerDAO(gormDB, "donation_events", "balance_aggregates"))
	intents := repository.NewPayoutRepository(dao.NewPayoutDAO(gormDB, "balance_aggregates"))
	access := repository.NewAccessRequestRepository(dao.NewAccessRequestDAO(gormDB))

	leaderboardSvc := service.NewLeaderboardService(scores)
	payoutSvc := service.NewPayoutService(intents, balances, payment.NewStripeClient(conf.Stripe), conf.Payout)
	donationSvc := service.NewDonationService(balances, payoutSvc, leaderboardSvc, conf.Payout)
	gateSvc := service.NewGateService(
		gate.NewClient(conf.Gate.Endpoint, conf.Gate.Timeout),
		access,
		donationSvc,
		conf.Gate.Timeout,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The worker shares payoutSvc with the HTTP handlers so that the
	// donation-triggered and periodic dispatch paths contend on the same
	// per-payee locks.
	worker.NewPayoutWorker(payoutSvc, conf.Payout.DrainInterval).Start(ctx)

	s := api.NewServer(conf, api.Services{
		Leaderboard: leaderboardSvc,
		Donations:   donationSvc,
		Payouts:     payoutSvc,
		Gate:        gateSvc,
	})

	addr := ":" + s.Config.API.Port
	zap.L().Info(fmt.Sprintf("starting server at %v", addr))
	if err = s.Router.Run(addr); err != nil {
		return fmt.Errorf("failed to start the server -> %w", err)
	}

	return nil
}

func openDatabase(conf *config.DatabaseConfig) (*gorm.DB, error) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return db.OpenPostgresWithURL(url)
	}

	switch conf.Driver {
	case "postgres":
		return db.OpenPostgresWithURL(conf.DSN)
	default:
		return db.OpenSQLite(conf.DSN)
	}
}
