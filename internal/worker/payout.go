package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lossledger/lossledger/internal/service"
)

// PayoutWorker runs the drain policy for every configured payee on a fixed
// interval. A cycle never starts while the previous one is still running;
// one payee's failure is logged and the cycle moves on.
type PayoutWorker struct {
	payouts  *service.PayoutService
	interval time.Duration

	running sync.Mutex
}

func NewPayoutWorker(payouts *service.PayoutService, interval time.Duration) *PayoutWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PayoutWorker{
		payouts:  payouts,
		interval: interval,
	}
}

// Start launches the worker loop. It stops when ctx is canceled.
func (w *PayoutWorker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				zap.L().Info("payout worker stopped")
				return
			case <-ticker.C:
				w.RunCycle(ctx)
			}
		}
	}()
}

// RunCycle drains every configured payee once. Skips entirely if a previous
// cycle is still in flight.
func (w *PayoutWorker) RunCycle(ctx context.Context) {
	if !w.running.TryLock() {
		zap.L().Warn("payout cycle skipped, previous cycle still running")
		return
	}
	defer w.running.Unlock()

	for _, payee := range w.payouts.Payees() {
		intent, err := w.payouts.DispatchDrain(ctx, payee)
		if err != nil {
			zap.L().Error("drain dispatch failed",
				zap.String("subject_key", payee.SubjectKey),
				zap.Error(err))
			continue
		}
		if intent == nil {
			continue
		}
		zap.L().Info("drain dispatch finalized",
			zap.String("subject_key", intent.SubjectKey),
			zap.Int64("amount", intent.Amount),
			zap.String("status", string(intent.Status)))
	}
}
