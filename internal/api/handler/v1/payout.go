package v1

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lossledger/lossledger/internal/api/handler/v1/response"
	"github.com/lossledger/lossledger/internal/config"
	"github.com/lossledger/lossledger/internal/domain"
)

type PayoutService interface {
	Balance(ctx context.Context, subjectKey string) (int64, error)
	IntentsFor(ctx context.Context, subjectKey string, limit int) ([]domain.PaymentIntent, error)
	RecentIntents(ctx context.Context, limit int) ([]domain.PaymentIntent, error)
	StatusCounts(ctx context.Context) (domain.IntentStatusCounts, error)
	DispatchDrain(ctx context.Context, payee config.PayeeConfig) (*domain.PaymentIntent, error)
	Payees() []config.PayeeConfig
}

type PayoutHandler struct {
	svc PayoutService
}

func NewPayoutHandler(svc PayoutService) *PayoutHandler {
	return &PayoutHandler{
		svc: svc,
	}
}

func (h *PayoutHandler) HandleGetBalance(ctx *gin.Context) {
	subjectKey := ctx.Param("subjectKey")

	total, err := h.svc.Balance(ctx.Request.Context(), subjectKey)
	if err != nil {
		err = fmt.Errorf("v1.HandleGetBalance -> h.svc.Balance -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, response.Balance{SubjectKey: subjectKey, Total: total})
}

func (h *PayoutHandler) HandleListIntents(ctx *gin.Context) {
	var (
		intents []domain.PaymentIntent
		err     error
	)

	if subjectKey := ctx.Query("subject_key"); subjectKey != "" {
		intents, err = h.svc.IntentsFor(ctx.Request.Context(), subjectKey, limitQuery(ctx))
	} else {
		intents, err = h.svc.RecentIntents(ctx.Request.Context(), limitQuery(ctx))
	}
	if err != nil {
		err = fmt.Errorf("v1.HandleListIntents -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, response.Intents{Intents: intents})
}

func (h *PayoutHandler) HandleStatusCounts(ctx *gin.Context) {
	counts, err := h.svc.StatusCounts(ctx.Request.Context())
	if err != nil {
		err = fmt.Errorf("v1.HandleStatusCounts -> h.svc.StatusCounts -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, counts)
}

// HandleDrain runs one drain cycle for every configured payee on demand. Like
// the periodic cycle, one payee's failure does not stop the others; it is
// reported per payee in the response instead.
func (h *PayoutHandler) HandleDrain(ctx *gin.Context) {
	var outcome response.DrainOutcome
	for _, payee := range h.svc.Payees() {
		intent, err := h.svc.DispatchDrain(ctx.Request.Context(), payee)
		if err != nil {
			zap.L().Error("drain dispatch failed",
				zap.String("subject_key", payee.SubjectKey),
				zap.Error(err))
			if outcome.Failures == nil {
				outcome.Failures = make(map[string]string)
			}
			outcome.Failures[payee.SubjectKey] = err.Error()
			continue
		}
		if intent != nil {
			outcome.Intents = append(outcome.Intents, *intent)
		}
	}

	ctx.JSON(http.StatusOK, outcome)
}
