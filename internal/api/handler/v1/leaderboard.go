package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lossledger/lossledger/internal/api/handler/v1/request"
	"github.com/lossledger/lossledger/internal/api/handler/v1/response"
	"github.com/lossledger/lossledger/internal/domain"
	"github.com/lossledger/lossledger/internal/service"
)

type LeaderboardService interface {
	RecordLoss(ctx context.Context, referenceID, playerKey, initials string, amount int64) (domain.AppendResult, error)
	GetScore(ctx context.Context, playerKey string) (int64, error)
	PlayerEvents(ctx context.Context, playerKey string, limit int) ([]domain.LedgerEvent, error)
	RecentEvents(ctx context.Context, limit int) ([]domain.LedgerEvent, error)
	Reconcile(ctx context.Context, playerKey string) (domain.ReconcileResult, error)
	IntegrityCheck(ctx context.Context) (domain.IntegrityReport, error)
}

type LeaderboardHandler struct {
	svc LeaderboardService
}

func NewLeaderboardHandler(svc LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{
		svc: svc,
	}
}

func limitQuery(ctx *gin.Context) int {
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

func isValidationErr(err error) bool {
	return errors.Is(err, service.ErrMissingReferenceID) ||
		errors.Is(err, service.ErrMissingSubjectKey) ||
		errors.Is(err, service.ErrInvalidAmount) ||
		errors.Is(err, service.ErrInvalidInitials)
}

func (h *LeaderboardHandler) HandleRecordResult(ctx *gin.Context) {
	var req request.RecordResultRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	result, err := h.svc.RecordLoss(ctx.Request.Context(), req.ReferenceID, req.PlayerKey, req.Initials, req.Amount)
	if err != nil {
		if isValidationErr(err) {
			response.RenderErr(ctx, response.ErrBadRequest(err))
			return
		}
		err = fmt.Errorf("v1.HandleRecordResult -> h.svc.RecordLoss -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	// A replayed reference id is a defined idempotent outcome, not an error.
	status := http.StatusCreated
	if !result.Accepted {
		status = http.StatusOK
	}
	ctx.JSON(status, result)
}

func (h *LeaderboardHandler) HandleGetScore(ctx *gin.Context) {
	playerKey := ctx.Param("playerKey")

	total, err := h.svc.GetScore(ctx.Request.Context(), playerKey)
	if err != nil {
		err = fmt.Errorf("v1.HandleGetScore -> h.svc.GetScore -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, response.Score{SubjectKey: playerKey, Total: total})
}

func (h *LeaderboardHandler) HandleGetPlayerEvents(ctx *gin.Context) {
	playerKey := ctx.Param("playerKey")

	events, err := h.svc.PlayerEvents(ctx.Request.Context(), playerKey, limitQuery(ctx))
	if err != nil {
		err = fmt.Errorf("v1.HandleGetPlayerEvents -> h.svc.PlayerEvents -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, response.Events{Events: events})
}

func (h *LeaderboardHandler) HandleRecentEvents(ctx *gin.Context) {
	events, err := h.svc.RecentEvents(ctx.Request.Context(), limitQuery(ctx))
	if err != nil {
		err = fmt.Errorf("v1.HandleRecentEvents -> h.svc.RecentEvents -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, response.Events{Events: events})
}

func (h *LeaderboardHandler) HandleReconcilePlayer(ctx *gin.Context) {
	playerKey := ctx.Param("playerKey")

	result, err := h.svc.Reconcile(ctx.Request.Context(), playerKey)
	if err != nil {
		if isValidationErr(err) {
			response.RenderErr(ctx, response.ErrBadRequest(err))
			return
		}
		err = fmt.Errorf("v1.HandleReconcilePlayer -> h.svc.Reconcile -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func (h *LeaderboardHandler) HandleIntegrity(ctx *gin.Context) {
	report, err := h.svc.IntegrityCheck(ctx.Request.Context())
	if err != nil {
		err = fmt.Errorf("v1.HandleIntegrity -> h.svc.IntegrityCheck -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, report)
}
