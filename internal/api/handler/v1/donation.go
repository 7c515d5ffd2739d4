package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lossledger/lossledger/internal/api/handler/v1/request"
	"github.com/lossledger/lossledger/internal/api/handler/v1/response"
	"github.com/lossledger/lossledger/internal/domain"
	"github.com/lossledger/lossledger/internal/repository"
	"github.com/lossledger/lossledger/internal/service"
)

type DonationService interface {
	Ingest(ctx context.Context, fingerprint string, amount int64, advisory *service.Advisory) (domain.DonationReceipt, error)
	RecentDonations(ctx context.Context, limit int) ([]domain.LedgerEvent, error)
	IntegrityReport(ctx context.Context) (domain.DonationIntegrityReport, error)
}

type GateService interface {
	RedeemToken(ctx context.Context, token string, minAmount int64) (domain.GateResult, error)
	RecentRequests(ctx context.Context, limit int) ([]domain.AccessRequest, error)
	RequestByToken(ctx context.Context, token string) (domain.AccessRequest, error)
}

type DonationHandler struct {
	donations DonationService
	gate      GateService
}

func NewDonationHandler(donations DonationService, gate GateService) *DonationHandler {
	return &DonationHandler{
		donations: donations,
		gate:      gate,
	}
}

// HandleRedeemToken records the gate decision for a presented token. A denial
// (bad token, replay, gate outage) is a structured 200 response, never an
// error; ingestion of a granted amount happens asynchronously.
func (h *DonationHandler) HandleRedeemToken(ctx *gin.Context) {
	var req request.RedeemTokenRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	result, err := h.gate.RedeemToken(ctx.Request.Context(), req.Token, req.MinAmount)
	if err != nil {
		if errors.Is(err, service.ErrMissingToken) {
			response.RenderErr(ctx, response.ErrBadRequest(err))
			return
		}
		err = fmt.Errorf("v1.HandleRedeemToken -> h.gate.RedeemToken -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// HandleIngestDonation is the synchronous operator path: it ingests and
// dispatches in-line and returns the full receipt.
func (h *DonationHandler) HandleIngestDonation(ctx *gin.Context) {
	var req request.IngestDonationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	if err := req.Validate(); err != nil {
		response.RenderErr(ctx, response.ErrBadRequest(err))
		return
	}

	var advisory *service.Advisory
	if req.PlayerKey != "" || req.DeclaredScore > 0 {
		advisory = &service.Advisory{
			PlayerKey:     req.PlayerKey,
			DeclaredScore: req.DeclaredScore,
		}
	}

	receipt, err := h.donations.Ingest(ctx.Request.Context(), req.Fingerprint, req.Amount, advisory)
	if err != nil {
		if errors.Is(err, service.ErrMissingFingerprint) || errors.Is(err, service.ErrInvalidAmount) {
			response.RenderErr(ctx, response.ErrBadRequest(err))
			return
		}
		err = fmt.Errorf("v1.HandleIngestDonation -> h.donations.Ingest -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	status := http.StatusCreated
	if receipt.PreventedDuplicate {
		status = http.StatusOK
	}
	ctx.JSON(status, receipt)
}

func (h *DonationHandler) HandleRecentDonations(ctx *gin.Context) {
	events, err := h.donations.RecentDonations(ctx.Request.Context(), limitQuery(ctx))
	if err != nil {
		err = fmt.Errorf("v1.HandleRecentDonations -> h.donations.RecentDonations -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, response.Events{Events: events})
}

func (h *DonationHandler) HandleDonationIntegrity(ctx *gin.Context) {
	report, err := h.donations.IntegrityReport(ctx.Request.Context())
	if err != nil {
		err = fmt.Errorf("v1.HandleDonationIntegrity -> h.donations.IntegrityReport -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, report)
}

func (h *DonationHandler) HandleRecentAccessRequests(ctx *gin.Context) {
	requests, err := h.gate.RecentRequests(ctx.Request.Context(), limitQuery(ctx))
	if err != nil {
		err = fmt.Errorf("v1.HandleRecentAccessRequests -> h.gate.RecentRequests -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, response.AccessRequests{Requests: requests})
}

func (h *DonationHandler) HandleGetAccessRequest(ctx *gin.Context) {
	token := ctx.Query("token")

	req, err := h.gate.RequestByToken(ctx.Request.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrMissingToken) {
			response.RenderErr(ctx, response.ErrBadRequest(err))
			return
		}
		if errors.Is(err, repository.ErrAccessRequestNotFound) {
			response.RenderErr(ctx, response.ErrNotFound(err))
			return
		}
		err = fmt.Errorf("v1.HandleGetAccessRequest -> h.gate.RequestByToken -> %w", err)
		response.RenderErr(ctx, response.ErrInternalServerError(err))
		return
	}

	ctx.JSON(http.StatusOK, req)
}
