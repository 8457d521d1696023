package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	settlementapp "github.com/marketplace/backend/internal/application/settlement"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/interfaces/http/dto"
)

// PayoutHandler handles payout API endpoints, including the banking
// collaborator's result webhook
type PayoutHandler struct {
	BaseHandler
	payoutService  *settlementapp.PayoutService
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewPayoutHandler creates a new PayoutHandler
func NewPayoutHandler(
	payoutService *settlementapp.PayoutService,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
) *PayoutHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayoutHandler{
		payoutService:  payoutService,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// PayoutResultRequest is the banking collaborator's asynchronous verdict on a
// dispatched transfer
type PayoutResultRequest struct {
	Outcome               string `json:"outcome" binding:"required,oneof=COMPLETED FAILED"`
	ExternalTransactionID string `json:"external_transaction_id" binding:"max=100"`
	Reason                string `json:"reason" binding:"max=500"`
}

// Generate handles POST /settlement-runs/:id/payouts
func (h *PayoutHandler) Generate(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}
	runID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	payouts, err := h.payoutService.GeneratePayouts(c.Request.Context(), tenantID, runID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, payouts)
}

// Dispatch handles POST /payouts/:id/dispatch
func (h *PayoutHandler) Dispatch(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}
	payoutID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	payout, err := h.payoutService.Dispatch(c.Request.Context(), tenantID, payoutID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, payout)
}

// Retry handles POST /payouts/:id/retry
func (h *PayoutHandler) Retry(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}
	payoutID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	payout, err := h.payoutService.Retry(c.Request.Context(), tenantID, payoutID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, payout)
}

// Get handles GET /payouts/:id
func (h *PayoutHandler) Get(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}
	payoutID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	payout, err := h.payoutService.GetPayout(c.Request.Context(), tenantID, payoutID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, payout)
}

// List handles GET /payouts
func (h *PayoutHandler) List(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}

	listReq := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := settlement.PayoutFilter{
		Filter: shared.Filter{
			Page:     listReq.Page,
			PageSize: listReq.PageSize,
			OrderBy:  listReq.OrderBy,
			OrderDir: listReq.OrderDir,
		},
	}
	if raw := c.Query("seller_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid seller_id")
			return
		}
		filter.SellerID = &id
	}
	if raw := c.Query("run_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid run_id")
			return
		}
		filter.RunID = &id
	}
	if raw := c.Query("status"); raw != "" {
		status := settlement.PayoutStatus(raw)
		if !status.IsValid() {
			h.BadRequest(c, "Invalid status")
			return
		}
		filter.Status = &status
	}

	payouts, err := h.payoutService.ListPayouts(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, payouts, listReq.Page, listReq.PageSize, len(payouts))
}

// Result handles POST /payouts/:id/result, the banking collaborator's
// completion or failure callback. The webhook is translated into a
// PayoutResultReceivedEvent and dispatched through the bus before the 202 is
// written, so the verdict is only acknowledged once it has been applied; a
// handler failure yields a 5xx and the collaborator redelivers, which the
// idempotency check in the result handler makes safe.
func (h *PayoutHandler) Result(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}
	payoutID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	var req PayoutResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	event := settlement.NewPayoutResultReceivedEvent(
		tenantID,
		payoutID,
		settlement.PayoutOutcome(req.Outcome),
		req.ExternalTransactionID,
		req.Reason,
	)

	if err := h.eventPublisher.Publish(c.Request.Context(), event); err != nil {
		h.logger.Error("failed to publish payout result event",
			zap.String("payout_id", payoutID.String()),
			zap.Error(err),
		)
		h.InternalError(c, "Failed to accept payout result")
		return
	}

	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(gin.H{
		"payout_id": payoutID,
		"outcome":   req.Outcome,
	}))
}
