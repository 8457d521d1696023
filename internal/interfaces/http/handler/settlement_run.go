package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	settlementapp "github.com/marketplace/backend/internal/application/settlement"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/interfaces/http/dto"
)

// SettlementRunHandler handles settlement run API endpoints
type SettlementRunHandler struct {
	BaseHandler
	settlementService *settlementapp.SettlementService
}

// NewSettlementRunHandler creates a new SettlementRunHandler
func NewSettlementRunHandler(settlementService *settlementapp.SettlementService) *SettlementRunHandler {
	return &SettlementRunHandler{
		settlementService: settlementService,
	}
}

// CreateRunRequest creates a settlement run over [period_start, period_end]
type CreateRunRequest struct {
	RunType     string    `json:"run_type" binding:"omitempty,oneof=MANUAL SCHEDULED TRIGGERED"`
	PeriodStart time.Time `json:"period_start" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	PeriodEnd   time.Time `json:"period_end" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
}

// CancelRunRequest carries the operator's reason for cancelling a run
type CancelRunRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// Create handles POST /settlement-runs
func (h *SettlementRunHandler) Create(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}

	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	runType := settlement.RunTypeManual
	if req.RunType != "" {
		runType = settlement.RunType(req.RunType)
	}

	run, err := h.settlementService.CreateRun(c.Request.Context(), tenantID, runType, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, run)
}

// Execute handles POST /settlement-runs/:id/execute
func (h *SettlementRunHandler) Execute(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}
	runID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	run, err := h.settlementService.Execute(c.Request.Context(), tenantID, runID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, run)
}

// Cancel handles POST /settlement-runs/:id/cancel
func (h *SettlementRunHandler) Cancel(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}
	runID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	var req CancelRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, err.Error())
			return
		}
	}

	run, err := h.settlementService.CancelRun(c.Request.Context(), tenantID, runID, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, run)
}

// Get handles GET /settlement-runs/:id
func (h *SettlementRunHandler) Get(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}
	runID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	run, err := h.settlementService.GetRun(c.Request.Context(), tenantID, runID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, run)
}

// List handles GET /settlement-runs
func (h *SettlementRunHandler) List(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}

	listReq := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := settlement.RunFilter{
		Filter: shared.Filter{
			Page:     listReq.Page,
			PageSize: listReq.PageSize,
			OrderBy:  listReq.OrderBy,
			OrderDir: listReq.OrderDir,
		},
	}
	if raw := c.Query("status"); raw != "" {
		status := settlement.RunStatus(raw)
		if !status.IsValid() {
			h.BadRequest(c, "Invalid status")
			return
		}
		filter.Status = &status
	}
	if raw := c.Query("run_type"); raw != "" {
		runType := settlement.RunType(raw)
		if !runType.IsValid() {
			h.BadRequest(c, "Invalid run_type")
			return
		}
		filter.RunType = &runType
	}

	runs, err := h.settlementService.ListRuns(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, runs, listReq.Page, listReq.PageSize, len(runs))
}
