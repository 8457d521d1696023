package handler

import (
	"github.com/gin-gonic/gin"

	settlementapp "github.com/marketplace/backend/internal/application/settlement"
	"github.com/marketplace/backend/internal/interfaces/http/dto"
)

// ReportHandler handles read-only reporting endpoints
type ReportHandler struct {
	BaseHandler
	reportingService *settlementapp.ReportingService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(reportingService *settlementapp.ReportingService) *ReportHandler {
	return &ReportHandler{
		reportingService: reportingService,
	}
}

// SellerStatement handles GET /reports/sellers/:id/statement
func (h *ReportHandler) SellerStatement(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}
	sellerID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	var period dto.PeriodRequest
	if err := c.ShouldBindQuery(&period); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	statement, err := h.reportingService.SellerStatement(c.Request.Context(), tenantID, sellerID, period.From, period.To)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, statement)
}

// RunReport handles GET /reports/settlement-runs/:id
func (h *ReportHandler) RunReport(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}
	runID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	report, err := h.reportingService.RunReport(c.Request.Context(), tenantID, runID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, report)
}

// TenantOverview handles GET /reports/overview
func (h *ReportHandler) TenantOverview(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}

	overview, err := h.reportingService.TenantOverview(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, overview)
}
