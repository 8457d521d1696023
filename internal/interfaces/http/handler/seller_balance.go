package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	settlementapp "github.com/marketplace/backend/internal/application/settlement"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shared/valueobject"
	"github.com/marketplace/backend/internal/interfaces/http/dto"
)

// SellerBalanceHandler handles balance ledger API endpoints
type SellerBalanceHandler struct {
	BaseHandler
	ledgerService *settlementapp.LedgerService
}

// NewSellerBalanceHandler creates a new SellerBalanceHandler
func NewSellerBalanceHandler(ledgerService *settlementapp.LedgerService) *SellerBalanceHandler {
	return &SellerBalanceHandler{
		ledgerService: ledgerService,
	}
}

// RecordBalanceRequest records one earning line for a seller. Used by
// internal tooling and event replays; the normal path is the order-settled
// event consumer.
type RecordBalanceRequest struct {
	SellerID       string  `json:"seller_id" binding:"required,uuid"`
	OrderID        *string `json:"order_id" binding:"omitempty,uuid"`
	OrderItemID    *string `json:"order_item_id" binding:"omitempty,uuid"`
	OrderNumber    string  `json:"order_number" binding:"max=100"`
	GrossAmount    string  `json:"gross_amount" binding:"required"`
	Currency       string  `json:"currency" binding:"omitempty,len=3"`
	CommissionRate *string `json:"commission_rate"`
	TaxRate        string  `json:"tax_rate"`
	SellerClass    string  `json:"seller_class" binding:"omitempty,oneof=STANDARD PREMIUM ENTERPRISE"`
	Description    string  `json:"description" binding:"max=500"`
}

// RecordAdjustmentRequest records a compensating correction for a seller.
// The amount may be negative.
type RecordAdjustmentRequest struct {
	SellerID    string `json:"seller_id" binding:"required,uuid"`
	Amount      string `json:"amount" binding:"required"`
	Currency    string `json:"currency" binding:"omitempty,len=3"`
	SellerClass string `json:"seller_class" binding:"omitempty,oneof=STANDARD PREMIUM ENTERPRISE"`
	Description string `json:"description" binding:"required,max=500"`
}

// Record handles POST /balances
func (h *SellerBalanceHandler) Record(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}

	var req RecordBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	sellerID, _ := uuid.Parse(req.SellerID)

	gross, err := parseMoney(req.GrossAmount, req.Currency)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var orderRef settlement.OrderRef
	if req.OrderID != nil {
		id, err := uuid.Parse(*req.OrderID)
		if err != nil {
			h.BadRequest(c, "Invalid order_id")
			return
		}
		orderRef.OrderID = &id
	}
	if req.OrderItemID != nil {
		id, err := uuid.Parse(*req.OrderItemID)
		if err != nil {
			h.BadRequest(c, "Invalid order_item_id")
			return
		}
		orderRef.OrderItemID = &id
	}
	orderRef.OrderNumber = req.OrderNumber

	var commissionRate *decimal.Decimal
	if req.CommissionRate != nil {
		rate, err := decimal.NewFromString(*req.CommissionRate)
		if err != nil {
			h.BadRequest(c, "Invalid commission_rate")
			return
		}
		commissionRate = &rate
	}

	taxRate := decimal.Zero
	if req.TaxRate != "" {
		taxRate, err = decimal.NewFromString(req.TaxRate)
		if err != nil {
			h.BadRequest(c, "Invalid tax_rate")
			return
		}
	}

	balance, err := h.ledgerService.RecordEarning(c.Request.Context(), settlementapp.RecordEarningCommand{
		TenantID:       tenantID,
		SellerID:       sellerID,
		OrderRef:       orderRef,
		Gross:          gross,
		CommissionRate: commissionRate,
		TaxRate:        taxRate,
		SellerClass:    sellerClassOrDefault(req.SellerClass),
		Description:    req.Description,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, balance)
}

// RecordAdjustment handles POST /balances/adjustments
func (h *SellerBalanceHandler) RecordAdjustment(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}

	var req RecordAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	sellerID, _ := uuid.Parse(req.SellerID)

	amount, err := parseMoney(req.Amount, req.Currency)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	balance, err := h.ledgerService.RecordAdjustment(c.Request.Context(), settlementapp.RecordAdjustmentCommand{
		TenantID:    tenantID,
		SellerID:    sellerID,
		Amount:      amount,
		SellerClass: sellerClassOrDefault(req.SellerClass),
		Description: req.Description,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, balance)
}

// List handles GET /balances
func (h *SellerBalanceHandler) List(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}

	listReq := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := settlement.BalanceFilter{
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
	if raw := c.Query("status"); raw != "" {
		status := settlement.BalanceStatus(raw)
		if !status.IsValid() {
			h.BadRequest(c, "Invalid status")
			return
		}
		filter.Status = &status
	}
	if raw := c.Query("run_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid run_id")
			return
		}
		filter.RunID = &id
	}

	balances, err := h.ledgerService.ListBalances(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, balances, listReq.Page, listReq.PageSize, len(balances))
}

// Get handles GET /balances/:id
func (h *SellerBalanceHandler) Get(c *gin.Context) {
	tenantID, ok := h.requireTenantID(c)
	if !ok {
		return
	}
	balanceID, ok := h.parseIDParam(c, "id")
	if !ok {
		return
	}

	balance, err := h.ledgerService.GetBalance(c.Request.Context(), tenantID, balanceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, balance)
}

// SellerSummary handles GET /sellers/:id/summary
func (h *SellerBalanceHandler) SellerSummary(c *gin.Context) {
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

	summary, err := h.ledgerService.Summarize(c.Request.Context(), tenantID, &sellerID, period.From, period.To)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, gin.H{
		"seller_id": sellerID,
		"summary":   summary,
	})
}

func parseMoney(amount, currency string) (valueobject.Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return valueobject.Money{}, shared.NewDomainError("VALIDATION_ERROR", "Invalid amount")
	}
	if currency == "" {
		return valueobject.NewMoneyUSD(d), nil
	}
	return valueobject.NewMoney(d, valueobject.Currency(currency))
}

func sellerClassOrDefault(raw string) settlement.SellerClass {
	if raw == "" {
		return settlement.SellerClassStandard
	}
	return settlement.SellerClass(raw)
}
