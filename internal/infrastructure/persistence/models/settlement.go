package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// SellerBalanceModel is the persistence model for the SellerBalance aggregate root.
type SellerBalanceModel struct {
	TenantAggregateModel
	SellerID         uuid.UUID                `gorm:"type:uuid;not null;index:idx_balance_tenant_seller,priority:2"`
	SellerClass      settlement.SellerClass   `gorm:"type:varchar(20);not null"`
	OrderID          *uuid.UUID               `gorm:"type:uuid;index"`
	OrderItemID      *uuid.UUID               `gorm:"type:uuid;uniqueIndex:idx_balance_tenant_order_item,priority:2"`
	OrderNumber      string                   `gorm:"type:varchar(50)"`
	GrossAmount      decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	CommissionRate   decimal.Decimal          `gorm:"type:decimal(8,6);not null"`
	CommissionAmount decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	TaxRate          decimal.Decimal          `gorm:"type:decimal(8,6);not null"`
	TaxAmount        decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	NetAmount        decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	Currency         valueobject.Currency     `gorm:"type:varchar(3);not null"`
	Status           settlement.BalanceStatus `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	IsSettled        bool                     `gorm:"not null;default:false"`
	SettlementRunID  *uuid.UUID               `gorm:"type:uuid;index"`
	Description      string                   `gorm:"type:varchar(500)"`
	SettledAt        *time.Time
	PaidAt           *time.Time
}

// TableName returns the table name for GORM
func (SellerBalanceModel) TableName() string {
	return "seller_balances"
}

// ToDomain converts the persistence model to a domain SellerBalance entity.
func (m *SellerBalanceModel) ToDomain() *settlement.SellerBalance {
	return &settlement.SellerBalance{
		TenantAggregateRoot: tenantAggregateRoot(m.TenantAggregateModel),
		SellerID:            m.SellerID,
		SellerClass:         m.SellerClass,
		OrderID:             m.OrderID,
		OrderItemID:         m.OrderItemID,
		OrderNumber:         m.OrderNumber,
		GrossAmount:         m.GrossAmount,
		CommissionRate:      m.CommissionRate,
		CommissionAmount:    m.CommissionAmount,
		TaxRate:             m.TaxRate,
		TaxAmount:           m.TaxAmount,
		NetAmount:           m.NetAmount,
		Currency:            m.Currency,
		Status:              m.Status,
		IsSettled:           m.IsSettled,
		SettlementRunID:     m.SettlementRunID,
		Description:         m.Description,
		SettledAt:           m.SettledAt,
		PaidAt:              m.PaidAt,
	}
}

// FromDomain populates the persistence model from a domain SellerBalance entity.
func (m *SellerBalanceModel) FromDomain(b *settlement.SellerBalance) {
	m.FromDomainTenantAggregateRoot(b.TenantAggregateRoot)
	m.SellerID = b.SellerID
	m.SellerClass = b.SellerClass
	m.OrderID = b.OrderID
	m.OrderItemID = b.OrderItemID
	m.OrderNumber = b.OrderNumber
	m.GrossAmount = b.GrossAmount
	m.CommissionRate = b.CommissionRate
	m.CommissionAmount = b.CommissionAmount
	m.TaxRate = b.TaxRate
	m.TaxAmount = b.TaxAmount
	m.NetAmount = b.NetAmount
	m.Currency = b.Currency
	m.Status = b.Status
	m.IsSettled = b.IsSettled
	m.SettlementRunID = b.SettlementRunID
	m.Description = b.Description
	m.SettledAt = b.SettledAt
	m.PaidAt = b.PaidAt
}

// SellerBalanceModelFromDomain creates a new persistence model from a domain SellerBalance.
func SellerBalanceModelFromDomain(b *settlement.SellerBalance) *SellerBalanceModel {
	m := &SellerBalanceModel{}
	m.FromDomain(b)
	return m
}

// SettlementRunModel is the persistence model for the SettlementRun aggregate root.
type SettlementRunModel struct {
	TenantAggregateModel
	RunType         settlement.RunType   `gorm:"type:varchar(20);not null"`
	PeriodStart     time.Time            `gorm:"not null;index"`
	PeriodEnd       time.Time            `gorm:"not null;index"`
	Status          settlement.RunStatus `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	SellerCount     int                  `gorm:"not null;default:0"`
	OrderCount      int                  `gorm:"not null;default:0"`
	BalanceCount    int                  `gorm:"not null;default:0"`
	GrossAmount     decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	CommissionTotal decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	TaxTotal        decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	NetAmount       decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	ProcessedAt     *time.Time
	CompletedAt     *time.Time
	FailedAt        *time.Time
	ErrorMessage    string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (SettlementRunModel) TableName() string {
	return "settlement_runs"
}

// ToDomain converts the persistence model to a domain SettlementRun entity.
func (m *SettlementRunModel) ToDomain() *settlement.SettlementRun {
	return &settlement.SettlementRun{
		TenantAggregateRoot: tenantAggregateRoot(m.TenantAggregateModel),
		RunType:             m.RunType,
		PeriodStart:         m.PeriodStart,
		PeriodEnd:           m.PeriodEnd,
		Status:              m.Status,
		SellerCount:         m.SellerCount,
		OrderCount:          m.OrderCount,
		BalanceCount:        m.BalanceCount,
		GrossAmount:         m.GrossAmount,
		CommissionTotal:     m.CommissionTotal,
		TaxTotal:            m.TaxTotal,
		NetAmount:           m.NetAmount,
		ProcessedAt:         m.ProcessedAt,
		CompletedAt:         m.CompletedAt,
		FailedAt:            m.FailedAt,
		ErrorMessage:        m.ErrorMessage,
	}
}

// FromDomain populates the persistence model from a domain SettlementRun entity.
func (m *SettlementRunModel) FromDomain(r *settlement.SettlementRun) {
	m.FromDomainTenantAggregateRoot(r.TenantAggregateRoot)
	m.RunType = r.RunType
	m.PeriodStart = r.PeriodStart
	m.PeriodEnd = r.PeriodEnd
	m.Status = r.Status
	m.SellerCount = r.SellerCount
	m.OrderCount = r.OrderCount
	m.BalanceCount = r.BalanceCount
	m.GrossAmount = r.GrossAmount
	m.CommissionTotal = r.CommissionTotal
	m.TaxTotal = r.TaxTotal
	m.NetAmount = r.NetAmount
	m.ProcessedAt = r.ProcessedAt
	m.CompletedAt = r.CompletedAt
	m.FailedAt = r.FailedAt
	m.ErrorMessage = r.ErrorMessage
}

// SettlementRunModelFromDomain creates a new persistence model from a domain SettlementRun.
func SettlementRunModelFromDomain(r *settlement.SettlementRun) *SettlementRunModel {
	m := &SettlementRunModel{}
	m.FromDomain(r)
	return m
}

// PayoutModel is the persistence model for the Payout aggregate root.
type PayoutModel struct {
	TenantAggregateModel
	SellerID              uuid.UUID                `gorm:"type:uuid;not null;index:idx_payout_tenant_seller,priority:2"`
	SettlementRunID       uuid.UUID                `gorm:"type:uuid;not null;index"`
	Amount                decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	Currency              valueobject.Currency     `gorm:"type:varchar(3);not null"`
	PaymentMethod         settlement.PaymentMethod `gorm:"type:varchar(20);not null"`
	Destination           settlement.BankAccount   `gorm:"type:jsonb;default:'{}'"`
	Status                settlement.PayoutStatus  `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	ProcessedAt           *time.Time
	CompletedAt           *time.Time
	FailedAt              *time.Time
	FailureReason         string     `gorm:"type:varchar(500)"`
	ExternalTransactionID string     `gorm:"type:varchar(100);index"`
	RetryOf               *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (PayoutModel) TableName() string {
	return "payouts"
}

// ToDomain converts the persistence model to a domain Payout entity.
func (m *PayoutModel) ToDomain() *settlement.Payout {
	return &settlement.Payout{
		TenantAggregateRoot:   tenantAggregateRoot(m.TenantAggregateModel),
		SellerID:              m.SellerID,
		SettlementRunID:       m.SettlementRunID,
		Amount:                m.Amount,
		Currency:              m.Currency,
		PaymentMethod:         m.PaymentMethod,
		Destination:           m.Destination,
		Status:                m.Status,
		ProcessedAt:           m.ProcessedAt,
		CompletedAt:           m.CompletedAt,
		FailedAt:              m.FailedAt,
		FailureReason:         m.FailureReason,
		ExternalTransactionID: m.ExternalTransactionID,
		RetryOf:               m.RetryOf,
	}
}

// FromDomain populates the persistence model from a domain Payout entity.
func (m *PayoutModel) FromDomain(p *settlement.Payout) {
	m.FromDomainTenantAggregateRoot(p.TenantAggregateRoot)
	m.SellerID = p.SellerID
	m.SettlementRunID = p.SettlementRunID
	m.Amount = p.Amount
	m.Currency = p.Currency
	m.PaymentMethod = p.PaymentMethod
	m.Destination = p.Destination
	m.Status = p.Status
	m.ProcessedAt = p.ProcessedAt
	m.CompletedAt = p.CompletedAt
	m.FailedAt = p.FailedAt
	m.FailureReason = p.FailureReason
	m.ExternalTransactionID = p.ExternalTransactionID
	m.RetryOf = p.RetryOf
}

// PayoutModelFromDomain creates a new persistence model from a domain Payout.
func PayoutModelFromDomain(p *settlement.Payout) *PayoutModel {
	m := &PayoutModel{}
	m.FromDomain(p)
	return m
}
