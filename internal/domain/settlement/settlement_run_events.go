package settlement

import (
	"time"

	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type constants for settlement runs
const (
	EventTypeSettlementRunCreated   = "settlement.run.created"
	EventTypeSettlementRunCompleted = "settlement.run.completed"
	EventTypeSettlementRunFailed    = "settlement.run.failed"
)

// SettlementRunCreatedEvent is emitted when a run is created in PENDING state
type SettlementRunCreatedEvent struct {
	shared.BaseDomainEvent
	RunType     string    `json:"run_type"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// NewSettlementRunCreatedEvent creates a new settlement run created event
func NewSettlementRunCreatedEvent(r *SettlementRun) *SettlementRunCreatedEvent {
	return &SettlementRunCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSettlementRunCreated, "SettlementRun", r.ID, r.TenantID),
		RunType:         string(r.RunType),
		PeriodStart:     r.PeriodStart,
		PeriodEnd:       r.PeriodEnd,
	}
}

// SettlementRunCompletedEvent is emitted when a run has claimed and totalled
// its balances. The payout generator listens for it.
type SettlementRunCompletedEvent struct {
	shared.BaseDomainEvent
	SellerCount  int             `json:"seller_count"`
	BalanceCount int             `json:"balance_count"`
	NetAmount    decimal.Decimal `json:"net_amount"`
}

// NewSettlementRunCompletedEvent creates a new settlement run completed event
func NewSettlementRunCompletedEvent(r *SettlementRun) *SettlementRunCompletedEvent {
	return &SettlementRunCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSettlementRunCompleted, "SettlementRun", r.ID, r.TenantID),
		SellerCount:     r.SellerCount,
		BalanceCount:    r.BalanceCount,
		NetAmount:       r.NetAmount,
	}
}

// SettlementRunFailedEvent is emitted when a run aborts or is cancelled
type SettlementRunFailedEvent struct {
	shared.BaseDomainEvent
	Reason string `json:"reason"`
}

// NewSettlementRunFailedEvent creates a new settlement run failed event
func NewSettlementRunFailedEvent(r *SettlementRun) *SettlementRunFailedEvent {
	return &SettlementRunFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSettlementRunFailed, "SettlementRun", r.ID, r.TenantID),
		Reason:          r.ErrorMessage,
	}
}
