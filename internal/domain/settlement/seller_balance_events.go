package settlement

import (
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type constants for seller balances
const (
	EventTypeSellerBalanceRecorded = "settlement.seller_balance.recorded"
)

// SellerBalanceRecordedEvent is emitted when a new earning or adjustment line
// is recorded in the ledger
type SellerBalanceRecordedEvent struct {
	shared.BaseDomainEvent
	SellerID    string          `json:"seller_id"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	Currency    string          `json:"currency"`
	Adjustment  bool            `json:"adjustment"`
}

// NewSellerBalanceRecordedEvent creates a new seller balance recorded event
func NewSellerBalanceRecordedEvent(b *SellerBalance) *SellerBalanceRecordedEvent {
	return &SellerBalanceRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSellerBalanceRecorded, "SellerBalance", b.ID, b.TenantID),
		SellerID:        b.SellerID.String(),
		GrossAmount:     b.GrossAmount,
		NetAmount:       b.NetAmount,
		Currency:        string(b.Currency),
		Adjustment:      b.IsAdjustment(),
	}
}
