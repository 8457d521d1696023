package settlement

import (
	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type constants for payouts
const (
	EventTypePayoutCreated        = "settlement.payout.created"
	EventTypePayoutDispatched     = "settlement.payout.dispatched"
	EventTypePayoutCompleted      = "settlement.payout.completed"
	EventTypePayoutFailed         = "settlement.payout.failed"
	EventTypePayoutResultReceived = "settlement.payout.result_received"
)

// PayoutCreatedEvent is emitted when a payout instruction is generated
type PayoutCreatedEvent struct {
	shared.BaseDomainEvent
	SellerID        string          `json:"seller_id"`
	SettlementRunID string          `json:"settlement_run_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

// NewPayoutCreatedEvent creates a new payout created event
func NewPayoutCreatedEvent(p *Payout) *PayoutCreatedEvent {
	return &PayoutCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayoutCreated, "Payout", p.ID, p.TenantID),
		SellerID:        p.SellerID.String(),
		SettlementRunID: p.SettlementRunID.String(),
		Amount:          p.Amount,
		Currency:        string(p.Currency),
	}
}

// PayoutDispatchedEvent is emitted when a payout is handed to the banking
// collaborator
type PayoutDispatchedEvent struct {
	shared.BaseDomainEvent
	ExternalTransactionID string `json:"external_transaction_id,omitempty"`
}

// NewPayoutDispatchedEvent creates a new payout dispatched event
func NewPayoutDispatchedEvent(p *Payout) *PayoutDispatchedEvent {
	return &PayoutDispatchedEvent{
		BaseDomainEvent:       shared.NewBaseDomainEvent(EventTypePayoutDispatched, "Payout", p.ID, p.TenantID),
		ExternalTransactionID: p.ExternalTransactionID,
	}
}

// PayoutCompletedEvent is emitted when the collaborator confirms the transfer
type PayoutCompletedEvent struct {
	shared.BaseDomainEvent
	SellerID        string `json:"seller_id"`
	SettlementRunID string `json:"settlement_run_id"`
}

// NewPayoutCompletedEvent creates a new payout completed event
func NewPayoutCompletedEvent(p *Payout) *PayoutCompletedEvent {
	return &PayoutCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayoutCompleted, "Payout", p.ID, p.TenantID),
		SellerID:        p.SellerID.String(),
		SettlementRunID: p.SettlementRunID.String(),
	}
}

// PayoutFailedEvent is emitted when the collaborator rejects the transfer
type PayoutFailedEvent struct {
	shared.BaseDomainEvent
	Reason string `json:"reason"`
}

// NewPayoutFailedEvent creates a new payout failed event
func NewPayoutFailedEvent(p *Payout) *PayoutFailedEvent {
	return &PayoutFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayoutFailed, "Payout", p.ID, p.TenantID),
		Reason:          p.FailureReason,
	}
}

// PayoutOutcome is the collaborator's asynchronous verdict on a transfer
type PayoutOutcome string

const (
	PayoutOutcomeCompleted PayoutOutcome = "COMPLETED"
	PayoutOutcomeFailed    PayoutOutcome = "FAILED"
)

// IsValid checks if the outcome is valid
func (o PayoutOutcome) IsValid() bool {
	return o == PayoutOutcomeCompleted || o == PayoutOutcomeFailed
}

// PayoutResultReceivedEvent models the banking collaborator's asynchronous
// completion or failure callback as a domain event, decoupled from the HTTP
// transport that delivered it. The payout generator consumes it to close the
// payout lifecycle.
type PayoutResultReceivedEvent struct {
	shared.BaseDomainEvent
	PayoutID              uuid.UUID     `json:"payout_id"`
	Outcome               PayoutOutcome `json:"outcome"`
	ExternalTransactionID string        `json:"external_transaction_id,omitempty"`
	Reason                string        `json:"reason,omitempty"`
}

// NewPayoutResultReceivedEvent creates a new payout result received event
func NewPayoutResultReceivedEvent(
	tenantID, payoutID uuid.UUID,
	outcome PayoutOutcome,
	externalTransactionID, reason string,
) *PayoutResultReceivedEvent {
	return &PayoutResultReceivedEvent{
		BaseDomainEvent:       shared.NewBaseDomainEvent(EventTypePayoutResultReceived, "Payout", payoutID, tenantID),
		PayoutID:              payoutID,
		Outcome:               outcome,
		ExternalTransactionID: externalTransactionID,
		Reason:                reason,
	}
}
