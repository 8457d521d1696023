package settlement

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PayoutStatus represents the status of a payout instruction
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"    // Created, not yet handed to the bank
	PayoutStatusProcessing PayoutStatus = "PROCESSING" // Handed to the banking collaborator
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"  // Transfer confirmed
	PayoutStatusFailed     PayoutStatus = "FAILED"     // Transfer rejected or timed out; terminal
)

// IsValid checks if the status is a valid PayoutStatus
func (s PayoutStatus) IsValid() bool {
	switch s {
	case PayoutStatusPending, PayoutStatusProcessing, PayoutStatusCompleted, PayoutStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of PayoutStatus
func (s PayoutStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the payout can no longer change state
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusCompleted || s == PayoutStatusFailed
}

// PaymentMethod is how the transfer is executed
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodWallet       PaymentMethod = "WALLET"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	return m == PaymentMethodBankTransfer || m == PaymentMethodWallet
}

// BankAccount holds the destination details for a transfer. It is a value
// object within the Payout aggregate, stored as JSONB.
type BankAccount struct {
	BankName      string `json:"bank_name"`
	BankCode      string `json:"bank_code,omitempty"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
}

// IsZero returns true when no destination details are set
func (a BankAccount) IsZero() bool {
	return a.AccountNumber == "" && a.AccountName == ""
}

// Value implements driver.Valuer for GORM to store as JSONB
func (a BankAccount) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner for GORM to read from JSONB
func (a *BankAccount) Scan(value interface{}) error {
	if value == nil {
		*a = BankAccount{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan BankAccount: unsupported type")
	}

	if len(bytes) == 0 {
		*a = BankAccount{}
		return nil
	}

	return json.Unmarshal(bytes, a)
}

// Payout is one instruction to pay a single seller for one settlement run.
// At most one non-FAILED payout may exist per (seller, run); a failed payout
// is terminal and retries create a new payout referencing the same run, so the
// audit trail of attempts is never overwritten.
type Payout struct {
	shared.TenantAggregateRoot
	SellerID              uuid.UUID
	SettlementRunID       uuid.UUID
	Amount                decimal.Decimal
	Currency              valueobject.Currency
	PaymentMethod         PaymentMethod
	Destination           BankAccount
	Status                PayoutStatus
	ProcessedAt           *time.Time
	CompletedAt           *time.Time
	FailedAt              *time.Time
	FailureReason         string
	ExternalTransactionID string
	RetryOf               *uuid.UUID
}

// NewPayout creates a payout in PENDING state for a seller's share of a
// completed settlement run
func NewPayout(
	tenantID, sellerID, runID uuid.UUID,
	amount valueobject.Money,
	method PaymentMethod,
	destination BankAccount,
) (*Payout, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Tenant ID cannot be empty")
	}
	if sellerID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Seller ID cannot be empty")
	}
	if runID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Settlement run ID cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Payout amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown payment method %q", method))
	}

	p := &Payout{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		SellerID:            sellerID,
		SettlementRunID:     runID,
		Amount:              amount.Amount(),
		Currency:            amount.Currency(),
		PaymentMethod:       method,
		Destination:         destination,
		Status:              PayoutStatusPending,
	}

	p.AddDomainEvent(NewPayoutCreatedEvent(p))

	return p, nil
}

// MarkProcessing transitions the payout PENDING -> PROCESSING when it is
// handed to the banking collaborator. The external transaction id is recorded
// when the collaborator returns one.
func (p *Payout) MarkProcessing(externalTransactionID string) error {
	if p.Status != PayoutStatusPending {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot dispatch payout in %s status", p.Status))
	}

	now := time.Now()
	p.Status = PayoutStatusProcessing
	p.ProcessedAt = &now
	p.ExternalTransactionID = externalTransactionID
	p.UpdatedAt = now
	p.IncrementVersion()

	p.AddDomainEvent(NewPayoutDispatchedEvent(p))

	return nil
}

// Complete transitions the payout PROCESSING -> COMPLETED on a successful
// collaborator callback
func (p *Payout) Complete(externalTransactionID string) error {
	if p.Status != PayoutStatusProcessing {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot complete payout in %s status", p.Status))
	}

	now := time.Now()
	p.Status = PayoutStatusCompleted
	p.CompletedAt = &now
	if externalTransactionID != "" {
		p.ExternalTransactionID = externalTransactionID
	}
	p.UpdatedAt = now
	p.IncrementVersion()

	p.AddDomainEvent(NewPayoutCompletedEvent(p))

	return nil
}

// Fail records a collaborator rejection or timeout. A PROCESSING payout fails
// on the result callback; a PENDING payout fails directly when the dispatch
// call itself is refused, in which case no external transaction ever existed
// and PROCESSING is skipped. FAILED is terminal; the payout is never retried
// in place.
func (p *Payout) Fail(reason string) error {
	if p.Status != PayoutStatusPending && p.Status != PayoutStatusProcessing {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot fail payout in %s status", p.Status))
	}
	if reason == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Failure reason is required")
	}

	now := time.Now()
	p.Status = PayoutStatusFailed
	p.FailedAt = &now
	p.FailureReason = reason
	p.UpdatedAt = now
	p.IncrementVersion()

	p.AddDomainEvent(NewPayoutFailedEvent(p))

	return nil
}

// NewRetry creates a fresh PENDING payout for the same seller, run and amount.
// Only a FAILED payout can be retried.
func (p *Payout) NewRetry() (*Payout, error) {
	if p.Status != PayoutStatusFailed {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot retry payout in %s status", p.Status))
	}

	amount, err := valueobject.NewMoney(p.Amount, p.Currency)
	if err != nil {
		return nil, err
	}

	retry, err := NewPayout(p.TenantID, p.SellerID, p.SettlementRunID, amount, p.PaymentMethod, p.Destination)
	if err != nil {
		return nil, err
	}
	origin := p.ID
	retry.RetryOf = &origin

	return retry, nil
}

// AmountMoney returns the payout amount as Money
func (p *Payout) AmountMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(p.Amount, p.Currency)
	return m
}

// IdempotencyKey is the client-supplied key the banking collaborator must
// accept so that network retries of the same dispatch cannot double-transfer
func (p *Payout) IdempotencyKey() string {
	return p.ID.String()
}
