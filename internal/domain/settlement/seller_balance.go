package settlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// BalanceStatus represents the status of a seller balance line
type BalanceStatus string

const (
	BalanceStatusPending BalanceStatus = "PENDING" // Earned, awaiting a settlement run
	BalanceStatusSettled BalanceStatus = "SETTLED" // Claimed by exactly one settlement run
	BalanceStatusPaid    BalanceStatus = "PAID"    // Covered by a completed payout
)

// IsValid checks if the status is a valid BalanceStatus
func (s BalanceStatus) IsValid() bool {
	switch s {
	case BalanceStatusPending, BalanceStatusSettled, BalanceStatusPaid:
		return true
	}
	return false
}

// String returns the string representation of BalanceStatus
func (s BalanceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the balance is in a terminal state
func (s BalanceStatus) IsTerminal() bool {
	return s == BalanceStatusPaid
}

// SellerClass categorizes sellers for rate-table lookups
type SellerClass string

const (
	SellerClassStandard   SellerClass = "STANDARD"
	SellerClassPremium    SellerClass = "PREMIUM"
	SellerClassEnterprise SellerClass = "ENTERPRISE"
)

// IsValid checks if the seller class is valid
func (c SellerClass) IsValid() bool {
	switch c {
	case SellerClassStandard, SellerClassPremium, SellerClassEnterprise:
		return true
	}
	return false
}

// String returns the string representation of SellerClass
func (c SellerClass) String() string {
	return string(c)
}

// OrderRef identifies the order item a balance line was derived from.
// It is empty for manual adjustment lines.
type OrderRef struct {
	OrderID     *uuid.UUID
	OrderItemID *uuid.UUID
	OrderNumber string
}

// IsZero returns true when the reference does not point at an order
func (r OrderRef) IsZero() bool {
	return r.OrderID == nil && r.OrderItemID == nil
}

// SellerBalance is one earning line for a seller, derived from a single
// order item (or recorded manually as a compensating adjustment).
//
// The monetary invariant NetAmount = GrossAmount - CommissionAmount - TaxAmount
// is established once at creation and never recomputed afterwards; recomputing
// it would break reconciliation with the originating order. Once settled, the
// line is immutable except for the transition to PAID.
type SellerBalance struct {
	shared.TenantAggregateRoot
	SellerID         uuid.UUID
	SellerClass      SellerClass
	OrderID          *uuid.UUID
	OrderItemID      *uuid.UUID
	OrderNumber      string
	GrossAmount      decimal.Decimal
	CommissionRate   decimal.Decimal
	CommissionAmount decimal.Decimal
	TaxRate          decimal.Decimal
	TaxAmount        decimal.Decimal
	NetAmount        decimal.Decimal
	Currency         valueobject.Currency
	Status           BalanceStatus
	IsSettled        bool
	SettlementRunID  *uuid.UUID
	Description      string
	SettledAt        *time.Time
	PaidAt           *time.Time
}

// NewSellerBalance records one earning line in PENDING state. Commission, tax
// and net amounts are computed deterministically from the gross amount and the
// supplied rates.
func NewSellerBalance(
	tenantID, sellerID uuid.UUID,
	orderRef OrderRef,
	gross valueobject.Money,
	commissionRate, taxRate decimal.Decimal,
	sellerClass SellerClass,
	description string,
) (*SellerBalance, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Tenant ID cannot be empty")
	}
	if sellerID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Seller ID cannot be empty")
	}
	if gross.IsNegative() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Gross amount cannot be negative")
	}
	if !gross.Currency().IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unsupported currency %q", gross.Currency()))
	}
	if err := validateRate("commission", commissionRate); err != nil {
		return nil, err
	}
	if err := validateRate("tax", taxRate); err != nil {
		return nil, err
	}
	if !sellerClass.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown seller class %q", sellerClass))
	}

	commission := gross.ApplyRate(commissionRate)
	tax := gross.ApplyRate(taxRate)
	net := gross.MustSubtract(commission).MustSubtract(tax)

	b := &SellerBalance{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		SellerID:            sellerID,
		SellerClass:         sellerClass,
		OrderID:             orderRef.OrderID,
		OrderItemID:         orderRef.OrderItemID,
		OrderNumber:         orderRef.OrderNumber,
		GrossAmount:         gross.Amount(),
		CommissionRate:      commissionRate,
		CommissionAmount:    commission.Amount(),
		TaxRate:             taxRate,
		TaxAmount:           tax.Amount(),
		NetAmount:           net.Amount(),
		Currency:            gross.Currency(),
		Status:              BalanceStatusPending,
		Description:         description,
	}

	b.AddDomainEvent(NewSellerBalanceRecordedEvent(b))

	return b, nil
}

// NewSellerAdjustment records a compensating entry. Corrections never edit or
// delete existing lines; they are new PENDING lines whose amount may be
// negative. The amount is carried entirely in gross and net with zero
// commission and tax so the monetary invariant holds trivially.
func NewSellerAdjustment(
	tenantID, sellerID uuid.UUID,
	amount valueobject.Money,
	sellerClass SellerClass,
	description string,
) (*SellerBalance, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Tenant ID cannot be empty")
	}
	if sellerID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Seller ID cannot be empty")
	}
	if amount.IsZero() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Adjustment amount cannot be zero")
	}
	if !amount.Currency().IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unsupported currency %q", amount.Currency()))
	}
	if !sellerClass.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown seller class %q", sellerClass))
	}
	if description == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Adjustment requires a description")
	}

	b := &SellerBalance{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		SellerID:            sellerID,
		SellerClass:         sellerClass,
		GrossAmount:         amount.Amount(),
		CommissionRate:      decimal.Zero,
		CommissionAmount:    decimal.Zero,
		TaxRate:             decimal.Zero,
		TaxAmount:           decimal.Zero,
		NetAmount:           amount.Amount(),
		Currency:            amount.Currency(),
		Status:              BalanceStatusPending,
		Description:         description,
	}

	b.AddDomainEvent(NewSellerBalanceRecordedEvent(b))

	return b, nil
}

// MarkSettled transitions the line PENDING -> SETTLED as part of exactly one
// settlement run. A line that already references a run can never be claimed
// again.
func (b *SellerBalance) MarkSettled(runID uuid.UUID) error {
	if runID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Settlement run ID cannot be empty")
	}
	if b.Status != BalanceStatusPending {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot settle balance in %s status", b.Status))
	}
	if b.IsSettled || b.SettlementRunID != nil {
		return shared.NewDomainError("INVALID_STATE", "Balance already belongs to a settlement run")
	}

	now := time.Now()
	b.Status = BalanceStatusSettled
	b.IsSettled = true
	b.SettlementRunID = &runID
	b.SettledAt = &now
	b.UpdatedAt = now
	b.IncrementVersion()

	return nil
}

// MarkPaid transitions the line SETTLED -> PAID once its owning payout
// completes.
func (b *SellerBalance) MarkPaid() error {
	if b.Status != BalanceStatusSettled {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot mark balance paid in %s status", b.Status))
	}

	now := time.Now()
	b.Status = BalanceStatusPaid
	b.PaidAt = &now
	b.UpdatedAt = now
	b.IncrementVersion()

	return nil
}

// NetMoney returns the net amount as Money
func (b *SellerBalance) NetMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(b.NetAmount, b.Currency)
	return m
}

// GrossMoney returns the gross amount as Money
func (b *SellerBalance) GrossMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(b.GrossAmount, b.Currency)
	return m
}

// IsAdjustment returns true for compensating entries not backed by an order
func (b *SellerBalance) IsAdjustment() bool {
	return b.OrderID == nil && b.OrderItemID == nil
}

// CheckMonetaryInvariant verifies net = gross - commission - tax. The
// constructor guarantees it for every line it produces; callers aggregating
// many lines re-check before closing a run.
func (b *SellerBalance) CheckMonetaryInvariant() error {
	expected := b.GrossAmount.Sub(b.CommissionAmount).Sub(b.TaxAmount)
	if !b.NetAmount.Equal(expected) {
		return shared.NewDomainError("INTEGRITY_VIOLATION",
			fmt.Sprintf("Balance %s net %s does not equal gross - commission - tax = %s",
				b.ID, b.NetAmount, expected))
	}
	return nil
}

func validateRate(name string, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return shared.NewDomainError("VALIDATION_ERROR",
			fmt.Sprintf("The %s rate must be within [0,1], got %s", name, rate))
	}
	return nil
}
