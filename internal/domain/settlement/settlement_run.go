package settlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// RunStatus represents the status of a settlement run
type RunStatus string

const (
	RunStatusPending    RunStatus = "PENDING"    // Created, no balances claimed yet
	RunStatusProcessing RunStatus = "PROCESSING" // Claiming and totalling balances
	RunStatusCompleted  RunStatus = "COMPLETED"  // Totals written, balances settled
	RunStatusFailed     RunStatus = "FAILED"     // Aborted, balances rolled back to PENDING
)

// IsValid checks if the status is a valid RunStatus
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusProcessing, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of RunStatus
func (s RunStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the run can no longer change state
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// RunType categorizes how a settlement run was initiated
type RunType string

const (
	RunTypeManual    RunType = "MANUAL"    // Operator-initiated via the API
	RunTypeScheduled RunType = "SCHEDULED" // Fired by the periodic scheduler
	RunTypeTriggered RunType = "TRIGGERED" // Fired by an upstream system event
)

// IsValid checks if the run type is valid
func (t RunType) IsValid() bool {
	switch t {
	case RunTypeManual, RunTypeScheduled, RunTypeTriggered:
		return true
	}
	return false
}

// RunTotals are the aggregate figures of one settlement run. They must equal
// the sums over the balance lines referencing the run and are written exactly
// once, when the run completes.
type RunTotals struct {
	SellerCount     int
	OrderCount      int
	BalanceCount    int
	GrossAmount     decimal.Decimal
	CommissionTotal decimal.Decimal
	TaxTotal        decimal.Decimal
	NetAmount       decimal.Decimal
}

// ZeroRunTotals returns totals for a run that claimed no balances
func ZeroRunTotals() RunTotals {
	return RunTotals{
		GrossAmount:     decimal.Zero,
		CommissionTotal: decimal.Zero,
		TaxTotal:        decimal.Zero,
		NetAmount:       decimal.Zero,
	}
}

// ComputeRunTotals derives the aggregate figures from a set of claimed
// balance lines. Seller count is the number of distinct sellers touched and
// order count the number of distinct orders.
func ComputeRunTotals(balances []SellerBalance) (RunTotals, error) {
	totals := ZeroRunTotals()
	sellers := make(map[uuid.UUID]struct{})
	orders := make(map[uuid.UUID]struct{})

	for i := range balances {
		b := &balances[i]
		if err := b.CheckMonetaryInvariant(); err != nil {
			return RunTotals{}, err
		}
		sellers[b.SellerID] = struct{}{}
		if b.OrderID != nil {
			orders[*b.OrderID] = struct{}{}
		}
		totals.BalanceCount++
		totals.GrossAmount = totals.GrossAmount.Add(b.GrossAmount)
		totals.CommissionTotal = totals.CommissionTotal.Add(b.CommissionAmount)
		totals.TaxTotal = totals.TaxTotal.Add(b.TaxAmount)
		totals.NetAmount = totals.NetAmount.Add(b.NetAmount)
	}

	totals.SellerCount = len(sellers)
	totals.OrderCount = len(orders)
	return totals, nil
}

// SettlementRun is one batch execution that claims all pending balances of a
// tenant within a period and totals them. A failed run is terminal; retries
// create a fresh run over the still-unclaimed balances.
type SettlementRun struct {
	shared.TenantAggregateRoot
	RunType         RunType
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Status          RunStatus
	SellerCount     int
	OrderCount      int
	BalanceCount    int
	GrossAmount     decimal.Decimal
	CommissionTotal decimal.Decimal
	TaxTotal        decimal.Decimal
	NetAmount       decimal.Decimal
	ProcessedAt     *time.Time
	CompletedAt     *time.Time
	FailedAt        *time.Time
	ErrorMessage    string
}

// NewSettlementRun creates a run in PENDING state covering [periodStart, periodEnd]
func NewSettlementRun(tenantID uuid.UUID, runType RunType, periodStart, periodEnd time.Time) (*SettlementRun, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Tenant ID cannot be empty")
	}
	if !runType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown run type %q", runType))
	}
	if periodStart.IsZero() || periodEnd.IsZero() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Settlement period must be specified")
	}
	if !periodEnd.After(periodStart) {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Period end must be after period start")
	}

	r := &SettlementRun{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		RunType:             runType,
		PeriodStart:         periodStart,
		PeriodEnd:           periodEnd,
		Status:              RunStatusPending,
		GrossAmount:         decimal.Zero,
		CommissionTotal:     decimal.Zero,
		TaxTotal:            decimal.Zero,
		NetAmount:           decimal.Zero,
	}

	r.AddDomainEvent(NewSettlementRunCreatedEvent(r))

	return r, nil
}

// Start transitions the run PENDING -> PROCESSING. Once processing has begun
// the run must reach COMPLETED or FAILED; there is no mid-flight cancellation.
func (r *SettlementRun) Start() error {
	if r.Status != RunStatusPending {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot start run in %s status", r.Status))
	}

	now := time.Now()
	r.Status = RunStatusProcessing
	r.ProcessedAt = &now
	r.UpdatedAt = now
	r.IncrementVersion()

	return nil
}

// Complete transitions the run PROCESSING -> COMPLETED and writes the
// aggregate totals. Totals are written here and nowhere else.
func (r *SettlementRun) Complete(totals RunTotals) error {
	if r.Status != RunStatusProcessing {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot complete run in %s status", r.Status))
	}

	now := time.Now()
	r.Status = RunStatusCompleted
	r.SellerCount = totals.SellerCount
	r.OrderCount = totals.OrderCount
	r.BalanceCount = totals.BalanceCount
	r.GrossAmount = totals.GrossAmount
	r.CommissionTotal = totals.CommissionTotal
	r.TaxTotal = totals.TaxTotal
	r.NetAmount = totals.NetAmount
	r.CompletedAt = &now
	r.UpdatedAt = now
	r.IncrementVersion()

	r.AddDomainEvent(NewSettlementRunCompletedEvent(r))

	return nil
}

// Fail transitions the run to FAILED with a human-readable reason. FAILED is
// terminal for the run object; the claimed balances are expected to have been
// rolled back to PENDING by the aborted claim transaction.
func (r *SettlementRun) Fail(reason string) error {
	if r.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot fail run in %s status", r.Status))
	}
	if reason == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Failure reason is required")
	}

	now := time.Now()
	r.Status = RunStatusFailed
	r.FailedAt = &now
	r.ErrorMessage = reason
	r.UpdatedAt = now
	r.IncrementVersion()

	r.AddDomainEvent(NewSettlementRunFailedEvent(r))

	return nil
}

// Cancel aborts a run that has not yet begun claiming balances. Cancellation
// is only permitted while PENDING; the run records the cancellation as its
// terminal FAILED state so the status set stays closed.
func (r *SettlementRun) Cancel(reason string) error {
	if r.Status != RunStatusPending {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel run in %s status", r.Status))
	}
	if reason == "" {
		reason = "cancelled before execution"
	}

	now := time.Now()
	r.Status = RunStatusFailed
	r.FailedAt = &now
	r.ErrorMessage = reason
	r.UpdatedAt = now
	r.IncrementVersion()

	r.AddDomainEvent(NewSettlementRunFailedEvent(r))

	return nil
}

// Totals returns the run's aggregate figures
func (r *SettlementRun) Totals() RunTotals {
	return RunTotals{
		SellerCount:     r.SellerCount,
		OrderCount:      r.OrderCount,
		BalanceCount:    r.BalanceCount,
		GrossAmount:     r.GrossAmount,
		CommissionTotal: r.CommissionTotal,
		TaxTotal:        r.TaxTotal,
		NetAmount:       r.NetAmount,
	}
}

// IsCompleted returns true if the run finished successfully
func (r *SettlementRun) IsCompleted() bool {
	return r.Status == RunStatusCompleted
}

// ContainsTime reports whether t falls within the run's period
func (r *SettlementRun) ContainsTime(t time.Time) bool {
	return !t.Before(r.PeriodStart) && !t.After(r.PeriodEnd)
}
