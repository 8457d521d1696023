package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// BalanceFilter defines filtering options for seller balance queries
type BalanceFilter struct {
	shared.Filter
	SellerID *uuid.UUID
	Status   *BalanceStatus
	RunID    *uuid.UUID
	From     *time.Time
	To       *time.Time
}

// RunFilter defines filtering options for settlement run queries
type RunFilter struct {
	shared.Filter
	Status  *RunStatus
	RunType *RunType
	From    *time.Time
	To      *time.Time
}

// PayoutFilter defines filtering options for payout queries
type PayoutFilter struct {
	shared.Filter
	SellerID *uuid.UUID
	RunID    *uuid.UUID
	Status   *PayoutStatus
}

// StatusTotals holds the aggregate figures for one balance status
type StatusTotals struct {
	Count     int64           `json:"count"`
	NetAmount decimal.Decimal `json:"net_amount"`
}

// BalanceSummary is the pending/settled/paid rollup for a seller or tenant
type BalanceSummary struct {
	Pending StatusTotals `json:"pending"`
	Settled StatusTotals `json:"settled"`
	Paid    StatusTotals `json:"paid"`
}

// PayoutStats aggregates payout outcomes for reporting
type PayoutStats struct {
	Total     int64           `json:"total"`
	Pending   int64           `json:"pending"`
	Completed int64           `json:"completed"`
	Failed    int64           `json:"failed"`
	PaidOut   decimal.Decimal `json:"paid_out"`
}

// SellerBalanceRepository defines the interface for seller balance persistence
type SellerBalanceRepository interface {
	// FindByIDForTenant finds a balance line by ID for a specific tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*SellerBalance, error)

	// FindAllForTenant finds balance lines for a tenant with filtering
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter BalanceFilter) ([]SellerBalance, error)

	// FindPending finds PENDING balances for a tenant in creation order,
	// optionally restricted to one seller
	FindPending(ctx context.Context, tenantID uuid.UUID, sellerID *uuid.UUID) ([]SellerBalance, error)

	// FindByRun finds all balances claimed by a settlement run, in creation order
	FindByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]SellerBalance, error)

	// ExistsByOrderItem reports whether a balance line was already recorded for
	// an order item (idempotent event consumption)
	ExistsByOrderItem(ctx context.Context, tenantID, orderItemID uuid.UUID) (bool, error)

	// Save creates or updates a balance line
	Save(ctx context.Context, balance *SellerBalance) error

	// ClaimForRun atomically flips all claimable balances of the tenant within
	// the period to SETTLED referencing runID, then returns the claimed lines
	// in creation order. Claimable means status PENDING and no run reference;
	// rows claimed by a concurrent run are simply not matched, so the loser of
	// a race observes fewer (possibly zero) rows, never an error.
	ClaimForRun(ctx context.Context, tenantID, runID uuid.UUID, periodStart, periodEnd time.Time) ([]SellerBalance, error)

	// SumNetByRun returns the SQL-side net sum over the lines claimed by a run;
	// it must match the in-memory total before the run completes
	SumNetByRun(ctx context.Context, tenantID, runID uuid.UUID) (decimal.Decimal, error)

	// MarkPaidForSellerRun conditionally flips a seller's SETTLED lines in a
	// run to PAID, returning the number of rows affected
	MarkPaidForSellerRun(ctx context.Context, tenantID, runID, sellerID uuid.UUID) (int64, error)

	// Summarize returns pending/settled/paid totals for a tenant, optionally
	// restricted to one seller and a time window
	Summarize(ctx context.Context, tenantID uuid.UUID, sellerID *uuid.UUID, from, to *time.Time) (*BalanceSummary, error)
}

// SettlementRunRepository defines the interface for settlement run persistence
type SettlementRunRepository interface {
	// FindByIDForTenant finds a run by ID for a specific tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*SettlementRun, error)

	// FindAllForTenant finds runs for a tenant with filtering
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter RunFilter) ([]SettlementRun, error)

	// Save creates or updates a run
	Save(ctx context.Context, run *SettlementRun) error

	// SaveWithLock saves with optimistic locking; returns
	// shared.ErrConcurrencyConflict when another process got there first
	SaveWithLock(ctx context.Context, run *SettlementRun) error

	// CountByStatus counts runs by status for a tenant
	CountByStatus(ctx context.Context, tenantID uuid.UUID, status RunStatus) (int64, error)
}

// PayoutRepository defines the interface for payout persistence
type PayoutRepository interface {
	// FindByIDForTenant finds a payout by ID for a specific tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Payout, error)

	// FindByRun finds all payouts (every attempt) for a settlement run
	FindByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]Payout, error)

	// FindAllForTenant finds payouts for a tenant with filtering
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter PayoutFilter) ([]Payout, error)

	// ExistsActiveForSellerRun reports whether a non-FAILED payout already
	// exists for the seller and run (payout exclusivity)
	ExistsActiveForSellerRun(ctx context.Context, tenantID, runID, sellerID uuid.UUID) (bool, error)

	// Save creates or updates a payout
	Save(ctx context.Context, payout *Payout) error

	// SaveWithLock saves with optimistic locking; returns
	// shared.ErrConcurrencyConflict when another process got there first
	SaveWithLock(ctx context.Context, payout *Payout) error

	// Stats aggregates payout outcomes for a tenant, optionally for one run
	Stats(ctx context.Context, tenantID uuid.UUID, runID *uuid.UUID) (*PayoutStats, error)
}

// TxRepositories bundles the repositories bound to one database transaction
type TxRepositories struct {
	Balances SellerBalanceRepository
	Runs     SettlementRunRepository
	Payouts  PayoutRepository
}

// UnitOfWork runs fn against transactional repositories so that the balance
// claim and the run's totals write commit or roll back together. Any error
// returned by fn aborts the whole transaction, leaving every claimed balance
// PENDING again.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(repos TxRepositories) error) error
}
