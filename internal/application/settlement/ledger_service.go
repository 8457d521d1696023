package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecordEarningCommand carries the order-derived facts for one earning line.
// When CommissionRate is nil the platform rate table for the seller's class
// applies.
type RecordEarningCommand struct {
	TenantID       uuid.UUID
	SellerID       uuid.UUID
	OrderRef       settlement.OrderRef
	Gross          valueobject.Money
	CommissionRate *decimal.Decimal
	TaxRate        decimal.Decimal
	SellerClass    settlement.SellerClass
	Description    string
}

// RecordAdjustmentCommand carries a compensating correction for a seller.
// The amount may be negative; it is recorded as a fresh PENDING line, never as
// an edit of history.
type RecordAdjustmentCommand struct {
	TenantID    uuid.UUID
	SellerID    uuid.UUID
	Amount      valueobject.Money
	SellerClass settlement.SellerClass
	Description string
}

// LedgerService is the balance ledger: it records per-seller earning lines
// and answers read-only summary queries. It never batches and never
// transitions balance status; those belong to the settlement orchestrator and
// the payout generator.
type LedgerService struct {
	balanceRepo    settlement.SellerBalanceRepository
	rates          settlement.RateTable
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(
	balanceRepo settlement.SellerBalanceRepository,
	rates settlement.RateTable,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rates == nil {
		rates = settlement.DefaultRateTable()
	}
	return &LedgerService{
		balanceRepo:    balanceRepo,
		rates:          rates,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// RecordEarning computes commission, tax and net deterministically and
// persists a new PENDING balance line. The single insert is the only side
// effect of this call.
func (s *LedgerService) RecordEarning(ctx context.Context, cmd RecordEarningCommand) (*settlement.SellerBalance, error) {
	commissionRate := s.rates.CommissionRateFor(cmd.SellerClass)
	if cmd.CommissionRate != nil {
		commissionRate = *cmd.CommissionRate
	}

	balance, err := settlement.NewSellerBalance(
		cmd.TenantID,
		cmd.SellerID,
		cmd.OrderRef,
		cmd.Gross,
		commissionRate,
		cmd.TaxRate,
		cmd.SellerClass,
		cmd.Description,
	)
	if err != nil {
		return nil, err
	}

	if err := s.balanceRepo.Save(ctx, balance); err != nil {
		return nil, fmt.Errorf("failed to save seller balance: %w", err)
	}

	s.publishEvents(ctx, balance)

	s.logger.Info("seller balance recorded",
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("seller_id", cmd.SellerID.String()),
		zap.String("balance_id", balance.ID.String()),
		zap.String("net_amount", balance.NetAmount.String()),
	)

	return balance, nil
}

// RecordAdjustment persists a compensating entry as a new PENDING line
func (s *LedgerService) RecordAdjustment(ctx context.Context, cmd RecordAdjustmentCommand) (*settlement.SellerBalance, error) {
	balance, err := settlement.NewSellerAdjustment(
		cmd.TenantID,
		cmd.SellerID,
		cmd.Amount,
		cmd.SellerClass,
		cmd.Description,
	)
	if err != nil {
		return nil, err
	}

	if err := s.balanceRepo.Save(ctx, balance); err != nil {
		return nil, fmt.Errorf("failed to save adjustment: %w", err)
	}

	s.publishEvents(ctx, balance)

	s.logger.Info("seller adjustment recorded",
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("seller_id", cmd.SellerID.String()),
		zap.String("balance_id", balance.ID.String()),
		zap.String("amount", balance.NetAmount.String()),
	)

	return balance, nil
}

// ListPending returns the PENDING balances of a tenant in creation order,
// optionally restricted to one seller
func (s *LedgerService) ListPending(ctx context.Context, tenantID uuid.UUID, sellerID *uuid.UUID) ([]settlement.SellerBalance, error) {
	return s.balanceRepo.FindPending(ctx, tenantID, sellerID)
}

// ListBalances returns a tenant's balance lines with filtering
func (s *LedgerService) ListBalances(ctx context.Context, tenantID uuid.UUID, filter settlement.BalanceFilter) ([]settlement.SellerBalance, error) {
	return s.balanceRepo.FindAllForTenant(ctx, tenantID, filter)
}

// GetBalance returns one balance line
func (s *LedgerService) GetBalance(ctx context.Context, tenantID, balanceID uuid.UUID) (*settlement.SellerBalance, error) {
	return s.balanceRepo.FindByIDForTenant(ctx, tenantID, balanceID)
}

// Summarize returns pending/settled/paid totals for a seller within an
// optional time window. Pure aggregation over the balance table.
func (s *LedgerService) Summarize(ctx context.Context, tenantID uuid.UUID, sellerID *uuid.UUID, from, to *time.Time) (*settlement.BalanceSummary, error) {
	summary, err := s.balanceRepo.Summarize(ctx, tenantID, sellerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize balances: %w", err)
	}
	return summary, nil
}

func (s *LedgerService) publishEvents(ctx context.Context, balance *settlement.SellerBalance) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, balance.GetDomainEvents()...); err != nil {
		s.logger.Warn("failed to publish balance events",
			zap.String("balance_id", balance.ID.String()),
			zap.Error(err),
		)
	}
	balance.ClearDomainEvents()
}
