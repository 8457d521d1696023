package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// SettlementService orchestrates settlement runs: it selects eligible balance
// lines, claims them into a run and totals them atomically. It exclusively
// owns the PENDING -> SETTLED transition of balances.
type SettlementService struct {
	runRepo        settlement.SettlementRunRepository
	balanceRepo    settlement.SellerBalanceRepository
	uow            settlement.UnitOfWork
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewSettlementService creates a new SettlementService
func NewSettlementService(
	runRepo settlement.SettlementRunRepository,
	balanceRepo settlement.SellerBalanceRepository,
	uow settlement.UnitOfWork,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
) *SettlementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementService{
		runRepo:        runRepo,
		balanceRepo:    balanceRepo,
		uow:            uow,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// CreateRun creates a settlement run in PENDING state for a tenant and period
func (s *SettlementService) CreateRun(
	ctx context.Context,
	tenantID uuid.UUID,
	runType settlement.RunType,
	periodStart, periodEnd time.Time,
) (*settlement.SettlementRun, error) {
	run, err := settlement.NewSettlementRun(tenantID, runType, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	if err := s.runRepo.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save settlement run: %w", err)
	}

	s.publishEvents(ctx, run)

	s.logger.Info("settlement run created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("run_id", run.ID.String()),
		zap.String("run_type", string(runType)),
		zap.Time("period_start", periodStart),
		zap.Time("period_end", periodEnd),
	)

	return run, nil
}

// Execute performs the core settlement algorithm for a PENDING run:
//
//  1. Transition the run to PROCESSING via an optimistic-lock save, so that of
//     two racing invocations exactly one proceeds.
//  2. In a single database transaction, conditionally claim every balance of
//     the tenant that is still PENDING, unreferenced and created within the
//     run's period, flipping it to SETTLED with this run's id.
//  3. Total the claimed lines, cross-check the in-memory sums against the
//     SQL-side sum, and write the totals with the COMPLETED status in the same
//     transaction.
//
// Any failure aborts the transaction, leaving every balance PENDING, and
// marks the run FAILED with the reason; retries use a fresh run. Executing an
// already COMPLETED run is a no-op. Claiming zero balances completes the run
// with zero totals.
func (s *SettlementService) Execute(ctx context.Context, tenantID, runID uuid.UUID) (*settlement.SettlementRun, error) {
	run, err := s.runRepo.FindByIDForTenant(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case settlement.RunStatusCompleted:
		// idempotent re-invocation
		return run, nil
	case settlement.RunStatusProcessing:
		// another invocation is mid-flight; not an error for the caller
		s.logger.Info("settlement run already processing",
			zap.String("run_id", runID.String()))
		return run, nil
	case settlement.RunStatusFailed:
		return nil, shared.NewDomainError("INVALID_STATE",
			"Failed runs are terminal; create a new run to retry settlement")
	}

	if err := run.Start(); err != nil {
		return nil, err
	}
	if err := s.runRepo.SaveWithLock(ctx, run); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			// a concurrent invocation claimed the run first
			s.logger.Info("settlement run claimed by another process",
				zap.String("run_id", runID.String()))
			return s.runRepo.FindByIDForTenant(ctx, tenantID, runID)
		}
		return nil, fmt.Errorf("failed to start settlement run: %w", err)
	}

	claimErr := s.uow.Execute(ctx, func(repos settlement.TxRepositories) error {
		claimed, err := repos.Balances.ClaimForRun(ctx, tenantID, runID, run.PeriodStart, run.PeriodEnd)
		if err != nil {
			return fmt.Errorf("failed to claim balances: %w", err)
		}

		totals, err := settlement.ComputeRunTotals(claimed)
		if err != nil {
			return err
		}

		// the stored rows must sum to the in-memory total before the run closes
		storedNet, err := repos.Balances.SumNetByRun(ctx, tenantID, runID)
		if err != nil {
			return fmt.Errorf("failed to verify claimed totals: %w", err)
		}
		if !storedNet.Equal(totals.NetAmount) {
			return shared.NewDomainError("INTEGRITY_VIOLATION",
				fmt.Sprintf("Run %s net total %s does not match claimed rows sum %s",
					runID, totals.NetAmount, storedNet))
		}

		if err := run.Complete(totals); err != nil {
			return err
		}
		if err := repos.Runs.SaveWithLock(ctx, run); err != nil {
			return fmt.Errorf("failed to complete settlement run: %w", err)
		}
		return nil
	})

	if claimErr != nil {
		return s.failRun(ctx, tenantID, runID, claimErr)
	}

	s.publishEvents(ctx, run)

	s.logger.Info("settlement run completed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("run_id", runID.String()),
		zap.Int("seller_count", run.SellerCount),
		zap.Int("balance_count", run.BalanceCount),
		zap.String("net_amount", run.NetAmount.String()),
	)

	return run, nil
}

// failRun records the failure on the run after the claim transaction has been
// rolled back. The run is re-read because the in-memory copy may carry state
// from the aborted transaction.
func (s *SettlementService) failRun(ctx context.Context, tenantID, runID uuid.UUID, cause error) (*settlement.SettlementRun, error) {
	s.logger.Error("settlement run execution failed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("run_id", runID.String()),
		zap.Error(cause),
	)

	run, err := s.runRepo.FindByIDForTenant(ctx, tenantID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload run after claim failure: %w (claim error: %v)", err, cause)
	}

	if failErr := run.Fail(cause.Error()); failErr != nil {
		return nil, fmt.Errorf("failed to mark run failed: %w (claim error: %v)", failErr, cause)
	}
	if saveErr := s.runRepo.SaveWithLock(ctx, run); saveErr != nil {
		return nil, fmt.Errorf("failed to persist failed run: %w (claim error: %v)", saveErr, cause)
	}

	s.publishEvents(ctx, run)

	return run, cause
}

// CancelRun aborts a run that has not begun claiming. Once PROCESSING has
// started the run must reach COMPLETED or FAILED on its own.
func (s *SettlementService) CancelRun(ctx context.Context, tenantID, runID uuid.UUID, reason string) (*settlement.SettlementRun, error) {
	run, err := s.runRepo.FindByIDForTenant(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}

	if err := run.Cancel(reason); err != nil {
		return nil, err
	}
	if err := s.runRepo.SaveWithLock(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to cancel settlement run: %w", err)
	}

	s.publishEvents(ctx, run)

	s.logger.Info("settlement run cancelled",
		zap.String("run_id", runID.String()),
		zap.String("reason", reason),
	)

	return run, nil
}

// GetRun returns one settlement run
func (s *SettlementService) GetRun(ctx context.Context, tenantID, runID uuid.UUID) (*settlement.SettlementRun, error) {
	return s.runRepo.FindByIDForTenant(ctx, tenantID, runID)
}

// ListRuns returns a tenant's settlement runs with filtering
func (s *SettlementService) ListRuns(ctx context.Context, tenantID uuid.UUID, filter settlement.RunFilter) ([]settlement.SettlementRun, error) {
	return s.runRepo.FindAllForTenant(ctx, tenantID, filter)
}

func (s *SettlementService) publishEvents(ctx context.Context, run *settlement.SettlementRun) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, run.GetDomainEvents()...); err != nil {
		s.logger.Warn("failed to publish settlement run events",
			zap.String("run_id", run.ID.String()),
			zap.Error(err),
		)
	}
	run.ClearDomainEvents()
}
