package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"go.uber.org/zap"
)

// SellerStatement is one seller's earnings picture over a window: the
// status rollup plus the individual lines behind it
type SellerStatement struct {
	SellerID uuid.UUID                  `json:"seller_id"`
	From     *time.Time                 `json:"from,omitempty"`
	To       *time.Time                 `json:"to,omitempty"`
	Summary  settlement.BalanceSummary  `json:"summary"`
	Lines    []settlement.SellerBalance `json:"lines"`
}

// RunReport is the full picture of one settlement run: its stored totals, the
// lines it claimed and every payout attempt it produced
type RunReport struct {
	Run      settlement.SettlementRun   `json:"run"`
	Balances []settlement.SellerBalance `json:"balances"`
	Payouts  []settlement.Payout        `json:"payouts"`
}

// TenantOverview is the tenant-wide dashboard rollup
type TenantOverview struct {
	Balances       settlement.BalanceSummary `json:"balances"`
	PendingRuns    int64                     `json:"pending_runs"`
	ProcessingRuns int64                     `json:"processing_runs"`
	CompletedRuns  int64                     `json:"completed_runs"`
	FailedRuns     int64                     `json:"failed_runs"`
	Payouts        settlement.PayoutStats    `json:"payouts"`
}

// ReportingService answers read-only aggregation queries over balances, runs
// and payouts. Figures are computed by scanning the stored rows at query time
// rather than from maintained counters, so a report can never drift from the
// ledger it describes.
type ReportingService struct {
	balanceRepo settlement.SellerBalanceRepository
	runRepo     settlement.SettlementRunRepository
	payoutRepo  settlement.PayoutRepository
	logger      *zap.Logger
}

// NewReportingService creates a new ReportingService
func NewReportingService(
	balanceRepo settlement.SellerBalanceRepository,
	runRepo settlement.SettlementRunRepository,
	payoutRepo settlement.PayoutRepository,
	logger *zap.Logger,
) *ReportingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportingService{
		balanceRepo: balanceRepo,
		runRepo:     runRepo,
		payoutRepo:  payoutRepo,
		logger:      logger,
	}
}

// SellerStatement builds a seller's earnings statement for an optional window
func (s *ReportingService) SellerStatement(ctx context.Context, tenantID, sellerID uuid.UUID, from, to *time.Time) (*SellerStatement, error) {
	summary, err := s.balanceRepo.Summarize(ctx, tenantID, &sellerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize seller balances: %w", err)
	}

	filter := settlement.BalanceFilter{SellerID: &sellerID, From: from, To: to}
	lines, err := s.balanceRepo.FindAllForTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load seller balances: %w", err)
	}

	return &SellerStatement{
		SellerID: sellerID,
		From:     from,
		To:       to,
		Summary:  *summary,
		Lines:    lines,
	}, nil
}

// RunReport builds the full report for one settlement run
func (s *ReportingService) RunReport(ctx context.Context, tenantID, runID uuid.UUID) (*RunReport, error) {
	run, err := s.runRepo.FindByIDForTenant(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}

	balances, err := s.balanceRepo.FindByRun(ctx, tenantID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run balances: %w", err)
	}

	payouts, err := s.payoutRepo.FindByRun(ctx, tenantID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run payouts: %w", err)
	}

	return &RunReport{
		Run:      *run,
		Balances: balances,
		Payouts:  payouts,
	}, nil
}

// TenantOverview builds the tenant-wide dashboard rollup
func (s *ReportingService) TenantOverview(ctx context.Context, tenantID uuid.UUID) (*TenantOverview, error) {
	summary, err := s.balanceRepo.Summarize(ctx, tenantID, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize balances: %w", err)
	}

	overview := &TenantOverview{Balances: *summary}

	counts := []struct {
		status settlement.RunStatus
		dest   *int64
	}{
		{settlement.RunStatusPending, &overview.PendingRuns},
		{settlement.RunStatusProcessing, &overview.ProcessingRuns},
		{settlement.RunStatusCompleted, &overview.CompletedRuns},
		{settlement.RunStatusFailed, &overview.FailedRuns},
	}
	for _, c := range counts {
		n, err := s.runRepo.CountByStatus(ctx, tenantID, c.status)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s runs: %w", c.status, err)
		}
		*c.dest = n
	}

	stats, err := s.payoutRepo.Stats(ctx, tenantID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate payouts: %w", err)
	}
	overview.Payouts = *stats

	return overview, nil
}
