package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PayoutService turns a completed settlement run into per-seller payout
// instructions, dispatches them to the banking collaborator and closes them
// when the collaborator's asynchronous result arrives.
type PayoutService struct {
	payoutRepo      settlement.PayoutRepository
	runRepo         settlement.SettlementRunRepository
	balanceRepo     settlement.SellerBalanceRepository
	directory       settlement.SellerDirectory
	banking         settlement.BankingGateway
	eventPublisher  shared.EventPublisher
	logger          *zap.Logger
	dispatchTimeout time.Duration
}

// NewPayoutService creates a new PayoutService. dispatchTimeout bounds each
// banking call; zero means 15 seconds.
func NewPayoutService(
	payoutRepo settlement.PayoutRepository,
	runRepo settlement.SettlementRunRepository,
	balanceRepo settlement.SellerBalanceRepository,
	directory settlement.SellerDirectory,
	banking settlement.BankingGateway,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
	dispatchTimeout time.Duration,
) *PayoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatchTimeout <= 0 {
		dispatchTimeout = 15 * time.Second
	}
	return &PayoutService{
		payoutRepo:      payoutRepo,
		runRepo:         runRepo,
		balanceRepo:     balanceRepo,
		directory:       directory,
		banking:         banking,
		eventPublisher:  eventPublisher,
		logger:          logger,
		dispatchTimeout: dispatchTimeout,
	}
}

// sellerShare accumulates one seller's claimed lines before payout creation
type sellerShare struct {
	sellerID uuid.UUID
	net      decimal.Decimal
	currency valueobject.Currency
	lines    int
}

// GeneratePayouts creates PENDING payouts for every seller with a positive net
// share of a COMPLETED run. Sellers that already have a non-FAILED payout for
// the run are skipped, so re-invoking after a partial failure only fills the
// gaps. Sellers with a zero or negative net share are skipped without a payout.
func (s *PayoutService) GeneratePayouts(ctx context.Context, tenantID, runID uuid.UUID) ([]settlement.Payout, error) {
	run, err := s.runRepo.FindByIDForTenant(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != settlement.RunStatusCompleted {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Payouts can only be generated for a COMPLETED run, not %s", run.Status))
	}

	balances, err := s.balanceRepo.FindByRun(ctx, tenantID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load claimed balances: %w", err)
	}

	// group by seller, preserving first-seen order
	order := make([]uuid.UUID, 0)
	shares := make(map[uuid.UUID]*sellerShare)
	for i := range balances {
		b := &balances[i]
		share, ok := shares[b.SellerID]
		if !ok {
			share = &sellerShare{sellerID: b.SellerID, currency: b.Currency}
			shares[b.SellerID] = share
			order = append(order, b.SellerID)
		}
		share.net = share.net.Add(b.NetAmount)
		share.lines++
	}

	created := make([]settlement.Payout, 0, len(order))
	for _, sellerID := range order {
		share := shares[sellerID]

		if !share.net.IsPositive() {
			s.logger.Info("skipping non-positive seller share",
				zap.String("run_id", runID.String()),
				zap.String("seller_id", sellerID.String()),
				zap.String("net", share.net.String()),
			)
			continue
		}

		exists, err := s.payoutRepo.ExistsActiveForSellerRun(ctx, tenantID, runID, sellerID)
		if err != nil {
			return created, fmt.Errorf("failed to check existing payouts: %w", err)
		}
		if exists {
			continue
		}

		profile, err := s.directory.PayoutProfile(ctx, tenantID, sellerID)
		if err != nil {
			return created, fmt.Errorf("failed to resolve payout profile for seller %s: %w", sellerID, err)
		}

		amount, err := valueobject.NewMoney(share.net, share.currency)
		if err != nil {
			return created, err
		}

		payout, err := settlement.NewPayout(tenantID, sellerID, runID, amount, profile.PaymentMethod, profile.BankAccount)
		if err != nil {
			return created, err
		}
		if err := s.payoutRepo.Save(ctx, payout); err != nil {
			return created, fmt.Errorf("failed to save payout: %w", err)
		}

		s.publishEvents(ctx, payout)
		created = append(created, *payout)
	}

	s.logger.Info("payouts generated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("run_id", runID.String()),
		zap.Int("created", len(created)),
		zap.Int("sellers", len(order)),
	)

	return created, nil
}

// Dispatch hands one PENDING payout to the banking collaborator. The payout id
// doubles as the idempotency key, so redelivering the same instruction after a
// network failure cannot double-transfer. A collaborator rejection or timeout
// marks the payout FAILED and is recorded, not returned; only infrastructure
// errors around our own persistence surface to the caller.
func (s *PayoutService) Dispatch(ctx context.Context, tenantID, payoutID uuid.UUID) (*settlement.Payout, error) {
	payout, err := s.payoutRepo.FindByIDForTenant(ctx, tenantID, payoutID)
	if err != nil {
		return nil, err
	}

	switch payout.Status {
	case settlement.PayoutStatusProcessing, settlement.PayoutStatusCompleted:
		// already dispatched or closed; redelivery is a no-op
		return payout, nil
	case settlement.PayoutStatusFailed:
		return nil, shared.NewDomainError("INVALID_STATE",
			"Failed payouts are terminal; use retry to create a new payout")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	ack, err := s.banking.Transfer(callCtx, settlement.TransferRequest{
		PayoutID:       payout.ID,
		TenantID:       tenantID,
		Amount:         payout.Amount,
		Currency:       payout.Currency,
		Destination:    payout.Destination,
		Reference:      fmt.Sprintf("settlement-run-%s", payout.SettlementRunID),
		IdempotencyKey: payout.IdempotencyKey(),
	})
	if err != nil {
		return s.failPayout(ctx, payout, fmt.Sprintf("transfer dispatch failed: %v", err))
	}
	if !ack.Accepted {
		return s.failPayout(ctx, payout, fmt.Sprintf("transfer rejected: %s", ack.Message))
	}

	if err := payout.MarkProcessing(ack.ExternalTransactionID); err != nil {
		return nil, err
	}
	if err := s.payoutRepo.SaveWithLock(ctx, payout); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			// the collaborator has the idempotency key either way; reread
			return s.payoutRepo.FindByIDForTenant(ctx, tenantID, payoutID)
		}
		return nil, fmt.Errorf("failed to save dispatched payout: %w", err)
	}

	s.publishEvents(ctx, payout)

	s.logger.Info("payout dispatched",
		zap.String("payout_id", payout.ID.String()),
		zap.String("external_transaction_id", ack.ExternalTransactionID),
	)

	return payout, nil
}

// DispatchPending dispatches every PENDING payout of a run in turn, stopping
// early only on persistence errors
func (s *PayoutService) DispatchPending(ctx context.Context, tenantID, runID uuid.UUID) (int, error) {
	pending := settlement.PayoutStatusPending
	payouts, err := s.payoutRepo.FindAllForTenant(ctx, tenantID, settlement.PayoutFilter{
		RunID:  &runID,
		Status: &pending,
	})
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for i := range payouts {
		result, err := s.Dispatch(ctx, tenantID, payouts[i].ID)
		if err != nil {
			return dispatched, err
		}
		if result.Status == settlement.PayoutStatusProcessing {
			dispatched++
		}
	}
	return dispatched, nil
}

// HandleResult closes a payout on the collaborator's asynchronous verdict. A
// completed transfer also flips the seller's settled lines in the run to PAID.
// Results for already terminal payouts are ignored, so redelivered callbacks
// are harmless.
func (s *PayoutService) HandleResult(
	ctx context.Context,
	tenantID, payoutID uuid.UUID,
	outcome settlement.PayoutOutcome,
	externalTransactionID, reason string,
) (*settlement.Payout, error) {
	if !outcome.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown payout outcome %q", outcome))
	}

	payout, err := s.payoutRepo.FindByIDForTenant(ctx, tenantID, payoutID)
	if err != nil {
		return nil, err
	}

	if payout.Status.IsTerminal() {
		s.logger.Info("ignoring result for terminal payout",
			zap.String("payout_id", payoutID.String()),
			zap.String("status", string(payout.Status)),
		)
		return payout, nil
	}

	switch outcome {
	case settlement.PayoutOutcomeCompleted:
		if err := payout.Complete(externalTransactionID); err != nil {
			return nil, err
		}
	case settlement.PayoutOutcomeFailed:
		if reason == "" {
			reason = "transfer failed"
		}
		if err := payout.Fail(reason); err != nil {
			return nil, err
		}
	}

	if err := s.payoutRepo.SaveWithLock(ctx, payout); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			return s.payoutRepo.FindByIDForTenant(ctx, tenantID, payoutID)
		}
		return nil, fmt.Errorf("failed to save payout result: %w", err)
	}

	if payout.Status == settlement.PayoutStatusCompleted {
		rows, err := s.balanceRepo.MarkPaidForSellerRun(ctx, tenantID, payout.SettlementRunID, payout.SellerID)
		if err != nil {
			return nil, fmt.Errorf("failed to mark balances paid: %w", err)
		}
		s.logger.Info("seller balances paid",
			zap.String("payout_id", payoutID.String()),
			zap.String("seller_id", payout.SellerID.String()),
			zap.Int64("balances", rows),
		)
	}

	s.publishEvents(ctx, payout)

	return payout, nil
}

// Retry creates a fresh PENDING payout for a FAILED one, unless another active
// payout for the seller and run appeared in the meantime
func (s *PayoutService) Retry(ctx context.Context, tenantID, payoutID uuid.UUID) (*settlement.Payout, error) {
	payout, err := s.payoutRepo.FindByIDForTenant(ctx, tenantID, payoutID)
	if err != nil {
		return nil, err
	}

	retry, err := payout.NewRetry()
	if err != nil {
		return nil, err
	}

	exists, err := s.payoutRepo.ExistsActiveForSellerRun(ctx, tenantID, payout.SettlementRunID, payout.SellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing payouts: %w", err)
	}
	if exists {
		return nil, shared.NewDomainError("ALREADY_EXISTS",
			"An active payout already exists for this seller and run")
	}

	if err := s.payoutRepo.Save(ctx, retry); err != nil {
		return nil, fmt.Errorf("failed to save retry payout: %w", err)
	}

	s.publishEvents(ctx, retry)

	s.logger.Info("payout retried",
		zap.String("failed_payout_id", payoutID.String()),
		zap.String("retry_payout_id", retry.ID.String()),
	)

	return retry, nil
}

// GetPayout returns one payout
func (s *PayoutService) GetPayout(ctx context.Context, tenantID, payoutID uuid.UUID) (*settlement.Payout, error) {
	return s.payoutRepo.FindByIDForTenant(ctx, tenantID, payoutID)
}

// ListPayouts returns a tenant's payouts with filtering
func (s *PayoutService) ListPayouts(ctx context.Context, tenantID uuid.UUID, filter settlement.PayoutFilter) ([]settlement.Payout, error) {
	return s.payoutRepo.FindAllForTenant(ctx, tenantID, filter)
}

// failPayout marks the payout FAILED and persists it. The collaborator error
// is recorded on the payout, not returned, so batch dispatch keeps going.
// Dispatch calls this straight from PENDING: a synchronous rejection means the
// instruction never reached the bank, so there is no PROCESSING interval to
// pass through.
func (s *PayoutService) failPayout(ctx context.Context, payout *settlement.Payout, reason string) (*settlement.Payout, error) {
	s.logger.Warn("payout dispatch failed",
		zap.String("payout_id", payout.ID.String()),
		zap.String("reason", reason),
	)

	if err := payout.Fail(reason); err != nil {
		return nil, err
	}
	if err := s.payoutRepo.SaveWithLock(ctx, payout); err != nil {
		return nil, fmt.Errorf("failed to save failed payout: %w", err)
	}

	s.publishEvents(ctx, payout)

	return payout, nil
}

func (s *PayoutService) publishEvents(ctx context.Context, payout *settlement.Payout) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, payout.GetDomainEvents()...); err != nil {
		s.logger.Warn("failed to publish payout events",
			zap.String("payout_id", payout.ID.String()),
			zap.Error(err),
		)
	}
	payout.ClearDomainEvents()
}
