package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type payoutServiceFixture struct {
	payoutRepo  *MockPayoutRepository
	runRepo     *MockSettlementRunRepository
	balanceRepo *MockSellerBalanceRepository
	directory   *MockSellerDirectory
	banking     *MockBankingGateway
	service     *PayoutService
}

func newPayoutServiceFixture() *payoutServiceFixture {
	f := &payoutServiceFixture{
		payoutRepo:  new(MockPayoutRepository),
		runRepo:     new(MockSettlementRunRepository),
		balanceRepo: new(MockSellerBalanceRepository),
		directory:   new(MockSellerDirectory),
		banking:     new(MockBankingGateway),
	}
	f.service = NewPayoutService(
		f.payoutRepo, f.runRepo, f.balanceRepo, f.directory, f.banking,
		nil, nil, time.Second,
	)
	return f
}

func testProfile(sellerID uuid.UUID) *settlement.PayoutProfile {
	return &settlement.PayoutProfile{
		SellerID:      sellerID,
		PaymentMethod: settlement.PaymentMethodBankTransfer,
		BankAccount: settlement.BankAccount{
			BankName:      "First National",
			AccountName:   "Seller Inc",
			AccountNumber: "000123456",
		},
	}
}

func TestPayoutService_GeneratePayouts_Success(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	sellerA := uuid.New()
	sellerB := uuid.New()

	f := newPayoutServiceFixture()
	run := newTestRun(tenantID, settlement.RunStatusCompleted)

	balances := []settlement.SellerBalance{
		*newTestBalance(tenantID, sellerA, 100.00), // net 80
		*newTestBalance(tenantID, sellerA, 200.00), // net 160
		*newTestBalance(tenantID, sellerB, 50.00),  // net 40
	}

	f.runRepo.On("FindByIDForTenant", ctx, tenantID, run.ID).Return(run, nil)
	f.balanceRepo.On("FindByRun", ctx, tenantID, run.ID).Return(balances, nil)
	f.payoutRepo.On("ExistsActiveForSellerRun", ctx, tenantID, run.ID, sellerA).Return(false, nil)
	f.payoutRepo.On("ExistsActiveForSellerRun", ctx, tenantID, run.ID, sellerB).Return(false, nil)
	f.directory.On("PayoutProfile", ctx, tenantID, sellerA).Return(testProfile(sellerA), nil)
	f.directory.On("PayoutProfile", ctx, tenantID, sellerB).Return(testProfile(sellerB), nil)
	f.payoutRepo.On("Save", ctx, mock.AnythingOfType("*settlement.Payout")).Return(nil)

	payouts, err := f.service.GeneratePayouts(ctx, tenantID, run.ID)

	require.NoError(t, err)
	require.Len(t, payouts, 2)

	// one payout per seller, amount = sum of that seller's net lines
	assert.Equal(t, sellerA, payouts[0].SellerID)
	assert.Equal(t, "240", payouts[0].Amount.String())
	assert.Equal(t, sellerB, payouts[1].SellerID)
	assert.Equal(t, "40", payouts[1].Amount.String())
	for _, p := range payouts {
		assert.Equal(t, settlement.PayoutStatusPending, p.Status)
		assert.Equal(t, run.ID, p.SettlementRunID)
	}

	f.payoutRepo.AssertExpectations(t)
	f.directory.AssertExpectations(t)
}

func TestPayoutService_GeneratePayouts_RunNotCompleted(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	f := newPayoutServiceFixture()
	run := newTestRun(tenantID, settlement.RunStatusProcessing)

	f.runRepo.On("FindByIDForTenant", ctx, tenantID, run.ID).Return(run, nil)

	payouts, err := f.service.GeneratePayouts(ctx, tenantID, run.ID)

	assert.Error(t, err)
	assert.Nil(t, payouts)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_STATE", domainErr.Code)
	f.balanceRepo.AssertNotCalled(t, "FindByRun")
}

func TestPayoutService_GeneratePayouts_SkipsExistingAndNonPositive(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	covered := uuid.New()
	negative := uuid.New()
	fresh := uuid.New()

	f := newPayoutServiceFixture()
	run := newTestRun(tenantID, settlement.RunStatusCompleted)

	negAdjustment, errAdj := settlement.NewSellerAdjustment(tenantID, negative, mustMoney(-30.00),
		settlement.SellerClassStandard, "clawback exceeding earnings")
	require.NoError(t, errAdj)

	balances := []settlement.SellerBalance{
		*newTestBalance(tenantID, covered, 100.00),
		*negAdjustment,
		*newTestBalance(tenantID, fresh, 50.00),
	}

	f.runRepo.On("FindByIDForTenant", ctx, tenantID, run.ID).Return(run, nil)
	f.balanceRepo.On("FindByRun", ctx, tenantID, run.ID).Return(balances, nil)
	f.payoutRepo.On("ExistsActiveForSellerRun", ctx, tenantID, run.ID, covered).Return(true, nil)
	f.payoutRepo.On("ExistsActiveForSellerRun", ctx, tenantID, run.ID, fresh).Return(false, nil)
	f.directory.On("PayoutProfile", ctx, tenantID, fresh).Return(testProfile(fresh), nil)
	f.payoutRepo.On("Save", ctx, mock.AnythingOfType("*settlement.Payout")).Return(nil)

	payouts, err := f.service.GeneratePayouts(ctx, tenantID, run.ID)

	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, fresh, payouts[0].SellerID)

	// the negative-share seller never reaches the directory or a payout
	f.directory.AssertNumberOfCalls(t, "PayoutProfile", 1)
	f.payoutRepo.AssertExpectations(t)
}

func TestPayoutService_Dispatch_Success(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	f := newPayoutServiceFixture()
	payout := newTestPayout(tenantID, uuid.New(), uuid.New(), settlement.PayoutStatusPending)

	f.payoutRepo.On("FindByIDForTenant", ctx, tenantID, payout.ID).Return(payout, nil)
	f.banking.On("Transfer", mock.Anything, mock.MatchedBy(func(req settlement.TransferRequest) bool {
		return req.PayoutID == payout.ID && req.IdempotencyKey == payout.ID.String()
	})).Return(&settlement.TransferAck{ExternalTransactionID: "TX-9000", Accepted: true}, nil)
	f.payoutRepo.On("SaveWithLock", ctx, payout).Return(nil)

	result, err := f.service.Dispatch(ctx, tenantID, payout.ID)

	require.NoError(t, err)
	assert.Equal(t, settlement.PayoutStatusProcessing, result.Status)
	assert.Equal(t, "TX-9000", result.ExternalTransactionID)
	f.banking.AssertExpectations(t)
}

func TestPayoutService_Dispatch_BankUnavailableFailsPayout(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	f := newPayoutServiceFixture()
	payout := newTestPayout(tenantID, uuid.New(), uuid.New(), settlement.PayoutStatusPending)

	f.payoutRepo.On("FindByIDForTenant", ctx, tenantID, payout.ID).Return(payout, nil)
	f.banking.On("Transfer", mock.Anything, mock.Anything).
		Return(nil, settlement.ErrBankingUnavailable)
	f.payoutRepo.On("SaveWithLock", ctx, payout).Return(nil)

	result, err := f.service.Dispatch(ctx, tenantID, payout.ID)

	// the collaborator failure is recorded on the payout, not surfaced
	require.NoError(t, err)
	assert.Equal(t, settlement.PayoutStatusFailed, result.Status)
	assert.Contains(t, result.FailureReason, "temporarily unavailable")
}

func TestPayoutService_Dispatch_RejectedFailsPayout(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	f := newPayoutServiceFixture()
	payout := newTestPayout(tenantID, uuid.New(), uuid.New(), settlement.PayoutStatusPending)

	f.payoutRepo.On("FindByIDForTenant", ctx, tenantID, payout.ID).Return(payout, nil)
	f.banking.On("Transfer", mock.Anything, mock.Anything).
		Return(&settlement.TransferAck{Accepted: false, Message: "account closed"}, nil)
	f.payoutRepo.On("SaveWithLock", ctx, payout).Return(nil)

	result, err := f.service.Dispatch(ctx, tenantID, payout.ID)

	require.NoError(t, err)
	assert.Equal(t, settlement.PayoutStatusFailed, result.Status)
	assert.Contains(t, result.FailureReason, "account closed")
}

func TestPayoutService_Dispatch_RedeliveryIsNoOp(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	f := newPayoutServiceFixture()
	payout := newTestPayout(tenantID, uuid.New(), uuid.New(), settlement.PayoutStatusProcessing)

	f.payoutRepo.On("FindByIDForTenant", ctx, tenantID, payout.ID).Return(payout, nil)

	result, err := f.service.Dispatch(ctx, tenantID, payout.ID)

	require.NoError(t, err)
	assert.Equal(t, settlement.PayoutStatusProcessing, result.Status)
	f.banking.AssertNotCalled(t, "Transfer")
}

func TestPayoutService_HandleResult_Completed(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	sellerID := uuid.New()
	runID := uuid.New()

	f := newPayoutServiceFixture()
	payout := newTestPayout(tenantID, sellerID, runID, settlement.PayoutStatusProcessing)

	f.payoutRepo.On("FindByIDForTenant", ctx, tenantID, payout.ID).Return(payout, nil)
	f.payoutRepo.On("SaveWithLock", ctx, payout).Return(nil)
	f.balanceRepo.On("MarkPaidForSellerRun", ctx, tenantID, runID, sellerID).Return(int64(2), nil)

	result, err := f.service.HandleResult(ctx, tenantID, payout.ID,
		settlement.PayoutOutcomeCompleted, "TX-1", "")

	require.NoError(t, err)
	assert.Equal(t, settlement.PayoutStatusCompleted, result.Status)
	assert.Equal(t, "TX-1", result.ExternalTransactionID)
	f.balanceRepo.AssertExpectations(t)
}

func TestPayoutService_HandleResult_Failed(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	f := newPayoutServiceFixture()
	payout := newTestPayout(tenantID, uuid.New(), uuid.New(), settlement.PayoutStatusProcessing)

	f.payoutRepo.On("FindByIDForTenant", ctx, tenantID, payout.ID).Return(payout, nil)
	f.payoutRepo.On("SaveWithLock", ctx, payout).Return(nil)

	result, err := f.service.HandleResult(ctx, tenantID, payout.ID,
		settlement.PayoutOutcomeFailed, "", "insufficient funds at bank")

	require.NoError(t, err)
	assert.Equal(t, settlement.PayoutStatusFailed, result.Status)
	assert.Equal(t, "insufficient funds at bank", result.FailureReason)
	// failed payouts never flip balances to PAID
	f.balanceRepo.AssertNotCalled(t, "MarkPaidForSellerRun")
}

func TestPayoutService_HandleResult_TerminalPayoutIgnored(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	f := newPayoutServiceFixture()
	payout := newTestPayout(tenantID, uuid.New(), uuid.New(), settlement.PayoutStatusCompleted)

	f.payoutRepo.On("FindByIDForTenant", ctx, tenantID, payout.ID).Return(payout, nil)

	result, err := f.service.HandleResult(ctx, tenantID, payout.ID,
		settlement.PayoutOutcomeFailed, "", "late duplicate callback")

	require.NoError(t, err)
	assert.Equal(t, settlement.PayoutStatusCompleted, result.Status)
	f.payoutRepo.AssertNotCalled(t, "SaveWithLock")
}

func TestPayoutService_Retry(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	sellerID := uuid.New()
	runID := uuid.New()

	t.Run("failed payout spawns a fresh pending payout", func(t *testing.T) {
		f := newPayoutServiceFixture()
		failed := newTestPayout(tenantID, sellerID, runID, settlement.PayoutStatusFailed)

		f.payoutRepo.On("FindByIDForTenant", ctx, tenantID, failed.ID).Return(failed, nil)
		f.payoutRepo.On("ExistsActiveForSellerRun", ctx, tenantID, runID, sellerID).Return(false, nil)
		f.payoutRepo.On("Save", ctx, mock.AnythingOfType("*settlement.Payout")).Return(nil)

		retry, err := f.service.Retry(ctx, tenantID, failed.ID)

		require.NoError(t, err)
		assert.NotEqual(t, failed.ID, retry.ID)
		assert.Equal(t, settlement.PayoutStatusPending, retry.Status)
		require.NotNil(t, retry.RetryOf)
		assert.Equal(t, failed.ID, *retry.RetryOf)
		assert.Equal(t, failed.Amount.String(), retry.Amount.String())
	})

	t.Run("non-failed payout cannot be retried", func(t *testing.T) {
		f := newPayoutServiceFixture()
		processing := newTestPayout(tenantID, sellerID, runID, settlement.PayoutStatusProcessing)

		f.payoutRepo.On("FindByIDForTenant", ctx, tenantID, processing.ID).Return(processing, nil)

		retry, err := f.service.Retry(ctx, tenantID, processing.ID)

		assert.Error(t, err)
		assert.Nil(t, retry)
	})

	t.Run("retry refused when an active payout exists", func(t *testing.T) {
		f := newPayoutServiceFixture()
		failed := newTestPayout(tenantID, sellerID, runID, settlement.PayoutStatusFailed)

		f.payoutRepo.On("FindByIDForTenant", ctx, tenantID, failed.ID).Return(failed, nil)
		f.payoutRepo.On("ExistsActiveForSellerRun", ctx, tenantID, runID, sellerID).Return(true, nil)

		retry, err := f.service.Retry(ctx, tenantID, failed.ID)

		assert.Error(t, err)
		assert.Nil(t, retry)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "ALREADY_EXISTS", domainErr.Code)
		f.payoutRepo.AssertNotCalled(t, "Save")
	})
}
