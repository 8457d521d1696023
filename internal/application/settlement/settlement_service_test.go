package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newSettlementServiceForTest(runRepo *MockSettlementRunRepository, balanceRepo *MockSellerBalanceRepository) (*SettlementService, *stubUnitOfWork) {
	uow := &stubUnitOfWork{repos: settlement.TxRepositories{
		Balances: balanceRepo,
		Runs:     runRepo,
	}}
	return NewSettlementService(runRepo, balanceRepo, uow, nil, nil), uow
}

func TestSettlementService_CreateRun(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("creates pending run", func(t *testing.T) {
		runRepo := new(MockSettlementRunRepository)
		service, _ := newSettlementServiceForTest(runRepo, new(MockSellerBalanceRepository))

		runRepo.On("Save", ctx, mock.AnythingOfType("*settlement.SettlementRun")).Return(nil)

		run, err := service.CreateRun(ctx, tenantID, settlement.RunTypeManual,
			time.Now().Add(-24*time.Hour), time.Now())

		require.NoError(t, err)
		assert.Equal(t, settlement.RunStatusPending, run.Status)
		assert.Equal(t, tenantID, run.TenantID)
		runRepo.AssertExpectations(t)
	})

	t.Run("rejects inverted period", func(t *testing.T) {
		runRepo := new(MockSettlementRunRepository)
		service, _ := newSettlementServiceForTest(runRepo, new(MockSellerBalanceRepository))

		run, err := service.CreateRun(ctx, tenantID, settlement.RunTypeManual,
			time.Now(), time.Now().Add(-24*time.Hour))

		assert.Error(t, err)
		assert.Nil(t, run)
		runRepo.AssertNotCalled(t, "Save")
	})
}

func TestSettlementService_Execute_Success(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	sellerA := uuid.New()
	sellerB := uuid.New()

	runRepo := new(MockSettlementRunRepository)
	balanceRepo := new(MockSellerBalanceRepository)
	service, _ := newSettlementServiceForTest(runRepo, balanceRepo)

	run := newTestRun(tenantID, settlement.RunStatusPending)

	claimed := []settlement.SellerBalance{
		*newTestBalance(tenantID, sellerA, 100.00), // net 80
		*newTestBalance(tenantID, sellerA, 200.00), // net 160
		*newTestBalance(tenantID, sellerB, 50.00),  // net 40
	}

	runRepo.On("FindByIDForTenant", ctx, tenantID, run.ID).Return(run, nil)
	runRepo.On("SaveWithLock", ctx, run).Return(nil)
	balanceRepo.On("ClaimForRun", ctx, tenantID, run.ID, run.PeriodStart, run.PeriodEnd).Return(claimed, nil)
	balanceRepo.On("SumNetByRun", ctx, tenantID, run.ID).Return(decimal.NewFromInt(280), nil)

	result, err := service.Execute(ctx, tenantID, run.ID)

	require.NoError(t, err)
	assert.Equal(t, settlement.RunStatusCompleted, result.Status)
	assert.Equal(t, 2, result.SellerCount)
	assert.Equal(t, 3, result.BalanceCount)
	assert.Equal(t, "280", result.NetAmount.String())
	assert.Equal(t, "350", result.GrossAmount.String())

	runRepo.AssertExpectations(t)
	balanceRepo.AssertExpectations(t)
}

func TestSettlementService_Execute_EmptyPeriod(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	runRepo := new(MockSettlementRunRepository)
	balanceRepo := new(MockSellerBalanceRepository)
	service, _ := newSettlementServiceForTest(runRepo, balanceRepo)

	run := newTestRun(tenantID, settlement.RunStatusPending)

	runRepo.On("FindByIDForTenant", ctx, tenantID, run.ID).Return(run, nil)
	runRepo.On("SaveWithLock", ctx, run).Return(nil)
	balanceRepo.On("ClaimForRun", ctx, tenantID, run.ID, run.PeriodStart, run.PeriodEnd).
		Return([]settlement.SellerBalance{}, nil)
	balanceRepo.On("SumNetByRun", ctx, tenantID, run.ID).Return(decimal.Zero, nil)

	result, err := service.Execute(ctx, tenantID, run.ID)

	// claiming nothing still completes the run, with zero totals
	require.NoError(t, err)
	assert.Equal(t, settlement.RunStatusCompleted, result.Status)
	assert.Equal(t, 0, result.BalanceCount)
	assert.True(t, result.NetAmount.IsZero())
}

func TestSettlementService_Execute_CompletedIsNoOp(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	runRepo := new(MockSettlementRunRepository)
	balanceRepo := new(MockSellerBalanceRepository)
	service, _ := newSettlementServiceForTest(runRepo, balanceRepo)

	run := newTestRun(tenantID, settlement.RunStatusCompleted)
	runRepo.On("FindByIDForTenant", ctx, tenantID, run.ID).Return(run, nil)

	result, err := service.Execute(ctx, tenantID, run.ID)

	require.NoError(t, err)
	assert.Equal(t, settlement.RunStatusCompleted, result.Status)
	balanceRepo.AssertNotCalled(t, "ClaimForRun")
	runRepo.AssertNotCalled(t, "SaveWithLock")
}

func TestSettlementService_Execute_FailedIsTerminal(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	runRepo := new(MockSettlementRunRepository)
	service, _ := newSettlementServiceForTest(runRepo, new(MockSellerBalanceRepository))

	run := newTestRun(tenantID, settlement.RunStatusFailed)
	runRepo.On("FindByIDForTenant", ctx, tenantID, run.ID).Return(run, nil)

	result, err := service.Execute(ctx, tenantID, run.ID)

	assert.Error(t, err)
	assert.Nil(t, result)

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_STATE", domainErr.Code)
}

func TestSettlementService_Execute_LosesStartRace(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	runRepo := new(MockSettlementRunRepository)
	balanceRepo := new(MockSellerBalanceRepository)
	service, _ := newSettlementServiceForTest(runRepo, balanceRepo)

	run := newTestRun(tenantID, settlement.RunStatusPending)
	winner := newTestRun(tenantID, settlement.RunStatusProcessing)
	winner.ID = run.ID

	runRepo.On("FindByIDForTenant", ctx, tenantID, run.ID).Return(run, nil).Once()
	runRepo.On("SaveWithLock", ctx, run).Return(shared.ErrConcurrencyConflict)
	runRepo.On("FindByIDForTenant", ctx, tenantID, run.ID).Return(winner, nil).Once()

	result, err := service.Execute(ctx, tenantID, run.ID)

	// losing the optimistic-lock race is absorbed, not surfaced
	require.NoError(t, err)
	assert.Equal(t, settlement.RunStatusProcessing, result.Status)
	balanceRepo.AssertNotCalled(t, "ClaimForRun")
}

func TestSettlementService_Execute_ClaimFailureFailsRun(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	runRepo := new(MockSettlementRunRepository)
	balanceRepo := new(MockSellerBalanceRepository)
	service, _ := newSettlementServiceForTest(runRepo, balanceRepo)

	run := newTestRun(tenantID, settlement.RunStatusPending)
	reloaded := newTestRun(tenantID, settlement.RunStatusProcessing)
	reloaded.ID = run.ID

	runRepo.On("FindByIDForTenant", ctx, tenantID, run.ID).Return(run, nil).Once()
	runRepo.On("SaveWithLock", ctx, mock.AnythingOfType("*settlement.SettlementRun")).Return(nil)
	balanceRepo.On("ClaimForRun", ctx, tenantID, run.ID, run.PeriodStart, run.PeriodEnd).
		Return(nil, errors.New("deadlock detected"))
	runRepo.On("FindByIDForTenant", ctx, tenantID, run.ID).Return(reloaded, nil).Once()

	result, err := service.Execute(ctx, tenantID, run.ID)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
	require.NotNil(t, result)
	assert.Equal(t, settlement.RunStatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "deadlock detected")
}

func TestSettlementService_Execute_TotalsMismatchFailsRun(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	runRepo := new(MockSettlementRunRepository)
	balanceRepo := new(MockSellerBalanceRepository)
	service, _ := newSettlementServiceForTest(runRepo, balanceRepo)

	run := newTestRun(tenantID, settlement.RunStatusPending)
	reloaded := newTestRun(tenantID, settlement.RunStatusProcessing)
	reloaded.ID = run.ID

	claimed := []settlement.SellerBalance{*newTestBalance(tenantID, uuid.New(), 100.00)} // net 80

	runRepo.On("FindByIDForTenant", ctx, tenantID, run.ID).Return(run, nil).Once()
	runRepo.On("SaveWithLock", ctx, mock.AnythingOfType("*settlement.SettlementRun")).Return(nil)
	balanceRepo.On("ClaimForRun", ctx, tenantID, run.ID, run.PeriodStart, run.PeriodEnd).Return(claimed, nil)
	balanceRepo.On("SumNetByRun", ctx, tenantID, run.ID).Return(decimal.NewFromInt(9999), nil)
	runRepo.On("FindByIDForTenant", ctx, tenantID, run.ID).Return(reloaded, nil).Once()

	result, err := service.Execute(ctx, tenantID, run.ID)

	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INTEGRITY_VIOLATION", domainErr.Code)
	require.NotNil(t, result)
	assert.Equal(t, settlement.RunStatusFailed, result.Status)
}

func TestSettlementService_CancelRun(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("pending run can be cancelled", func(t *testing.T) {
		runRepo := new(MockSettlementRunRepository)
		service, _ := newSettlementServiceForTest(runRepo, new(MockSellerBalanceRepository))

		run := newTestRun(tenantID, settlement.RunStatusPending)
		runRepo.On("FindByIDForTenant", ctx, tenantID, run.ID).Return(run, nil)
		runRepo.On("SaveWithLock", ctx, run).Return(nil)

		result, err := service.CancelRun(ctx, tenantID, run.ID, "wrong period")

		require.NoError(t, err)
		assert.Equal(t, settlement.RunStatusFailed, result.Status)
		assert.Equal(t, "wrong period", result.ErrorMessage)
	})

	t.Run("processing run cannot be cancelled", func(t *testing.T) {
		runRepo := new(MockSettlementRunRepository)
		service, _ := newSettlementServiceForTest(runRepo, new(MockSellerBalanceRepository))

		run := newTestRun(tenantID, settlement.RunStatusProcessing)
		runRepo.On("FindByIDForTenant", ctx, tenantID, run.ID).Return(run, nil)

		result, err := service.CancelRun(ctx, tenantID, run.ID, "too late")

		assert.Error(t, err)
		assert.Nil(t, result)
		runRepo.AssertNotCalled(t, "SaveWithLock")
	})
}
