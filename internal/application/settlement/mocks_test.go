package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// Mock Repositories
// =============================================================================

// MockSellerBalanceRepository is a mock implementation of SellerBalanceRepository
type MockSellerBalanceRepository struct {
	mock.Mock
}

func (m *MockSellerBalanceRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SellerBalance, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.SellerBalance), args.Error(1)
}

func (m *MockSellerBalanceRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter settlement.BalanceFilter) ([]settlement.SellerBalance, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.SellerBalance), args.Error(1)
}

func (m *MockSellerBalanceRepository) FindPending(ctx context.Context, tenantID uuid.UUID, sellerID *uuid.UUID) ([]settlement.SellerBalance, error) {
	args := m.Called(ctx, tenantID, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.SellerBalance), args.Error(1)
}

func (m *MockSellerBalanceRepository) FindByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]settlement.SellerBalance, error) {
	args := m.Called(ctx, tenantID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.SellerBalance), args.Error(1)
}

func (m *MockSellerBalanceRepository) ExistsByOrderItem(ctx context.Context, tenantID, orderItemID uuid.UUID) (bool, error) {
	args := m.Called(ctx, tenantID, orderItemID)
	return args.Get(0).(bool), args.Error(1)
}

func (m *MockSellerBalanceRepository) Save(ctx context.Context, balance *settlement.SellerBalance) error {
	args := m.Called(ctx, balance)
	return args.Error(0)
}

func (m *MockSellerBalanceRepository) ClaimForRun(ctx context.Context, tenantID, runID uuid.UUID, periodStart, periodEnd time.Time) ([]settlement.SellerBalance, error) {
	args := m.Called(ctx, tenantID, runID, periodStart, periodEnd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.SellerBalance), args.Error(1)
}

func (m *MockSellerBalanceRepository) SumNetByRun(ctx context.Context, tenantID, runID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, tenantID, runID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockSellerBalanceRepository) MarkPaidForSellerRun(ctx context.Context, tenantID, runID, sellerID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID, runID, sellerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSellerBalanceRepository) Summarize(ctx context.Context, tenantID uuid.UUID, sellerID *uuid.UUID, from, to *time.Time) (*settlement.BalanceSummary, error) {
	args := m.Called(ctx, tenantID, sellerID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.BalanceSummary), args.Error(1)
}

// MockSettlementRunRepository is a mock implementation of SettlementRunRepository
type MockSettlementRunRepository struct {
	mock.Mock
}

func (m *MockSettlementRunRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementRun, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.SettlementRun), args.Error(1)
}

func (m *MockSettlementRunRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter settlement.RunFilter) ([]settlement.SettlementRun, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.SettlementRun), args.Error(1)
}

func (m *MockSettlementRunRepository) Save(ctx context.Context, run *settlement.SettlementRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockSettlementRunRepository) SaveWithLock(ctx context.Context, run *settlement.SettlementRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockSettlementRunRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID, status settlement.RunStatus) (int64, error) {
	args := m.Called(ctx, tenantID, status)
	return args.Get(0).(int64), args.Error(1)
}

// MockPayoutRepository is a mock implementation of PayoutRepository
type MockPayoutRepository struct {
	mock.Mock
}

func (m *MockPayoutRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*settlement.Payout, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.Payout), args.Error(1)
}

func (m *MockPayoutRepository) FindByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]settlement.Payout, error) {
	args := m.Called(ctx, tenantID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.Payout), args.Error(1)
}

func (m *MockPayoutRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter settlement.PayoutFilter) ([]settlement.Payout, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.Payout), args.Error(1)
}

func (m *MockPayoutRepository) ExistsActiveForSellerRun(ctx context.Context, tenantID, runID, sellerID uuid.UUID) (bool, error) {
	args := m.Called(ctx, tenantID, runID, sellerID)
	return args.Get(0).(bool), args.Error(1)
}

func (m *MockPayoutRepository) Save(ctx context.Context, payout *settlement.Payout) error {
	args := m.Called(ctx, payout)
	return args.Error(0)
}

func (m *MockPayoutRepository) SaveWithLock(ctx context.Context, payout *settlement.Payout) error {
	args := m.Called(ctx, payout)
	return args.Error(0)
}

func (m *MockPayoutRepository) Stats(ctx context.Context, tenantID uuid.UUID, runID *uuid.UUID) (*settlement.PayoutStats, error) {
	args := m.Called(ctx, tenantID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.PayoutStats), args.Error(1)
}

// =============================================================================
// Collaborator Mocks
// =============================================================================

// stubUnitOfWork runs the transactional function against the supplied
// repositories without a real database. A non-nil beginErr simulates a failure
// to open the transaction.
type stubUnitOfWork struct {
	repos    settlement.TxRepositories
	beginErr error
}

func (u *stubUnitOfWork) Execute(ctx context.Context, fn func(repos settlement.TxRepositories) error) error {
	if u.beginErr != nil {
		return u.beginErr
	}
	return fn(u.repos)
}

// MockSellerDirectory is a mock implementation of SellerDirectory
type MockSellerDirectory struct {
	mock.Mock
}

func (m *MockSellerDirectory) PayoutProfile(ctx context.Context, tenantID, sellerID uuid.UUID) (*settlement.PayoutProfile, error) {
	args := m.Called(ctx, tenantID, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.PayoutProfile), args.Error(1)
}

// MockBankingGateway is a mock implementation of BankingGateway
type MockBankingGateway struct {
	mock.Mock
}

func (m *MockBankingGateway) Transfer(ctx context.Context, req settlement.TransferRequest) (*settlement.TransferAck, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.TransferAck), args.Error(1)
}

// MockEventPublisher is a mock implementation of shared.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Get(0).(bool), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(bool), args.Error(1)
}

func (m *MockIdempotencyStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// =============================================================================
// Test Helper Functions
// =============================================================================

func mustMoney(amount float64) valueobject.Money {
	return valueobject.NewMoneyUSD(decimal.NewFromFloat(amount))
}

func newTestBalance(tenantID, sellerID uuid.UUID, gross float64) *settlement.SellerBalance {
	orderID := uuid.New()
	orderItemID := uuid.New()
	balance, _ := settlement.NewSellerBalance(
		tenantID,
		sellerID,
		settlement.OrderRef{OrderID: &orderID, OrderItemID: &orderItemID, OrderNumber: "ORD-001"},
		mustMoney(gross),
		decimal.NewFromFloat(0.15),
		decimal.NewFromFloat(0.05),
		settlement.SellerClassStandard,
		"test earning",
	)
	balance.ClearDomainEvents()
	return balance
}

func newTestRun(tenantID uuid.UUID, status settlement.RunStatus) *settlement.SettlementRun {
	run, _ := settlement.NewSettlementRun(
		tenantID,
		settlement.RunTypeManual,
		time.Now().Add(-24*time.Hour),
		time.Now(),
	)
	run.Status = status
	run.ClearDomainEvents()
	return run
}

func newTestPayout(tenantID, sellerID, runID uuid.UUID, status settlement.PayoutStatus) *settlement.Payout {
	payout, _ := settlement.NewPayout(
		tenantID,
		sellerID,
		runID,
		mustMoney(100),
		settlement.PaymentMethodBankTransfer,
		settlement.BankAccount{BankName: "Test Bank", AccountName: "Seller", AccountNumber: "12345678"},
	)
	payout.Status = status
	payout.ClearDomainEvents()
	return payout
}
