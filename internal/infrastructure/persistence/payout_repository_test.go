package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockPayoutRepository creates a GormPayoutRepository with a mocked SQL connection
func newMockPayoutRepository(t *testing.T) (*GormPayoutRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormPayoutRepository(gormDB), mock, mockDB
}

func newDispatchedPayout(t *testing.T) *settlement.Payout {
	t.Helper()

	amount, err := valueobject.NewMoney(decimal.NewFromInt(240), valueobject.USD)
	require.NoError(t, err)

	payout, err := settlement.NewPayout(uuid.New(), uuid.New(), uuid.New(), amount,
		settlement.PaymentMethodBankTransfer, settlement.BankAccount{
			BankName:      "First National",
			AccountName:   "Seller LLC",
			AccountNumber: "0001112223",
		})
	require.NoError(t, err)
	require.NoError(t, payout.MarkProcessing("ext-tx-42"))
	payout.ClearDomainEvents()
	return payout
}

func TestGormPayoutRepository_FindByIDForTenant(t *testing.T) {
	t.Run("finds existing payout", func(t *testing.T) {
		repo, mock, mockDB := newMockPayoutRepository(t)
		defer mockDB.Close()

		payoutID := uuid.New()
		tenantID := uuid.New()
		sellerID := uuid.New()
		runID := uuid.New()

		rows := sqlmock.NewRows([]string{
			"id", "tenant_id", "seller_id", "settlement_run_id",
			"amount", "currency", "payment_method", "destination", "status", "version",
		}).AddRow(
			payoutID, tenantID, sellerID, runID,
			decimal.NewFromInt(240), valueobject.USD, settlement.PaymentMethodBankTransfer,
			[]byte(`{"bank_name":"First National","account_name":"Seller LLC","account_number":"0001112223"}`),
			settlement.PayoutStatusPending, 1,
		)

		mock.ExpectQuery(`SELECT \* FROM "payouts" WHERE tenant_id = \$1 AND id = \$2`).
			WithArgs(tenantID, payoutID, 1).
			WillReturnRows(rows)

		payout, err := repo.FindByIDForTenant(context.Background(), tenantID, payoutID)

		assert.NoError(t, err)
		require.NotNil(t, payout)
		assert.Equal(t, payoutID, payout.ID)
		assert.Equal(t, runID, payout.SettlementRunID)
		assert.Equal(t, "First National", payout.Destination.BankName)
		assert.Equal(t, "0001112223", payout.Destination.AccountNumber)
	})

	t.Run("returns ErrNotFound for missing payout", func(t *testing.T) {
		repo, mock, mockDB := newMockPayoutRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "payouts"`).
			WillReturnError(gorm.ErrRecordNotFound)

		payout, err := repo.FindByIDForTenant(context.Background(), uuid.New(), uuid.New())

		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.Nil(t, payout)
	})
}

func TestGormPayoutRepository_ExistsActiveForSellerRun(t *testing.T) {
	t.Run("counts only non-failed payouts", func(t *testing.T) {
		repo, mock, mockDB := newMockPayoutRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		runID := uuid.New()
		sellerID := uuid.New()

		mock.ExpectQuery(`SELECT count\(\*\) FROM "payouts" WHERE tenant_id = \$1 AND settlement_run_id = \$2 AND seller_id = \$3 AND status <> \$4`).
			WithArgs(tenantID, runID, sellerID, settlement.PayoutStatusFailed).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		exists, err := repo.ExistsActiveForSellerRun(context.Background(), tenantID, runID, sellerID)

		assert.NoError(t, err)
		assert.True(t, exists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed attempts do not block a retry", func(t *testing.T) {
		repo, mock, mockDB := newMockPayoutRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT count\(\*\) FROM "payouts"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		exists, err := repo.ExistsActiveForSellerRun(context.Background(), uuid.New(), uuid.New(), uuid.New())

		assert.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestGormPayoutRepository_SaveWithLock(t *testing.T) {
	t.Run("updates when the stored version matches", func(t *testing.T) {
		repo, mock, mockDB := newMockPayoutRepository(t)
		defer mockDB.Close()

		payout := newDispatchedPayout(t) // MarkProcessing bumped the version to 2

		mock.ExpectExec(`UPDATE "payouts" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SaveWithLock(context.Background(), payout)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns concurrency conflict when another process won", func(t *testing.T) {
		repo, mock, mockDB := newMockPayoutRepository(t)
		defer mockDB.Close()

		payout := newDispatchedPayout(t)

		mock.ExpectExec(`UPDATE "payouts" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SaveWithLock(context.Background(), payout)

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})
}

func TestGormPayoutRepository_Stats(t *testing.T) {
	t.Run("aggregates outcomes and paid-out total", func(t *testing.T) {
		repo, mock, mockDB := newMockPayoutRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()

		rows := sqlmock.NewRows([]string{"status", "count", "amount"}).
			AddRow(settlement.PayoutStatusPending, 2, decimal.NewFromInt(100)).
			AddRow(settlement.PayoutStatusProcessing, 1, decimal.NewFromInt(50)).
			AddRow(settlement.PayoutStatusCompleted, 3, decimal.NewFromInt(500)).
			AddRow(settlement.PayoutStatusFailed, 1, decimal.NewFromInt(40))

		mock.ExpectQuery(`SELECT status, COUNT\(\*\) as count, COALESCE\(SUM\(amount\), 0\) as amount FROM "payouts"`).
			WithArgs(tenantID).
			WillReturnRows(rows)

		stats, err := repo.Stats(context.Background(), tenantID, nil)

		assert.NoError(t, err)
		require.NotNil(t, stats)
		assert.Equal(t, int64(7), stats.Total)
		assert.Equal(t, int64(3), stats.Pending)
		assert.Equal(t, int64(3), stats.Completed)
		assert.Equal(t, int64(1), stats.Failed)
		assert.True(t, stats.PaidOut.Equal(decimal.NewFromInt(500)))
	})

	t.Run("restricts to one run", func(t *testing.T) {
		repo, mock, mockDB := newMockPayoutRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		runID := uuid.New()

		mock.ExpectQuery(`SELECT status, COUNT\(\*\) as count, COALESCE\(SUM\(amount\), 0\) as amount FROM "payouts"`).
			WithArgs(tenantID, runID).
			WillReturnRows(sqlmock.NewRows([]string{"status", "count", "amount"}).
				AddRow(settlement.PayoutStatusCompleted, 1, decimal.NewFromInt(240)))

		stats, err := repo.Stats(context.Background(), tenantID, &runID)

		assert.NoError(t, err)
		assert.Equal(t, int64(1), stats.Total)
		assert.True(t, stats.PaidOut.Equal(decimal.NewFromInt(240)))
	})
}
