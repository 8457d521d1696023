package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockSettlementRunRepository creates a GormSettlementRunRepository with a mocked SQL connection
func newMockSettlementRunRepository(t *testing.T) (*GormSettlementRunRepository, sqlmock.Sqlmock, *sql.DB) {
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

	return NewGormSettlementRunRepository(gormDB), mock, mockDB
}

func newStartedRun(t *testing.T, tenantID uuid.UUID) *settlement.SettlementRun {
	t.Helper()

	run, err := settlement.NewSettlementRun(tenantID, settlement.RunTypeManual,
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, run.Start())
	run.ClearDomainEvents()
	return run
}

func TestGormSettlementRunRepository_FindByIDForTenant(t *testing.T) {
	t.Run("finds existing run", func(t *testing.T) {
		repo, mock, mockDB := newMockSettlementRunRepository(t)
		defer mockDB.Close()

		runID := uuid.New()
		tenantID := uuid.New()

		rows := sqlmock.NewRows([]string{
			"id", "tenant_id", "run_type", "status",
			"period_start", "period_end", "net_amount", "version",
		}).AddRow(
			runID, tenantID, settlement.RunTypeScheduled, settlement.RunStatusCompleted,
			time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
			decimal.NewFromInt(280), 3,
		)

		mock.ExpectQuery(`SELECT \* FROM "settlement_runs" WHERE tenant_id = \$1 AND id = \$2`).
			WithArgs(tenantID, runID, 1).
			WillReturnRows(rows)

		run, err := repo.FindByIDForTenant(context.Background(), tenantID, runID)

		assert.NoError(t, err)
		require.NotNil(t, run)
		assert.Equal(t, runID, run.ID)
		assert.Equal(t, settlement.RunStatusCompleted, run.Status)
		assert.Equal(t, 3, run.Version)
		assert.True(t, run.NetAmount.Equal(decimal.NewFromInt(280)))
	})

	t.Run("returns ErrNotFound for missing run", func(t *testing.T) {
		repo, mock, mockDB := newMockSettlementRunRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		runID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "settlement_runs"`).
			WithArgs(tenantID, runID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		run, err := repo.FindByIDForTenant(context.Background(), tenantID, runID)

		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.Nil(t, run)
	})
}

func TestGormSettlementRunRepository_SaveWithLock(t *testing.T) {
	t.Run("updates when the stored version matches", func(t *testing.T) {
		repo, mock, mockDB := newMockSettlementRunRepository(t)
		defer mockDB.Close()

		run := newStartedRun(t, uuid.New()) // Start() bumped the version to 2

		mock.ExpectExec(`UPDATE "settlement_runs" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SaveWithLock(context.Background(), run)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns concurrency conflict when another process won", func(t *testing.T) {
		repo, mock, mockDB := newMockSettlementRunRepository(t)
		defer mockDB.Close()

		run := newStartedRun(t, uuid.New())

		mock.ExpectExec(`UPDATE "settlement_runs" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SaveWithLock(context.Background(), run)

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})
}

func TestGormSettlementRunRepository_CountByStatus(t *testing.T) {
	t.Run("counts runs in a given status", func(t *testing.T) {
		repo, mock, mockDB := newMockSettlementRunRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()

		mock.ExpectQuery(`SELECT count\(\*\) FROM "settlement_runs" WHERE tenant_id = \$1 AND status = \$2`).
			WithArgs(tenantID, settlement.RunStatusFailed).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		count, err := repo.CountByStatus(context.Background(), tenantID, settlement.RunStatusFailed)

		assert.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}

func TestGormSettlementRunRepository_FindAllForTenant(t *testing.T) {
	t.Run("applies status filter", func(t *testing.T) {
		repo, mock, mockDB := newMockSettlementRunRepository(t)
		defer mockDB.Close()

		tenantID := uuid.New()
		status := settlement.RunStatusCompleted

		rows := sqlmock.NewRows([]string{"id", "tenant_id", "run_type", "status", "version"}).
			AddRow(uuid.New(), tenantID, settlement.RunTypeManual, status, 3)

		mock.ExpectQuery(`SELECT \* FROM "settlement_runs" WHERE tenant_id = \$1 AND status = \$2`).
			WithArgs(tenantID, status).
			WillReturnRows(rows)

		runs, err := repo.FindAllForTenant(context.Background(), tenantID, settlement.RunFilter{Status: &status})

		assert.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, status, runs[0].Status)
	})
}
