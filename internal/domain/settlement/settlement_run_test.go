package settlement

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRun(t *testing.T) *SettlementRun {
	t.Helper()
	end := time.Now()
	start := end.AddDate(0, 0, -7)
	r, err := NewSettlementRun(uuid.New(), RunTypeManual, start, end)
	require.NoError(t, err)
	return r
}

func TestNewSettlementRun(t *testing.T) {
	t.Run("creates pending run with zero totals", func(t *testing.T) {
		r := newTestRun(t)

		assert.Equal(t, RunStatusPending, r.Status)
		assert.True(t, r.GrossAmount.IsZero())
		assert.True(t, r.NetAmount.IsZero())
		assert.Zero(t, r.SellerCount)

		events := r.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeSettlementRunCreated, events[0].EventType())
	})

	t.Run("rejects inverted period", func(t *testing.T) {
		now := time.Now()
		_, err := NewSettlementRun(uuid.New(), RunTypeManual, now, now.Add(-time.Hour))
		assert.Error(t, err)

		_, err = NewSettlementRun(uuid.New(), RunTypeManual, now, now)
		assert.Error(t, err)
	})

	t.Run("rejects unknown run type", func(t *testing.T) {
		now := time.Now()
		_, err := NewSettlementRun(uuid.New(), RunType("NIGHTLY"), now.Add(-time.Hour), now)
		assert.Error(t, err)
	})

	t.Run("rejects missing tenant", func(t *testing.T) {
		now := time.Now()
		_, err := NewSettlementRun(uuid.Nil, RunTypeManual, now.Add(-time.Hour), now)
		assert.Error(t, err)
	})
}

func TestSettlementRunLifecycle(t *testing.T) {
	t.Run("pending to processing to completed", func(t *testing.T) {
		r := newTestRun(t)
		require.NoError(t, r.Start())
		assert.Equal(t, RunStatusProcessing, r.Status)
		require.NotNil(t, r.ProcessedAt)

		totals := RunTotals{
			SellerCount:     2,
			OrderCount:      3,
			BalanceCount:    4,
			GrossAmount:     decimal.NewFromInt(400),
			CommissionTotal: decimal.NewFromInt(60),
			TaxTotal:        decimal.NewFromInt(20),
			NetAmount:       decimal.NewFromInt(320),
		}
		require.NoError(t, r.Complete(totals))

		assert.Equal(t, RunStatusCompleted, r.Status)
		assert.Equal(t, 2, r.SellerCount)
		assert.Equal(t, "320", r.NetAmount.String())
		require.NotNil(t, r.CompletedAt)
	})

	t.Run("cannot complete without processing", func(t *testing.T) {
		r := newTestRun(t)
		assert.Error(t, r.Complete(ZeroRunTotals()))
	})

	t.Run("cannot start twice", func(t *testing.T) {
		r := newTestRun(t)
		require.NoError(t, r.Start())
		assert.Error(t, r.Start())
	})

	t.Run("fail records reason and is terminal", func(t *testing.T) {
		r := newTestRun(t)
		require.NoError(t, r.Start())
		require.NoError(t, r.Fail("claim transaction aborted"))

		assert.Equal(t, RunStatusFailed, r.Status)
		assert.Equal(t, "claim transaction aborted", r.ErrorMessage)
		assert.Error(t, r.Fail("again"))
		assert.Error(t, r.Start())
		assert.Error(t, r.Complete(ZeroRunTotals()))
	})

	t.Run("fail requires a reason", func(t *testing.T) {
		r := newTestRun(t)
		require.NoError(t, r.Start())
		assert.Error(t, r.Fail(""))
	})

	t.Run("cancel only while pending", func(t *testing.T) {
		r := newTestRun(t)
		require.NoError(t, r.Cancel("superseded by scheduled run"))
		assert.Equal(t, RunStatusFailed, r.Status)
		assert.Equal(t, "superseded by scheduled run", r.ErrorMessage)

		started := newTestRun(t)
		require.NoError(t, started.Start())
		var domainErr *shared.DomainError
		err := started.Cancel("too late")
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_STATE", domainErr.Code)
	})
}

func TestComputeRunTotals(t *testing.T) {
	t.Run("sums over lines with distinct sellers and orders", func(t *testing.T) {
		sellerA := uuid.New()
		sellerB := uuid.New()
		orderX := uuid.New()
		orderY := uuid.New()
		tenant := uuid.New()

		mk := func(seller uuid.UUID, order uuid.UUID, gross string) SellerBalance {
			itemID := uuid.New()
			b, err := NewSellerBalance(tenant, seller,
				OrderRef{OrderID: &order, OrderItemID: &itemID},
				valueobject.NewMoneyUSD(decimal.RequireFromString(gross)),
				decimal.RequireFromString("0.10"),
				decimal.RequireFromString("0.05"),
				SellerClassStandard, "")
			require.NoError(t, err)
			return *b
		}

		balances := []SellerBalance{
			mk(sellerA, orderX, "100.00"),
			mk(sellerA, orderY, "100.00"),
			mk(sellerB, orderY, "200.00"),
		}

		totals, err := ComputeRunTotals(balances)
		require.NoError(t, err)

		assert.Equal(t, 2, totals.SellerCount)
		assert.Equal(t, 2, totals.OrderCount)
		assert.Equal(t, 3, totals.BalanceCount)
		assert.Equal(t, "400.00", totals.GrossAmount.StringFixed(2))
		assert.Equal(t, "40.00", totals.CommissionTotal.StringFixed(2))
		assert.Equal(t, "20.00", totals.TaxTotal.StringFixed(2))
		assert.Equal(t, "340.00", totals.NetAmount.StringFixed(2))
	})

	t.Run("empty set yields zero totals", func(t *testing.T) {
		totals, err := ComputeRunTotals(nil)
		require.NoError(t, err)
		assert.Zero(t, totals.SellerCount)
		assert.True(t, totals.NetAmount.IsZero())
	})

	t.Run("detects corrupted monetary invariant", func(t *testing.T) {
		b := newTestBalance(t, "100.00", "0.10", "0.05")
		b.NetAmount = decimal.NewFromInt(999) // simulated corruption

		_, err := ComputeRunTotals([]SellerBalance{*b})
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INTEGRITY_VIOLATION", domainErr.Code)
	})
}
