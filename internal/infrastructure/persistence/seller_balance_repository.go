package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormSellerBalanceRepository implements SellerBalanceRepository using GORM
type GormSellerBalanceRepository struct {
	db *gorm.DB
}

// NewGormSellerBalanceRepository creates a new GormSellerBalanceRepository
func NewGormSellerBalanceRepository(db *gorm.DB) *GormSellerBalanceRepository {
	return &GormSellerBalanceRepository{db: db}
}

// FindByIDForTenant finds a balance line by ID for a specific tenant
func (r *GormSellerBalanceRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SellerBalance, error) {
	var model models.SellerBalanceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant finds balance lines for a tenant with filtering
func (r *GormSellerBalanceRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter settlement.BalanceFilter) ([]settlement.SellerBalance, error) {
	var balanceModels []models.SellerBalanceModel
	query := r.db.WithContext(ctx).Model(&models.SellerBalanceModel{}).
		Where("tenant_id = ?", tenantID)
	query = r.applyBalanceFilter(query, filter)

	if err := query.Find(&balanceModels).Error; err != nil {
		return nil, err
	}
	return toDomainBalances(balanceModels), nil
}

// FindPending finds PENDING balances for a tenant in creation order
func (r *GormSellerBalanceRepository) FindPending(ctx context.Context, tenantID uuid.UUID, sellerID *uuid.UUID) ([]settlement.SellerBalance, error) {
	var balanceModels []models.SellerBalanceModel
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, settlement.BalanceStatusPending)
	if sellerID != nil {
		query = query.Where("seller_id = ?", *sellerID)
	}

	if err := query.Order("created_at ASC").Find(&balanceModels).Error; err != nil {
		return nil, err
	}
	return toDomainBalances(balanceModels), nil
}

// FindByRun finds all balances claimed by a settlement run, in creation order
func (r *GormSellerBalanceRepository) FindByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]settlement.SellerBalance, error) {
	var balanceModels []models.SellerBalanceModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND settlement_run_id = ?", tenantID, runID).
		Order("created_at ASC").
		Find(&balanceModels).Error; err != nil {
		return nil, err
	}
	return toDomainBalances(balanceModels), nil
}

// ExistsByOrderItem checks if a balance line was already recorded for an order item
func (r *GormSellerBalanceRepository) ExistsByOrderItem(ctx context.Context, tenantID, orderItemID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.SellerBalanceModel{}).
		Where("tenant_id = ? AND order_item_id = ?", tenantID, orderItemID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save creates or updates a balance line
func (r *GormSellerBalanceRepository) Save(ctx context.Context, balance *settlement.SellerBalance) error {
	model := models.SellerBalanceModelFromDomain(balance)
	return r.db.WithContext(ctx).Save(model).Error
}

// ClaimForRun flips all claimable balances of the tenant within the period to
// SETTLED referencing runID, then returns the claimed lines in creation order.
// The UPDATE matches on status = PENDING and a NULL run reference, so rows
// claimed by a concurrent run are simply not matched; the loser of a race
// observes fewer rows, never an error.
func (r *GormSellerBalanceRepository) ClaimForRun(ctx context.Context, tenantID, runID uuid.UUID, periodStart, periodEnd time.Time) ([]settlement.SellerBalance, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.SellerBalanceModel{}).
		Where("tenant_id = ? AND status = ? AND settlement_run_id IS NULL AND created_at >= ? AND created_at <= ?",
			tenantID, settlement.BalanceStatusPending, periodStart, periodEnd).
		Updates(map[string]interface{}{
			"status":            settlement.BalanceStatusSettled,
			"is_settled":        true,
			"settlement_run_id": runID,
			"settled_at":        now,
			"updated_at":        now,
			"version":           gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return nil, result.Error
	}

	return r.FindByRun(ctx, tenantID, runID)
}

// SumNetByRun returns the SQL-side net sum over the lines claimed by a run
func (r *GormSellerBalanceRepository) SumNetByRun(ctx context.Context, tenantID, runID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&models.SellerBalanceModel{}).
		Select("COALESCE(SUM(net_amount), 0) as total").
		Where("tenant_id = ? AND settlement_run_id = ?", tenantID, runID).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// MarkPaidForSellerRun conditionally flips a seller's SETTLED lines in a run
// to PAID, returning the number of rows affected
func (r *GormSellerBalanceRepository) MarkPaidForSellerRun(ctx context.Context, tenantID, runID, sellerID uuid.UUID) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.SellerBalanceModel{}).
		Where("tenant_id = ? AND settlement_run_id = ? AND seller_id = ? AND status = ?",
			tenantID, runID, sellerID, settlement.BalanceStatusSettled).
		Updates(map[string]interface{}{
			"status":     settlement.BalanceStatusPaid,
			"paid_at":    now,
			"updated_at": now,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// TenantsWithPendingBalances returns the distinct tenants that currently have
// PENDING balance lines. The settlement scheduler uses it to decide which
// tenants get a scheduled run.
func (r *GormSellerBalanceRepository) TenantsWithPendingBalances(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.SellerBalanceModel{}).
		Distinct("tenant_id").
		Where("status = ?", settlement.BalanceStatusPending).
		Pluck("tenant_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Summarize returns pending/settled/paid totals for a tenant
func (r *GormSellerBalanceRepository) Summarize(ctx context.Context, tenantID uuid.UUID, sellerID *uuid.UUID, from, to *time.Time) (*settlement.BalanceSummary, error) {
	var rows []struct {
		Status    settlement.BalanceStatus
		Count     int64
		NetAmount decimal.Decimal
	}

	query := r.db.WithContext(ctx).
		Model(&models.SellerBalanceModel{}).
		Select("status, COUNT(*) as count, COALESCE(SUM(net_amount), 0) as net_amount").
		Where("tenant_id = ?", tenantID)
	if sellerID != nil {
		query = query.Where("seller_id = ?", *sellerID)
	}
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("created_at <= ?", *to)
	}

	if err := query.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	summary := &settlement.BalanceSummary{
		Pending: settlement.StatusTotals{NetAmount: decimal.Zero},
		Settled: settlement.StatusTotals{NetAmount: decimal.Zero},
		Paid:    settlement.StatusTotals{NetAmount: decimal.Zero},
	}
	for _, row := range rows {
		totals := settlement.StatusTotals{Count: row.Count, NetAmount: row.NetAmount}
		switch row.Status {
		case settlement.BalanceStatusPending:
			summary.Pending = totals
		case settlement.BalanceStatusSettled:
			summary.Settled = totals
		case settlement.BalanceStatusPaid:
			summary.Paid = totals
		}
	}
	return summary, nil
}

// applyBalanceFilter applies filter options to the query
func (r *GormSellerBalanceRepository) applyBalanceFilter(query *gorm.DB, filter settlement.BalanceFilter) *gorm.DB {
	if filter.SellerID != nil {
		query = query.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.RunID != nil {
		query = query.Where("settlement_run_id = ?", *filter.RunID)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.Limit())
	}

	orderBy := ValidateSortField(filter.OrderBy, BalanceSortFields, "created_at")
	return query.Order(orderBy + " " + ValidateSortOrder(filter.OrderDir))
}

func toDomainBalances(balanceModels []models.SellerBalanceModel) []settlement.SellerBalance {
	balances := make([]settlement.SellerBalance, len(balanceModels))
	for i, model := range balanceModels {
		balances[i] = *model.ToDomain()
	}
	return balances
}
