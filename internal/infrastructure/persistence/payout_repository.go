package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormPayoutRepository implements PayoutRepository using GORM
type GormPayoutRepository struct {
	db *gorm.DB
}

// NewGormPayoutRepository creates a new GormPayoutRepository
func NewGormPayoutRepository(db *gorm.DB) *GormPayoutRepository {
	return &GormPayoutRepository{db: db}
}

// FindByIDForTenant finds a payout by ID for a specific tenant
func (r *GormPayoutRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*settlement.Payout, error) {
	var model models.PayoutModel
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

// FindByRun finds all payouts (every attempt) for a settlement run
func (r *GormPayoutRepository) FindByRun(ctx context.Context, tenantID, runID uuid.UUID) ([]settlement.Payout, error) {
	var payoutModels []models.PayoutModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND settlement_run_id = ?", tenantID, runID).
		Order("created_at ASC").
		Find(&payoutModels).Error; err != nil {
		return nil, err
	}
	return toDomainPayouts(payoutModels), nil
}

// FindAllForTenant finds payouts for a tenant with filtering
func (r *GormPayoutRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter settlement.PayoutFilter) ([]settlement.Payout, error) {
	var payoutModels []models.PayoutModel
	query := r.db.WithContext(ctx).Model(&models.PayoutModel{}).
		Where("tenant_id = ?", tenantID)
	query = r.applyPayoutFilter(query, filter)

	if err := query.Find(&payoutModels).Error; err != nil {
		return nil, err
	}
	return toDomainPayouts(payoutModels), nil
}

// ExistsActiveForSellerRun checks if a non-FAILED payout already exists for
// the seller and run
func (r *GormPayoutRepository) ExistsActiveForSellerRun(ctx context.Context, tenantID, runID, sellerID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.PayoutModel{}).
		Where("tenant_id = ? AND settlement_run_id = ? AND seller_id = ? AND status <> ?",
			tenantID, runID, sellerID, settlement.PayoutStatusFailed).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save creates or updates a payout
func (r *GormPayoutRepository) Save(ctx context.Context, payout *settlement.Payout) error {
	model := models.PayoutModelFromDomain(payout)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock saves with optimistic locking
func (r *GormPayoutRepository) SaveWithLock(ctx context.Context, payout *settlement.Payout) error {
	model := models.PayoutModelFromDomain(payout)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", payout.ID, payout.Version-1).
		Updates(map[string]interface{}{
			"status":                  model.Status,
			"processed_at":            model.ProcessedAt,
			"completed_at":            model.CompletedAt,
			"failed_at":               model.FailedAt,
			"failure_reason":          model.FailureReason,
			"external_transaction_id": model.ExternalTransactionID,
			"version":                 model.Version,
			"updated_at":              model.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Stats aggregates payout outcomes for a tenant, optionally for one run
func (r *GormPayoutRepository) Stats(ctx context.Context, tenantID uuid.UUID, runID *uuid.UUID) (*settlement.PayoutStats, error) {
	var rows []struct {
		Status settlement.PayoutStatus
		Count  int64
		Amount decimal.Decimal
	}

	query := r.db.WithContext(ctx).
		Model(&models.PayoutModel{}).
		Select("status, COUNT(*) as count, COALESCE(SUM(amount), 0) as amount").
		Where("tenant_id = ?", tenantID)
	if runID != nil {
		query = query.Where("settlement_run_id = ?", *runID)
	}

	if err := query.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &settlement.PayoutStats{PaidOut: decimal.Zero}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case settlement.PayoutStatusPending, settlement.PayoutStatusProcessing:
			stats.Pending += row.Count
		case settlement.PayoutStatusCompleted:
			stats.Completed += row.Count
			stats.PaidOut = stats.PaidOut.Add(row.Amount)
		case settlement.PayoutStatusFailed:
			stats.Failed += row.Count
		}
	}
	return stats, nil
}

// applyPayoutFilter applies filter options to the query
func (r *GormPayoutRepository) applyPayoutFilter(query *gorm.DB, filter settlement.PayoutFilter) *gorm.DB {
	if filter.SellerID != nil {
		query = query.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.RunID != nil {
		query = query.Where("settlement_run_id = ?", *filter.RunID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.Limit())
	}

	orderBy := ValidateSortField(filter.OrderBy, PayoutSortFields, "created_at")
	return query.Order(orderBy + " " + ValidateSortOrder(filter.OrderDir))
}

func toDomainPayouts(payoutModels []models.PayoutModel) []settlement.Payout {
	payouts := make([]settlement.Payout, len(payoutModels))
	for i, model := range payoutModels {
		payouts[i] = *model.ToDomain()
	}
	return payouts
}
