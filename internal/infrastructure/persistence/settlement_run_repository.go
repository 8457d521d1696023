package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/marketplace/backend/internal/domain/settlement"
	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSettlementRunRepository implements SettlementRunRepository using GORM
type GormSettlementRunRepository struct {
	db *gorm.DB
}

// NewGormSettlementRunRepository creates a new GormSettlementRunRepository
func NewGormSettlementRunRepository(db *gorm.DB) *GormSettlementRunRepository {
	return &GormSettlementRunRepository{db: db}
}

// FindByIDForTenant finds a run by ID for a specific tenant
func (r *GormSettlementRunRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementRun, error) {
	var model models.SettlementRunModel
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

// FindAllForTenant finds runs for a tenant with filtering
func (r *GormSettlementRunRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter settlement.RunFilter) ([]settlement.SettlementRun, error) {
	var runModels []models.SettlementRunModel
	query := r.db.WithContext(ctx).Model(&models.SettlementRunModel{}).
		Where("tenant_id = ?", tenantID)
	query = r.applyRunFilter(query, filter)

	if err := query.Find(&runModels).Error; err != nil {
		return nil, err
	}
	runs := make([]settlement.SettlementRun, len(runModels))
	for i, model := range runModels {
		runs[i] = *model.ToDomain()
	}
	return runs, nil
}

// Save creates or updates a run
func (r *GormSettlementRunRepository) Save(ctx context.Context, run *settlement.SettlementRun) error {
	model := models.SettlementRunModelFromDomain(run)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock saves with optimistic locking
func (r *GormSettlementRunRepository) SaveWithLock(ctx context.Context, run *settlement.SettlementRun) error {
	model := models.SettlementRunModelFromDomain(run)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", run.ID, run.Version-1).
		Updates(map[string]interface{}{
			"status":           model.Status,
			"seller_count":     model.SellerCount,
			"order_count":      model.OrderCount,
			"balance_count":    model.BalanceCount,
			"gross_amount":     model.GrossAmount,
			"commission_total": model.CommissionTotal,
			"tax_total":        model.TaxTotal,
			"net_amount":       model.NetAmount,
			"processed_at":     model.ProcessedAt,
			"completed_at":     model.CompletedAt,
			"failed_at":        model.FailedAt,
			"error_message":    model.ErrorMessage,
			"version":          model.Version,
			"updated_at":       model.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// CountByStatus counts runs by status for a tenant
func (r *GormSettlementRunRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID, status settlement.RunStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.SettlementRunModel{}).
		Where("tenant_id = ? AND status = ?", tenantID, status).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyRunFilter applies filter options to the query
func (r *GormSettlementRunRepository) applyRunFilter(query *gorm.DB, filter settlement.RunFilter) *gorm.DB {
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.RunType != nil {
		query = query.Where("run_type = ?", *filter.RunType)
	}
	if filter.From != nil {
		query = query.Where("period_end >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("period_start <= ?", *filter.To)
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.Limit())
	}

	orderBy := ValidateSortField(filter.OrderBy, RunSortFields, "created_at")
	return query.Order(orderBy + " " + ValidateSortOrder(filter.OrderDir))
}
