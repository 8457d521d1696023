package persistence

import (
	"context"

	"github.com/marketplace/backend/internal/domain/settlement"
	"gorm.io/gorm"
)

// GormUnitOfWork implements settlement.UnitOfWork on a GORM database
// transaction. The repositories handed to fn share one transaction, so the
// balance claim and the run totals write commit or roll back together.
type GormUnitOfWork struct {
	db *Database
}

// NewGormUnitOfWork creates a new GormUnitOfWork
func NewGormUnitOfWork(db *Database) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// Execute runs fn within a database transaction
func (u *GormUnitOfWork) Execute(ctx context.Context, fn func(repos settlement.TxRepositories) error) error {
	return u.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(settlement.TxRepositories{
			Balances: NewGormSellerBalanceRepository(tx),
			Runs:     NewGormSettlementRunRepository(tx),
			Payouts:  NewGormPayoutRepository(tx),
		})
	})
}
