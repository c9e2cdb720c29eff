package products

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/urbanfoods/backend/pkg/db/models"
)

// Repository exposes the product operations settlement needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// IncrementTimesOrdered bumps the lifetime sale counter in place so
	// concurrent settlements cannot clobber each other's increments.
	IncrementTimesOrdered(ctx context.Context, productID uuid.UUID, quantity int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a products repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) IncrementTimesOrdered(ctx context.Context, productID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("times_ordered", gorm.Expr("times_ordered + ?", quantity)).Error
}
