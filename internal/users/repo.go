package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/urbanfoods/backend/pkg/db/models"
)

// Repository exposes the user operations settlement and notifications need.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// AwardLoyaltyPoints increments in place; concurrent orders must not
	// clobber each other's awards.
	AwardLoyaltyPoints(ctx context.Context, userID uuid.UUID, points int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a users repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) AwardLoyaltyPoints(ctx context.Context, userID uuid.UUID, points int64) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("loyalty_points", gorm.Expr("loyalty_points + ?", points)).Error
}
