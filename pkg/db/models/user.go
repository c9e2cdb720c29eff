package models

import (
	"time"

	"github.com/google/uuid"
)

// User carries only the fields settlement touches. Account management lives in
// a separate service; loyalty points move via increment-in-place updates.
type User struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email         string    `gorm:"column:email;uniqueIndex;not null"`
	Name          string    `gorm:"column:name"`
	PhoneNumber   string    `gorm:"column:phone_number"`
	LoyaltyPoints int64     `gorm:"column:loyalty_points;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
