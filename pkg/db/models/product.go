package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/urbanfoods/backend/pkg/enums"
)

// Product is a catalog item. TimesOrdered is a lifetime sale counter that is
// only ever moved by increment-in-place updates.
type Product struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string          `gorm:"column:name;not null"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	StoreType    enums.StoreType `gorm:"column:store_type;type:text;not null;default:'liquor'"`
	Available    bool            `gorm:"column:available;not null;default:true"`
	TimesOrdered int64           `gorm:"column:times_ordered;not null;default:0"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
