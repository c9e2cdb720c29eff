package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is a best-effort outbound message recorded for delivery. A
// failed write here never rolls back the settlement that produced it.
type Notification struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Kind      string     `gorm:"column:kind;not null"`
	Recipient string     `gorm:"column:recipient;not null"`
	Subject   string     `gorm:"column:subject"`
	Body      string     `gorm:"column:body"`
	OrderID   *uuid.UUID `gorm:"column:order_id;type:uuid;index"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}
