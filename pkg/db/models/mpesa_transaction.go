package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MpesaTransaction is the append-only audit trail. One row is written per
// inbound callback, duplicates and failures included, before any branching on
// the result. Rows are never mutated.
type MpesaTransaction struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID            uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	CheckoutRequestID  string          `gorm:"column:checkout_request_id;not null;index"`
	MpesaReceiptNumber *string         `gorm:"column:mpesa_receipt_number"`
	PhoneNumber        string          `gorm:"column:phone_number"`
	Amount             decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	ResultCode         int             `gorm:"column:result_code;not null"`
	ResultDesc         string          `gorm:"column:result_desc"`
	RawCallback        string          `gorm:"column:raw_callback;type:jsonb"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// OrderStatusHistory is an append-only audit of status changes.
type OrderStatusHistory struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	Status    string    `gorm:"column:status;not null"`
	Notes     string    `gorm:"column:notes"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
