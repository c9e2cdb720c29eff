package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/urbanfoods/backend/pkg/enums"
)

// Order is the ledger record for a placed order. Monetary fields are frozen at
// placement time and never recomputed. The payment fields move strictly
// forward; MpesaCheckoutRequestID is only replaced by a fresh payment
// re-initiation, which orphans the previous correlation id.
type Order struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber string    `gorm:"column:order_number;uniqueIndex;not null"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`

	Hostel        string `gorm:"column:hostel;not null"`
	RoomNumber    string `gorm:"column:room_number;not null"`
	PhoneNumber   string `gorm:"column:phone_number;not null"`
	DeliveryNotes string `gorm:"column:delivery_notes"`

	Subtotal    decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DeliveryFee decimal.Decimal `gorm:"column:delivery_fee;type:numeric(12,2);not null"`
	Total       decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null"`

	StoreType     enums.StoreType     `gorm:"column:store_type;type:text;not null;default:'liquor'"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`

	MpesaCheckoutRequestID *string    `gorm:"column:mpesa_checkout_request_id;uniqueIndex"`
	MpesaReceiptNumber     *string    `gorm:"column:mpesa_receipt_number"`
	PaymentFailureReason   *string    `gorm:"column:payment_failure_reason"`
	PaymentCompletedAt     *time.Time `gorm:"column:payment_completed_at"`

	EstimatedDelivery *time.Time `gorm:"column:estimated_delivery"`

	Items   []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	History []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is a line item with the price frozen at placement time.
type OrderItem struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID    uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Quantity     int             `gorm:"column:quantity;not null"`
	PriceAtOrder decimal.Decimal `gorm:"column:price_at_order;type:numeric(12,2);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}
