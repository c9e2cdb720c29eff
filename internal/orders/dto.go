package orders

import (
	"time"

	"github.com/urbanfoods/backend/pkg/enums"
)

// PlaceOrderParams are the delivery details supplied at checkout.
type PlaceOrderParams struct {
	Hostel        string
	RoomNumber    string
	PhoneNumber   string
	DeliveryNotes string
	PaymentMethod enums.PaymentMethod
}

// PaymentStatusView is the lightweight read model for the payment-waiting
// screen. It exposes only what the UI needs.
type PaymentStatusView struct {
	OrderNumber        string              `json:"order_number"`
	PaymentStatus      enums.PaymentStatus `json:"payment_status"`
	Status             enums.OrderStatus   `json:"order_status"`
	MpesaReceiptNumber *string             `json:"mpesa_receipt_number"`
	PaymentCompletedAt *time.Time          `json:"payment_completed_at,omitempty"`
}
