package payments

import (
	"github.com/shopspring/decimal"

	"github.com/urbanfoods/backend/pkg/enums"
)

// PlaceOrderResult is the checkout handshake returned to the client. The
// correlation fields are only set for mobile-money orders; cash orders need no
// polling follow-up.
type PlaceOrderResult struct {
	OrderNumber       string              `json:"order_number"`
	PaymentMethod     enums.PaymentMethod `json:"payment_method"`
	Total             decimal.Decimal     `json:"total"`
	CheckoutRequestID string              `json:"checkout_request_id,omitempty"`
	CustomerMessage   string              `json:"customer_message,omitempty"`
}

// RetryPaymentResult is returned when a failed payment is re-initiated.
type RetryPaymentResult struct {
	OrderNumber       string `json:"order_number"`
	CheckoutRequestID string `json:"checkout_request_id"`
	CustomerMessage   string `json:"customer_message,omitempty"`
}

// PollResult tells the waiting client whether to stop polling. Callers branch
// on PaymentStatus: completed and failed are final, anything else means poll
// again.
type PollResult struct {
	OrderNumber        string              `json:"order_number"`
	PaymentStatus      enums.PaymentStatus `json:"payment_status"`
	Status             enums.OrderStatus   `json:"order_status"`
	Message            string              `json:"message"`
	MpesaReceiptNumber *string             `json:"mpesa_receipt_number,omitempty"`
}
