package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/urbanfoods/backend/api/middleware"
	"github.com/urbanfoods/backend/api/responses"
	"github.com/urbanfoods/backend/api/validators"
	"github.com/urbanfoods/backend/internal/orders"
	"github.com/urbanfoods/backend/internal/payments"
	"github.com/urbanfoods/backend/pkg/enums"
	pkgerrors "github.com/urbanfoods/backend/pkg/errors"
	"github.com/urbanfoods/backend/pkg/logger"
)

type placeOrderRequest struct {
	Hostel        string `json:"hostel" validate:"required,max=120"`
	RoomNumber    string `json:"room_number" validate:"required,max=40"`
	PhoneNumber   string `json:"phone_number" validate:"required,max=20"`
	DeliveryNotes string `json:"delivery_notes" validate:"max=500"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=mpesa cash"`
}

// PlaceOrder creates an order from the caller's cart and, for mobile-money,
// kicks off the push-payment handshake.
func PlaceOrder(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req placeOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method"))
			return
		}

		result, err := svc.PlaceOrder(ctx, middleware.UserIDFromContext(ctx), orders.PlaceOrderParams{
			Hostel:        validators.SanitizeString(req.Hostel, 120),
			RoomNumber:    validators.SanitizeString(req.RoomNumber, 40),
			PhoneNumber:   validators.SanitizeString(req.PhoneNumber, 20),
			DeliveryNotes: validators.SanitizeString(req.DeliveryNotes, 500),
			PaymentMethod: method,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// OrderPaymentStatus is the ownership-scoped payment read model for the
// waiting screen.
func OrderPaymentStatus(ledger orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		orderNumber := chi.URLParam(r, "orderNumber")
		if orderNumber == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order number is required"))
			return
		}

		view, err := ledger.PaymentStatus(ctx, middleware.UserIDFromContext(ctx), orderNumber)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
