package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/urbanfoods/backend/api/middleware"
	"github.com/urbanfoods/backend/api/responses"
	"github.com/urbanfoods/backend/api/validators"
	"github.com/urbanfoods/backend/internal/payments"
	pkgerrors "github.com/urbanfoods/backend/pkg/errors"
	"github.com/urbanfoods/backend/pkg/logger"
)

// RetryPayment re-initiates the push payment for a failed or stalled order.
func RetryPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		orderNumber := chi.URLParam(r, "orderNumber")
		if orderNumber == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order number is required"))
			return
		}

		result, err := svc.RetryPayment(ctx, middleware.UserIDFromContext(ctx), orderNumber)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type queryPaymentRequest struct {
	CheckoutRequestID string `json:"checkout_request_id" validate:"required,max=100"`
}

// QueryPaymentStatus reconciles a pending payment from the client side. The
// response's payment_status tells the caller whether to keep polling.
func QueryPaymentStatus(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req queryPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.QueryPaymentStatus(ctx, middleware.UserIDFromContext(ctx), req.CheckoutRequestID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
