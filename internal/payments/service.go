package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/urbanfoods/backend/internal/cart"
	"github.com/urbanfoods/backend/internal/orders"
	"github.com/urbanfoods/backend/internal/settlement"
	"github.com/urbanfoods/backend/pkg/db"
	"github.com/urbanfoods/backend/pkg/db/models"
	"github.com/urbanfoods/backend/pkg/enums"
	pkgerrors "github.com/urbanfoods/backend/pkg/errors"
	"github.com/urbanfoods/backend/pkg/logger"
	"github.com/urbanfoods/backend/pkg/mpesa"
)

// Gateway is the slice of the provider client this service needs. Tests stub
// it with a local implementation.
type Gateway interface {
	InitiateSTKPush(ctx context.Context, params mpesa.STKPushParams) (*mpesa.STKPushResult, error)
	QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*mpesa.STKQueryResult, error)
}

// Query result codes the provider uses for user-driven failures. Anything
// else non-zero is treated as still pending; the client keeps polling.
var queryFailureReasons = map[int]string{
	1:    "insufficient funds",
	1032: "request cancelled by user",
	1037: "request timed out waiting for user",
}

// Service orchestrates checkout and the payment lifecycle around it: order
// placement, payment re-initiation and the poll-side reconciliation.
type Service interface {
	// PlaceOrder creates the order from the caller's cart. Mobile-money
	// orders initiate a push payment in the same transaction, so a rejected
	// initiation leaves no order behind.
	PlaceOrder(ctx context.Context, userID uuid.UUID, params orders.PlaceOrderParams) (*PlaceOrderResult, error)
	// RetryPayment re-initiates a push payment with a fresh correlation id.
	// The previous correlation id is permanently orphaned.
	RetryPayment(ctx context.Context, userID uuid.UUID, orderNumber string) (*RetryPaymentResult, error)
	// QueryPaymentStatus reconciles a pending payment from the client side.
	// Completed orders short-circuit without a provider call.
	QueryPaymentStatus(ctx context.Context, userID uuid.UUID, checkoutRequestID string) (*PollResult, error)
}

// ServiceParams wires the payments orchestrator dependencies.
type ServiceParams struct {
	Orders     orders.Repository
	Ledger     orders.Service
	Carts      cart.Repository
	Settlement *settlement.Engine
	Gateway    Gateway
	TxRunner   db.TxRunner
	Logger     *logger.Logger
}

type service struct {
	orders     orders.Repository
	ledger     orders.Service
	carts      cart.Repository
	settlement *settlement.Engine
	gateway    Gateway
	txRunner   db.TxRunner
	logger     *logger.Logger
}

// NewService validates and wires the payments orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order ledger required")
	}
	if params.Carts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart repo required")
	}
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement engine required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &service{
		orders:     params.Orders,
		ledger:     params.Ledger,
		carts:      params.Carts,
		settlement: params.Settlement,
		gateway:    params.Gateway,
		txRunner:   params.TxRunner,
		logger:     params.Logger,
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, userID uuid.UUID, params orders.PlaceOrderParams) (*PlaceOrderResult, error) {
	userCart, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	order, items, err := s.ledger.NewFromCart(userCart, userID, params)
	if err != nil {
		return nil, err
	}
	ctx = s.logger.WithOrderNumber(ctx, order.OrderNumber)

	result := &PlaceOrderResult{
		OrderNumber:   order.OrderNumber,
		PaymentMethod: order.PaymentMethod,
		Total:         order.Total,
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		if order.PaymentMethod == enums.PaymentMethodCash {
			if err := s.settlement.ApplySaleEffectsTx(ctx, tx, order, items); err != nil {
				return err
			}
			return repo.AppendHistory(ctx, orders.HistoryRow(order.ID, enums.OrderStatusPending, "Order placed, cash on delivery"))
		}

		// A rejected initiation rolls back the whole placement; the client
		// retries checkout from an intact cart.
		push, err := s.gateway.InitiateSTKPush(ctx, mpesa.STKPushParams{
			PhoneNumber:      order.PhoneNumber,
			Amount:           order.Total,
			AccountReference: order.OrderNumber,
			TransactionDesc:  "UrbanFoods",
			StoreType:        order.StoreType,
		})
		if err != nil {
			return err
		}
		applied, err := repo.MarkProcessing(ctx, order.ID, push.CheckoutRequestID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach checkout request id")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already completed")
		}
		result.CheckoutRequestID = push.CheckoutRequestID
		result.CustomerMessage = push.CustomerMessage

		return repo.AppendHistory(ctx, orders.HistoryRow(order.ID, enums.OrderStatusPaymentPending, "Order placed, awaiting M-Pesa payment"))
	})
	if err != nil {
		return nil, err
	}

	if order.PaymentMethod == enums.PaymentMethodCash {
		s.settlement.DispatchNotifications(ctx, order)
	}

	s.logger.Info(s.logger.WithField(ctx, "payment_method", order.PaymentMethod.String()), "order placed")
	return result, nil
}

func (s *service) RetryPayment(ctx context.Context, userID uuid.UUID, orderNumber string) (*RetryPaymentResult, error) {
	order, err := s.orders.FindByOrderNumberAndUser(ctx, orderNumber, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	ctx = s.logger.WithOrderNumber(ctx, order.OrderNumber)

	if order.PaymentMethod != enums.PaymentMethodMpesa {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is not paid via M-Pesa")
	}
	if order.PaymentStatus == enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment already completed")
	}

	push, err := s.gateway.InitiateSTKPush(ctx, mpesa.STKPushParams{
		PhoneNumber:      order.PhoneNumber,
		Amount:           order.Total,
		AccountReference: order.OrderNumber,
		TransactionDesc:  "UrbanFoods",
		StoreType:        order.StoreType,
	})
	if err != nil {
		return nil, err
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		// The webhook may have completed the payment between the status check
		// above and this transaction. The guarded update refuses to touch a
		// completed order; the retry is rejected instead of clobbering it.
		applied, err := repo.ResetForRetry(ctx, order.ID, push.CheckoutRequestID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset payment state")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already completed")
		}
		if _, err := repo.MarkProcessing(ctx, order.ID, push.CheckoutRequestID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment processing")
		}
		return repo.AppendHistory(ctx, orders.HistoryRow(order.ID, enums.OrderStatusPaymentPending, "Payment re-initiated"))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(s.logger.WithCheckoutRequestID(ctx, push.CheckoutRequestID), "payment re-initiated")
	return &RetryPaymentResult{
		OrderNumber:       order.OrderNumber,
		CheckoutRequestID: push.CheckoutRequestID,
		CustomerMessage:   push.CustomerMessage,
	}, nil
}

func (s *service) QueryPaymentStatus(ctx context.Context, userID uuid.UUID, checkoutRequestID string) (*PollResult, error) {
	order, err := s.orders.FindByCheckoutRequestIDAndUser(ctx, checkoutRequestID, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	ctx = s.logger.WithOrderNumber(s.logger.WithCheckoutRequestID(ctx, checkoutRequestID), order.OrderNumber)

	// The webhook usually wins this race. When it already has, answer from
	// the ledger without bothering the provider.
	if order.PaymentStatus == enums.PaymentStatusCompleted {
		return &PollResult{
			OrderNumber:        order.OrderNumber,
			PaymentStatus:      enums.PaymentStatusCompleted,
			Status:             order.Status,
			Message:            "Payment already confirmed",
			MpesaReceiptNumber: order.MpesaReceiptNumber,
		}, nil
	}

	query, err := s.gateway.QuerySTKStatus(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}

	switch {
	case query.ResultCode == 0:
		if _, err := s.settlement.ConfirmPayment(ctx, order, nil, "Payment confirmed via status query", settlement.TriggerQuery); err != nil {
			return nil, err
		}
		return s.pollResultFromLedger(ctx, order, userID, checkoutRequestID, "Payment confirmed")

	default:
		reason, final := queryFailureReasons[query.ResultCode]
		if !final {
			return &PollResult{
				OrderNumber:   order.OrderNumber,
				PaymentStatus: order.PaymentStatus,
				Status:        order.Status,
				Message:       "Payment still pending, try again shortly",
			}, nil
		}
		if query.ResultDesc != "" {
			reason = query.ResultDesc
		}
		if _, err := s.settlement.FailPayment(ctx, order, reason, settlement.TriggerQuery); err != nil {
			return nil, err
		}
		return s.pollResultFromLedger(ctx, order, userID, checkoutRequestID, "Payment failed: "+reason)
	}
}

// pollResultFromLedger re-reads the order so the response reflects whichever
// trigger actually won the settlement, not this call's assumption.
func (s *service) pollResultFromLedger(ctx context.Context, fallback *models.Order, userID uuid.UUID, checkoutRequestID, message string) (*PollResult, error) {
	order, err := s.orders.FindByCheckoutRequestIDAndUser(ctx, checkoutRequestID, userID)
	if err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "error", err.Error()), "reload after settlement failed")
		order = fallback
	}
	return &PollResult{
		OrderNumber:        order.OrderNumber,
		PaymentStatus:      order.PaymentStatus,
		Status:             order.Status,
		Message:            message,
		MpesaReceiptNumber: order.MpesaReceiptNumber,
	}, nil
}
