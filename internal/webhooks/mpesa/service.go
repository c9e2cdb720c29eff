package mpesa

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urbanfoods/backend/internal/orders"
	"github.com/urbanfoods/backend/internal/settlement"
	"github.com/urbanfoods/backend/pkg/db"
	"github.com/urbanfoods/backend/pkg/db/models"
	"github.com/urbanfoods/backend/pkg/enums"
	pkgerrors "github.com/urbanfoods/backend/pkg/errors"
	"github.com/urbanfoods/backend/pkg/logger"
)

// Service is the callback ingress. Every decode/validation outcome ends in the
// same fixed acknowledgment; the provider never sees an internal decision as a
// transport failure, it would retry indefinitely.
type Service interface {
	HandleCallback(ctx context.Context, raw []byte) error
}

// ServiceParams wires the callback ingress dependencies.
type ServiceParams struct {
	Orders     orders.Repository
	Settlement *settlement.Engine
	Logger     *logger.Logger
}

type service struct {
	orders     orders.Repository
	settlement *settlement.Engine
	logger     *logger.Logger
}

// NewService validates and wires the callback ingress.
func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement engine required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &service{
		orders:     params.Orders,
		settlement: params.Settlement,
		logger:     params.Logger,
	}, nil
}

// HandleCallback processes one inbound provider notification. The returned
// error is for the caller's logs only; the HTTP layer acknowledges regardless.
func (s *service) HandleCallback(ctx context.Context, raw []byte) error {
	var envelope CallbackEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.logger.Warn(s.logger.WithField(ctx, "error", err.Error()), "undecodable mpesa callback")
		return nil
	}

	callback := envelope.Body.StkCallback
	if callback.CheckoutRequestID == "" {
		s.logger.Warn(ctx, "mpesa callback missing checkout request id")
		return nil
	}
	ctx = s.logger.WithCheckoutRequestID(ctx, callback.CheckoutRequestID)

	order, err := s.orders.FindByCheckoutRequestID(ctx, callback.CheckoutRequestID)
	if err != nil {
		if db.IsNotFound(err) {
			// Unknown correlation ids are acknowledged to stop provider
			// retry storms. This includes ids orphaned by a payment retry.
			s.logger.Warn(ctx, "mpesa callback for unknown checkout request id")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order for callback")
	}
	ctx = s.logger.WithOrderNumber(ctx, order.OrderNumber)

	if order.PaymentStatus == enums.PaymentStatusCompleted {
		s.logger.Info(ctx, "duplicate mpesa callback for completed order")
		return nil
	}

	facts := extractFacts(callback.CallbackMetadata.Item)

	// The audit row is written before any branching so every inbound
	// notification, duplicates and failures included, is reconstructable.
	if err := s.recordTransaction(ctx, order, callback, facts, raw); err != nil {
		return err
	}

	if callback.ResultCode != 0 {
		reason := callback.ResultDesc
		if reason == "" {
			reason = fmt.Sprintf("provider result code %d", callback.ResultCode)
		}
		_, err := s.settlement.FailPayment(ctx, order, reason, settlement.TriggerCallback)
		return err
	}

	// A success callback must carry the facts the integrity checks need.
	// Confirming without them would accept an amount or payer this system
	// never verified.
	if facts.Amount == nil {
		reason := "amount missing from provider report"
		s.logger.Error(ctx, "mpesa callback missing amount", pkgerrors.New(pkgerrors.CodeConflict, reason))
		_, err := s.settlement.FailPayment(ctx, order, reason, settlement.TriggerCallback)
		return err
	}
	if !facts.Amount.Equal(order.Total) {
		reason := fmt.Sprintf("amount mismatch: reported %s, order total %s", facts.Amount.String(), order.Total.String())
		s.logger.Error(ctx, "mpesa callback amount mismatch", pkgerrors.New(pkgerrors.CodeConflict, reason))
		_, err := s.settlement.FailPayment(ctx, order, reason, settlement.TriggerCallback)
		return err
	}

	if facts.Phone == nil {
		reason := "phone missing from provider report"
		s.logger.Error(ctx, "mpesa callback missing phone", pkgerrors.New(pkgerrors.CodeConflict, reason))
		_, err := s.settlement.FailPayment(ctx, order, reason, settlement.TriggerCallback)
		return err
	}
	if *facts.Phone != order.PhoneNumber {
		reason := "phone mismatch between order and provider report"
		s.logger.Error(ctx, "mpesa callback phone mismatch", pkgerrors.New(pkgerrors.CodeConflict, reason))
		_, err := s.settlement.FailPayment(ctx, order, reason, settlement.TriggerCallback)
		return err
	}

	_, err = s.settlement.ConfirmPayment(ctx, order, facts.Receipt, "Payment confirmed via M-Pesa callback", settlement.TriggerCallback)
	return err
}

func (s *service) recordTransaction(ctx context.Context, order *models.Order, callback StkCallback, facts callbackFacts, raw []byte) error {
	txn := &models.MpesaTransaction{
		OrderID:           order.ID,
		CheckoutRequestID: callback.CheckoutRequestID,
		ResultCode:        callback.ResultCode,
		ResultDesc:        callback.ResultDesc,
		RawCallback:       string(raw),
	}
	if facts.Receipt != nil {
		txn.MpesaReceiptNumber = facts.Receipt
	}
	if facts.Phone != nil {
		txn.PhoneNumber = *facts.Phone
	}
	if facts.Amount != nil {
		txn.Amount = *facts.Amount
	}
	if err := s.orders.CreateTransaction(ctx, txn); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist callback audit row")
	}
	return nil
}
