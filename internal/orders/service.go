package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/urbanfoods/backend/pkg/db"
	"github.com/urbanfoods/backend/pkg/db/models"
	"github.com/urbanfoods/backend/pkg/enums"
	pkgerrors "github.com/urbanfoods/backend/pkg/errors"
	"github.com/urbanfoods/backend/pkg/mpesa"
)

const estimatedDeliveryWindow = 30 * time.Minute

// Service is the Order Ledger: it builds orders from carts with totals frozen
// at placement time and serves ownership-scoped status reads.
type Service interface {
	// NewFromCart validates the cart and delivery params and returns an
	// unsaved order plus its line items. Totals are computed here, once,
	// and never recomputed afterwards.
	NewFromCart(cart *models.Cart, userID uuid.UUID, params PlaceOrderParams) (*models.Order, []models.OrderItem, error)
	// PaymentStatus returns the payment read model for an order owned by
	// the caller. Ownership mismatches surface as not-found.
	PaymentStatus(ctx context.Context, userID uuid.UUID, orderNumber string) (*PaymentStatusView, error)
}

// ServiceParams wires ledger dependencies.
type ServiceParams struct {
	Repo Repository
}

type service struct {
	repo Repository
}

// NewService wires the order ledger.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	return &service{repo: params.Repo}, nil
}

func (s *service) NewFromCart(cart *models.Cart, userID uuid.UUID, params PlaceOrderParams) (*models.Order, []models.OrderItem, error) {
	if cart == nil || len(cart.Items) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if !params.PaymentMethod.IsValid() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if strings.TrimSpace(params.Hostel) == "" || strings.TrimSpace(params.RoomNumber) == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address is required")
	}

	phone := strings.TrimSpace(params.PhoneNumber)
	if params.PaymentMethod == enums.PaymentMethodMpesa {
		formatted, err := mpesa.FormatPhoneNumber(phone)
		if err != nil {
			return nil, nil, err
		}
		phone = formatted
	} else if phone == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "phone number is required")
	}

	storeType := cart.Items[0].Product.StoreType
	subtotal := decimal.Zero
	for _, item := range cart.Items {
		subtotal = subtotal.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	deliveryFee := decimal.Zero
	if storeType != enums.StoreTypeFood {
		deliveryFee = decimal.NewFromInt(20)
	}
	total := subtotal.Add(deliveryFee)

	paymentStatus := enums.PaymentStatusPending
	status := enums.OrderStatusPending
	if params.PaymentMethod == enums.PaymentMethodMpesa {
		status = enums.OrderStatusPaymentPending
	}

	estimated := time.Now().Add(estimatedDeliveryWindow)
	order := &models.Order{
		ID:                uuid.New(),
		OrderNumber:       NewOrderNumber(),
		UserID:            userID,
		Hostel:            params.Hostel,
		RoomNumber:        params.RoomNumber,
		PhoneNumber:       phone,
		DeliveryNotes:     params.DeliveryNotes,
		Subtotal:          subtotal,
		DeliveryFee:       deliveryFee,
		Total:             total,
		StoreType:         storeType,
		PaymentMethod:     params.PaymentMethod,
		PaymentStatus:     paymentStatus,
		Status:            status,
		EstimatedDelivery: &estimated,
	}

	items := make([]models.OrderItem, 0, len(cart.Items))
	for _, cartItem := range cart.Items {
		items = append(items, models.OrderItem{
			ID:           uuid.New(),
			OrderID:      order.ID,
			ProductID:    cartItem.ProductID,
			Quantity:     cartItem.Quantity,
			PriceAtOrder: cartItem.Product.Price,
		})
	}

	return order, items, nil
}

func (s *service) PaymentStatus(ctx context.Context, userID uuid.UUID, orderNumber string) (*PaymentStatusView, error) {
	order, err := s.repo.FindByOrderNumberAndUser(ctx, orderNumber, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	return &PaymentStatusView{
		OrderNumber:        order.OrderNumber,
		PaymentStatus:      order.PaymentStatus,
		Status:             order.Status,
		MpesaReceiptNumber: order.MpesaReceiptNumber,
		PaymentCompletedAt: order.PaymentCompletedAt,
	}, nil
}

// HistoryRow builds an append-only status history record.
func HistoryRow(orderID uuid.UUID, status enums.OrderStatus, notes string) *models.OrderStatusHistory {
	return &models.OrderStatusHistory{
		ID:      uuid.New(),
		OrderID: orderID,
		Status:  string(status),
		Notes:   notes,
	}
}
