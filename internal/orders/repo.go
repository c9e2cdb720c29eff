package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/urbanfoods/backend/pkg/db/models"
	"github.com/urbanfoods/backend/pkg/enums"
)

// Repository owns order, line-item and payment-transaction records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)

	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Order, error)
	FindByCheckoutRequestIDAndUser(ctx context.Context, checkoutRequestID string, userID uuid.UUID) (*models.Order, error)
	FindByOrderNumberAndUser(ctx context.Context, orderNumber string, userID uuid.UUID) (*models.Order, error)

	// ClaimCompleted transitions the order to completed in a single
	// conditional statement. It returns false when another trigger already
	// reached a terminal state; callers must treat that as a no-op, not an
	// error.
	ClaimCompleted(ctx context.Context, orderID uuid.UUID, receipt *string, completedAt time.Time) (bool, error)
	// ClaimFailed is the failing counterpart of ClaimCompleted, under the
	// same conditional guard.
	ClaimFailed(ctx context.Context, orderID uuid.UUID, reason string) (bool, error)

	// ResetForRetry stores a fresh correlation id and moves payment status
	// back to pending. The previous correlation id is permanently orphaned.
	// Completed orders are never touched; the return value reports whether
	// the reset was applied.
	ResetForRetry(ctx context.Context, orderID uuid.UUID, checkoutRequestID string) (bool, error)
	MarkProcessing(ctx context.Context, orderID uuid.UUID, checkoutRequestID string) (bool, error)

	AppendHistory(ctx context.Context, history *models.OrderStatusHistory) error
	CreateTransaction(ctx context.Context, txn *models.MpesaTransaction) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("mpesa_checkout_request_id = ?", checkoutRequestID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByCheckoutRequestIDAndUser(ctx context.Context, checkoutRequestID string, userID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("mpesa_checkout_request_id = ? AND user_id = ?", checkoutRequestID, userID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByOrderNumberAndUser(ctx context.Context, orderNumber string, userID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("order_number = ? AND user_id = ?", orderNumber, userID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

var nonTerminalGuard = []enums.PaymentStatus{
	enums.PaymentStatusCompleted,
	enums.PaymentStatusFailed,
}

func (r *repository) ClaimCompleted(ctx context.Context, orderID uuid.UUID, receipt *string, completedAt time.Time) (bool, error) {
	updates := map[string]any{
		"payment_status":       enums.PaymentStatusCompleted,
		"status":               enums.OrderStatusPending,
		"payment_completed_at": completedAt,
	}
	if receipt != nil && *receipt != "" {
		updates["mpesa_receipt_number"] = *receipt
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status NOT IN ?", orderID, nonTerminalGuard).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ClaimFailed(ctx context.Context, orderID uuid.UUID, reason string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status NOT IN ?", orderID, nonTerminalGuard).
		Updates(map[string]any{
			"payment_status":         enums.PaymentStatusFailed,
			"status":                 enums.OrderStatusCancelled,
			"payment_failure_reason": reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ResetForRetry(ctx context.Context, orderID uuid.UUID, checkoutRequestID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", orderID, enums.PaymentStatusCompleted).
		Updates(map[string]any{
			"mpesa_checkout_request_id": checkoutRequestID,
			"payment_status":            enums.PaymentStatusPending,
			"status":                    enums.OrderStatusPaymentPending,
			"payment_failure_reason":    nil,
			"mpesa_receipt_number":      nil,
			"payment_completed_at":      nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkProcessing(ctx context.Context, orderID uuid.UUID, checkoutRequestID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", orderID, enums.PaymentStatusCompleted).
		Updates(map[string]any{
			"mpesa_checkout_request_id": checkoutRequestID,
			"payment_status":            enums.PaymentStatusProcessing,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AppendHistory(ctx context.Context, history *models.OrderStatusHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.MpesaTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}
