package settlement

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/urbanfoods/backend/internal/cart"
	"github.com/urbanfoods/backend/internal/orders"
	"github.com/urbanfoods/backend/internal/products"
	"github.com/urbanfoods/backend/internal/users"
	"github.com/urbanfoods/backend/pkg/db"
	"github.com/urbanfoods/backend/pkg/db/models"
	"github.com/urbanfoods/backend/pkg/enums"
	pkgerrors "github.com/urbanfoods/backend/pkg/errors"
	"github.com/urbanfoods/backend/pkg/logger"
	"github.com/urbanfoods/backend/pkg/metrics"
)

// Trigger identifies which path drove a settlement attempt.
type Trigger string

const (
	TriggerCallback Trigger = "callback"
	TriggerQuery    Trigger = "stk_query"
	TriggerCheckout Trigger = "checkout"
)

// Notifier fans out best-effort messages after a confirmed sale. Failures are
// logged and never roll back the settlement.
type Notifier interface {
	OrderConfirmed(ctx context.Context, order *models.Order) error
}

// EngineParams wires the settlement engine dependencies.
type EngineParams struct {
	Orders   orders.Repository
	Products products.Repository
	Users    users.Repository
	Carts    cart.Repository
	Notifier Notifier
	TxRunner db.TxRunner
	Metrics  *metrics.SettlementMetrics
	Logger   *logger.Logger
}

// Engine applies the confirm/fail transition exactly once, regardless of
// which trigger fired it. The conditional claim inside the transaction is the
// sole arbiter under races: the first trigger to move a non-terminal order
// wins, everyone else no-ops.
type Engine struct {
	orders   orders.Repository
	products products.Repository
	users    users.Repository
	carts    cart.Repository
	notifier Notifier
	txRunner db.TxRunner
	metrics  *metrics.SettlementMetrics
	logger   *logger.Logger
	now      func() time.Time
}

// NewEngine validates and wires the settlement engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "products repo required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repo required")
	}
	if params.Carts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart repo required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Engine{
		orders:   params.Orders,
		products: params.Products,
		users:    params.Users,
		carts:    params.Carts,
		notifier: params.Notifier,
		txRunner: params.TxRunner,
		metrics:  params.Metrics,
		logger:   params.Logger,
		now:      time.Now,
	}, nil
}

// ConfirmPayment settles the order as completed and applies the sale side
// effects in one transaction: stock counters, loyalty points, cart clearing
// and the audit row. It returns whether this call won the transition; a lost
// claim is a silent no-op, which is what makes duplicate webhooks and
// webhook/poll races safe.
func (e *Engine) ConfirmPayment(ctx context.Context, order *models.Order, receipt *string, note string, trigger Trigger) (bool, error) {
	if order == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "order required")
	}

	won := false
	err := e.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.orders.WithTx(tx)

		claimed, err := repo.ClaimCompleted(ctx, order.ID, receipt, e.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim completed transition")
		}
		if !claimed {
			return nil
		}
		won = true

		items, err := repo.FindItemsByOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		if err := e.applySaleEffects(ctx, tx, order, items); err != nil {
			return err
		}

		return repo.AppendHistory(ctx, orders.HistoryRow(order.ID, enums.OrderStatusPending, note))
	})
	if err != nil {
		return false, err
	}

	if !won {
		e.metrics.IncNoOp()
		return false, nil
	}

	e.metrics.IncConfirmed(string(trigger))
	ctx = e.logger.WithOrderNumber(ctx, order.OrderNumber)
	e.logger.Info(e.logger.WithField(ctx, "trigger", string(trigger)), "payment confirmed")

	e.dispatchNotifications(ctx, order)
	return true, nil
}

// FailPayment settles the order as failed under the same conditional claim,
// so a fail racing a confirm can never produce two terminal states.
func (e *Engine) FailPayment(ctx context.Context, order *models.Order, reason string, trigger Trigger) (bool, error) {
	if order == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "order required")
	}

	won := false
	err := e.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.orders.WithTx(tx)

		claimed, err := repo.ClaimFailed(ctx, order.ID, reason)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim failed transition")
		}
		if !claimed {
			return nil
		}
		won = true

		return repo.AppendHistory(ctx, orders.HistoryRow(order.ID, enums.OrderStatusCancelled, "Payment failed: "+reason))
	})
	if err != nil {
		return false, err
	}

	if !won {
		e.metrics.IncNoOp()
		return false, nil
	}

	e.metrics.IncFailed(string(trigger))
	ctx = e.logger.WithOrderNumber(ctx, order.OrderNumber)
	e.logger.Warn(e.logger.WithFields(ctx, map[string]any{"trigger": string(trigger), "reason": reason}), "payment failed")
	return true, nil
}

// ApplySaleEffectsTx runs the sale side effects inside an already-open
// transaction. The cash checkout path uses this at placement time; the
// M-Pesa path goes through ConfirmPayment.
func (e *Engine) ApplySaleEffectsTx(ctx context.Context, tx *gorm.DB, order *models.Order, items []models.OrderItem) error {
	return e.applySaleEffects(ctx, tx, order, items)
}

func (e *Engine) applySaleEffects(ctx context.Context, tx *gorm.DB, order *models.Order, items []models.OrderItem) error {
	productsRepo := e.products.WithTx(tx)
	for _, item := range items {
		if err := productsRepo.IncrementTimesOrdered(ctx, item.ProductID, item.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment sale counter")
		}
	}

	// Loyalty is the floor of the order total in whole shillings.
	if err := e.users.WithTx(tx).AwardLoyaltyPoints(ctx, order.UserID, order.Total.IntPart()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "award loyalty points")
	}

	if err := e.carts.WithTx(tx).ClearItems(ctx, order.UserID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart items")
	}
	return nil
}

// DispatchNotifications runs the best-effort fan-out. Exposed so the cash
// checkout path can reuse it after its transaction commits.
func (e *Engine) DispatchNotifications(ctx context.Context, order *models.Order) {
	e.dispatchNotifications(ctx, order)
}

func (e *Engine) dispatchNotifications(ctx context.Context, order *models.Order) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.OrderConfirmed(ctx, order); err != nil {
		e.logger.Error(e.logger.WithOrderNumber(ctx, order.OrderNumber), "notification fan-out failed", err)
	}
}
