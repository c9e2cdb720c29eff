package payments

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/urbanfoods/backend/internal/cart"
	"github.com/urbanfoods/backend/internal/orders"
	"github.com/urbanfoods/backend/internal/products"
	"github.com/urbanfoods/backend/internal/settlement"
	"github.com/urbanfoods/backend/internal/users"
	"github.com/urbanfoods/backend/pkg/db/models"
	"github.com/urbanfoods/backend/pkg/enums"
	pkgerrors "github.com/urbanfoods/backend/pkg/errors"
	"github.com/urbanfoods/backend/pkg/logger"
	"github.com/urbanfoods/backend/pkg/mpesa"
)

type stubOrdersRepo struct {
	order *models.Order

	created      []*models.Order
	createdItems [][]models.OrderItem
	processing   []string
	resets       []string
	histories    []*models.OrderStatusHistory
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) error {
	s.created = append(s.created, order)
	return nil
}

func (s *stubOrdersRepo) CreateItems(ctx context.Context, items []models.OrderItem) error {
	s.createdItems = append(s.createdItems, items)
	return nil
}

func (s *stubOrdersRepo) FindItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	return nil, nil
}

func (s *stubOrdersRepo) FindByCheckoutRequestID(ctx context.Context, id string) (*models.Order, error) {
	if s.order != nil && s.order.MpesaCheckoutRequestID != nil && *s.order.MpesaCheckoutRequestID == id {
		return s.order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) FindByCheckoutRequestIDAndUser(ctx context.Context, id string, userID uuid.UUID) (*models.Order, error) {
	order, err := s.FindByCheckoutRequestID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return order, nil
}

func (s *stubOrdersRepo) FindByOrderNumberAndUser(ctx context.Context, orderNumber string, userID uuid.UUID) (*models.Order, error) {
	if s.order != nil && s.order.OrderNumber == orderNumber && s.order.UserID == userID {
		return s.order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) ClaimCompleted(ctx context.Context, orderID uuid.UUID, receipt *string, completedAt time.Time) (bool, error) {
	if s.order.PaymentStatus.IsTerminal() {
		return false, nil
	}
	s.order.PaymentStatus = enums.PaymentStatusCompleted
	s.order.Status = enums.OrderStatusPending
	s.order.PaymentCompletedAt = &completedAt
	if receipt != nil {
		s.order.MpesaReceiptNumber = receipt
	}
	return true, nil
}

func (s *stubOrdersRepo) ClaimFailed(ctx context.Context, orderID uuid.UUID, reason string) (bool, error) {
	if s.order.PaymentStatus.IsTerminal() {
		return false, nil
	}
	s.order.PaymentStatus = enums.PaymentStatusFailed
	s.order.Status = enums.OrderStatusCancelled
	s.order.PaymentFailureReason = &reason
	return true, nil
}

func (s *stubOrdersRepo) ResetForRetry(ctx context.Context, orderID uuid.UUID, checkoutRequestID string) (bool, error) {
	if s.order != nil && s.order.PaymentStatus == enums.PaymentStatusCompleted {
		return false, nil
	}
	s.resets = append(s.resets, checkoutRequestID)
	s.order.PaymentStatus = enums.PaymentStatusPending
	s.order.Status = enums.OrderStatusPaymentPending
	s.order.MpesaCheckoutRequestID = &checkoutRequestID
	s.order.PaymentFailureReason = nil
	return true, nil
}

func (s *stubOrdersRepo) MarkProcessing(ctx context.Context, orderID uuid.UUID, checkoutRequestID string) (bool, error) {
	if s.order != nil && s.order.PaymentStatus == enums.PaymentStatusCompleted {
		return false, nil
	}
	s.processing = append(s.processing, checkoutRequestID)
	if s.order != nil {
		s.order.PaymentStatus = enums.PaymentStatusProcessing
		s.order.MpesaCheckoutRequestID = &checkoutRequestID
	}
	return true, nil
}

func (s *stubOrdersRepo) AppendHistory(ctx context.Context, history *models.OrderStatusHistory) error {
	s.histories = append(s.histories, history)
	return nil
}

func (s *stubOrdersRepo) CreateTransaction(ctx context.Context, txn *models.MpesaTransaction) error {
	return nil
}

type stubProductsRepo struct {
	increments map[uuid.UUID]int
}

func (s *stubProductsRepo) WithTx(tx *gorm.DB) products.Repository { return s }

func (s *stubProductsRepo) IncrementTimesOrdered(ctx context.Context, productID uuid.UUID, quantity int) error {
	if s.increments == nil {
		s.increments = map[uuid.UUID]int{}
	}
	s.increments[productID] += quantity
	return nil
}

type stubUsersRepo struct {
	points int64
}

func (s *stubUsersRepo) WithTx(tx *gorm.DB) users.Repository { return s }

func (s *stubUsersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return &models.User{ID: id}, nil
}

func (s *stubUsersRepo) AwardLoyaltyPoints(ctx context.Context, userID uuid.UUID, points int64) error {
	s.points += points
	return nil
}

type stubCartRepo struct {
	cart   *models.Cart
	clears int
}

func (s *stubCartRepo) WithTx(tx *gorm.DB) cart.Repository { return s }

func (s *stubCartRepo) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if s.cart == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.cart, nil
}

func (s *stubCartRepo) ClearItems(ctx context.Context, userID uuid.UUID) error {
	s.clears++
	return nil
}

type stubGateway struct {
	pushResult  *mpesa.STKPushResult
	pushErr     error
	pushCalls   int
	pushParams  []mpesa.STKPushParams
	onPush      func()
	queryResult *mpesa.STKQueryResult
	queryErr    error
	queryCalls  int
}

func (s *stubGateway) InitiateSTKPush(ctx context.Context, params mpesa.STKPushParams) (*mpesa.STKPushResult, error) {
	s.pushCalls++
	s.pushParams = append(s.pushParams, params)
	if s.onPush != nil {
		s.onPush()
	}
	if s.pushErr != nil {
		return nil, s.pushErr
	}
	return s.pushResult, nil
}

func (s *stubGateway) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*mpesa.STKQueryResult, error) {
	s.queryCalls++
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.queryResult, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fixture struct {
	svc      Service
	repo     *stubOrdersRepo
	carts    *stubCartRepo
	gateway  *stubGateway
	products *stubProductsRepo
	users    *stubUsersRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	f := &fixture{
		repo:     &stubOrdersRepo{},
		carts:    &stubCartRepo{},
		gateway:  &stubGateway{},
		products: &stubProductsRepo{},
		users:    &stubUsersRepo{},
	}

	ledger, err := orders.NewService(orders.ServiceParams{Repo: f.repo})
	require.NoError(t, err)

	engine, err := settlement.NewEngine(settlement.EngineParams{
		Orders:   f.repo,
		Products: f.products,
		Users:    f.users,
		Carts:    f.carts,
		TxRunner: stubTxRunner{},
		Logger:   logg,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Orders:     f.repo,
		Ledger:     ledger,
		Carts:      f.carts,
		Settlement: engine,
		Gateway:    f.gateway,
		TxRunner:   stubTxRunner{},
		Logger:     logg,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func cartWith(userID uuid.UUID, storeType enums.StoreType, price int64, quantity int) *models.Cart {
	return &models.Cart{
		ID:     uuid.New(),
		UserID: userID,
		Items: []models.CartItem{
			{
				ID:        uuid.New(),
				ProductID: uuid.New(),
				Quantity:  quantity,
				Product: models.Product{
					Name:      "Chicken Burger",
					Price:     decimal.NewFromInt(price),
					StoreType: storeType,
				},
			},
		},
	}
}

func processingOrder(userID uuid.UUID, total int64, checkoutID string) *models.Order {
	return &models.Order{
		ID:                     uuid.New(),
		OrderNumber:            "UF-TESTORDER1",
		UserID:                 userID,
		PhoneNumber:            "254712345678",
		Total:                  decimal.NewFromInt(total),
		PaymentMethod:          enums.PaymentMethodMpesa,
		PaymentStatus:          enums.PaymentStatusProcessing,
		Status:                 enums.OrderStatusPaymentPending,
		MpesaCheckoutRequestID: &checkoutID,
	}
}

func TestPlaceOrderMpesaInitiatesPush(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.carts.cart = cartWith(userID, enums.StoreTypeLiquor, 500, 1)
	f.gateway.pushResult = &mpesa.STKPushResult{
		CheckoutRequestID: "ws_001",
		CustomerMessage:   "Check your phone",
	}

	result, err := f.svc.PlaceOrder(context.Background(), userID, orders.PlaceOrderParams{
		Hostel:        "Block A",
		RoomNumber:    "12",
		PhoneNumber:   "0712345678",
		PaymentMethod: enums.PaymentMethodMpesa,
	})
	require.NoError(t, err)

	assert.Equal(t, "ws_001", result.CheckoutRequestID)
	assert.Equal(t, "Check your phone", result.CustomerMessage)
	// 500 subtotal + 20 delivery fee outside the food store.
	assert.True(t, result.Total.Equal(decimal.NewFromInt(520)), "total %s", result.Total)

	require.Len(t, f.repo.created, 1)
	require.Len(t, f.gateway.pushParams, 1)
	assert.Equal(t, "254712345678", f.gateway.pushParams[0].PhoneNumber)
	assert.Equal(t, []string{"ws_001"}, f.repo.processing)
	assert.Zero(t, f.carts.clears, "cart survives until the payment settles")
}

func TestPlaceOrderMpesaPushFailureReturnsError(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.carts.cart = cartWith(userID, enums.StoreTypeLiquor, 500, 1)
	f.gateway.pushErr = pkgerrors.New(pkgerrors.CodeDependency, "stk push rejected")

	_, err := f.svc.PlaceOrder(context.Background(), userID, orders.PlaceOrderParams{
		Hostel:        "Block A",
		RoomNumber:    "12",
		PhoneNumber:   "0712345678",
		PaymentMethod: enums.PaymentMethodMpesa,
	})
	require.Error(t, err)
	assert.Empty(t, f.repo.processing)
}

func TestPlaceOrderCashAppliesEffectsImmediately(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.carts.cart = cartWith(userID, enums.StoreTypeFood, 300, 2)

	result, err := f.svc.PlaceOrder(context.Background(), userID, orders.PlaceOrderParams{
		Hostel:        "Block B",
		RoomNumber:    "7",
		PhoneNumber:   "0712345678",
		PaymentMethod: enums.PaymentMethodCash,
	})
	require.NoError(t, err)

	assert.Empty(t, result.CheckoutRequestID)
	// Food orders carry no delivery fee.
	assert.True(t, result.Total.Equal(decimal.NewFromInt(600)), "total %s", result.Total)
	assert.Zero(t, f.gateway.pushCalls)
	assert.Equal(t, 1, f.carts.clears)
}

func TestPlaceOrderEmptyCartRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PlaceOrder(context.Background(), uuid.New(), orders.PlaceOrderParams{
		Hostel:        "Block A",
		RoomNumber:    "12",
		PhoneNumber:   "0712345678",
		PaymentMethod: enums.PaymentMethodMpesa,
	})
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestQueryPaymentStatusCompletedShortCircuits(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	order := processingOrder(userID, 520, "ws_001")
	order.PaymentStatus = enums.PaymentStatusCompleted
	receipt := "RCT123"
	order.MpesaReceiptNumber = &receipt
	f.repo.order = order

	result, err := f.svc.QueryPaymentStatus(context.Background(), userID, "ws_001")
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusCompleted, result.PaymentStatus)
	require.NotNil(t, result.MpesaReceiptNumber)
	assert.Equal(t, "RCT123", *result.MpesaReceiptNumber)
	assert.Zero(t, f.gateway.queryCalls, "completed orders never reach the provider")
}

func TestQueryPaymentStatusConfirmsOnZeroResult(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.repo.order = processingOrder(userID, 520, "ws_001")
	f.gateway.queryResult = &mpesa.STKQueryResult{ResultCode: 0, ResultDesc: "The service request is processed successfully."}

	result, err := f.svc.QueryPaymentStatus(context.Background(), userID, "ws_001")
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusCompleted, result.PaymentStatus)
	assert.Equal(t, enums.OrderStatusPending, result.Status)
	assert.Equal(t, 1, f.carts.clears)
	assert.Equal(t, int64(520), f.users.points)
}

func TestQueryPaymentStatusFailsOnCancellation(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.repo.order = processingOrder(userID, 520, "ws_001")
	f.gateway.queryResult = &mpesa.STKQueryResult{ResultCode: 1032, ResultDesc: "Request cancelled by user"}

	result, err := f.svc.QueryPaymentStatus(context.Background(), userID, "ws_001")
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusFailed, result.PaymentStatus)
	assert.Equal(t, enums.OrderStatusCancelled, result.Status)
	require.NotNil(t, f.repo.order.PaymentFailureReason)
	assert.Equal(t, "Request cancelled by user", *f.repo.order.PaymentFailureReason)
	assert.Zero(t, f.carts.clears, "no side effects on failure")
}

func TestQueryPaymentStatusUnknownCodeStaysPending(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.repo.order = processingOrder(userID, 520, "ws_001")
	f.gateway.queryResult = &mpesa.STKQueryResult{ResultCode: 4999, ResultDesc: "The transaction is being processed"}

	result, err := f.svc.QueryPaymentStatus(context.Background(), userID, "ws_001")
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusProcessing, result.PaymentStatus)
	assert.False(t, f.repo.order.PaymentStatus.IsTerminal())
}

func TestQueryPaymentStatusOwnershipMismatchIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.repo.order = processingOrder(uuid.New(), 520, "ws_001")

	_, err := f.svc.QueryPaymentStatus(context.Background(), uuid.New(), "ws_001")
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestRetryPaymentIssuesFreshCorrelationID(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	order := processingOrder(userID, 520, "ws_001")
	order.PaymentStatus = enums.PaymentStatusFailed
	order.Status = enums.OrderStatusCancelled
	reason := "request cancelled by user"
	order.PaymentFailureReason = &reason
	f.repo.order = order
	f.gateway.pushResult = &mpesa.STKPushResult{CheckoutRequestID: "ws_002", CustomerMessage: "Check your phone"}

	result, err := f.svc.RetryPayment(context.Background(), userID, order.OrderNumber)
	require.NoError(t, err)

	assert.Equal(t, "ws_002", result.CheckoutRequestID)
	assert.Equal(t, []string{"ws_002"}, f.repo.resets)
	assert.Equal(t, []string{"ws_002"}, f.repo.processing)
	require.NotNil(t, order.MpesaCheckoutRequestID)
	assert.Equal(t, "ws_002", *order.MpesaCheckoutRequestID)
	assert.Nil(t, order.PaymentFailureReason)
}

func TestRetryPaymentRefusesOrderCompletedMidFlight(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	order := processingOrder(userID, 520, "ws_001")
	order.PaymentStatus = enums.PaymentStatusFailed
	order.Status = enums.OrderStatusCancelled
	f.repo.order = order
	f.gateway.pushResult = &mpesa.STKPushResult{CheckoutRequestID: "ws_002"}

	// A webhook confirms the payment while the push request is in flight,
	// after the retry's initial status check.
	completedAt := time.Now()
	receipt := "RCT123"
	f.gateway.onPush = func() {
		order.PaymentStatus = enums.PaymentStatusCompleted
		order.Status = enums.OrderStatusPending
		order.MpesaReceiptNumber = &receipt
		order.PaymentCompletedAt = &completedAt
	}

	_, err := f.svc.RetryPayment(context.Background(), userID, order.OrderNumber)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())

	assert.Empty(t, f.repo.resets, "completed order must not be reset")
	assert.Equal(t, enums.PaymentStatusCompleted, order.PaymentStatus)
	require.NotNil(t, order.MpesaReceiptNumber)
	assert.Equal(t, "RCT123", *order.MpesaReceiptNumber)
	assert.NotNil(t, order.PaymentCompletedAt)
}

func TestRetryPaymentRejectedWhenCompleted(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	order := processingOrder(userID, 520, "ws_001")
	order.PaymentStatus = enums.PaymentStatusCompleted
	f.repo.order = order

	_, err := f.svc.RetryPayment(context.Background(), userID, order.OrderNumber)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	assert.Zero(t, f.gateway.pushCalls)
}
